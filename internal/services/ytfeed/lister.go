package ytfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"trawler/internal/config"
	"trawler/internal/scheduler"
	"trawler/internal/services"
	"trawler/internal/sources"
	"trawler/internal/subscriptions"
)

const component = "ytfeed"

// GUIDs in the video feeds carry this prefix in front of the video id.
const guidPrefix = "yt:video:"

// Lister enumerates a subscription's current uploads from the public RSS
// feeds. Handle and legacy channel shapes have no static feed URL, so their
// channel id is scraped from the channel page once and cached for the life
// of the process.
type Lister struct {
	parser  *gofeed.Parser
	client  *http.Client
	timeout time.Duration

	mu       sync.Mutex
	resolved map[string]string // canonical id -> UC channel id
}

// NewLister builds a feed lister using the configured request timeout.
func NewLister(cfg *config.Config) *Lister {
	timeout := time.Duration(cfg.Lister.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "Trawler/0.1.0"
	return &Lister{
		parser:   parser,
		client:   client,
		timeout:  timeout,
		resolved: make(map[string]string),
	}
}

// List fetches and parses the source feed, returning one entry per item.
// Network and parse failures come back transient; a feed that the upstream
// reports as gone is permanent.
func (l *Lister) List(ctx context.Context, sub *subscriptions.Subscription) ([]scheduler.ListedItem, error) {
	feedURL, err := l.feedURL(ctx, sub)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	feed, err := l.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		if httpErr, ok := err.(gofeed.HTTPError); ok && (httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone) {
			return nil, services.Wrap(services.ErrPermanent, component, "fetch feed",
				fmt.Sprintf("feed for %s no longer exists", sub.CanonicalID), err)
		}
		return nil, services.Wrap(services.ErrTransient, component, "fetch feed",
			fmt.Sprintf("feed for %s", sub.CanonicalID), err)
	}

	return itemsFromFeed(feed), nil
}

// itemsFromFeed maps feed entries onto listed items, dropping entries with
// no usable id.
func itemsFromFeed(feed *gofeed.Feed) []scheduler.ListedItem {
	items := make([]scheduler.ListedItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		externalID := strings.TrimPrefix(strings.TrimSpace(entry.GUID), guidPrefix)
		if externalID == "" {
			continue
		}
		item := scheduler.ListedItem{
			ExternalID: externalID,
			URL:        strings.TrimSpace(entry.Link),
			Title:      strings.TrimSpace(entry.Title),
		}
		if entry.PublishedParsed != nil {
			published := entry.PublishedParsed.UTC()
			item.PublishedAt = &published
		}
		items = append(items, item)
	}
	return items
}

func (l *Lister) feedURL(ctx context.Context, sub *subscriptions.Subscription) (string, error) {
	src := sources.Source{Kind: sub.Kind, CanonicalID: sub.CanonicalID, URL: sub.URL}
	if feedURL, ok := sources.FeedURL(src); ok {
		return feedURL, nil
	}

	l.mu.Lock()
	channelID, ok := l.resolved[sub.CanonicalID]
	l.mu.Unlock()
	if ok {
		return sources.ChannelFeedURL(channelID), nil
	}

	channelID, err := l.scrapeChannelID(ctx, sub.URL)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.resolved[sub.CanonicalID] = channelID
	l.mu.Unlock()
	return sources.ChannelFeedURL(channelID), nil
}

var channelIDPattern = regexp.MustCompile(`"channelId":"(UC[0-9A-Za-z_-]{22})"`)

// scrapeChannelID fetches the channel page and extracts the UC channel id
// embedded in its metadata.
func (l *Lister) scrapeChannelID(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, component, "resolve channel id", pageURL, err)
	}
	req.Header.Set("User-Agent", "Trawler/0.1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, component, "resolve channel id", pageURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", services.Wrap(services.ErrPermanent, component, "resolve channel id",
			fmt.Sprintf("channel page %s no longer exists", pageURL), nil)
	case resp.StatusCode >= 300:
		return "", services.Wrap(services.ErrTransient, component, "resolve channel id",
			fmt.Sprintf("channel page returned %d", resp.StatusCode), nil)
	}

	// 2 MiB is far past where the metadata block appears.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, component, "resolve channel id", "read channel page", err)
	}

	match := channelIDPattern.FindSubmatch(body)
	if match == nil {
		return "", services.Wrap(services.ErrTransient, component, "resolve channel id",
			fmt.Sprintf("no channel id found in %s", pageURL), nil)
	}
	return string(match[1]), nil
}
