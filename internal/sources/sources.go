package sources

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidSource marks a URL that does not resolve to a recognized shape.
var ErrInvalidSource = errors.New("invalid source URL")

// Kind identifies the type of content source behind a subscription.
type Kind string

const (
	KindChannel  Kind = "channel"
	KindPlaylist Kind = "playlist"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindChannel:
		return KindChannel, true
	case KindPlaylist:
		return KindPlaylist, true
	default:
		return "", false
	}
}

// Source is the resolved identity of a subscription URL.
type Source struct {
	Kind        Kind
	CanonicalID string
	URL         string
}

var acceptedHosts = map[string]struct{}{
	"youtube.com":     {},
	"www.youtube.com": {},
	"m.youtube.com":   {},
}

// Resolve derives the source kind and canonical identifier from a URL.
// Recognized shapes: /channel/<id>, /@<handle>, /c/<name>, /user/<name>,
// and /playlist?list=<id>, with or without a host variant prefix or a
// trailing slash. Anything else fails with ErrInvalidSource.
func Resolve(rawURL string) (Source, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Source{}, fmt.Errorf("%w: empty URL", ErrInvalidSource)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %s", ErrInvalidSource, trimmed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Source{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, parsed.Scheme)
	}
	if _, ok := acceptedHosts[strings.ToLower(parsed.Host)]; !ok {
		return Source{}, fmt.Errorf("%w: unsupported host %q", ErrInvalidSource, parsed.Host)
	}

	path := strings.TrimSuffix(parsed.EscapedPath(), "/")

	if path == "/playlist" {
		listID := strings.TrimSpace(parsed.Query().Get("list"))
		if listID == "" {
			return Source{}, fmt.Errorf("%w: playlist URL missing list parameter", ErrInvalidSource)
		}
		return Source{Kind: KindPlaylist, CanonicalID: listID, URL: trimmed}, nil
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) == 1 && strings.HasPrefix(segments[0], "@") {
		handle := segments[0]
		if len(handle) < 2 {
			return Source{}, fmt.Errorf("%w: empty handle", ErrInvalidSource)
		}
		return Source{Kind: KindChannel, CanonicalID: strings.ToLower(handle), URL: trimmed}, nil
	}
	if len(segments) != 2 || segments[1] == "" {
		return Source{}, fmt.Errorf("%w: unrecognized path %q", ErrInvalidSource, path)
	}

	switch segments[0] {
	case "channel":
		// Channel ids are case-sensitive; keep them verbatim.
		return Source{Kind: KindChannel, CanonicalID: segments[1], URL: trimmed}, nil
	case "c":
		return Source{Kind: KindChannel, CanonicalID: "c/" + strings.ToLower(segments[1]), URL: trimmed}, nil
	case "user":
		return Source{Kind: KindChannel, CanonicalID: "user/" + strings.ToLower(segments[1]), URL: trimmed}, nil
	default:
		return Source{}, fmt.Errorf("%w: unrecognized path %q", ErrInvalidSource, path)
	}
}

// FeedURL returns the public RSS feed for directly addressable sources.
// Handle and legacy custom/user shapes have no static feed URL; their feed
// is resolved at fetch time, and FeedURL returns false for them.
func FeedURL(src Source) (string, bool) {
	switch src.Kind {
	case KindPlaylist:
		return "https://www.youtube.com/feeds/videos.xml?playlist_id=" + url.QueryEscape(src.CanonicalID), true
	case KindChannel:
		if strings.HasPrefix(src.CanonicalID, "UC") {
			return "https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(src.CanonicalID), true
		}
	}
	return "", false
}

// ChannelFeedURL builds the RSS feed URL for a raw channel id.
func ChannelFeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}
