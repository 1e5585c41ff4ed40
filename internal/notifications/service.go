package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trawler/internal/config"
)

const userAgent = "Trawler/0.1.0"

// Service defines the notification surface exposed to the scheduler.
type Service interface {
	NotifyItemCompleted(ctx context.Context, title string, resultsFound int) error
	NotifyItemFailed(ctx context.Context, title, reason string) error
	NotifyQueueStalled(ctx context.Context, failedCount int) error
	NotifyPollSummary(ctx context.Context, sourcesChecked, itemsQueued int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyItemCompleted(ctx context.Context, title string, resultsFound int) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "untitled item"
	}
	data := payload{
		title:   "Trawler - Item Complete",
		message: fmt.Sprintf("Processed: %s (%d results)", title, resultsFound),
		tags:    []string{"trawler", "item", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemFailed(ctx context.Context, title, reason string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "untitled item"
	}
	message := fmt.Sprintf("Gave up on: %s", title)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nLast error: %s", message, reason)
	}
	data := payload{
		title:    "Trawler - Item Failed",
		message:  message,
		tags:     []string{"trawler", "item", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueStalled(ctx context.Context, failedCount int) error {
	data := payload{
		title:    "Trawler - Queue Stalled",
		message:  fmt.Sprintf("No work in flight and %d items failed terminally; operator attention needed", failedCount),
		tags:     []string{"trawler", "queue", "stalled"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPollSummary(ctx context.Context, sourcesChecked, itemsQueued int) error {
	data := payload{
		title:   "Trawler - Poll Complete",
		message: fmt.Sprintf("Checked %d sources, queued %d new items", sourcesChecked, itemsQueued),
		tags:    []string{"trawler", "poll", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Trawler - Error",
		message:  builder.String(),
		tags:     []string{"trawler", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Trawler - Test",
		message:  "Notification system test",
		tags:     []string{"trawler", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyItemCompleted(context.Context, string, int) error { return nil }
func (noopService) NotifyItemFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyQueueStalled(context.Context, int) error          { return nil }
func (noopService) NotifyPollSummary(context.Context, int, int) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
