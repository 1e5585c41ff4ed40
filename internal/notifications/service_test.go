package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"trawler/internal/notifications"
	"trawler/internal/testsupport"
)

type recordedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newRecordingServer(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var requests []recordedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedRequest, len(requests))
		copy(out, requests)
		return out
	}
}

func newService(t *testing.T, topic string) notifications.Service {
	t.Helper()
	return notifications.NewService(testsupport.NewConfig(t, testsupport.WithNtfyTopic(topic)))
}

func TestNoTopicReturnsNoop(t *testing.T) {
	svc := newService(t, "")
	ctx := context.Background()

	if err := svc.NotifyItemCompleted(ctx, "anything", 3); err != nil {
		t.Fatalf("noop NotifyItemCompleted returned %v", err)
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("noop TestNotification returned %v", err)
	}
}

func TestNotifyItemCompleted(t *testing.T) {
	server, recorded := newRecordingServer(t)
	svc := newService(t, server.URL)

	if err := svc.NotifyItemCompleted(context.Background(), "Deep Sea Special", 4); err != nil {
		t.Fatalf("NotifyItemCompleted failed: %v", err)
	}

	requests := recorded()
	if len(requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(requests))
	}
	req := requests[0]
	if req.title != "Trawler - Item Complete" {
		t.Errorf("title = %q", req.title)
	}
	if req.tags != "trawler,item,completed" {
		t.Errorf("tags = %q", req.tags)
	}
	if req.priority != "" {
		t.Errorf("priority = %q, want unset for default", req.priority)
	}
	if !strings.Contains(req.body, "Deep Sea Special") || !strings.Contains(req.body, "4 results") {
		t.Errorf("body = %q", req.body)
	}
}

func TestNotifyItemFailedCarriesReasonAndPriority(t *testing.T) {
	server, recorded := newRecordingServer(t)
	svc := newService(t, server.URL)

	if err := svc.NotifyItemFailed(context.Background(), "", "upstream gone"); err != nil {
		t.Fatalf("NotifyItemFailed failed: %v", err)
	}

	req := recorded()[0]
	if req.priority != "high" {
		t.Errorf("priority = %q, want high", req.priority)
	}
	if !strings.Contains(req.body, "untitled item") {
		t.Errorf("empty title not substituted: %q", req.body)
	}
	if !strings.Contains(req.body, "upstream gone") {
		t.Errorf("reason missing from body: %q", req.body)
	}
}

func TestNotifyQueueStalled(t *testing.T) {
	server, recorded := newRecordingServer(t)
	svc := newService(t, server.URL)

	if err := svc.NotifyQueueStalled(context.Background(), 7); err != nil {
		t.Fatalf("NotifyQueueStalled failed: %v", err)
	}

	req := recorded()[0]
	if req.title != "Trawler - Queue Stalled" {
		t.Errorf("title = %q", req.title)
	}
	if !strings.Contains(req.body, "7 items failed") {
		t.Errorf("body = %q", req.body)
	}
}

func TestNotifyPollSummary(t *testing.T) {
	server, recorded := newRecordingServer(t)
	svc := newService(t, server.URL)

	if err := svc.NotifyPollSummary(context.Background(), 3, 12); err != nil {
		t.Fatalf("NotifyPollSummary failed: %v", err)
	}

	req := recorded()[0]
	if !strings.Contains(req.body, "Checked 3 sources") || !strings.Contains(req.body, "queued 12 new items") {
		t.Errorf("body = %q", req.body)
	}
}

func TestNotifyErrorFormatsContext(t *testing.T) {
	server, recorded := newRecordingServer(t)
	svc := newService(t, server.URL)

	if err := svc.NotifyError(context.Background(), errors.New("disk full"), "event log purge"); err != nil {
		t.Fatalf("NotifyError failed: %v", err)
	}

	req := recorded()[0]
	if !strings.Contains(req.body, "event log purge") || !strings.Contains(req.body, "disk full") {
		t.Errorf("body = %q", req.body)
	}
}

func TestSendSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("topic is protected"))
	}))
	t.Cleanup(server.Close)

	svc := newService(t, server.URL)
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic is protected") {
		t.Fatalf("unexpected error text: %v", err)
	}
}
