package analyzer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"trawler/internal/queue"
	"trawler/internal/services"
	"trawler/internal/services/analyzer"
	"trawler/internal/testsupport"
)

func newClient(t *testing.T, endpoint string) *analyzer.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAnalyzerEndpoint(endpoint))
	client, err := analyzer.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func testItem() *queue.Item {
	return &queue.Item{
		ID:         1,
		ExternalID: "vid-1",
		URL:        "https://www.youtube.com/watch?v=vid-1",
		Title:      "Item vid-1",
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Analyzer.Endpoint = ""
	if _, err := analyzer.NewClient(cfg); err == nil {
		t.Fatal("expected configuration error without an endpoint")
	}
}

func TestProcessSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["url"] != "https://www.youtube.com/watch?v=vid-1" {
			t.Errorf("unexpected url: %v", req["url"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":       true,
			"results_found": 5,
			"result_ref":    "ref-9",
		})
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	result, err := client.Process(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.ResultsFound != 5 || result.ResultRef != "ref-9" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestProcessTransientFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			"reported failure without permanent flag",
			func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "backend busy"})
			},
		},
		{
			"garbage payload",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := newClient(t, server.URL)
			_, err := client.Process(context.Background(), testItem())
			if err == nil {
				t.Fatal("expected error")
			}
			if services.IsPermanent(err) {
				t.Fatalf("error must be transient: %v", err)
			}
		})
	}
}

func TestProcessPermanentFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"unprocessable entity",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]any{"error": "video unavailable"})
			},
		},
		{
			"explicit permanent flag",
			func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"success":   false,
					"error":     "private video",
					"permanent": true,
				})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := newClient(t, server.URL)
			_, err := client.Process(context.Background(), testItem())
			if !services.IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
		})
	}
}

func TestProcessUnreachableEndpointIsTransient(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1/analyze")
	_, err := client.Process(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsPermanent(err) {
		t.Fatalf("connection failure must be transient: %v", err)
	}
}
