package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trawler/internal/config"
	"trawler/internal/queue"
	"trawler/internal/scheduler"
	"trawler/internal/services"
)

const component = "analyzer"

// Client submits claimed items to the external analyzer endpoint over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient builds an analyzer client. Fails with a configuration error when
// no endpoint is configured, since the daemon cannot process without one.
func NewClient(cfg *config.Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Analyzer.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "init",
			"analyzer endpoint is not configured", nil)
	}
	timeout := time.Duration(cfg.Analyzer.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type analyzeRequest struct {
	URL        string `json:"url"`
	ExternalID string `json:"external_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

type analyzeResponse struct {
	Success      bool   `json:"success"`
	ResultsFound int    `json:"results_found"`
	ResultRef    string `json:"result_ref"`
	Error        string `json:"error"`
	Permanent    bool   `json:"permanent"`
}

// Process submits the item and maps the response onto the retry policy:
// transport trouble and 5xx responses are transient, while an explicit
// permanent flag or an unprocessable-entity status skips the item for good.
func (c *Client) Process(ctx context.Context, item *queue.Item) (scheduler.ProcessResult, error) {
	body, err := json.Marshal(analyzeRequest{
		URL:        item.URL,
		ExternalID: item.ExternalID,
		Title:      item.Title,
	})
	if err != nil {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrTransient, component, "encode request", item.ExternalID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrTransient, component, "build request", item.ExternalID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Trawler/0.1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrTransient, component, "submit item", item.ExternalID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrTransient, component, "read response", item.ExternalID, err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrPermanent, component, "submit item",
			fmt.Sprintf("%s rejected as unprocessable: %s", item.ExternalID, responseDetail(payload)), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrTransient, component, "submit item",
			fmt.Sprintf("%s returned status %d", item.ExternalID, resp.StatusCode), nil)
	}

	var decoded analyzeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return scheduler.ProcessResult{}, services.Wrap(services.ErrTransient, component, "decode response", item.ExternalID, err)
	}

	if !decoded.Success {
		message := strings.TrimSpace(decoded.Error)
		if message == "" {
			message = "analyzer reported failure without detail"
		}
		marker := services.ErrTransient
		if decoded.Permanent {
			marker = services.ErrPermanent
		}
		return scheduler.ProcessResult{}, services.Wrap(marker, component, "analyze", message, nil)
	}

	return scheduler.ProcessResult{
		ResultsFound: decoded.ResultsFound,
		ResultRef:    strings.TrimSpace(decoded.ResultRef),
	}, nil
}

func responseDetail(payload []byte) string {
	var decoded analyzeResponse
	if err := json.Unmarshal(payload, &decoded); err == nil && strings.TrimSpace(decoded.Error) != "" {
		return strings.TrimSpace(decoded.Error)
	}
	detail := strings.TrimSpace(string(payload))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	if detail == "" {
		detail = "no detail"
	}
	return detail
}
