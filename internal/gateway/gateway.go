// Package gateway wraps the external message delivery API behind a narrow
// interface. Timeouts and non-2xx responses are transient failures: the
// worker retries them.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Button is an interactive element attached to a message.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SendRequest is the payload the delivery gateway accepts.
type SendRequest struct {
	TemplateCode string   `json:"template_code"`
	Receiver     string   `json:"receiver"`
	RenderedBody string   `json:"rendered_body"`
	Buttons      []Button `json:"buttons,omitempty"`
}

// Gateway delivers one rendered message.
type Gateway interface {
	Send(ctx context.Context, req SendRequest) error
}

// HTTPGateway talks to the real delivery API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTP(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Send(ctx context.Context, req SendRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway send: unexpected status %d", resp.StatusCode)
	}
	return nil
}
