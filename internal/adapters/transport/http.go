package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veselov/meetsync/internal/domain"
)

// APIClient is the shared HTTP surface to the session server: state resync,
// command polling, acknowledgments, outbound command posts, and the event
// stream. Request/response bodies are JSON.
type APIClient struct {
	base      string
	sessionID string
	hc        *http.Client
	// streaming requests must not inherit the request timeout
	shc *http.Client
}

func NewAPIClient(base, sessionID string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		base:      base,
		sessionID: sessionID,
		hc:        &http.Client{Timeout: timeout},
		shc:       &http.Client{},
	}
}

func (c *APIClient) url(path string) string {
	return fmt.Sprintf("%s/api/sessions/%s%s", c.base, c.sessionID, path)
}

// FetchState pulls the authoritative session snapshot.
func (c *APIClient) FetchState(ctx context.Context) (map[string]any, error) {
	var state map[string]any
	if err := c.getJSON(ctx, c.url("/state"), &state); err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}
	return state, nil
}

// FetchCommands drains pending command messages for the polling channel.
func (c *APIClient) FetchCommands(ctx context.Context) ([]domain.Message, error) {
	var commands []domain.Message
	if err := c.getJSON(ctx, c.url("/commands"), &commands); err != nil {
		return nil, fmt.Errorf("fetch commands: %w", err)
	}
	return commands, nil
}

// PostAcknowledgment confirms receipt of one message.
func (c *APIClient) PostAcknowledgment(ctx context.Context, ack domain.Acknowledgment) error {
	if err := c.postJSON(ctx, c.url("/commands/acknowledge"), ack); err != nil {
		return fmt.Errorf("post acknowledgment: %w", err)
	}
	return nil
}

// PostCommand pushes an outbound message over plain HTTP, the last-resort
// delivery path when no realtime channel is up.
func (c *APIClient) PostCommand(ctx context.Context, msg domain.Message) error {
	if err := c.postJSON(ctx, c.url("/commands"), msg); err != nil {
		return fmt.Errorf("post command: %w", err)
	}
	return nil
}

// OpenEventStream starts the server-push stream. The caller owns the body
// and must close it.
func (c *APIClient) OpenEventStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/events"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.shc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open event stream: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *APIClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) postJSON(ctx context.Context, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
