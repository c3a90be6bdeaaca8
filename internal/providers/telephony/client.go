// Package telephony is the REST side of the phone provider: placing
// outbound calls and tearing them down. The media itself arrives over
// the provider's WebSocket stream, handled at the API edge.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	APIKey  string
	From    string

	hc *http.Client
}

func NewClient(baseURL, apiKey, from string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		From:    from,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

// ProviderError carries the provider's status and body on a non-2xx
// response so callers can decide whether the failure is transient.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("telephony provider returned %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// PlaceCall dials the number and points the provider at our answer
// and status webhooks. It returns the provider's call sid; the live
// call then arrives as a media stream referencing that sid.
func (c *Client) PlaceCall(ctx context.Context, to, answerURL, statusURL string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.From)
	form.Set("Url", answerURL)
	form.Set("StatusCallback", statusURL)

	body, err := c.post(ctx, c.BaseURL+"/Calls", form)
	if err != nil {
		return "", err
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("telephony: decoding call response: %w", err)
	}
	if out.SID == "" {
		return "", fmt.Errorf("telephony: call response missing sid")
	}
	return out.SID, nil
}

// EndCall asks the provider to complete an in-progress call.
func (c *Client) EndCall(ctx context.Context, callSID string) error {
	form := url.Values{}
	form.Set("Status", "completed")
	_, err := c.post(ctx, c.BaseURL+"/Calls/"+callSID, form)
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return io.ReadAll(resp.Body)
}
