package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the synthesis provider's HTTP endpoint.
type Client struct {
	BaseURL string
	APIKey  string

	hc *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
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
	return fmt.Sprintf("tts provider returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth one local retry.
func (e *ProviderError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type synthesizeRequest struct {
	Text       string `json:"text"`
	Language   string `json:"language"`
	VoiceID    string `json:"voice_id"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Synthesize requests linear PCM for the given text and returns the
// raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, text, language, voiceID string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{
		Text:       text,
		Language:   language,
		VoiceID:    voiceID,
		Encoding:   "linear16",
		SampleRate: SampleRate,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
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

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// VoiceFor maps a gender preference and language to a provider voice
// id. Unknown combinations fall back to the default female Hindi voice.
func VoiceFor(gender, language string) string {
	key := gender + "/" + language
	if v, ok := voiceTable[key]; ok {
		return v
	}
	if v, ok := voiceTable[gender+"/hi"]; ok {
		return v
	}
	return voiceTable["female/hi"]
}

var voiceTable = map[string]string{
	"female/hi": "anushka",
	"male/hi":   "abhilash",
	"female/en": "vidya",
	"male/en":   "arvind",
	"female/bn": "ananya",
	"male/bn":   "rahul",
	"female/ta": "pavithra",
	"male/ta":   "karthik",
}
