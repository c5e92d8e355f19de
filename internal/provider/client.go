// Package provider is the outbound adapter for the voice-call provider's
// REST API. Only the call-detail read is needed here; placing calls is
// owned by another service.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotReady means the provider has no detail record for the call yet.
	// Returned for HTTP 404; callers retry it like any transient failure.
	ErrNotReady      = errors.New("provider: call details not yet available")
	ErrNotConfigured = errors.New("provider: private API key not configured")
)

// APIError is any other non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: api error: status=%d message=%s", e.StatusCode, e.Message)
}

// CallFetcher reads one call's detail record.
type CallFetcher interface {
	FetchCall(ctx context.Context, callID string) (CallRecord, error)
}

type ClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the provider's REST API with a private bearer key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
	}
}

// FetchCall performs GET {base}/call/{id}. It does not retry.
func (c *Client) FetchCall(ctx context.Context, callID string) (CallRecord, error) {
	if c.apiKey == "" {
		return CallRecord{}, ErrNotConfigured
	}
	if strings.TrimSpace(callID) == "" {
		return CallRecord{}, errors.New("provider: call id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call/"+url.PathEscape(callID), nil)
	if err != nil {
		return CallRecord{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CallRecord{}, err
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return CallRecord{}, readErr
	}

	if resp.StatusCode == http.StatusNotFound {
		return CallRecord{}, fmt.Errorf("%w for %s", ErrNotReady, callID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CallRecord{}, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp, body)}
	}

	rec, err := decodeCallRecord(body)
	if err != nil {
		return CallRecord{}, fmt.Errorf("provider: decode call %s: %w", callID, err)
	}
	return rec, nil
}

func errorMessage(resp *http.Response, body []byte) string {
	var parsed struct {
		Message any `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch m := parsed.Message.(type) {
		case string:
			if strings.TrimSpace(m) != "" {
				return m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				parts = append(parts, fmt.Sprint(p))
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
	}
	return http.StatusText(resp.StatusCode)
}
