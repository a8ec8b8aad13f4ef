// Package collectorclient is the Agent's stateless HTTP client for the
// Collector control-plane contract: health, announce, policy, heartbeat,
// and events:batch.
package collectorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client issues requests against a single Collector base URL. Status == 0
// on any returned call means no HTTP response was observed (DNS failure,
// connection refused, timeout, etc.) — exactly the Python original's
// "_request" convention.
type Client struct {
	BaseURL string
	APIKey  string
	http    *http.Client
}

// New constructs a Client. timeout bounds every call this Client makes;
// callers that need a different timeout per call (probe vs operational)
// construct two Clients, matching the reference runtime's use of
// probe_timeout_sec for health and http_timeout_sec for everything else.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (int, map[string]interface{}) {
	return c.request(ctx, http.MethodGet, "/health", nil, nil)
}

// Announce posts the announce envelope.
func (c *Client) Announce(ctx context.Context, payload map[string]interface{}) (int, map[string]interface{}) {
	return c.request(ctx, http.MethodPost, "/announce", payload, nil)
}

// Policy fetches the current policy for (serviceName, environment).
func (c *Client) Policy(ctx context.Context, serviceName, environment string) (int, map[string]interface{}) {
	q := url.Values{"serviceName": {serviceName}, "environment": {environment}}
	return c.request(ctx, http.MethodGet, "/policy", nil, q)
}

// Heartbeat posts the heartbeat envelope.
func (c *Client) Heartbeat(ctx context.Context, payload map[string]interface{}) (int, map[string]interface{}) {
	return c.request(ctx, http.MethodPost, "/heartbeat", payload, nil)
}

// EventsBatch posts an events:batch payload.
func (c *Client) EventsBatch(ctx context.Context, payload map[string]interface{}) (int, map[string]interface{}) {
	return c.request(ctx, http.MethodPost, "/events:batch", payload, nil)
}

// request performs one HTTP round trip and returns (status, body).
// status == 0 means the request never produced an HTTP response at all.
// Non-2xx responses still return their parsed body when it is valid JSON,
// so callers can read the standard result envelope off an error response.
func (c *Client) request(ctx context.Context, method, path string, payload map[string]interface{}, query url.Values) (int, map[string]interface{}) {
	full := c.BaseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, decoded
}
