package bridge

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agenterrors"
	"github.com/nginxinc/nginx-telemetry-agent/internal/httpclient"
	"github.com/nginxinc/nginx-telemetry-agent/internal/resilience"
)

// Poster sends one assembled payload to the control plane. Bridge depends
// on this interface rather than CloudClient directly so tests can swap in
// a fake without standing up an HTTP server.
type Poster interface {
	Post(ctx context.Context, payload *Payload) error
}

// CloudClient posts the Bridge's payload to the control plane's update
// endpoint, gzip-compressed, with circuit-breaker protection around the
// request itself.
//
// Grounded on Bridge._send_payload (managers/bridge.py) and
// common/cloud.py's HTTP503Error; the actual HTTP transport is new, built
// on internal/httpclient's client helpers and internal/resilience's
// gobreaker-backed CircuitBreaker.
type CloudClient struct {
	mu      sync.RWMutex
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewCloudClient builds a CloudClient posting to baseURL + "update/".
func NewCloudClient(baseURL string, client *http.Client) *CloudClient {
	if client == nil {
		client, _ = httpclient.NewClient(httpclient.ClientConfig{}, httpclient.DefaultClientDefaults())
	}
	return &CloudClient{
		baseURL: baseURL,
		client:  client,
		breaker: resilience.New(resilience.DefaultConfig()),
	}
}

// Post gzip-encodes payload as JSON and POSTs it to the update endpoint.
// A 503 response is translated into an agenterrors.Backpressure error
// carrying the server's requested retry-after delay (defaulting to
// defaultBackpressureDelaySeconds when the body doesn't parse as a plain
// integer); any other non-2xx status or transport failure is an
// agenterrors.Transient error.
func (c *CloudClient) Post(ctx context.Context, payload *Payload) error {
	body, err := encodePayload(payload)
	if err != nil {
		return agenterrors.TransientIO("encode payload", err)
	}

	err = c.breaker.Execute(ctx, func() error {
		return c.postOnce(ctx, body)
	})
	if err != nil {
		if agenterrors.Is(err, agenterrors.Backpressure) {
			return err
		}
		return agenterrors.TransientIO("post payload", err)
	}
	return nil
}

// UpdateBaseURL repoints the client at a new control-plane base URL,
// applied when the Supervisor sees the cloud push a new cloud.api_url and
// the user hasn't frozen it (spec §4.8).
func (c *CloudClient) UpdateBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
}

func (c *CloudClient) postOnce(ctx context.Context, body []byte) error {
	c.mu.RLock()
	baseURL := c.baseURL
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"update/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _, _ := httpclient.ReadAllWithLimit(resp.Body, 1<<16)

	if resp.StatusCode == http.StatusServiceUnavailable {
		return agenterrors.BackpressureDelay(parseRetryAfter(resp.Header.Get("Retry-After"), respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("update request failed with status %d", resp.StatusCode)
	}
	return nil
}

// parseRetryAfter mirrors HTTP503Error: read an integer number of seconds
// from the Retry-After header first, falling back to the response body,
// and finally to defaultBackpressureDelaySeconds if neither parses.
func parseRetryAfter(header string, body []byte) int {
	if n, err := strconv.Atoi(header); err == nil {
		return n
	}
	if n, err := strconv.ParseFloat(string(bytes.TrimSpace(body)), 64); err == nil {
		return int(n)
	}
	return defaultBackpressureDelaySeconds
}

func encodePayload(payload *Payload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
