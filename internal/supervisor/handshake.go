package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agenterrors"
	"github.com/nginxinc/nginx-telemetry-agent/internal/httpclient"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/resilience"
)

// Handshaker exchanges the root object's definition with the control plane
// and returns its response. Supervisor depends on this interface, not
// HTTPHandshaker directly, so boot/version-gating/capability tests can
// supply a fake.
type Handshaker interface {
	Handshake(ctx context.Context, root object.Definition) (*CloudResponse, error)
}

// HTTPHandshaker implements Handshaker against the real control plane,
// POSTing to {api_url}/{api_key}/agent/ (spec §6).
//
// Grounded on context.http_client.post('agent/', ...) in supervisor.py;
// failure classification mirrors internal/bridge's CloudClient (same
// 503-is-backpressure / everything-else-is-transient split) since both
// paths share common/cloud.py's HTTP503Error.
type HTTPHandshaker struct {
	mu      sync.RWMutex
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewHTTPHandshaker builds an HTTPHandshaker posting to baseURL + apiKey +
// "/agent/".
func NewHTTPHandshaker(baseURL, apiKey string, client *http.Client) *HTTPHandshaker {
	if client == nil {
		client, _ = httpclient.NewClient(httpclient.ClientConfig{}, httpclient.DefaultClientDefaults())
	}
	return &HTTPHandshaker{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		breaker: resilience.New(resilience.DefaultConfig()),
	}
}

func (h *HTTPHandshaker) Handshake(ctx context.Context, root object.Definition) (*CloudResponse, error) {
	body, err := json.Marshal(root)
	if err != nil {
		return nil, agenterrors.TransientIO("encode root definition", err)
	}

	var response CloudResponse
	err = h.breaker.Execute(ctx, func() error {
		return h.handshakeOnce(ctx, body, &response)
	})
	if err != nil {
		if agenterrors.Is(err, agenterrors.Backpressure) {
			return nil, err
		}
		return nil, agenterrors.TransientIO("agent handshake", err)
	}
	return &response, nil
}

// UpdateBaseURL repoints the handshaker at a new control-plane base URL,
// the handshake-side counterpart to bridge.CloudClient.UpdateBaseURL —
// applied together whenever the cloud pushes an unfrozen cloud.api_url.
func (h *HTTPHandshaker) UpdateBaseURL(baseURL string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseURL = baseURL
}

func (h *HTTPHandshaker) handshakeOnce(ctx context.Context, body []byte, out *CloudResponse) error {
	h.mu.RLock()
	baseURL, apiKey := h.baseURL, h.apiKey
	h.mu.RUnlock()

	url := fmt.Sprintf("%s%s/agent/", baseURL, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _, _ := httpclient.ReadAllWithLimit(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusServiceUnavailable {
		return agenterrors.BackpressureDelay(parseRetryAfterSeconds(resp.Header.Get("Retry-After"), respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent handshake failed with status %d", resp.StatusCode)
	}
	return json.Unmarshal(respBody, out)
}
