package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nkovacs/hospital/internal/replica"
)

const drainLimit = 512

// Prober reports whether one replica answered green for a full probe cycle.
type Prober interface {
	Probe(ctx context.Context, h *replica.Handle, endpoint string) bool
}

// HTTPProber probes replica ports over HTTP. One prober is shared read-only
// by all monitors; it is safe for concurrent use. Failures are never
// retried within a cycle: a failed call simply marks the cycle red and the
// policy decides what that means.
type HTTPProber struct {
	client *retryablehttp.Client
}

// NewHTTPProber constructs the shared probe client with the given per-call
// timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timeout}

	return &HTTPProber{client: client}
}

// Probe returns true when every listening port answers the endpoint with a
// success status. A replica with no ports is green by definition. The first
// failing port short-circuits the cycle; remaining ports are not probed.
func (p *HTTPProber) Probe(ctx context.Context, h *replica.Handle, endpoint string) bool {
	for _, port := range h.Ports {
		if !p.probePort(ctx, port, endpoint) {
			return false
		}
	}
	return true
}

func (p *HTTPProber) probePort(ctx context.Context, port replica.Port, endpoint string) bool {
	scheme := port.Protocol
	if scheme == "" {
		scheme = "http"
	}
	url := fmt.Sprintf("%s://localhost:%d%s", scheme, port.Number, endpoint)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
