package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const httpErrorBodyLimit = 1024

type timingConfig struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMaxElapsed time.Duration
}

var defaultTiming = timingConfig{
	timeout:           10 * time.Second,
	rateInterval:      1 * time.Second,
	rateBurst:         1,
	backoffInitial:    1 * time.Second,
	backoffMax:        10 * time.Second,
	backoffMaxElapsed: 30 * time.Second,
}

// httpPoster posts payloads to a webhook URL with per-service rate limiting
// and exponential-backoff retries on transient failures.
type httpPoster struct {
	logger      zerolog.Logger
	target      string
	webhookURL  string
	contentType string
	client      *retryablehttp.Client
	timing      timingConfig

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func newHTTPPoster(logger zerolog.Logger, target, webhookURL, contentType string, timing timingConfig) *httpPoster {
	// Retrying is handled here via backoff so that 4xx responses stay
	// permanent; the retryablehttp client only contributes its transport
	// hygiene.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timing.timeout}

	return &httpPoster{
		logger:      logger,
		target:      target,
		webhookURL:  webhookURL,
		contentType: contentType,
		client:      client,
		timing:      timing,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// post delivers one payload, respecting the service's rate limiter and
// retrying transient failures until the backoff budget is exhausted.
func (p *httpPoster) post(ctx context.Context, service string, payload []byte) error {
	if err := p.limiter(service).Wait(ctx); err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.timing.backoffInitial
	policy.MaxInterval = p.timing.backoffMax
	policy.MaxElapsedTime = p.timing.backoffMaxElapsed

	operation := func() error {
		return p.postOnce(ctx, payload)
	}
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (p *httpPoster) limiter(service string) *rate.Limiter {
	p.limiterMu.Lock()
	defer p.limiterMu.Unlock()

	limiter, ok := p.limiters[service]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.timing.rateInterval), p.timing.rateBurst)
		p.limiters[service] = limiter
	}
	return limiter
}

func (p *httpPoster) postOnce(ctx context.Context, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.timing.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, p.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build %s request: %w", p.target, err))
	}
	req.Header.Set("Content-Type", p.contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.target, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpErrorBodyLimit))
	bodyText := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s rate limited: %s", p.target, resp.Status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s server error: %s", p.target, resp.Status)
	default:
		if bodyText != "" {
			return backoff.Permanent(fmt.Errorf("%s request failed: %s (%s)", p.target, resp.Status, bodyText))
		}
		return backoff.Permanent(fmt.Errorf("%s request failed: %s", p.target, resp.Status))
	}
}
