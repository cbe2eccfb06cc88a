// Package decode turns raw VINs into structured vehicle descriptors using a
// vPIC-compatible decode service.
package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/pkg/fn"
	"github.com/AxleData/axle/pkg/resilience"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public vPIC decode endpoint.
const DefaultBaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"

// vpicResponse is the upstream's flat variable/value list.
type vpicResponse struct {
	Count   int          `json:"Count"`
	Message string       `json:"Message"`
	Results []vpicResult `json:"Results"`
}

type vpicResult struct {
	Variable string `json:"Variable"`
	Value    string `json:"Value"`
}

// Client is the thin adapter to the upstream decode service. Calls are
// rate-limited, bounded by the HTTP client timeout, retried at most once,
// and guarded by a circuit breaker.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewClient creates a decode adapter. timeout bounds each upstream call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Fetch calls the upstream DecodeVin endpoint. Transport failures and
// timeouts surface as upstream_unavailable; malformed or rejected responses
// as decode_failed. One retry, never more.
func (c *Client) Fetch(ctx context.Context, vin string) (*vpicResponse, error) {
	var resp *vpicResponse
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		result := fn.Retry(ctx, fn.RetryOpts{
			MaxAttempts: 2,
			InitialWait: 200 * time.Millisecond,
			MaxWait:     time.Second,
			Jitter:      true,
		}, func(ctx context.Context) fn.Result[*vpicResponse] {
			return c.doGet(ctx, vin)
		})
		var err error
		resp, err = result.Unwrap()
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, domain.Wrap(domain.CodeUpstreamUnavailable, "decode service unavailable", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) doGet(ctx context.Context, vin string) fn.Result[*vpicResponse] {
	if err := c.limiter.Wait(ctx); err != nil {
		return fn.Err[*vpicResponse](err)
	}

	url := fmt.Sprintf("%s/DecodeVin/%s?format=json", c.baseURL, neturl.PathEscape(vin))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fn.Err[*vpicResponse](domain.Wrap(domain.CodeDecodeFailed, "decode request build failed", err))
	}
	req.Header.Set("User-Agent", "axle-api/1.0 (vehicle data resolution)")

	resp, err := c.client.Do(req)
	if err != nil {
		return fn.Err[*vpicResponse](classifyTransport(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fn.Err[*vpicResponse](domain.Wrap(domain.CodeUpstreamUnavailable, "decode service unavailable",
			fmt.Errorf("http %d from %s", resp.StatusCode, url)))
	}
	if resp.StatusCode != http.StatusOK {
		return fn.Err[*vpicResponse](domain.Wrap(domain.CodeDecodeFailed, "decode rejected",
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fn.Err[*vpicResponse](classifyTransport(err))
	}

	var out vpicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fn.Err[*vpicResponse](domain.Wrap(domain.CodeDecodeFailed, "decode response malformed", err))
	}
	return fn.Ok(&out)
}

// classifyTransport maps network-level failures to upstream_unavailable.
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.Wrap(domain.CodeUpstreamUnavailable, "decode service timed out", err)
	}
	return domain.Wrap(domain.CodeUpstreamUnavailable, "decode service unreachable", err)
}
