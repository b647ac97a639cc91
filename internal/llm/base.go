package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// rate limiter defaults; chat-completion vendors tolerate a few requests per
// second from one process.
const (
	defaultRPS   = 4
	defaultBurst = 2

	retryBackoff = 500 * time.Millisecond
)

// baseClient carries the transport machinery shared by all vendor adapters:
// a timeout-bounded HTTP client, a per-provider rate limiter, and a circuit
// breaker that stops hammering a vendor mid-outage.
type baseClient struct {
	id         string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func newBaseClient(id string, timeout time.Duration, maxRetries int) *baseClient {
	settings := gobreaker.Settings{
		Name:     id,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &baseClient{
		id:         id,
		timeout:    timeout,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type httpResult struct {
	statusCode int
	body       []byte
}

// execute performs one vendor call under a single per-call deadline that both
// attempts share: a retried call still finishes inside the configured timeout.
// buildReq is invoked per attempt because *http.Request bodies are single-use.
func (b *baseClient) execute(ctx context.Context, buildReq func(ctx context.Context) (*http.Request, error)) (httpResult, Status, error) {
	// A zero timeout is a hard no-call configuration: report the timeout
	// without touching the network.
	if b.timeout <= 0 {
		return httpResult{}, StatusTimeout, context.DeadlineExceeded
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, status, err := b.attempt(callCtx, buildReq)
	if status.Retryable() && b.maxRetries > 0 {
		log.Warn().Str("provider", b.id).Dur("backoff", retryBackoff).
			Msg("Rate limited, retrying once")
		select {
		case <-time.After(retryBackoff):
		case <-callCtx.Done():
			return res, StatusTimeout, callCtx.Err()
		}
		res, status, err = b.attempt(callCtx, buildReq)
	}
	return res, status, err
}

func (b *baseClient) attempt(ctx context.Context, buildReq func(ctx context.Context) (*http.Request, error)) (httpResult, Status, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return httpResult{}, classifyTransport(err), err
	}

	out, err := b.breaker.Execute(func() (interface{}, error) {
		req, err := buildReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		res := httpResult{statusCode: resp.StatusCode, body: body}
		// 5xx counts as a breaker failure so a down vendor trips it open.
		if resp.StatusCode >= 500 {
			return res, errServerStatus
		}
		return res, nil
	})

	if err != nil {
		if res, ok := out.(httpResult); ok && errors.Is(err, errServerStatus) {
			return res, StatusServer, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return httpResult{}, StatusServer, err
		}
		return httpResult{}, classifyTransport(err), err
	}

	res := out.(httpResult)
	return res, classifyHTTP(res.statusCode, res.body), nil
}

var errServerStatus = errors.New("server-side status")

// classifyHTTP maps a vendor HTTP status onto the closed taxonomy. A 429 with
// quota or billing language means the budget is gone for the session; a plain
// 429 is transient rate limiting. Any 2xx counts as success, the body parse
// decides from there; the taxonomy carries no client-error kind, so leftover
// statuses, 4xx included, land on the single-call server arm.
func classifyHTTP(statusCode int, body []byte) Status {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return StatusAuth
	case statusCode == http.StatusTooManyRequests:
		lower := strings.ToLower(string(body))
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return StatusQuota
		}
		return StatusRateLimit
	default:
		return StatusServer
	}
}

// classifyTransport maps pre-response failures: deadline expiry is a timeout,
// everything else (DNS, TLS, connection reset) is a transport fault.
func classifyTransport(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusTimeout
	}
	return StatusTransport
}

func jsonBody(data []byte) io.Reader {
	return bytes.NewReader(data)
}
