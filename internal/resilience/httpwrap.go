package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient sends outbound requests through a breaker, retrying transport
// errors and 5xx responses up to MaxAttempts with exponential backoff.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout applies per attempt. Zero falls back to Client.Timeout.
	Timeout time.Duration
	Target  string
	Logger  *zerolog.Logger
}

// NewHTTPClient labels breaker with target. A nil breaker gets defaults.
func NewHTTPClient(client *http.Client, target string, breaker *Breaker, logger zerolog.Logger) *HTTPClient {
	if breaker == nil {
		breaker = NewBreaker(5, 0.5, 30*time.Second)
	}
	return &HTTPClient{
		Client:  client,
		Breaker: breaker.WithTarget(target).WithLogger(logger),
		Target:  target,
		Logger:  &logger,
	}
}

// StatusError reports a 5xx response that exhausted retries.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "resilience: upstream responded " + e.Status
}

// Do sends req, buffering its body so every attempt replays the same bytes.
// The returned body stays readable until closed.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}
	attempts := max(cl.MaxAttempts, 1)
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := Sleep(ctx, Backoff(base, attempt-1, cl.Jitter)); err != nil {
				return nil, err
			}
		}
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}
		resp, err := cl.attempt(ctx, req, body)
		switch {
		case err == nil && resp.StatusCode < http.StatusInternalServerError:
			cl.report(ctx, true)
			return resp, nil
		case err == nil:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		default:
			lastErr = err
		}
		cl.report(ctx, false)
		if cl.Logger != nil {
			cl.Logger.Warn().Err(lastErr).Str("target", cl.Target).Int("attempt", attempt).Int("max_attempts", attempts).Msg("outbound_attempt_failed")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) report(ctx context.Context, ok bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, ok)
	}
}

func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	out := req.Clone(callCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		out.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = bodyWithCancel{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type bodyWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b bodyWithCancel) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = rc
	}
	defer func() { _ = src.Close() }()
	return io.ReadAll(src)
}
