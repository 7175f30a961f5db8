// Package backend is the HTTP client for the remote marketplace API. It
// implements the cart, coupon and order collaborators and maps HTTP failures
// onto fault kinds.
package backend

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/domain/fault"
)

const maxBodySize = 4 << 20

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds every single request.
	Timeout time.Duration
	// Retries is the number of extra attempts for GET requests on
	// transient failures.
	Retries int

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Transport overrides the base round tripper. Used by tests.
	Transport http.RoundTripper
}

// Client talks to the marketplace backend.
type Client struct {
	base    string
	timeout time.Duration
	retries int

	// retryWait is the first backoff interval.
	retryWait time.Duration
	http      *http.Client
	lg        *zap.Logger
}

// New creates a Client.
func New(cfg Config, lg *zap.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("backend base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &Client{
		base:      base,
		timeout:   cfg.Timeout,
		retries:   cfg.Retries,
		retryWait: 100 * time.Millisecond,
		http:      &http.Client{Transport: otelhttp.NewTransport(rt, opts...)},
		lg:        lg,
	}, nil
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx. Requests made with
// the returned context carry it in the Authorization header.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// Ping checks that the backend answers at all. Any response below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping backend")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}

// get performs an idempotent GET, retrying transient failures with bounded
// exponential backoff.
func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait
	b.MaxInterval = 10 * c.retryWait

	attempt := 0
	return backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		data, err := c.do(ctx, op, http.MethodGet, path, nil)
		if err == nil {
			return data, nil
		}
		if !fault.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		if attempt <= c.retries {
			c.lg.Debug("Retrying backend call", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.retries)+1))
}

// do sends one request and returns the response body of a 2xx answer.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: create request", op)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(op, resp.StatusCode, data)
	}
	return data, nil
}

func transportError(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fault.Wrap(fault.ErrTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, op)
	}
	return fault.Wrap(fault.ErrTransient, op, err)
}

// statusError maps a non-2xx status onto a fault kind, keeping the
// backend's message when it sent one.
func statusError(op string, status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind error
	switch {
	case status == http.StatusNotFound:
		kind = fault.ErrNotFound
	case status == http.StatusConflict:
		kind = fault.ErrConflict
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		kind = fault.ErrTimeout
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		kind = fault.ErrTransient
	default:
		kind = fault.ErrValidation
	}
	return &fault.Error{Kind: kind, Op: op, Msg: msg, Err: &StatusError{Code: status}}
}

// StatusError carries the HTTP status of a failed backend call.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "backend status " + http.StatusText(e.Code)
}
