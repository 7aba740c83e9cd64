package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBytes = 8 << 20

// Config bounds a single invocation.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Jitter is the fraction of each delay that may be randomly removed, in [0, 1).
	Jitter float64
}

// DefaultConfig returns 3 attempts, a 30s per-attempt timeout, and delays of
// 1s then 2s capped at 8s.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffCap:  8 * time.Second,
	}
}

// Request is one logical agent invocation. A zero Timeout or MaxAttempts
// takes the client Config value.
type Request struct {
	Endpoint      string
	Payload       any
	CorrelationID string
	Timeout       time.Duration
	MaxAttempts   int
}

// Client invokes agents with signing, timeouts, and retry.
type Client struct {
	http   *http.Client
	signer Signer
	creds  CredentialSource
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces the clock used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client. Zero-valued Config fields take their defaults.
func New(signer Signer, creds CredentialSource, cfg Config, logger *slog.Logger, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}

	c := &Client{
		http:   &http.Client{},
		signer: signer,
		creds:  creds,
		cfg:    cfg,
		logger: logger.With("system", "agent"),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends req, retrying transient failures. It returns a Result for any
// well-formed 2xx response, and an *Error otherwise.
func (c *Client) Invoke(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}

	start := c.now()
	var last *Error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.Backoff(attempt-2)); err != nil {
				break
			}
		}

		attempts = attempt
		attemptStart := c.now()
		res, aerr := c.attempt(ctx, req, body)
		latency := c.now().Sub(attemptStart)

		if aerr == nil {
			c.logger.Info(
				"agent attempt",
				"endpoint", truncateEndpoint(req.Endpoint),
				"attempt", attempt,
				"latency", latency,
				"outcome", "ok",
				"status", res.StatusCode,
				"correlation_id", req.CorrelationID,
			)
			res.Attempts = attempt
			res.Elapsed = c.now().Sub(start)
			return res, nil
		}

		c.logger.Warn(
			"agent attempt",
			"endpoint", truncateEndpoint(req.Endpoint),
			"attempt", attempt,
			"latency", latency,
			"outcome", string(aerr.Kind),
			"status", aerr.StatusCode,
			"correlation_id", req.CorrelationID,
			"error", aerr.Err,
		)

		last = aerr
		if !aerr.Retryable() || ctx.Err() != nil {
			break
		}
	}

	if last == nil {
		last = &Error{Kind: KindTimeout, Err: ctx.Err()}
	}
	last.Endpoint = req.Endpoint
	last.Attempts = attempts
	last.Elapsed = c.now().Sub(start)
	return nil, last
}

// Backoff returns the delay before retry n, where n is 0 for the first retry.
func (c *Client) Backoff(n int) time.Duration {
	d := c.cfg.BackoffBase << n
	if d <= 0 || d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	if c.cfg.Jitter > 0 {
		if span := int64(float64(d) * c.cfg.Jitter); span > 0 {
			d -= time.Duration(rand.Int64N(span))
		}
	}
	return d
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte) (*Result, *Error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, &Error{Kind: KindSigning, Err: fmt.Errorf("%w: %v", ErrSigning, err)}
	}

	signed, err := c.signer.Sign(Call{
		Endpoint:      req.Endpoint,
		Body:          body,
		CorrelationID: req.CorrelationID,
	}, creds)
	if err != nil {
		return nil, &Error{Kind: KindSigning, Err: err}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := signed.HTTPRequest(attemptCtx)
	if err != nil {
		return nil, &Error{Kind: KindSigning, Err: fmt.Errorf("%w: %v", ErrSigning, err)}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", snippet(data)),
		}
	}

	res, err := decodeResult(data)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: err}
	}
	res.StatusCode = resp.StatusCode
	return res, nil
}

// transportError classifies err. The request URL carried by *url.Error is
// dropped from the message.
func transportError(err error) *Error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncateEndpoint reduces endpoint to scheme://host/... so paths and query
// strings never reach the log.
func truncateEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "<redacted>"
	}
	return u.Scheme + "://" + u.Host + "/..."
}

func snippet(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
