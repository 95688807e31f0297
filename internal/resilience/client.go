package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// UpstreamError is an overloaded or failing upstream: a 429 or any 5xx.
// It trips the breaker and is retried; once retries run out the response
// itself is returned, not the error.
type UpstreamError struct {
	StatusCode int
	// RetryAfter is the delay the upstream asked for, zero when absent.
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func overloaded(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// ClientConfig holds configuration for a Client.
type ClientConfig struct {
	// Name identifies the client in the registry and the breaker.
	Name string

	// Timeout bounds each attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero means a single attempt.
	MaxRetries uint64

	// Exponential backoff bounds. A Retry-After header is honored up to
	// MaxInterval.
	// Defaults: 100ms and 5 seconds
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Breaker overrides DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Registry, when set, receives the client and its call outcomes.
	Registry *Registry

	Logger zerolog.Logger

	// Transport overrides the round tripper, mainly for tests.
	Transport http.RoundTripper
}

// DefaultClientConfig returns the settings used for the store API client.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         &breaker,
		Logger:          zerolog.Nop(),
	}
}

// Client is an HTTP doer with a circuit breaker and bounded retries. It
// satisfies the Do(*http.Request) interface webpush-go expects.
type Client struct {
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	settings BreakerConfig
	cfg      ClientConfig
}

// NewClient creates a Client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	breaker := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breaker = *cfg.Breaker
		breaker.Name = cfg.Name
	}
	if breaker.OnStateChange == nil {
		logger := cfg.Logger
		breaker.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	breaker = breaker.withDefaults()

	c := &Client{
		http:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker:  newBreaker[*http.Response](breaker),
		settings: breaker,
		cfg:      cfg,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Struggling reports whether recent failures would have opened the breaker.
// It is only meaningful for passive breakers; an active one opens instead.
func (c *Client) Struggling() bool {
	return c.settings.Passive && c.settings.ShouldTrip(c.breaker.Counts())
}

// Do sends req, retrying network errors and overloaded responses with
// exponential backoff. Other responses are returned unchanged. The request
// body is replayed through req.GetBody.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	delays := &retryAfterBackOff{
		BackOff: backoff.WithMaxRetries(exp, c.cfg.MaxRetries),
		max:     c.cfg.MaxInterval,
	}

	var last *http.Response
	err := backoff.Retry(func() error {
		discard(last)
		last = nil

		resp, err := c.attempt(ctx, req)
		var upstream *UpstreamError
		switch {
		case errors.Is(err, ErrCircuitOpen):
			return backoff.Permanent(err)
		case errors.As(err, &upstream):
			last = resp
			delays.after = upstream.RetryAfter
			return err
		case err != nil:
			return err
		}
		last = resp
		return nil
	}, backoff.WithContext(delays, ctx))

	switch {
	case err == nil:
		c.observe(nil)
		return last, nil
	case last != nil:
		c.observe(&UpstreamError{StatusCode: last.StatusCode})
		return last, nil
	default:
		c.observe(err)
		return nil, err
	}
}

func (c *Client) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	clone, err := rewind(ctx, req)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
		r, err := c.http.Do(clone)
		if err != nil {
			return nil, err
		}
		if overloaded(r.StatusCode) {
			return r, &UpstreamError{
				StatusCode: r.StatusCode,
				RetryAfter: parseRetryAfter(r.Header.Get("Retry-After"), time.Now()),
			}
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return resp, err
}

func (c *Client) observe(err error) {
	if c.cfg.Registry != nil {
		c.cfg.Registry.observe(c.cfg.Name, err)
	}
}

// rewind copies req for one attempt with a fresh body.
func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// parseRetryAfter reads delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// retryAfterBackOff stretches the next delay to the upstream's Retry-After,
// capped at max.
type retryAfterBackOff struct {
	backoff.BackOff
	after time.Duration
	max   time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.after > d {
		d = min(b.after, b.max)
	}
	b.after = 0
	return d
}
