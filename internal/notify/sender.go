package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/agendaclin/agendaclin/internal/subscription"
)

// ErrMissingVAPIDKeys is returned when the application key pair or the
// contact subject is not configured. Nothing can be delivered without them.
var ErrMissingVAPIDKeys = errors.New("missing VAPID keys")

// VAPIDConfig is the application server key pair and contact subject.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Validate reports ErrMissingVAPIDKeys naming the first missing field.
func (c VAPIDConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.PublicKey) == "":
		return fmt.Errorf("%w: public key not set", ErrMissingVAPIDKeys)
	case strings.TrimSpace(c.PrivateKey) == "":
		return fmt.Errorf("%w: private key not set", ErrMissingVAPIDKeys)
	case strings.TrimSpace(c.Subject) == "":
		return fmt.Errorf("%w: subject not set", ErrMissingVAPIDKeys)
	}
	return nil
}

// Sender performs a single delivery attempt to one subscription.
// A non-nil error means no status was received.
type Sender interface {
	Send(ctx context.Context, sub *subscription.Subscription, payload []byte) (status int, err error)
}

// HTTPDoer is satisfied by *http.Client and the resilience clients.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// WebPushSenderConfig holds configuration for WebPushSender.
type WebPushSenderConfig struct {
	VAPID VAPIDConfig

	// TTL is how long the push service keeps an undelivered message.
	// Default: 24 hours
	TTL time.Duration

	// Urgency is one of very-low, low, normal, high.
	// Default: normal
	Urgency string

	// HTTPClient performs the request. Default: http.Client with Timeout.
	HTTPClient HTTPDoer

	// Timeout bounds each attempt when HTTPClient is not set.
	// Default: 10 seconds
	Timeout time.Duration
}

// WebPushSender encrypts payloads and posts them to push service endpoints
// using VAPID authentication.
type WebPushSender struct {
	vapid   VAPIDConfig
	ttl     int
	urgency webpush.Urgency
	client  HTTPDoer
}

// NewWebPushSender creates a new sender.
func NewWebPushSender(cfg WebPushSenderConfig) *WebPushSender {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &WebPushSender{
		vapid:   cfg.VAPID,
		ttl:     int(ttl / time.Second),
		urgency: parseUrgency(cfg.Urgency),
		client:  client,
	}
}

// Send delivers payload to sub and returns the push service status code.
func (s *WebPushSender) Send(ctx context.Context, sub *subscription.Subscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.vapid.Subject,
		TTL:             s.ttl,
		Urgency:         s.urgency,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return resp.StatusCode, nil
}

func parseUrgency(s string) webpush.Urgency {
	switch u := webpush.Urgency(strings.ToLower(strings.TrimSpace(s))); u {
	case webpush.UrgencyVeryLow, webpush.UrgencyLow, webpush.UrgencyHigh:
		return u
	default:
		return webpush.UrgencyNormal
	}
}
