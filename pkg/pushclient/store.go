package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/resilience"
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// RemoteConfig is the server's push configuration from GET /push/config.
type RemoteConfig struct {
	PublicKey    string `json:"publicKey"`
	NudgeEnabled bool   `json:"nudgeEnabled"`
}

// Record is what the device reports to the server for one subscription.
type Record struct {
	Subscription Subscription
	UserID       string
	Device       DeviceInfo
}

// Store persists subscriptions on the server.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, endpoint string) error
}

// StoreClientConfig holds configuration for the store client.
type StoreClientConfig struct {
	// BaseURL is the API origin, e.g. "https://app.agendaclin.com.br".
	BaseURL string

	// HTTPClient sends the requests. Default: a client with a circuit
	// breaker and three retries on overload.
	HTTPClient HTTPDoer

	Logger zerolog.Logger
}

// StoreClient calls the /push endpoints of the API.
// Failed calls are returned as *SyncError.
type StoreClient struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewStoreClient creates a store client.
func NewStoreClient(cfg StoreClientConfig) *StoreClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("push-store"))
	}
	return &StoreClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Save upserts rec via POST /push/subscribe.
func (c *StoreClient) Save(ctx context.Context, rec Record) error {
	body := subscribeBody{
		Subscription: subscriptionBody{
			Endpoint: rec.Subscription.Endpoint,
			Keys: keysBody{
				P256dh: rec.Subscription.P256dh,
				Auth:   rec.Subscription.Auth,
			},
		},
		UserID:    optional(rec.UserID),
		Platform:  optional(rec.Device.Platform),
		UserAgent: optional(rec.Device.UserAgent),
	}
	return c.post(ctx, "/push/subscribe", body)
}

// Delete removes endpoint via POST /push/unsubscribe.
func (c *StoreClient) Delete(ctx context.Context, endpoint string) error {
	return c.post(ctx, "/push/unsubscribe", unsubscribeBody{Endpoint: endpoint})
}

// Config fetches GET /push/config.
func (c *StoreClient) Config(ctx context.Context) (*RemoteConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/push/config", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, problemError(resp))
	}

	var cfg RemoteConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &cfg, nil
}

func (c *StoreClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		err := classify(resp.StatusCode, problemError(resp))
		c.logger.Debug().Err(err).Str("path", path).Msg("push store call failed")
		return err
	}
	return nil
}

// classify maps a failed call to a SyncError. Client errors will not go away
// on retry; everything else might.
func classify(status int, err error) *SyncError {
	kind := SyncTransient
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		kind = SyncPermanent
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		kind = SyncTransient
	}
	return &SyncError{Kind: kind, Status: status, Err: err}
}

// Request bodies of the /push endpoints.
type (
	keysBody struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	}
	subscriptionBody struct {
		Endpoint string   `json:"endpoint"`
		Keys     keysBody `json:"keys"`
	}
	subscribeBody struct {
		Subscription subscriptionBody `json:"subscription"`
		UserID       *string          `json:"userId,omitempty"`
		Platform     *string          `json:"platform,omitempty"`
		UserAgent    *string          `json:"userAgent,omitempty"`
	}
	unsubscribeBody struct {
		Endpoint string `json:"endpoint"`
	}
)

// problem is the subset of the API's problem document the client reads.
type problem struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func problemError(resp *http.Response) error {
	var p problem
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil || p.Code == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if p.Detail != "" {
		return fmt.Errorf("%s: %s", p.Code, p.Detail)
	}
	return errors.New(p.Code)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
