package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/agendaclin/internal/api"
	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/auth"
	"github.com/agendaclin/agendaclin/internal/featureflags"
	"github.com/agendaclin/agendaclin/internal/notify"
	"github.com/agendaclin/agendaclin/internal/subscription"
	"github.com/agendaclin/agendaclin/pkg/pushpayload"
)

const (
	testP256dh     = "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM"
	testAuth       = "tBHItJI5svbpez7KI4CCXg"
	testPublicKey  = "BPublicKeyForTests"
	testSigningKey = "test-secret-key-for-testing-only"
)

var errStoreDown = errors.New("store down")

// recordingSender answers 201 unless a status is configured for the endpoint.
type recordingSender struct {
	mu       sync.Mutex
	statuses map[string]int
	payloads map[string]pushpayload.Payload
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		statuses: make(map[string]int),
		payloads: make(map[string]pushpayload.Payload),
	}
}

func (s *recordingSender) Send(_ context.Context, sub *subscription.Subscription, payload []byte) (int, error) {
	p, err := pushpayload.Parse(payload)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[sub.Endpoint] = p
	if status, ok := s.statuses[sub.Endpoint]; ok {
		return status, nil
	}
	return http.StatusCreated, nil
}

// brokenRepository fails every call.
type brokenRepository struct{}

func (brokenRepository) Upsert(context.Context, *subscription.Subscription) (bool, error) {
	return false, errStoreDown
}
func (brokenRepository) DeleteByEndpoint(context.Context, string) error { return errStoreDown }
func (brokenRepository) DeleteByEndpoints(context.Context, []string) (int, error) {
	return 0, errStoreDown
}
func (brokenRepository) ListAll(context.Context) ([]*subscription.Subscription, error) {
	return nil, errStoreDown
}
func (brokenRepository) Count(context.Context) (int, error) { return 0, errStoreDown }

type harness struct {
	router http.Handler
	repo   subscription.Repository
	sender *recordingSender
	flags  *featureflags.Service
	tokens *auth.TokenService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	repo           subscription.Repository
	vapid          notify.VAPIDConfig
	withTokens     bool
	subscribeLimit middleware.Limit
}

func withRepository(repo subscription.Repository) harnessOption {
	return func(c *harnessConfig) { c.repo = repo }
}

func withoutVAPID() harnessOption {
	return func(c *harnessConfig) { c.vapid = notify.VAPIDConfig{} }
}

func withSubscribeLimit(limit middleware.Limit) harnessOption {
	return func(c *harnessConfig) { c.subscribeLimit = limit }
}

func withServiceTokens() harnessOption {
	return func(c *harnessConfig) { c.withTokens = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{
		repo: subscription.NewInMemoryRepository(),
		vapid: notify.VAPIDConfig{
			PublicKey:  testPublicKey,
			PrivateKey: "private",
			Subject:    "mailto:ops@agendaclin.test",
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zerolog.New(io.Discard)
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})
	sender := newRecordingSender()
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Repository: cfg.repo,
		Sender:     sender,
		VAPID:      cfg.vapid,
		Switch:     flags,
		Logger:     logger,
	})
	require.NoError(t, err)

	var tokens *auth.TokenService
	if cfg.withTokens {
		tokens = auth.NewTokenService(auth.TokenConfig{
			SigningKey: testSigningKey,
			Issuer:     "agendaclin",
			Audience:   "agendaclin-push",
		})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2025-03-10T00:00:00Z",
		Logger:    logger,
		Subscriptions: subscription.NewService(subscription.ServiceConfig{
			Repository: cfg.repo,
			Logger:     logger,
		}),
		Dispatcher:         dispatcher,
		FeatureFlagService: flags,
		TokenService:       tokens,
		VAPIDPublicKey:     cfg.vapid.PublicKey,
		PushKeysConfigured: cfg.vapid.Validate() == nil,
		SubscribeLimit:     cfg.subscribeLimit,
	})

	return &harness{router: router, repo: cfg.repo, sender: sender, flags: flags, tokens: tokens}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) token(t *testing.T, scopes ...string) string {
	t.Helper()
	token, _, err := h.tokens.Issue("scheduler", scopes, 0)
	require.NoError(t, err)
	return token
}

func subscribeBody(endpoint string) map[string]interface{} {
	return map[string]interface{}{
		"subscription": map[string]interface{}{
			"endpoint": endpoint,
			"keys":     map[string]string{"p256dh": testP256dh, "auth": testAuth},
		},
		"userId":   "42",
		"platform": "web",
	}
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func countSubscriptions(t *testing.T, repo subscription.Repository) int {
	t.Helper()
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRouter_HealthCheck(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/ops/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name       string
		opts       []harnessOption
		wantCode   int
		wantStatus models.HealthStatus
	}{
		{"ready", nil, http.StatusOK, models.HealthStatusOK},
		{"missing keys degrade", []harnessOption{withoutVAPID()}, http.StatusOK, models.HealthStatusDegraded},
		{"store failure", []harnessOption{withRepository(brokenRepository{})}, http.StatusServiceUnavailable, models.HealthStatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)

			w := h.do(t, http.MethodGet, "/v1/ops/ready", nil, "")

			assert.Equal(t, tt.wantCode, w.Code)
			var readiness models.Readiness
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &readiness))
			assert.Equal(t, tt.wantStatus, readiness.Status)
			require.NotEmpty(t, readiness.Subsystems)
			assert.Equal(t, "subscription-store", readiness.Subsystems[0].Name)
		})
	}
}

func TestRouter_PushConfig(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/push/config", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.PushConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, testPublicKey, cfg.PublicKey)
	assert.True(t, cfg.NudgeEnabled)

	require.NoError(t, h.flags.Set(context.Background(), featureflags.Flag{
		Key:     featureflags.FlagPushNudgeEnabled,
		Enabled: false,
	}))

	w = h.do(t, http.MethodGet, "/push/config", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.False(t, cfg.NudgeEnabled)
}

func TestRouter_Subscribe_Idempotent(t *testing.T) {
	h := newHarness(t)
	body := subscribeBody("https://fcm.googleapis.com/fcm/send/e1")

	for i := 0; i < 3; i++ {
		w := h.do(t, http.MethodPost, "/push/subscribe", body, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	}

	assert.Equal(t, 1, countSubscriptions(t, h.repo))
}

func TestRouter_Subscribe_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", `{"subscription":`},
		{"empty body", nil},
		{"missing keys", map[string]interface{}{
			"subscription": map[string]interface{}{"endpoint": "https://fcm.googleapis.com/fcm/send/e1"},
		}},
		{"plain http endpoint", subscribeBody("http://push.example.com/e1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			w := h.do(t, http.MethodPost, "/push/subscribe", tt.body, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, models.CodeInvalidSubscription, decodeProblem(t, w).Code)
			assert.Zero(t, countSubscriptions(t, h.repo))
		})
	}
}

func TestRouter_Subscribe_StoreError(t *testing.T) {
	h := newHarness(t, withRepository(brokenRepository{}))

	w := h.do(t, http.MethodPost, "/push/subscribe", subscribeBody("https://fcm.googleapis.com/fcm/send/e1"), "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.CodeStoreError, decodeProblem(t, w).Code)
}

func TestRouter_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	endpoint := "https://fcm.googleapis.com/fcm/send/e1"
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/push/subscribe", subscribeBody(endpoint), "").Code)

	w := h.do(t, http.MethodPost, "/push/unsubscribe", map[string]string{"endpoint": endpoint}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Zero(t, countSubscriptions(t, h.repo))

	// Unknown endpoints succeed as well.
	w = h.do(t, http.MethodPost, "/push/unsubscribe", map[string]string{"endpoint": endpoint}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Unsubscribe_MissingEndpoint(t *testing.T) {
	h := newHarness(t)

	for _, body := range []interface{}{map[string]string{}, map[string]string{"endpoint": "  "}, nil} {
		w := h.do(t, http.MethodPost, "/push/unsubscribe", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.CodeMissingEndpoint, decodeProblem(t, w).Code)
	}
}

func TestRouter_Unsubscribe_StoreError(t *testing.T) {
	h := newHarness(t, withRepository(brokenRepository{}))

	w := h.do(t, http.MethodPost, "/push/unsubscribe", map[string]string{"endpoint": "https://x.test/e1"}, "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.CodeStoreError, decodeProblem(t, w).Code)
}

func TestRouter_Send_CreateEvent(t *testing.T) {
	h := newHarness(t)
	endpoint := "https://fcm.googleapis.com/fcm/send/e1"
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/push/subscribe", subscribeBody(endpoint), "").Code)

	w := h.do(t, http.MethodPost, "/push/send", `{"type":"create","appointment":{"id":7,"date":"2025-03-10","time":"14:30"}}`, "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Delivered)

	payload := h.sender.payloads[endpoint]
	assert.Equal(t, "Novo atendimento", payload.Title)
	assert.Equal(t, "Atendimento criado para 10/03/2025 às 14:30.", payload.Body)
	assert.Equal(t, "/agenda?appointment=7", payload.URL)
}

func TestRouter_Send_PrunesGoneSubscriptions(t *testing.T) {
	h := newHarness(t)
	e1 := "https://fcm.googleapis.com/fcm/send/e1"
	e2 := "https://fcm.googleapis.com/fcm/send/e2"
	for _, e := range []string{e1, e2} {
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/push/subscribe", subscribeBody(e), "").Code)
	}
	h.sender.statuses[e2] = http.StatusGone

	w := h.do(t, http.MethodPost, "/push/send", map[string]string{"type": "test"}, "")

	require.Equal(t, http.StatusOK, w.Code)
	var res models.SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Pruned)

	subs, err := h.repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, e1, subs[0].Endpoint)
}

func TestRouter_Send_EmptyBodyDispatchesUpdate(t *testing.T) {
	h := newHarness(t)
	endpoint := "https://fcm.googleapis.com/fcm/send/e1"
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/push/subscribe", subscribeBody(endpoint), "").Code)

	w := h.do(t, http.MethodPost, "/push/send", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Atendimento atualizado", h.sender.payloads[endpoint].Title)
}

func TestRouter_Send_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     []harnessOption
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"missing vapid keys", []harnessOption{withoutVAPID()}, map[string]string{"type": "test"}, http.StatusInternalServerError, models.CodeMissingVAPIDKeys},
		{"store error", []harnessOption{withRepository(brokenRepository{})}, map[string]string{"type": "test"}, http.StatusInternalServerError, models.CodeStoreError},
		{"malformed event", nil, `{"type":`, http.StatusBadRequest, models.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)

			w := h.do(t, http.MethodPost, "/push/send", tt.body, "")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeProblem(t, w).Code)
		})
	}
}

func TestRouter_Send_RequiresServiceToken(t *testing.T) {
	h := newHarness(t, withServiceTokens())

	w := h.do(t, http.MethodPost, "/push/send", map[string]string{"type": "test"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/push/send", map[string]string{"type": "test"}, h.token(t, auth.ScopeFlagsAdmin))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, "/push/send", map[string]string{"type": "test"}, h.token(t, auth.ScopePushSend))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Send_SkippedWhenDisabled(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/push/subscribe", subscribeBody("https://fcm.googleapis.com/fcm/send/e1"), "").Code)
	require.NoError(t, h.flags.Set(context.Background(), featureflags.Flag{
		Key:     featureflags.FlagDisablePushSending,
		Enabled: true,
	}))

	w := h.do(t, http.MethodPost, "/push/send", map[string]string{"type": "test"}, "")

	require.Equal(t, http.StatusOK, w.Code)
	var res models.SendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Sent)
	assert.Empty(t, h.sender.payloads)
}

func TestRouter_AdminNotMountedWithoutTokens(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AdminFeatureFlags(t *testing.T) {
	h := newHarness(t, withServiceTokens())
	token := h.token(t, auth.ScopeFlagsAdmin)

	w := h.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.FeatureFlagsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, featureflags.FlagDisablePushSending, list.Items[0].Key)
	assert.Equal(t, featureflags.FlagPushNudgeEnabled, list.Items[1].Key)

	w = h.do(t, http.MethodPut, "/v1/admin/feature-flags", models.FeatureFlagsUpdateRequest{
		Updates: []models.FeatureFlagUpdate{{Key: featureflags.FlagPushNudgeEnabled, Value: false}},
		Reason:  "pilot paused",
	}, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, h.flags.IsPushNudgeEnabled(context.Background()))

	w = h.do(t, http.MethodPut, "/v1/admin/feature-flags", models.FeatureFlagsUpdateRequest{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, "/v1/admin/feature-flags", models.FeatureFlagsUpdateRequest{
		Updates: []models.FeatureFlagUpdate{{Key: "dark_mode", Value: true}},
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, "/v1/admin/feature-flags", models.FeatureFlagsUpdateRequest{
		Updates: []models.FeatureFlagUpdate{{Key: featureflags.FlagDisablePushSending, Value: "sometimes"}},
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, h.flags.IsPushSendingDisabled(context.Background()))

	w = h.do(t, http.MethodPost, "/v1/admin/feature-flags/invalidate", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/push/config", nil, "")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRouter_NotFound(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/v1/me", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RateLimitsArePerRoute(t *testing.T) {
	h := newHarness(t, withServiceTokens(), withSubscribeLimit(middleware.PerMinute(1)))

	w := h.do(t, http.MethodPost, "/push/subscribe", subscribeBody("https://fcm.googleapis.com/fcm/send/e1"), "")
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodPost, "/push/subscribe", subscribeBody("https://fcm.googleapis.com/fcm/send/e2"), "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = h.do(t, http.MethodPost, "/push/unsubscribe", map[string]string{"endpoint": "https://fcm.googleapis.com/fcm/send/e1"}, "")
	assert.Equal(t, http.StatusOK, w.Code, "unsubscribe has its own budget")

	w = h.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, h.token(t, auth.ScopeFlagsAdmin))
	assert.Equal(t, http.StatusOK, w.Code, "admin routes have their own budget")
}
