package pushclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/agendaclin/internal/api"
	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/featureflags"
	"github.com/agendaclin/agendaclin/internal/resilience"
	"github.com/agendaclin/agendaclin/internal/subscription"
	"github.com/agendaclin/agendaclin/pkg/pushclient"
)

func newTestHTTPClient() *resilience.Client {
	return resilience.NewClient(resilience.ClientConfig{
		Name:       "push-store-test",
		Timeout:    2 * time.Second,
		MaxRetries: 0,
	})
}

func newStoreClient(baseURL string) *pushclient.StoreClient {
	return pushclient.NewStoreClient(pushclient.StoreClientConfig{
		BaseURL:    baseURL,
		HTTPClient: newTestHTTPClient(),
		Logger:     zerolog.Nop(),
	})
}

func TestStoreClient_Save_WireFormat(t *testing.T) {
	var got models.SubscribeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/push/subscribe", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	err := newStoreClient(srv.URL+"/").Save(context.Background(), pushclient.Record{
		Subscription: pushclient.Subscription{Endpoint: testEndpoint, P256dh: testPublicKey, Auth: testAuth},
		UserID:       "user-1",
		Device:       pushclient.DeviceInfo{Platform: "web"},
	})
	require.NoError(t, err)

	require.NotNil(t, got.Subscription)
	assert.Equal(t, testEndpoint, got.Subscription.Endpoint)
	assert.Equal(t, testAuth, got.Subscription.Keys.Auth)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "user-1", *got.UserID)
	require.NotNil(t, got.Platform)
	assert.Nil(t, got.UserAgent, "empty metadata is omitted")
}

func TestStoreClient_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   pushclient.SyncKind
	}{
		{"bad request", http.StatusBadRequest, `{"type":"x","title":"Bad Request","status":400,"code":"invalid_subscription","traceId":""}`, pushclient.SyncPermanent},
		{"not found", http.StatusNotFound, ``, pushclient.SyncPermanent},
		{"rate limited", http.StatusTooManyRequests, ``, pushclient.SyncTransient},
		{"store error", http.StatusInternalServerError, `{"code":"store_error"}`, pushclient.SyncTransient},
		{"unavailable", http.StatusServiceUnavailable, ``, pushclient.SyncTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := newStoreClient(srv.URL).Delete(context.Background(), testEndpoint)
			var se *pushclient.SyncError
			require.True(t, errors.As(err, &se), "expected *SyncError, got %v", err)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.status, se.Status)
		})
	}
}

func TestStoreClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newStoreClient(url).Delete(context.Background(), testEndpoint)
	var se *pushclient.SyncError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, pushclient.SyncTransient, se.Kind)
	assert.Zero(t, se.Status)
}

// newAPIServer runs the real HTTP API over an in-memory store.
func newAPIServer(t *testing.T, flags *featureflags.Service) (*httptest.Server, subscription.Repository) {
	t.Helper()

	repo := subscription.NewInMemoryRepository()
	logger := zerolog.Nop()
	router := api.NewRouter(api.RouterConfig{
		Version: "test",
		Logger:  logger,
		Subscriptions: subscription.NewService(subscription.ServiceConfig{
			Repository: repo,
			Logger:     logger,
		}),
		FeatureFlagService: flags,
		VAPIDPublicKey:     testPublicKey,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo
}

func TestStoreClient_AgainstAPI(t *testing.T) {
	srv, repo := newAPIServer(t, nil)
	store := newStoreClient(srv.URL)
	m := newManager(newFakePlatform(), store)
	ctx := context.Background()

	result, err := m.Subscribe(ctx, "user-9")
	require.NoError(t, err)
	require.Nil(t, result.SyncErr)

	subs, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, testEndpoint, subs[0].Endpoint)
	require.NotNil(t, subs[0].UserID)
	assert.Equal(t, "user-9", *subs[0].UserID)

	// Subscribing again keeps a single record.
	_, err = m.Subscribe(ctx, "user-9")
	require.NoError(t, err)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	result, err = m.Unsubscribe(ctx)
	require.NoError(t, err)
	require.Nil(t, result.SyncErr)
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreClient_Config(t *testing.T) {
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	srv, _ := newAPIServer(t, flags)

	cfg, err := newStoreClient(srv.URL).Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testPublicKey, cfg.PublicKey)
	assert.True(t, cfg.NudgeEnabled)
}

func TestStoreClient_AcceptsAnyHTTPDoer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/push/config", r.URL.Path)
		_, _ = io.WriteString(w, `{"publicKey":"BKey","nudgeEnabled":false}`)
	}))
	defer srv.Close()

	client := pushclient.NewStoreClient(pushclient.StoreClientConfig{
		BaseURL:    srv.URL,
		HTTPClient: &http.Client{Timeout: time.Second},
		Logger:     zerolog.Nop(),
	})

	cfg, err := client.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pushclient.RemoteConfig{PublicKey: "BKey", NudgeEnabled: false}, *cfg)
}
