package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/auth"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(h http.Handler, remoteAddr, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/push/subscribe", http.NoBody)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_ByIP(t *testing.T) {
	handler := middleware.RateLimit(middleware.PerMinute(3), middleware.KeyByIP)(okHandler)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:12345", "").Code, "request %d", i+1)
	}

	rec := hit(handler, "10.0.0.1:12345", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:12345", "").Code, "other IPs keep their budget")
}

func TestRateLimit_ByService(t *testing.T) {
	tokens := newTestTokenService(nil)
	scheduler, _, err := tokens.Issue("scheduler", []string{auth.ScopePushSend}, 0)
	require.NoError(t, err)
	backoffice, _, err := tokens.Issue("backoffice", []string{auth.ScopePushSend}, 0)
	require.NoError(t, err)

	handler := middleware.ServiceAuth(tokens, auth.ScopePushSend)(
		middleware.RateLimit(middleware.PerMinute(2), middleware.KeyByService)(okHandler),
	)

	// Same service from different IPs shares one budget.
	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.1:12345", scheduler).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.2:12345", scheduler).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "192.168.1.3:12345", scheduler).Code)

	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.1:12345", backoffice).Code)
}

func TestRateLimit_ByServiceFallsBackToIP(t *testing.T) {
	handler := middleware.RateLimit(middleware.PerMinute(1), middleware.KeyByService)(okHandler)

	assert.Equal(t, http.StatusOK, hit(handler, "198.51.100.7:4000", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "198.51.100.7:4000", "").Code)
}

func TestRateLimit_ProblemBody(t *testing.T) {
	handler := middleware.RequestID(
		middleware.RateLimit(middleware.Limit{Requests: 1, Window: 10 * time.Second}, middleware.KeyByIP)(okHandler),
	)

	require.Equal(t, http.StatusOK, hit(handler, "203.0.113.1:12345", "").Code)
	rec := hit(handler, "203.0.113.1:12345", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "/push/subscribe")
	assert.Contains(t, body, `"code":"rate_limited"`)
}

func TestDefaultLimits(t *testing.T) {
	assert.Equal(t, middleware.Limit{Requests: 30, Window: time.Minute}, middleware.SendLimit)
	assert.Equal(t, middleware.Limit{Requests: 100, Window: time.Minute}, middleware.SubscribeLimit)
}
