package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/agendaclin/agendaclin/internal/api/models"
)

// Limit is a request budget per key and window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// PerMinute returns a budget of n requests per minute.
func PerMinute(n int) Limit {
	return Limit{Requests: n, Window: time.Minute}
}

// Default budgets.
var (
	// SendLimit applies to /push/send, which fans out to every subscription.
	SendLimit = PerMinute(30)

	// SubscribeLimit applies to subscribe and unsubscribe.
	SubscribeLimit = PerMinute(100)
)

// KeyFunc derives the rate limit key of a request.
type KeyFunc = httprate.KeyFunc

// KeyByIP keys on the client IP as set by chi's RealIP middleware.
func KeyByIP(r *http.Request) (string, error) {
	return httprate.KeyByRealIP(r)
}

// KeyByService keys on the calling service when ServiceAuth ran first and
// on the client IP otherwise.
func KeyByService(r *http.Request) (string, error) {
	if service := GetService(r.Context()); service != "" {
		return "service:" + service, nil
	}
	return httprate.KeyByRealIP(r)
}

// RateLimit rejects requests over limit with a 429 Problem. Retry-After is
// the window length since httprate does not expose the reset time.
func RateLimit(limit Limit, key KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(limit.Window.Seconds()))

	return httprate.Limit(
		limit.Requests,
		limit.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
