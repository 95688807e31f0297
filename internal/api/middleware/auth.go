package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/auth"
)

// serviceKey is the context key for the authenticated calling service.
type serviceKey struct{}

// ServiceAuth requires a bearer service token carrying scope. A nil token
// service disables the check so deployments without a signing key keep the
// open contract of the push endpoints.
func ServiceAuth(tokens *auth.TokenService, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, r, "missing or malformed bearer token")
				return
			}

			claims, err := tokens.Authorize(tokenString, scope)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "service token has expired")
				case errors.Is(err, auth.ErrInsufficientScope):
					problem := models.NewForbidden(GetRequestID(r.Context()), "service token lacks scope "+scope)
					problem.Instance = r.URL.Path
					problem.Write(w)
				default:
					writeUnauthorized(w, r, "invalid service token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), serviceKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from a case-insensitive "Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="agendaclin"`)
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetService returns the calling service name set by ServiceAuth.
// Returns an empty string when the request was not authenticated.
func GetService(ctx context.Context) string {
	if name, ok := ctx.Value(serviceKey{}).(string); ok {
		return name
	}
	return ""
}
