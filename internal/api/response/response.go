// Package response writes JSON and Problem+JSON replies for the push API.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/api/models"
)

// echoRequestID copies the request ID onto the response for correlation.
func echoRequestID(w http.ResponseWriter, r *http.Request) string {
	id := middleware.GetRequestID(r.Context())
	if id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	return id
}

// JSON writes data with the given status. A nil data writes no body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	echoRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes the {"ok":true} acknowledgement of the push endpoints.
func OK(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, models.OKResponse{OK: true})
}

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	echoRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	echoRequestID(w, r)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest writes a 400 carrying code and any field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, code, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), code, detail, errors))
}

func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnauthorized(traceID(r), detail))
}

func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewForbidden(traceID(r), detail))
}

func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// InternalError writes a 500. An empty code falls back to internal_error.
func InternalError(w http.ResponseWriter, r *http.Request, code, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), code, detail))
}

func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(traceID(r), detail))
}
