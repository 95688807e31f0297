package response_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/api/response"
)

// requestWithContext returns a request that went through the RequestID
// middleware so its context carries a request ID.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	return processedReq, httptest.NewRecorder()
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var problem models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	return problem
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/push/config")

	response.JSON(rec, req, http.StatusOK, map[string]string{"publicKey": "abc"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/push/config", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"publicKey": "abc"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestJSON_NilData(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/test")

	response.JSON(rec, req, http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestOK(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/push/subscribe")

	response.OK(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestBadRequest_CarriesCodeAndTraceID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/push/unsubscribe")

	response.BadRequest(rec, req, models.CodeMissingEndpoint, "endpoint is required", []models.FieldError{
		{Field: "endpoint", Message: "is required"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, models.CodeMissingEndpoint, problem.Code)
	assert.Equal(t, "/push/unsubscribe", problem.Instance)
	assert.NotEmpty(t, problem.TraceID)
	require.Len(t, problem.Errors, 1)
}

func TestInternalError_Codes(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{code: models.CodeStoreError, want: models.CodeStoreError},
		{code: models.CodeMissingVAPIDKeys, want: models.CodeMissingVAPIDKeys},
		{code: "", want: models.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodPost, "/push/send")

			response.InternalError(rec, req, tt.code, "boom")

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.want, decodeProblem(t, rec).Code)
		})
	}
}

func TestErrorHelpers_Status(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { response.Unauthorized(w, r, "d") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) { response.Forbidden(w, r, "d") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "d") }, http.StatusNotFound},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "d") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/v1/ops/ready")
			tt.write(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.status, problem.Status)
			assert.NotEmpty(t, problem.TraceID)
		})
	}
}

func TestError_EchoesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/push/subscribe")

	response.BadRequest(rec, req, models.CodeInvalidSubscription, "keys are required", nil)

	problem := decodeProblem(t, rec)
	assert.Equal(t, problem.TraceID, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "/push/subscribe", problem.Instance)
}

func TestNoContent_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/admin/feature-flags/invalidate")

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestRequestIDPropagation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("X-Request-Id", "client-request-123")

	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "client-request-123", middleware.GetRequestID(processedReq.Context()))

	rec := httptest.NewRecorder()
	response.JSON(rec, processedReq, http.StatusOK, map[string]string{"status": "ok"})
	assert.Equal(t, "client-request-123", rec.Header().Get("X-Request-Id"))
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}
