package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/agendaclin/internal/api/models"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	)

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Code)
	assert.Empty(t, p.Detail)
	assert.Nil(t, p.Errors)
}

func TestProblem_Chaining(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_1").
		WithCode(models.CodeMissingEndpoint).
		WithDetail("endpoint is required").
		WithInstance("/push/unsubscribe").
		WithErrors([]models.FieldError{{Field: "endpoint", Message: "is required", Code: "required"}})

	assert.Equal(t, models.CodeMissingEndpoint, p.Code)
	assert.Equal(t, "endpoint is required", p.Detail)
	assert.Equal(t, "/push/unsubscribe", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "endpoint", p.Errors[0].Field)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", models.CodeInvalidSubscription, "invalid input", []models.FieldError{
		{Field: "subscription.keys.p256dh", Message: "is required"},
	})
	p.Instance = "/push/subscribe"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, http.StatusBadRequest, result.Status)
	assert.Equal(t, models.CodeInvalidSubscription, result.Code)
	assert.Equal(t, "invalid input", result.Detail)
	assert.Equal(t, "/push/subscribe", result.Instance)
	require.Len(t, result.Errors, 1)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNotFound("", "missing").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *models.Problem
		wantType   string
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", models.NewUnauthorized("r", "d"), models.ProblemTypeUnauthorized, http.StatusUnauthorized, models.CodeUnauthorized},
		{"forbidden", models.NewForbidden("r", "d"), models.ProblemTypeForbidden, http.StatusForbidden, models.CodeForbidden},
		{"not found", models.NewNotFound("r", "d"), models.ProblemTypeNotFound, http.StatusNotFound, models.CodeNotFound},
		{"too many requests", models.NewTooManyRequests("r", "d"), models.ProblemTypeTooManyRequests, http.StatusTooManyRequests, models.CodeRateLimited},
		{"internal default code", models.NewInternalError("r", "", "d"), models.ProblemTypeInternal, http.StatusInternalServerError, models.CodeInternal},
		{"internal store error", models.NewInternalError("r", models.CodeStoreError, "d"), models.ProblemTypeInternal, http.StatusInternalServerError, models.CodeStoreError},
		{"unavailable", models.NewServiceUnavailable("r", "d"), models.ProblemTypeUnavailable, http.StatusServiceUnavailable, models.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantStatus, tt.problem.Status)
			assert.Equal(t, tt.wantCode, tt.problem.Code)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "r", tt.problem.TraceID)
		})
	}
}
