package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/api/response"
	"github.com/agendaclin/agendaclin/internal/api/validation"
	"github.com/agendaclin/agendaclin/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{
		service: service,
		logger:  logger.With().Str("component", "feature_flags_handler").Logger(),
	}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.All(r.Context())

	items := make([]models.FeatureFlag, 0, len(flags))
	for _, flag := range flags {
		item := models.FeatureFlag{Key: flag.Key, Value: flag.Enabled}
		if !flag.UpdatedAt.IsZero() {
			ts := models.Timestamp(flag.UpdatedAt)
			item.UpdatedAt = &ts
		}
		items = append(items, item)
	}

	response.JSON(w, r, http.StatusOK, models.FeatureFlagsResponse{Items: items})
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req models.FeatureFlagsUpdateRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, models.CodeInvalidRequest, "request body is not valid JSON", nil)
		return
	}
	if errs := validation.ValidateStruct(&req); errs != nil {
		response.BadRequest(w, r, models.CodeInvalidRequest, "invalid flag update", errs)
		return
	}

	flags := make([]featureflags.Flag, 0, len(req.Updates))
	for _, u := range req.Updates {
		enabled, err := featureflags.ParseValue(u.Value)
		if err != nil {
			response.BadRequest(w, r, models.CodeInvalidRequest, u.Key+": "+err.Error(), nil)
			return
		}
		flags = append(flags, featureflags.Flag{Key: u.Key, Enabled: enabled})
	}
	err := h.service.Set(r.Context(), flags...)
	if errors.Is(err, featureflags.ErrUnknownFlag) {
		response.BadRequest(w, r, models.CodeInvalidRequest, err.Error(), nil)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, models.CodeStoreError, "failed to update feature flags")
		return
	}

	h.logger.Info().
		Str("service", middleware.GetService(r.Context())).
		Int("count", len(flags)).
		Str("reason", req.Reason).
		Msg("feature flags updated")
	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.Invalidate()
	response.NoContent(w, r)
}
