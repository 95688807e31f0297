package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/api/middleware"
	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/api/response"
	"github.com/agendaclin/agendaclin/internal/api/validation"
	"github.com/agendaclin/agendaclin/internal/notify"
	"github.com/agendaclin/agendaclin/internal/subscription"
)

// SubscriptionService is the subset of *subscription.Service used by PushHandler.
type SubscriptionService interface {
	Register(ctx context.Context, input subscription.RegisterInput) (bool, error)
	Remove(ctx context.Context, endpoint string) error
}

// Dispatcher sends an event to every subscription. *notify.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) (*notify.Result, error)
}

// NudgeSettings reports whether clients may prompt for push opt-in.
// *featureflags.Service satisfies it.
type NudgeSettings interface {
	IsPushNudgeEnabled(ctx context.Context) bool
}

// PushHandlerConfig holds dependencies for PushHandler.
type PushHandlerConfig struct {
	Subscriptions SubscriptionService
	Dispatcher    Dispatcher
	Nudge         NudgeSettings
	// PublicKey is the VAPID application server key served to clients.
	PublicKey string
	Logger    zerolog.Logger
}

// PushHandler serves the /push contract used by the web app.
type PushHandler struct {
	subs       SubscriptionService
	dispatcher Dispatcher
	nudge      NudgeSettings
	publicKey  string
	logger     zerolog.Logger
}

// NewPushHandler creates a new PushHandler.
func NewPushHandler(cfg PushHandlerConfig) *PushHandler {
	return &PushHandler{
		subs:       cfg.Subscriptions,
		dispatcher: cfg.Dispatcher,
		nudge:      cfg.Nudge,
		publicKey:  cfg.PublicKey,
		logger:     cfg.Logger.With().Str("component", "push_handler").Logger(),
	}
}

// Config handles GET /push/config.
func (h *PushHandler) Config(w http.ResponseWriter, r *http.Request) {
	nudge := false
	if h.nudge != nil {
		nudge = h.nudge.IsPushNudgeEnabled(r.Context())
	}
	response.JSON(w, r, http.StatusOK, models.PushConfigResponse{
		PublicKey:    h.publicKey,
		NudgeEnabled: nudge,
	})
}

// Subscribe handles POST /push/subscribe.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req models.SubscribeRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, models.CodeInvalidSubscription, "request body is not valid JSON", nil)
		return
	}
	if errs := validation.ValidateStruct(&req); errs != nil {
		response.BadRequest(w, r, models.CodeInvalidSubscription, "subscription is incomplete or malformed", errs)
		return
	}

	created, err := h.subs.Register(r.Context(), subscription.RegisterInput{
		Endpoint:  req.Subscription.Endpoint,
		P256dh:    req.Subscription.Keys.P256dh,
		Auth:      req.Subscription.Keys.Auth,
		UserID:    req.UserID,
		Platform:  req.Platform,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidSubscription) {
			response.BadRequest(w, r, models.CodeInvalidSubscription, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("endpoint", subscription.EndpointSuffix(req.Subscription.Endpoint)).
			Msg("failed to store subscription")
		response.InternalError(w, r, models.CodeStoreError, "failed to store subscription")
		return
	}

	h.logger.Debug().
		Bool("created", created).
		Str("endpoint", subscription.EndpointSuffix(req.Subscription.Endpoint)).
		Msg("subscription registered")
	response.OK(w, r)
}

// Unsubscribe handles POST /push/unsubscribe. Unknown endpoints succeed.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req models.UnsubscribeRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, models.CodeMissingEndpoint, "request body is not valid JSON", nil)
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if errs := validation.ValidateStruct(&req); errs != nil {
		response.BadRequest(w, r, models.CodeMissingEndpoint, "endpoint is required", errs)
		return
	}

	if err := h.subs.Remove(r.Context(), req.Endpoint); err != nil {
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("endpoint", subscription.EndpointSuffix(req.Endpoint)).
			Msg("failed to remove subscription")
		response.InternalError(w, r, models.CodeStoreError, "failed to remove subscription")
		return
	}
	response.OK(w, r)
}

// Send handles POST /push/send. An empty body dispatches a generic update.
func (h *PushHandler) Send(w http.ResponseWriter, r *http.Request) {
	var ev notify.Event
	if _, err := decodeJSON(w, r, &ev); err != nil {
		response.BadRequest(w, r, models.CodeInvalidRequest, "request body is not a valid event", nil)
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		log := h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("service", middleware.GetService(r.Context())).
			Str("kind", string(ev.Kind))
		if errors.Is(err, notify.ErrMissingVAPIDKeys) {
			log.Msg("push keys are not configured")
			response.InternalError(w, r, models.CodeMissingVAPIDKeys, "push keys are not configured")
			return
		}
		log.Msg("dispatch failed")
		response.InternalError(w, r, models.CodeStoreError, "failed to read subscriptions")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SendResponse{
		OK:        true,
		Sent:      res.Sent,
		Delivered: res.Delivered,
		Pruned:    res.Pruned,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
	})
}
