package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/agendaclin/agendaclin/internal/api/models"
	"github.com/agendaclin/agendaclin/internal/api/response"
	"github.com/agendaclin/agendaclin/internal/resilience"
)

// readinessTimeout bounds the store probe in ReadinessCheck.
const readinessTimeout = 2 * time.Second

// SubscriptionCounter counts stored subscriptions. *subscription.Service
// satisfies it and doubles as the store ping.
type SubscriptionCounter interface {
	Count(ctx context.Context) (int, error)
}

// OpsHandlerConfig holds dependencies for OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Store     SubscriptionCounter
	// PushServices tracks delivery outcomes per push service host. Optional.
	PushServices *resilience.Registry
	// PushKeysConfigured reports whether VAPID keys are present.
	PushKeysConfigured bool
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version        string
	buildTime      string
	store          SubscriptionCounter
	pushServices   *resilience.Registry
	keysConfigured bool
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:        cfg.Version,
		buildTime:      cfg.BuildTime,
		store:          cfg.Store,
		pushServices:   cfg.PushServices,
		keysConfigured: cfg.PushKeysConfigured,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Only a failing subscription store
// makes the service unready; missing push keys and push service hosts with a
// high recent failure ratio degrade it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	readiness := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	storeStatus := models.SubsystemStatus{Name: "subscription-store", Status: models.HealthStatusOK}
	if h.store != nil {
		if n, err := h.store.Count(ctx); err != nil {
			storeStatus.Status = models.HealthStatusFail
			storeStatus.Detail = strPtr(err.Error())
		} else {
			storeStatus.Detail = strPtr(strconv.Itoa(n) + " subscriptions")
		}
	}
	readiness.Subsystems = append(readiness.Subsystems, storeStatus)

	keys := models.SubsystemStatus{Name: "vapid-keys", Status: models.HealthStatusOK}
	if !h.keysConfigured {
		keys.Status = models.HealthStatusDegraded
		keys.Detail = strPtr("VAPID keys are not configured; sending is disabled")
	}
	readiness.Subsystems = append(readiness.Subsystems, keys)

	if h.pushServices != nil {
		for _, health := range h.pushServices.All() {
			status := models.SubsystemStatus{Name: "push-service:" + health.Name, Status: models.HealthStatusOK}
			if !health.Available() {
				status.Status = models.HealthStatusDegraded
				if health.LastError != "" {
					status.Detail = strPtr(health.LastError)
				}
			}
			readiness.Subsystems = append(readiness.Subsystems, status)
		}
	}

	for _, s := range readiness.Subsystems {
		switch {
		case s.Status == models.HealthStatusFail:
			readiness.Status = models.HealthStatusFail
		case s.Status == models.HealthStatusDegraded && readiness.Status == models.HealthStatusOK:
			readiness.Status = models.HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if readiness.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, readiness)
}

func strPtr(s string) *string {
	return &s
}
