package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agendaclin/agendaclin/internal/subscription"
)

// SendingSwitch reports whether an operator has disabled push delivery.
// *featureflags.Service satisfies it.
type SendingSwitch interface {
	IsPushSendingDisabled(ctx context.Context) bool
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	Repository subscription.Repository
	Sender     Sender
	Renderer   *Renderer
	VAPID      VAPIDConfig
	Switch     SendingSwitch
	Logger     zerolog.Logger

	// AttemptTimeout bounds each delivery attempt.
	// Default: 15 seconds
	AttemptTimeout time.Duration
}

// Result summarizes one dispatch.
type Result struct {
	// Sent is the number of subscriptions an attempt was made to.
	Sent int
	// Delivered counts 2xx responses.
	Delivered int
	// Gone counts 404/410 responses.
	Gone int
	// Pruned is the number of subscriptions actually removed.
	Pruned int
	// Failed counts transport errors and other non-2xx responses.
	Failed int
	// Skipped is set when sending is disabled by the operator switch.
	Skipped  bool
	Duration time.Duration
}

// Dispatcher fans an event out to every stored subscription.
type Dispatcher struct {
	repo           subscription.Repository
	sender         Sender
	renderer       *Renderer
	vapid          VAPIDConfig
	sendingSwitch  SendingSwitch
	logger         zerolog.Logger
	attemptTimeout time.Duration
	tracer         trace.Tracer
	metrics        *dispatchMetrics
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	metrics, err := newDispatchMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating dispatch metrics: %w", err)
	}

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = NewRenderer(RendererConfig{})
	}

	timeout := cfg.AttemptTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Dispatcher{
		repo:           cfg.Repository,
		sender:         cfg.Sender,
		renderer:       renderer,
		vapid:          cfg.VAPID,
		sendingSwitch:  cfg.Switch,
		logger:         cfg.Logger.With().Str("component", "push_dispatcher").Logger(),
		attemptTimeout: timeout,
		tracer:         otel.Tracer(instrumentationName),
		metrics:        metrics,
	}, nil
}

// Dispatch renders ev and attempts delivery once to every stored subscription.
// Subscriptions answering 404 or 410 are deleted in one batch after all
// attempts finish. Individual delivery failures never fail the dispatch; only
// missing configuration or a failed store read does.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (*Result, error) {
	start := time.Now()
	kind := ParseKind(string(ev.Kind))

	ctx, span := d.tracer.Start(ctx, "notify.Dispatch",
		trace.WithAttributes(attribute.String("push.kind", string(kind))))
	defer span.End()

	if err := d.vapid.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error().Err(err).Msg("push dispatch rejected")
		return nil, err
	}

	res := &Result{}
	if d.sendingSwitch != nil && d.sendingSwitch.IsPushSendingDisabled(ctx) {
		res.Skipped = true
		res.Duration = time.Since(start)
		d.metrics.recordDispatch(ctx, kind, res)
		d.logger.Warn().Str("kind", string(kind)).Msg("push sending disabled by feature flag, skipping dispatch")
		return res, nil
	}

	payload, err := d.renderer.Render(ev).Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	subs, err := d.repo.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing subscriptions failed")
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	res.Sent = len(subs)
	span.SetAttributes(attribute.Int("push.subscriptions", len(subs)))

	// Attempts and the prune are not cancelled with the caller.
	detached := context.WithoutCancel(ctx)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		gone []string
	)

	for _, sub := range subs {
		wg.Add(1)
		go func(sub *subscription.Subscription) {
			defer wg.Done()

			outcome := d.attempt(detached, sub, payload)
			d.metrics.recordAttempt(detached, kind, outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeDelivered:
				res.Delivered++
			case outcomeGone:
				res.Gone++
				gone = append(gone, sub.Endpoint)
			default:
				res.Failed++
			}
		}(sub)
	}
	wg.Wait()

	if len(gone) > 0 {
		removed, err := d.repo.DeleteByEndpoints(detached, gone)
		if err != nil {
			span.RecordError(err)
			d.logger.Error().Err(err).Int("count", len(gone)).Msg("failed to prune gone subscriptions")
		}
		res.Pruned = removed
	}

	res.Duration = time.Since(start)
	d.metrics.recordDispatch(detached, kind, res)

	span.SetAttributes(
		attribute.Int("push.delivered", res.Delivered),
		attribute.Int("push.gone", res.Gone),
		attribute.Int("push.failed", res.Failed),
	)

	d.logger.Info().
		Str("kind", string(kind)).
		Int("sent", res.Sent).
		Int("delivered", res.Delivered).
		Int("gone", res.Gone).
		Int("pruned", res.Pruned).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("push dispatch completed")

	return res, nil
}

func (d *Dispatcher) attempt(ctx context.Context, sub *subscription.Subscription, payload []byte) string {
	ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	status, err := d.sender.Send(ctx, sub, payload)
	switch {
	case err != nil:
		d.logger.Warn().Err(err).Str("endpoint", sub.EndpointSuffix()).Msg("push delivery failed")
		return outcomeFailed
	case status == http.StatusNotFound || status == http.StatusGone:
		d.logger.Info().Int("status", status).Str("endpoint", sub.EndpointSuffix()).Msg("push subscription gone")
		return outcomeGone
	case status >= 200 && status < 300:
		return outcomeDelivered
	default:
		d.logger.Warn().Int("status", status).Str("endpoint", sub.EndpointSuffix()).Msg("push delivery rejected")
		return outcomeFailed
	}
}
