package worker

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agendaclin/agendaclin/internal/worker"

// PubSubConfig holds configuration for the Pub/Sub receiver.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Receive          ReceiveConfig
	Events           *EventHandler
	Logger           zerolog.Logger
}

// PubSubHandler feeds appointment events from a subscription into an
// EventHandler. Publishers may put W3C trace headers in the message
// attributes; the dispatch span then joins the publisher's trace.
type PubSubHandler struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	events       *EventHandler
	tracer       trace.Tracer
	logger       zerolog.Logger
}

// NewPubSubHandler connects to Pub/Sub.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	receive := cfg.Receive.withDefaults()
	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = receive.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = receive.MaxExtension

	return &PubSubHandler{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.SubscriptionName,
		events:       cfg.Events,
		tracer:       otel.Tracer(tracerName),
		logger:       cfg.Logger.With().Str("subscription", cfg.SubscriptionName).Logger(),
	}, nil
}

// Start blocks receiving messages until ctx is cancelled or the subscription
// fails.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Msg("receiving appointment events")
	return h.subscriber.Receive(ctx, h.receive)
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) receive(ctx context.Context, msg *pubsub.Message) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Attributes))
	ctx, span := h.tracer.Start(ctx, h.subscription+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "gcp_pubsub"),
			attribute.String("messaging.destination.name", h.subscription),
			attribute.String("messaging.message.id", msg.ID),
		),
	)
	defer span.End()

	event := h.logger.Debug().
		Str("message_id", msg.ID).
		Time("publish_time", msg.PublishTime)
	if msg.DeliveryAttempt != nil {
		span.SetAttributes(attribute.Int("messaging.gcp_pubsub.message.delivery_attempt", *msg.DeliveryAttempt))
		event = event.Int("delivery_attempt", *msg.DeliveryAttempt)
	}
	event.Msg("received event message")

	outcome := h.events.Handle(ctx, msg.ID, msg.Data)
	span.SetAttributes(attribute.String("messaging.outcome", outcome.String()))
	if outcome == Nack {
		span.SetStatus(codes.Error, "dispatch failed")
		msg.Nack()
		return
	}
	msg.Ack()
}
