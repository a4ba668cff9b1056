package pricehistory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/idempotency"
)

const consumerName = "pricehistory"

// Handler processes decoded catalog envelopes.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

type eventLedger interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Worker consumes catalog events while honoring Redis idempotency.
type Worker struct {
	subscription receiver
	handler      Handler
	ledger       eventLedger
	logg         *logger.Logger
}

func NewWorker(subscription receiver, handler Handler, ledger eventLedger, logg *logger.Logger) (*Worker, error) {
	if subscription == nil {
		return nil, errors.New("price history subscription is required")
	}
	if handler == nil {
		return nil, errors.New("price history handler is required")
	}
	if ledger == nil {
		return nil, errors.New("idempotency ledger is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Worker{subscription: subscription, handler: handler, ledger: ledger, logg: logg}, nil
}

// Run consumes messages until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if w.process(innerCtx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process reports whether the message should be redelivered. Malformed
// messages are acknowledged and dropped.
func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) bool {
	fields := map[string]any{"message_id": msg.ID}

	env, err := buildEnvelope(msg)
	if err != nil {
		fields["error"] = err.Error()
		w.logg.Warn(w.logg.WithFields(ctx, fields), "invalid catalog envelope")
		return false
	}
	fields["event_id"] = env.EventID
	fields["event_type"] = env.EventType
	fields["product_id"] = env.AggregateID
	logCtx := w.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		w.logg.Warn(logCtx, "invalid event id")
		return false
	}

	outcome, err := w.ledger.Claim(logCtx, consumerName, eventID)
	if err != nil {
		w.logg.Error(logCtx, "idempotency claim failed", err)
		return true
	}
	switch outcome {
	case idempotency.Done:
		w.logg.Info(logCtx, "event already processed")
		return false
	case idempotency.InFlight:
		w.logg.Info(logCtx, "event claimed by another delivery")
		return true
	}

	if err := w.handler.Handle(logCtx, env); err != nil {
		w.logg.Error(logCtx, "price history handler error", err)
		if relErr := w.ledger.Release(logCtx, consumerName, eventID); relErr != nil {
			w.logg.Error(logCtx, "idempotency claim release failed", relErr)
		}
		return true
	}
	// The row is written; a lost marker only risks one duplicate insert.
	if err := w.ledger.Complete(logCtx, consumerName, eventID); err != nil {
		w.logg.Error(logCtx, "idempotency completion failed", err)
	}

	w.logg.Info(logCtx, "price history event handled")
	return false
}

func buildEnvelope(msg *gcppubsub.Message) (Envelope, error) {
	stored, err := outbox.OpenEnvelope(msg.Data)
	if err != nil {
		return Envelope{}, err
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return Envelope{}, fmt.Errorf("event_type: %w", err)
	}

	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return Envelope{}, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return Envelope{}, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(msg.Attributes["created_at"])); err == nil {
			occurredAt = created
		}
	}

	return Envelope{
		EventID:     eventID,
		EventType:   eventType,
		AggregateID: aggregateID,
		Version:     stored.Version,
		OccurredAt:  occurredAt.UTC(),
		Payload:     stored.Data,
	}, nil
}
