package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

// createdOnceIndex is the partial unique index that lets EmitOnce lose a race
// without failing the surrounding transaction's intent.
const createdOnceIndex = "ux_outbox_events_product_created"

var errAggregateRequired = errors.New("outbox: aggregate id required")

// DomainEvent is what callers hand to the Emitter. Data is marshalled into the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter queues domain events inside the caller's transaction.
type Emitter struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewEmitter(store *Store, logg *logger.Logger) *Emitter {
	return &Emitter{store: store, logg: logg, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	row, envelope, err := e.seal(event)
	if err != nil {
		return err
	}
	if err := e.store.Append(tx, row); err != nil {
		return err
	}
	if e.logg != nil {
		e.logg.Debug(e.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox event queued")
	}
	return nil
}

// EmitOnce queues event unless one of the same type already exists for the
// aggregate.
func (e *Emitter) EmitOnce(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	seen, err := e.store.Has(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil || seen {
		return err
	}
	err = e.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, createdOnceIndex) {
		return nil
	}
	return err
}

func (e *Emitter) seal(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	if event.AggregateID == "" {
		return models.OutboxEvent{}, PayloadEnvelope{}, errAggregateRequired
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = e.now()
	}
	envelope := PayloadEnvelope{
		Version:    max(event.Version, EnvelopeVersion),
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, envelope, nil
}
