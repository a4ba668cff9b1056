// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads by event type and envelope version.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/payloads"
)

var priceEvents = []enums.OutboxEventType{
	enums.EventProductCreated,
	enums.EventProductNewDiscount,
	enums.EventProductDiscountEnded,
	enums.EventProductPriceChanged,
	enums.EventProductPriceReverted,
}

var statusEvents = []enums.OutboxEventType{
	enums.EventProductPendingReview,
	enums.EventProductInactive,
}

// EventDescriptor is where one event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a validated outbox row. Payload is a
// *payloads.ProductPriceEvent or a *payloads.ProductStatusEvent.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every
// attempt. The relay dead-letters it at once.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox event"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry is immutable once built.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]EventDescriptor
	decoders *Decoders[any]
}

// NewEventRegistry sends every catalog event to the catalog topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.CatalogTopic)
	if topic == "" {
		return nil, errors.New("catalog topic is required")
	}

	reg := &EventRegistry{
		routes: make(map[enums.OutboxEventType]EventDescriptor, len(priceEvents)+len(statusEvents)),
		decoders: NewDecoders[any]().
			Register(outbox.EnvelopeVersion, erase(JSONInto[payloads.ProductPriceEvent]), priceEvents...).
			Register(outbox.EnvelopeVersion, erase(JSONInto[payloads.ProductStatusEvent]), statusEvents...),
	}
	for _, et := range append(append([]enums.OutboxEventType{}, priceEvents...), statusEvents...) {
		reg.routes[et] = EventDescriptor{EventType: et, AggregateType: enums.AggregateProduct, Topic: topic}
	}
	return reg, nil
}

// Topics lists the distinct topics the registry routes to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range r.routes {
		if !seen[d.Topic] {
			seen[d.Topic] = true
			out = append(out, d.Topic)
		}
	}
	return out
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	if !ok {
		return nil, permanent("no route for event type %q", event.EventType)
	}
	if event.AggregateType != desc.AggregateType {
		return nil, permanent("%s carries aggregate %q, want %q", event.EventType, event.AggregateType, desc.AggregateType)
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return nil, permanent("%s has no aggregate id", event.EventType)
	}

	env, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("%s: %w", event.EventType, err)
	}
	payload, err := r.decoders.Decode(Schema{EventType: event.EventType, Version: env.Version}, env.Data)
	if err != nil {
		return nil, permanent("%s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}

func erase[P any](decode func(json.RawMessage) (*P, error)) func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		p, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
