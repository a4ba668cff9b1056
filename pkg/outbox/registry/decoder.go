package registry

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

// Schema names one payload shape: an event type at an envelope version.
type Schema struct {
	EventType enums.OutboxEventType
	Version   int
}

func (s Schema) String() string { return fmt.Sprintf("%s@v%d", s.EventType, s.Version) }

// Decoders maps schemas to decoders producing T. It is built once at startup
// and read-only afterwards.
type Decoders[T any] struct {
	bySchema map[Schema]func(json.RawMessage) (T, error)
}

func NewDecoders[T any]() *Decoders[T] {
	return &Decoders[T]{bySchema: map[Schema]func(json.RawMessage) (T, error){}}
}

// Register adds decode for each event type at version.
func (d *Decoders[T]) Register(version int, decode func(json.RawMessage) (T, error), eventTypes ...enums.OutboxEventType) *Decoders[T] {
	for _, et := range eventTypes {
		d.bySchema[Schema{EventType: et, Version: version}] = decode
	}
	return d
}

func (d *Decoders[T]) Decode(schema Schema, payload json.RawMessage) (T, error) {
	decode, ok := d.bySchema[schema]
	if !ok {
		var zero T
		return zero, fmt.Errorf("no decoder for %s", schema)
	}
	return decode(payload)
}

// JSONInto decodes a payload into a fresh *P.
func JSONInto[P any](payload json.RawMessage) (*P, error) {
	out := new(P)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, err
	}
	return out, nil
}
