package pricehistory

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/registry"
)

const payloadVersion = 1

// RowWriter persists price history rows.
type RowWriter interface {
	Insert(ctx context.Context, row Row) error
}

// Recorder turns price-bearing catalog events into history rows. Status
// events are acknowledged without a row.
type Recorder struct {
	writer   RowWriter
	decoders *registry.Decoders[*payloads.ProductPriceEvent]
	logg     *logger.Logger
}

func NewRecorder(writer RowWriter, logg *logger.Logger) (*Recorder, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoders[*payloads.ProductPriceEvent]().Register(
		payloadVersion,
		registry.JSONInto[payloads.ProductPriceEvent],
		enums.EventProductCreated,
		enums.EventProductNewDiscount,
		enums.EventProductDiscountEnded,
		enums.EventProductPriceChanged,
		enums.EventProductPriceReverted,
	)

	return &Recorder{writer: writer, decoders: decoders, logg: logg}, nil
}

// Handle records one event.
func (r *Recorder) Handle(ctx context.Context, env Envelope) error {
	if !env.EventType.CarriesPrice() {
		r.logg.Debug(ctx, "event carries no price; skipped")
		return nil
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", env.EventType)
	}

	version := env.Version
	if version <= 0 {
		version = payloadVersion
	}
	event, err := r.decoders.Decode(registry.Schema{EventType: env.EventType, Version: version}, env.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}

	row, err := NewRow(env, event)
	if err != nil {
		return err
	}
	return r.writer.Insert(ctx, row)
}
