package catalogsync

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/payloads"
)

// emitter is the outbox surface the sync writes through.
type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

var changeEvents = map[Change]enums.OutboxEventType{
	ChangeNewDiscount:   enums.EventProductNewDiscount,
	ChangeDiscountEnded: enums.EventProductDiscountEnded,
	ChangePriceChanged:  enums.EventProductPriceChanged,
	ChangePriceReverted: enums.EventProductPriceReverted,
}

var syncActor = &outbox.ActorRef{Subject: "catalog-sync", Role: "system"}

func priceEvent(eventType enums.OutboxEventType, rec catalog.ProductRecord, previous *catalog.ProductRecord, manual bool, now time.Time) outbox.DomainEvent {
	data := payloads.ProductPriceEvent{
		ProductID:          rec.ID,
		Name:               rec.Name,
		SourceCategory:     rec.SourceCategory,
		PriceLocal:         rec.PriceLocal,
		OriginalPriceLocal: rec.OriginalPriceLocal,
		DiscountPercent:    rec.DiscountPercent,
		StockStatus:        string(rec.StockStatus),
		IsManualPrice:      manual,
	}
	if rec.HasDiscount() {
		data.DiscountEndDate = rec.DiscountEndDate
	}
	if previous != nil {
		prev := previous.PriceLocal
		data.PreviousPriceLocal = &prev
		if data.Name == "" {
			data.Name = previous.Name
		}
		if data.SourceCategory == "" {
			data.SourceCategory = previous.SourceCategory
		}
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   rec.ID,
		Actor:         syncActor,
		Data:          data,
		OccurredAt:    now,
	}
}

func statusEvent(eventType enums.OutboxEventType, id, sourceCategory string, status enums.ProductStatus, reason string, now time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   id,
		Actor:         syncActor,
		Data: payloads.ProductStatusEvent{
			ProductID:      id,
			SourceCategory: sourceCategory,
			Status:         string(status),
			Reason:         reason,
		},
		OccurredAt: now,
	}
}

// emitDecision queues the events implied by an applied decision.
func emitDecision(ctx context.Context, tx *gorm.DB, out emitter, incoming catalog.ProductRecord, persisted *catalog.ProductRecord, decision Decision, now time.Time) error {
	if out == nil {
		return nil
	}
	if decision.Outcome == OutcomeNew {
		if err := out.EmitOnce(ctx, tx, priceEvent(enums.EventProductCreated, incoming, nil, false, now)); err != nil {
			return err
		}
	}
	for _, change := range decision.Changes {
		eventType, ok := changeEvents[change]
		if !ok {
			continue
		}
		if err := out.Emit(ctx, tx, priceEvent(eventType, incoming, persisted, false, now)); err != nil {
			return err
		}
	}
	return nil
}
