package enums

import "slices"

// OutboxAggregateType is outbox_events.aggregate_type. Products are the only
// aggregate the sync emits for.
type OutboxAggregateType string

const AggregateProduct OutboxAggregateType = "product"

// OutboxEventType is outbox_events.event_type and the Pub/Sub event_type
// attribute.
type OutboxEventType string

const (
	EventProductCreated       OutboxEventType = "product_created"
	EventProductNewDiscount   OutboxEventType = "product_new_discount"
	EventProductDiscountEnded OutboxEventType = "product_discount_ended"
	EventProductPriceChanged  OutboxEventType = "product_price_changed"
	EventProductPriceReverted OutboxEventType = "product_price_reverted"
	EventProductPendingReview OutboxEventType = "product_pending_review"
	EventProductInactive      OutboxEventType = "product_inactive"
)

var priceEventTypes = []OutboxEventType{
	EventProductCreated,
	EventProductNewDiscount,
	EventProductDiscountEnded,
	EventProductPriceChanged,
	EventProductPriceReverted,
}

var outboxEventTypes = append(slices.Clone(priceEventTypes), EventProductPendingReview, EventProductInactive)

// CarriesPrice reports whether the payload is a price snapshot, which is
// what the price history consumer records.
func (e OutboxEventType) CarriesPrice() bool {
	return member(priceEventTypes, e)
}

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return parse(outboxEventTypes, "event type", raw)
}

// OutboxDLQErrorReason is why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: every retry failed.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the payload or routing can never succeed.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
