package pricehistory

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/payloads"
)

// Envelope is a catalog event as received from the subscription.
type Envelope struct {
	EventID     string
	EventType   enums.OutboxEventType
	AggregateID string
	Version     int
	OccurredAt  time.Time
	Payload     json.RawMessage
}

// Row mirrors the price_history BigQuery schema.
type Row struct {
	EventID            string             `bigquery:"event_id"`
	EventType          string             `bigquery:"event_type"`
	ProductID          string             `bigquery:"product_id"`
	SourceCategory     string             `bigquery:"source_category"`
	OccurredAt         time.Time          `bigquery:"occurred_at"`
	PriceLocal         int64              `bigquery:"price_local"`
	PreviousPriceLocal *int64             `bigquery:"previous_price_local"`
	OriginalPriceLocal *int64             `bigquery:"original_price_local"`
	DiscountPercent    int64              `bigquery:"discount_percent"`
	DiscountEndDate    *string            `bigquery:"discount_end_date"`
	StockStatus        string             `bigquery:"stock_status"`
	IsManualPrice      bool               `bigquery:"is_manual_price"`
	Payload            cbigquery.NullJSON `bigquery:"payload"`
}

// NewRow flattens a price snapshot. The product id falls back to the
// aggregate id for payloads written before product_id was carried.
func NewRow(env Envelope, event *payloads.ProductPriceEvent) (Row, error) {
	if event == nil {
		return Row{}, fmt.Errorf("price payload missing for %s", env.EventID)
	}
	productID := event.ProductID
	if productID == "" {
		productID = env.AggregateID
	}
	if productID == "" {
		return Row{}, fmt.Errorf("product id missing for %s", env.EventID)
	}

	row := Row{
		EventID:            env.EventID,
		EventType:          string(env.EventType),
		ProductID:          productID,
		SourceCategory:     event.SourceCategory,
		OccurredAt:         env.OccurredAt.UTC(),
		PriceLocal:         event.PriceLocal,
		PreviousPriceLocal: event.PreviousPriceLocal,
		OriginalPriceLocal: event.OriginalPriceLocal,
		DiscountPercent:    int64(event.DiscountPercent),
		DiscountEndDate:    event.DiscountEndDate,
		StockStatus:        event.StockStatus,
		IsManualPrice:      event.IsManualPrice,
	}
	if len(env.Payload) > 0 {
		row.Payload = cbigquery.NullJSON{Valid: true, JSONVal: string(env.Payload)}
	}
	return row, nil
}
