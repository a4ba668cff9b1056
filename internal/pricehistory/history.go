package pricehistory

import (
	"context"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	pkgbq "github.com/angelmondragon/catalogsync-backend/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Point is one recorded price snapshot of a product.
type Point struct {
	EventID            string    `json:"event_id"`
	EventType          string    `json:"event_type"`
	OccurredAt         time.Time `json:"occurred_at"`
	PriceLocal         int64     `json:"price_local"`
	PreviousPriceLocal *int64    `json:"previous_price_local,omitempty"`
	OriginalPriceLocal *int64    `json:"original_price_local,omitempty"`
	DiscountPercent    int64     `json:"discount_percent"`
	DiscountEndDate    *string   `json:"discount_end_date,omitempty"`
	StockStatus        string    `json:"stock_status"`
	IsManualPrice      bool      `json:"is_manual_price"`
}

type historyRow struct {
	EventID            string               `bigquery:"event_id"`
	EventType          string               `bigquery:"event_type"`
	OccurredAt         time.Time            `bigquery:"occurred_at"`
	PriceLocal         int64                `bigquery:"price_local"`
	PreviousPriceLocal cbigquery.NullInt64  `bigquery:"previous_price_local"`
	OriginalPriceLocal cbigquery.NullInt64  `bigquery:"original_price_local"`
	DiscountPercent    int64                `bigquery:"discount_percent"`
	DiscountEndDate    cbigquery.NullString `bigquery:"discount_end_date"`
	StockStatus        string               `bigquery:"stock_status"`
	IsManualPrice      bool                 `bigquery:"is_manual_price"`
}

// The insert path is at-least-once, so a redelivered event can land twice.
const historySQL = `SELECT event_id, event_type, occurred_at, price_local, previous_price_local,
  original_price_local, discount_percent, discount_end_date, stock_status, is_manual_price
FROM %s
WHERE product_id = @product_id
QUALIFY ROW_NUMBER() OVER (PARTITION BY event_id ORDER BY occurred_at) = 1
ORDER BY occurred_at DESC
LIMIT @limit`

type historyQuery func(ctx context.Context, sql string, params map[string]any) ([]historyRow, error)

// History reads a product's price timeline back out of BigQuery.
type History struct {
	sql   string
	query historyQuery
}

func NewHistory(client *pkgbq.Client) *History {
	return newHistory(client.TableRef(client.PriceHistoryTable()), func(ctx context.Context, sql string, params map[string]any) ([]historyRow, error) {
		return pkgbq.Query[historyRow](ctx, client, sql, params)
	})
}

func newHistory(table string, query historyQuery) *History {
	return &History{sql: fmt.Sprintf(historySQL, table), query: query}
}

// Recent returns up to limit snapshots, newest first. A limit outside
// 1..MaxHistoryLimit falls back to DefaultHistoryLimit.
func (h *History) Recent(ctx context.Context, productID string, limit int) ([]Point, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}

	rows, err := h.query(ctx, h.sql, map[string]any{"product_id": productID, "limit": int64(limit)})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read price history")
	}
	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		points = append(points, row.point())
	}
	return points, nil
}

func (r historyRow) point() Point {
	p := Point{
		EventID:         r.EventID,
		EventType:       r.EventType,
		OccurredAt:      r.OccurredAt.UTC(),
		PriceLocal:      r.PriceLocal,
		DiscountPercent: r.DiscountPercent,
		StockStatus:     r.StockStatus,
		IsManualPrice:   r.IsManualPrice,
	}
	if r.PreviousPriceLocal.Valid {
		p.PreviousPriceLocal = &r.PreviousPriceLocal.Int64
	}
	if r.OriginalPriceLocal.Valid {
		p.OriginalPriceLocal = &r.OriginalPriceLocal.Int64
	}
	if r.DiscountEndDate.Valid {
		p.DiscountEndDate = &r.DiscountEndDate.StringVal
	}
	return p
}
