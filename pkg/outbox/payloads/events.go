package payloads

// ProductPriceEvent is the price snapshot carried by product_created and the
// price-bearing change events. PreviousPriceLocal is nil for new products.
type ProductPriceEvent struct {
	ProductID          string  `json:"product_id"`
	Name               string  `json:"name"`
	SourceCategory     string  `json:"source_category"`
	PriceLocal         int64   `json:"price_local"`
	PreviousPriceLocal *int64  `json:"previous_price_local,omitempty"`
	OriginalPriceLocal *int64  `json:"original_price_local,omitempty"`
	DiscountPercent    int     `json:"discount_percent"`
	DiscountEndDate    *string `json:"discount_end_date,omitempty"`
	StockStatus        string  `json:"stock_status"`
	IsManualPrice      bool    `json:"is_manual_price"`
}

// ProductStatusEvent reports a lifecycle transition away from active.
type ProductStatusEvent struct {
	ProductID      string `json:"product_id"`
	SourceCategory string `json:"source_category,omitempty"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}
