package product

// Persisted column names. Other services read these rows directly, so the
// names are part of the contract.
const (
	ColID                  = "id"
	ColName                = "name"
	ColNameEnglish         = "name_en"
	ColSummary             = "summary"
	ColDescriptionHTML     = "description_html"
	ColBrand               = "brand"
	ColURL                 = "url"
	ColPriceLocal          = "price_local"
	ColOriginalPriceLocal  = "original_price_local"
	ColHasDiscount         = "has_discount"
	ColDiscountPercent     = "discount_percent"
	ColDiscountEndDate     = "discount_end_date"
	ColDiscountMessage     = "discount_message"
	ColUnitPrice           = "unit_price"
	ColRawPrice            = "raw_price"
	ColIsManualPrice       = "is_manual_price"
	ColStockStatus         = "stock_status"
	ColImages              = "images"
	ColSpecifications      = "specifications"
	ColBadges              = "badges"
	ColCategory            = "category"
	ColSubCategory         = "sub_category"
	ColSourceCategory      = "source_category"
	ColRating              = "rating"
	ColReviewCount         = "review_count"
	ColMinOrderQty         = "min_order_qty"
	ColMaxOrderQty         = "max_order_qty"
	ColStatus              = "status"
	ColInactiveReason      = "inactive_reason"
	ColPendingReviewReason = "pending_review_reason"
	ColNeedsTranslation    = "needs_translation"
	ColNeedsPriceReview    = "needs_price_review"
	ColDiscountStartedAt   = "discount_started_at"
	ColDiscountEndedAt     = "discount_ended_at"
	ColPriceUpdatedAt      = "price_updated_at"
	ColLastFixedAt         = "last_fixed_at"
	ColLastSeenAt          = "last_seen_at"
	ColCreatedAt           = "created_at"
	ColUpdatedAt           = "updated_at"
)

// PriceColumns are the columns a manual price lock protects.
var PriceColumns = []string{
	ColPriceLocal,
	ColOriginalPriceLocal,
	ColHasDiscount,
	ColDiscountPercent,
	ColDiscountEndDate,
}

// Patch is a column-keyed partial update. Columns absent from the map are
// left untouched on merge.
type Patch map[string]any

// Set assigns a column and returns the patch for chaining.
func (p Patch) Set(column string, value any) Patch {
	p[column] = value
	return p
}

// Without returns a copy of the patch minus the given columns.
func (p Patch) Without(columns ...string) Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, c := range columns {
		delete(out, c)
	}
	return out
}

// Only returns a copy of the patch restricted to the given columns.
func (p Patch) Only(columns ...string) Patch {
	out := make(Patch, len(columns))
	for _, c := range columns {
		if v, ok := p[c]; ok {
			out[c] = v
		}
	}
	return out
}

func (p Patch) Has(column string) bool {
	_, ok := p[column]
	return ok
}
