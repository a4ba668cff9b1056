package enums

// ProductStatus is the lifecycle state of a synced product.
type ProductStatus string

const (
	ProductStatusActive        ProductStatus = "active"
	ProductStatusInactive      ProductStatus = "inactive"
	ProductStatusPendingReview ProductStatus = "pendingReview"
)

var productStatuses = []ProductStatus{
	ProductStatusActive,
	ProductStatusInactive,
	ProductStatusPendingReview,
}

func (s ProductStatus) String() string { return string(s) }

func ParseProductStatus(raw string) (ProductStatus, error) {
	return parse(productStatuses, "product status", raw)
}

// StockStatus is the normalized upstream stock level.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "inStock"
	StockStatusOutOfStock StockStatus = "outOfStock"
	StockStatusUnknown    StockStatus = "unknown"
)

func (s StockStatus) String() string { return string(s) }

// ParseStockLevel maps the storefront stockLevelStatus onto StockStatus.
// lowStock still sells, so it counts as in stock.
func ParseStockLevel(value string) StockStatus {
	switch value {
	case "inStock", "lowStock":
		return StockStatusInStock
	case "outOfStock":
		return StockStatusOutOfStock
	default:
		return StockStatusUnknown
	}
}

const (
	InactiveReasonNotFoundOnSource = "not_found_on_source"
	PendingReviewReasonAbsent      = "absent_from_listing"
)
