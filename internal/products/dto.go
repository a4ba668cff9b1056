package product

import (
	"time"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
)

// ProductDTO is the admin view of a synced product.
type ProductDTO struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	NameEnglish          string             `json:"name_en,omitempty"`
	Brand                string             `json:"brand,omitempty"`
	URL                  string             `json:"url,omitempty"`
	PriceLocal           int64              `json:"price_local"`
	OriginalPriceLocal   *int64             `json:"original_price_local,omitempty"`
	HasDiscount          bool               `json:"has_discount"`
	DiscountPercent      int                `json:"discount_percent"`
	DiscountEndDate      *string            `json:"discount_end_date,omitempty"`
	RawPrice             string             `json:"raw_price"`
	IsManualPrice        bool               `json:"is_manual_price"`
	StockStatus          string             `json:"stock_status"`
	Images               []string           `json:"images"`
	Specifications       []SpecificationDTO `json:"specifications"`
	Category             string             `json:"category"`
	SubCategory          string             `json:"sub_category,omitempty"`
	SourceCategory       string             `json:"source_category"`
	AdditionalCategories []string           `json:"additional_categories"`
	Status               string             `json:"status"`
	InactiveReason       *string            `json:"inactive_reason,omitempty"`
	PendingReviewReason  *string            `json:"pending_review_reason,omitempty"`
	NeedsTranslation     bool               `json:"needs_translation"`
	NeedsPriceReview     bool               `json:"needs_price_review"`
	LastSeenAt           *time.Time         `json:"last_seen_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type SpecificationDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewProductDTO builds a DTO from a loaded record.
func NewProductDTO(rec *catalog.ProductRecord) *ProductDTO {
	dto := &ProductDTO{
		ID:                   rec.ID,
		Name:                 rec.Name,
		NameEnglish:          rec.NameEnglish,
		Brand:                rec.Brand,
		URL:                  rec.URL,
		PriceLocal:           rec.PriceLocal,
		OriginalPriceLocal:   rec.OriginalPriceLocal,
		HasDiscount:          rec.HasDiscount(),
		DiscountPercent:      rec.DiscountPercent,
		DiscountEndDate:      rec.DiscountEndDate,
		RawPrice:             rec.RawPrice,
		IsManualPrice:        rec.IsManualPrice,
		StockStatus:          rec.StockStatus.String(),
		Images:               append([]string{}, rec.Images...),
		Specifications:       make([]SpecificationDTO, len(rec.Specifications)),
		Category:             rec.Category,
		SubCategory:          rec.SubCategory,
		SourceCategory:       rec.SourceCategory,
		AdditionalCategories: append([]string{}, rec.AdditionalCategories...),
		Status:               rec.Status.String(),
		InactiveReason:       rec.InactiveReason,
		PendingReviewReason:  rec.PendingReviewReason,
		NeedsTranslation:     rec.NeedsTranslation,
		NeedsPriceReview:     rec.NeedsPriceReview,
		LastSeenAt:           rec.LastSeenAt,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
	for i, s := range rec.Specifications {
		dto.Specifications[i] = SpecificationDTO{Name: s.Name, Value: s.Value}
	}
	return dto
}
