package product

import (
	"slices"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/catalogsync-backend/pkg/db/types"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

// ToRecord converts a persisted row, tags included when preloaded.
func ToRecord(p *models.Product) *catalog.ProductRecord {
	if p == nil {
		return nil
	}
	specs := make([]catalog.Specification, 0, len(p.Specifications))
	for _, s := range p.Specifications {
		specs = append(specs, catalog.Specification{Name: s.Name, Value: s.Value})
	}
	return &catalog.ProductRecord{
		ID:                   p.ID,
		Name:                 p.Name,
		NameEnglish:          p.NameEnglish,
		Summary:              p.Summary,
		DescriptionHTML:      p.DescriptionHTML,
		Brand:                p.Brand,
		URL:                  p.URL,
		PriceLocal:           p.PriceLocal,
		RawPrice:             p.RawPrice,
		OriginalPriceLocal:   p.OriginalPriceLocal,
		DiscountPercent:      p.DiscountPercent,
		DiscountEndDate:      p.DiscountEndDate,
		DiscountMessage:      p.DiscountMessage,
		UnitPrice:            p.UnitPrice,
		StockStatus:          p.StockStatus,
		Images:               append([]string{}, p.Images...),
		Badges:               append([]string{}, p.Badges...),
		Specifications:       specs,
		Category:             p.Category,
		SubCategory:          p.SubCategory,
		SourceCategory:       p.SourceCategory,
		Rating:               p.Rating,
		ReviewCount:          p.ReviewCount,
		MinOrderQty:          p.MinOrderQty,
		MaxOrderQty:          p.MaxOrderQty,
		AdditionalCategories: p.TagNames(),
		IsManualPrice:        p.IsManualPrice,
		Status:               p.Status,
		InactiveReason:       p.InactiveReason,
		PendingReviewReason:  p.PendingReviewReason,
		NeedsTranslation:     p.NeedsTranslation,
		NeedsPriceReview:     p.NeedsPriceReview,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
		LastSeenAt:           p.LastSeenAt,
	}
}

// ContentPatch holds every column the extractor authors for rec.
func ContentPatch(rec catalog.ProductRecord) Patch {
	specs := make(dbtypes.JSONList[models.Specification], 0, len(rec.Specifications))
	for _, s := range rec.Specifications {
		specs = append(specs, models.Specification{Name: s.Name, Value: s.Value})
	}
	patch := Patch{
		ColName:            rec.Name,
		ColNameEnglish:     rec.NameEnglish,
		ColSummary:         rec.Summary,
		ColDescriptionHTML: rec.DescriptionHTML,
		ColBrand:           rec.Brand,
		ColURL:             rec.URL,
		ColDiscountMessage: rec.DiscountMessage,
		ColUnitPrice:       rec.UnitPrice,
		ColRawPrice:        rec.RawPrice,
		ColStockStatus:     rec.StockStatus,
		ColImages:          dbtypes.JSONList[string](nonNil(rec.Images)),
		ColSpecifications:  specs,
		ColBadges:          dbtypes.JSONList[string](nonNil(rec.Badges)),
		ColCategory:        rec.Category,
		ColSubCategory:     rec.SubCategory,
		ColSourceCategory:  rec.SourceCategory,
		ColRating:          rec.Rating,
		ColReviewCount:     rec.ReviewCount,
		ColMinOrderQty:     rec.MinOrderQty,
		ColMaxOrderQty:     rec.MaxOrderQty,
	}
	for k, v := range PricePatch(rec) {
		patch[k] = v
	}
	return patch
}

// MergePatch is ContentPatch without the content columns rec leaves empty,
// so a thin listing item never blanks what a richer payload stored. Price
// columns and the discount message follow the payload even when empty.
func MergePatch(rec catalog.ProductRecord) Patch {
	patch := ContentPatch(rec)
	for column, value := range patch {
		if column == ColDiscountMessage || slices.Contains(PriceColumns, column) {
			continue
		}
		if blank(value) {
			delete(patch, column)
		}
	}
	return patch
}

func blank(value any) bool {
	switch v := value.(type) {
	case string:
		return v == ""
	case enums.StockStatus:
		return v == ""
	case dbtypes.JSONList[string]:
		return len(v) == 0
	case dbtypes.JSONList[models.Specification]:
		return len(v) == 0
	case *float64:
		return v == nil
	case *int:
		return v == nil
	}
	return value == nil
}

// PricePatch holds the lock-protected price columns for rec.
func PricePatch(rec catalog.ProductRecord) Patch {
	var endDate *string
	if rec.HasDiscount() {
		endDate = rec.DiscountEndDate
	}
	return Patch{
		ColPriceLocal:         rec.PriceLocal,
		ColOriginalPriceLocal: rec.OriginalPriceLocal,
		ColHasDiscount:        rec.HasDiscount(),
		ColDiscountPercent:    rec.DiscountPercent,
		ColDiscountEndDate:    endDate,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
