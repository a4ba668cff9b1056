package catalog

import (
	"time"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

// Category is one storefront listing the walker can paginate.
type Category struct {
	Code string
	Name string
	// URL is the listing page path (e.g. /c/SpecialPriceOffers). It is used
	// unless UseSearchAPI is set.
	URL          string
	UseSearchAPI bool
}

type Specification struct {
	Name  string
	Value string
}

// ProductRecord is the canonical, store independent view of a listing.
type ProductRecord struct {
	ID              string
	Name            string
	NameEnglish     string
	Summary         string
	DescriptionHTML string
	Brand           string
	URL             string

	PriceLocal         int64
	RawPrice           string
	OriginalPriceLocal *int64
	DiscountPercent    int
	DiscountEndDate    *string
	DiscountMessage    string
	UnitPrice          string

	StockStatus    enums.StockStatus
	Images         []string
	Badges         []string
	Specifications []Specification

	Category       string
	SubCategory    string
	SourceCategory string

	Rating      *float64
	ReviewCount *int
	MinOrderQty *int
	MaxOrderQty *int

	AdditionalCategories []string
	IsManualPrice        bool
	Status               enums.ProductStatus
	InactiveReason       *string
	PendingReviewReason  *string
	NeedsTranslation     bool
	NeedsPriceReview     bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastSeenAt *time.Time
}

// HasDiscount reports whether an original price is carried.
func (r ProductRecord) HasDiscount() bool {
	return r.OriginalPriceLocal != nil
}

// HasTag reports whether the record currently holds the given tag.
func (r ProductRecord) HasTag(tag string) bool {
	for _, t := range r.AdditionalCategories {
		if t == tag {
			return true
		}
	}
	return false
}
