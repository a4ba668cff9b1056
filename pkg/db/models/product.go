package models

import (
	"time"

	dbtypes "github.com/angelmondragon/catalogsync-backend/pkg/db/types"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

// Specification is one flattened classification feature of a product.
type Specification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is the persisted storefront listing. Columns owned by the
// translation pipeline (translated_*) are never written by the sync jobs.
type Product struct {
	ID              string `gorm:"column:id;type:varchar(64);primaryKey"`
	Name            string `gorm:"column:name;not null;default:''"`
	NameEnglish     string `gorm:"column:name_en;not null;default:''"`
	Summary         string `gorm:"column:summary;not null;default:''"`
	DescriptionHTML string `gorm:"column:description_html;type:text;not null;default:''"`
	Brand           string `gorm:"column:brand;not null;default:''"`
	URL             string `gorm:"column:url;not null;default:''"`

	PriceLocal         int64   `gorm:"column:price_local;not null;default:0"`
	OriginalPriceLocal *int64  `gorm:"column:original_price_local"`
	HasDiscount        bool    `gorm:"column:has_discount;not null;default:false"`
	DiscountPercent    int     `gorm:"column:discount_percent;not null;default:0"`
	DiscountEndDate    *string `gorm:"column:discount_end_date;type:varchar(10)"`
	DiscountMessage    string  `gorm:"column:discount_message;not null;default:''"`
	UnitPrice          string  `gorm:"column:unit_price;not null;default:''"`
	RawPrice           string  `gorm:"column:raw_price;not null;default:''"`
	IsManualPrice      bool    `gorm:"column:is_manual_price;not null;default:false"`

	StockStatus enums.StockStatus `gorm:"column:stock_status;type:varchar(16);not null;default:'unknown'"`

	Images         dbtypes.JSONList[string]        `gorm:"column:images;type:jsonb;not null;default:'[]'"`
	Specifications dbtypes.JSONList[Specification] `gorm:"column:specifications;type:jsonb;not null;default:'[]'"`
	Badges         dbtypes.JSONList[string]        `gorm:"column:badges;type:jsonb;not null;default:'[]'"`

	Category       string `gorm:"column:category;not null;default:''"`
	SubCategory    string `gorm:"column:sub_category;not null;default:''"`
	SourceCategory string `gorm:"column:source_category;type:varchar(128);not null;default:'';index"`

	Rating      *float64 `gorm:"column:rating"`
	ReviewCount *int     `gorm:"column:review_count"`
	MinOrderQty *int     `gorm:"column:min_order_qty"`
	MaxOrderQty *int     `gorm:"column:max_order_qty"`

	Status              enums.ProductStatus `gorm:"column:status;type:varchar(16);not null;default:'active';index"`
	InactiveReason      *string             `gorm:"column:inactive_reason"`
	PendingReviewReason *string             `gorm:"column:pending_review_reason"`
	NeedsTranslation    bool                `gorm:"column:needs_translation;not null;default:false"`
	NeedsPriceReview    bool                `gorm:"column:needs_price_review;not null;default:false"`

	TranslatedName        *string    `gorm:"column:translated_name"`
	TranslatedDescription *string    `gorm:"column:translated_description;type:text"`
	TranslatedAt          *time.Time `gorm:"column:translated_at"`

	DiscountStartedAt *time.Time `gorm:"column:discount_started_at"`
	DiscountEndedAt   *time.Time `gorm:"column:discount_ended_at"`
	PriceUpdatedAt    *time.Time `gorm:"column:price_updated_at"`
	LastFixedAt       *time.Time `gorm:"column:last_fixed_at"`
	LastSeenAt        *time.Time `gorm:"column:last_seen_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`

	Tags []ProductTag `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TagNames flattens the tag rows into the additionalCategories set.
func (p Product) TagNames() []string {
	out := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		out = append(out, t.Tag)
	}
	return out
}

// ProductTag is one curated-listing membership (additionalCategories entry).
type ProductTag struct {
	ProductID string    `gorm:"column:product_id;type:varchar(64);primaryKey"`
	Tag       string    `gorm:"column:tag;type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}
