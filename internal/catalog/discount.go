package catalog

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Discount is the outcome of ResolveDiscount. Both fields are nil when the
// item is not discounted.
type Discount struct {
	OriginalPriceLocal *int64
	EndDate            *string
}

type discountStrategy func(item gjson.Result, current int64) (original *int64, endDate *string)

// The storefront reports promotions in several shapes depending on promotion
// and product type. Order matters: the first strategy that yields an original
// price wins, later ones may only fill a missing end date.
var discountStrategies = []discountStrategy{
	couponDiscount,
	basePriceDiscount,
	promotionDiscount,
}

// ResolveDiscount derives the original price and end date for an item whose
// current price is current.
func ResolveDiscount(item gjson.Result, current int64) Discount {
	var out Discount
	for _, strategy := range discountStrategies {
		original, endDate := strategy(item, current)
		if out.OriginalPriceLocal == nil && original != nil {
			out.OriginalPriceLocal = original
		}
		if out.EndDate == nil && endDate != nil {
			out.EndDate = endDate
		}
	}

	if current <= 0 || out.OriginalPriceLocal == nil || *out.OriginalPriceLocal <= current {
		return Discount{}
	}
	return out
}

func couponDiscount(item gjson.Result, current int64) (*int64, *string) {
	coupon := item.Get("couponDiscount")
	if !coupon.IsObject() {
		return nil, nil
	}
	endDate := dayPrecision(coupon.Get("discountEndDate"))
	if endDate == nil {
		endDate = dayPrecision(coupon.Get("localDiscountEndDate"))
	}
	amount, ok := ParsePrice(coupon.Get("discountValue"))
	if !ok || amount <= 0 {
		return nil, endDate
	}
	original := current + amount
	return &original, endDate
}

func basePriceDiscount(item gjson.Result, current int64) (*int64, *string) {
	base, ok := ParsePrice(item.Get("basePrice.value"))
	if !ok || base <= current {
		return nil, nil
	}
	return &base, nil
}

func promotionDiscount(item gjson.Result, current int64) (*int64, *string) {
	promo := item.Get("potentialPromotions.0")
	if !promo.IsObject() {
		return nil, nil
	}
	endDate := dayPrecision(promo.Get("endDate"))
	value, ok := ParsePrice(promo.Get("value"))
	if !ok || value <= 0 {
		return nil, endDate
	}
	original := current + value
	return &original, endDate
}

// dayPrecision truncates an ISO timestamp to its date part.
func dayPrecision(v gjson.Result) *string {
	if v.Type != gjson.String {
		return nil
	}
	day, _, _ := strings.Cut(strings.TrimSpace(v.Str), "T")
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return nil
	}
	return &day
}
