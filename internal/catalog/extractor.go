package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

const fallbackIDLength = 12

// Image formats kept per gallery slot, highest priority first.
var imageFormatPriority = []string{"zoom", "product", "thumbnail"}

// Extractor maps raw storefront items onto ProductRecord. Every field access
// degrades to a default; only an item with neither code nor name fails.
type Extractor struct {
	baseURL string
}

func NewExtractor(baseURL string) *Extractor {
	return &Extractor{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// FallbackID derives a stable id from a product name for items without a code.
// Two distinct products sharing a display name collide.
func FallbackID(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:fallbackIDLength]
}

func (e *Extractor) Extract(item gjson.Result, cat Category) (ProductRecord, error) {
	id := strings.TrimSpace(item.Get("code").String())
	name := item.Get("name").String()
	if id == "" {
		if strings.TrimSpace(name) == "" {
			return ProductRecord{}, &ExtractionError{Reason: ReasonNoIdentifiableData}
		}
		id = FallbackID(name)
	}

	priceValue := item.Get("price.value")
	price, _ := ParsePrice(priceValue)
	discount := ResolveDiscount(item, price)

	rec := ProductRecord{
		ID:                 id,
		Name:               name,
		NameEnglish:        item.Get("englishName").String(),
		Summary:            item.Get("summary").String(),
		DescriptionHTML:    e.rewriteDescription(item.Get("description").String()),
		Brand:              item.Get("manufacturer").String(),
		URL:                e.absoluteURL(item.Get("url").String()),
		PriceLocal:         price,
		RawPrice:           priceValue.String(),
		OriginalPriceLocal: discount.OriginalPriceLocal,
		DiscountEndDate:    discount.EndDate,
		DiscountPercent:    DiscountPercent(price, discount.OriginalPriceLocal),
		DiscountMessage:    item.Get("discountMessage").String(),
		UnitPrice:          unitPrice(item),
		StockStatus:        stockStatus(item),
		Images:             e.images(item.Get("images")),
		Badges:             badges(item.Get("decalData")),
		Specifications:     specifications(item.Get("classifications")),
		Category:           cat.Name,
		SubCategory:        subCategory(item.Get("categories"), cat.Code),
		SourceCategory:     cat.Code,
		Rating:             optionalFloat(item.Get("averageRating")),
		ReviewCount:        optionalInt(item.Get("numberOfReviews")),
		MinOrderQty:        optionalInt(item.Get("minOrderQuantity")),
		MaxOrderQty:        optionalInt(item.Get("maxOrderQuantity")),
	}
	return rec, nil
}

func (e *Extractor) absoluteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return e.baseURL + raw
	default:
		return e.baseURL + "/" + raw
	}
}

func (e *Extractor) rewriteDescription(html string) string {
	if html == "" {
		return ""
	}
	html = strings.ReplaceAll(html, `src="/`, `src="`+e.baseURL+`/`)
	return strings.ReplaceAll(html, `src='/`, `src='`+e.baseURL+`/`)
}

// images picks one url per gallery slot by format priority, in slot order.
func (e *Extractor) images(list gjson.Result) []string {
	slots := map[int64]map[string]string{}
	list.ForEach(func(_, img gjson.Result) bool {
		format := img.Get("format").String()
		url := strings.TrimSpace(img.Get("url").String())
		if url == "" || !keptImageFormat(format) {
			return true
		}
		idx := img.Get("galleryIndex").Int()
		if slots[idx] == nil {
			slots[idx] = map[string]string{}
		}
		slots[idx][format] = url
		return true
	})

	indices := make([]int64, 0, len(slots))
	for idx := range slots {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := []string{}
	seen := map[string]struct{}{}
	for _, idx := range indices {
		for _, format := range imageFormatPriority {
			url, ok := slots[idx][format]
			if !ok {
				continue
			}
			abs := e.absoluteURL(url)
			if _, dup := seen[abs]; !dup {
				seen[abs] = struct{}{}
				out = append(out, abs)
			}
			break
		}
	}
	return out
}

func keptImageFormat(format string) bool {
	for _, f := range imageFormatPriority {
		if f == format {
			return true
		}
	}
	return false
}

func stockStatus(item gjson.Result) enums.StockStatus {
	level := item.Get("stock.stockLevelStatus")
	if !level.Exists() {
		return enums.StockStatusInStock
	}
	return enums.ParseStockLevel(level.String())
}

func specifications(classifications gjson.Result) []Specification {
	out := []Specification{}
	classifications.ForEach(func(_, c gjson.Result) bool {
		c.Get("features").ForEach(func(_, f gjson.Result) bool {
			value := f.Get("featureValues.0.value")
			if !value.Exists() {
				return true
			}
			out = append(out, Specification{Name: f.Get("name").String(), Value: value.String()})
			return true
		})
		return true
	})
	return out
}

func badges(decals gjson.Result) []string {
	out := []string{}
	decals.ForEach(func(_, d gjson.Result) bool {
		if text := strings.TrimSpace(d.Get("text").String()); text != "" {
			out = append(out, text)
		}
		return true
	})
	return out
}

func unitPrice(item gjson.Result) string {
	if label := item.Get("price.supplementaryPriceLabel"); label.Type == gjson.String && label.Str != "" {
		return label.Str
	}
	for _, path := range []string{"unitPrice", "price.unitPrice"} {
		v := item.Get(path)
		switch {
		case v.Type == gjson.String && v.Str != "":
			return v.Str
		case v.IsObject():
			if s := v.Get("formattedValue").String(); s != "" {
				return s
			}
			if s := v.Get("supplementaryPriceLabel").String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// subCategory is the name of the deepest cos_ category below the walked one.
func subCategory(categories gjson.Result, walked string) string {
	best, bestDepth := "", strings.Count(walked, ".")
	categories.ForEach(func(_, c gjson.Result) bool {
		code := c.Get("code").String()
		if !strings.HasPrefix(code, "cos_") {
			return true
		}
		if depth := strings.Count(code, "."); depth > bestDepth {
			best, bestDepth = c.Get("name").String(), depth
		}
		return true
	})
	return best
}

func optionalFloat(v gjson.Result) *float64 {
	if v.Type != gjson.Number {
		return nil
	}
	f := v.Float()
	return &f
}

func optionalInt(v gjson.Result) *int {
	if v.Type != gjson.Number {
		return nil
	}
	i := int(v.Int())
	return &i
}
