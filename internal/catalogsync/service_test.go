package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/payloads"
)

func TestRunCategorySyncIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.store.pages[0] = listingPage(
		item{Code: "701285", Name: "Almonds", Price: 12000, Base: 15000},
		item{Code: "701286", Name: "Cashews", Price: 18000},
	)

	first, err := h.service.RunCategorySync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.New != 2 || first.Updated != 0 {
		t.Fatalf("expected 2 new, got %+v", first)
	}

	second, err := h.service.RunCategorySync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.New != 0 || second.PriceChanged != 0 || second.NewDiscounts != 0 {
		t.Fatalf("second run should be a no-op, got %+v", second)
	}
	if second.Updated != 2 {
		t.Fatalf("expected 2 updated, got %d", second.Updated)
	}
	if got := len(h.events(t, enums.EventProductCreated)); got != 2 {
		t.Fatalf("expected one product_created per product, got %d", got)
	}

	rec := h.product(t, "701285")
	if rec.PriceLocal != 12000 || rec.OriginalPriceLocal == nil || *rec.OriginalPriceLocal != 15000 {
		t.Fatalf("unexpected stored price %d/%v", rec.PriceLocal, rec.OriginalPriceLocal)
	}
	if rec.DiscountPercent != 20 || !rec.NeedsTranslation || rec.Status != enums.ProductStatusActive {
		t.Fatalf("unexpected stored record %+v", rec)
	}
	if !rec.HasTag("Sale") {
		t.Fatalf("expected Sale tag, got %v", rec.AdditionalCategories)
	}
}

func TestRunCategorySyncConvergesTag(t *testing.T) {
	h := newHarness(t)
	h.seed(t, item{Code: "B", Name: "b", Price: 1000}, nil, "Sale")
	h.seed(t, item{Code: "C", Name: "c", Price: 1000}, nil, "Sale", "New")
	h.seed(t, item{Code: "D", Name: "d", Price: 1000}, nil, "Sale")
	h.store.pages[0] = listingPage(
		item{Code: "A", Name: "a", Price: 1000},
		item{Code: "B", Name: "b", Price: 1000},
	)

	stats, err := h.service.RunCategorySync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := h.tagHolders(t, "Sale"); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("expected Sale on [A B], got %v", got)
	}
	if got := h.tagHolders(t, "New"); !reflect.DeepEqual(got, []string{"C"}) {
		t.Fatalf("other tags must be untouched, got New on %v", got)
	}
	if stats.TagsAdded != 1 || stats.TagsRemoved != 2 {
		t.Fatalf("unexpected tag stats added=%d removed=%d", stats.TagsAdded, stats.TagsRemoved)
	}
}

func TestRunCategorySyncKeepsManualPriceDuringDiscount(t *testing.T) {
	h := newHarness(t)
	h.seed(t, item{Code: "701285", Name: "Almonds", Price: 9900, Base: 15000}, product.Patch{
		product.ColIsManualPrice: true,
	})
	h.store.pages[0] = listingPage(item{Code: "701285", Name: "Almonds", Price: 12000, Base: 15000, OutStock: true})

	if _, err := h.service.RunCategorySync(context.Background(), saleTarget); err != nil {
		t.Fatalf("sync: %v", err)
	}
	rec := h.product(t, "701285")
	if rec.PriceLocal != 9900 || !rec.IsManualPrice {
		t.Fatalf("manual price should hold, got %d manual=%v", rec.PriceLocal, rec.IsManualPrice)
	}
	if rec.StockStatus != enums.StockStatusOutOfStock {
		t.Fatalf("stock should still update, got %s", rec.StockStatus)
	}
	if got := len(h.events(t, enums.EventProductPriceChanged)); got != 0 {
		t.Fatalf("expected no price events, got %d", got)
	}
}

func TestRunCategorySyncUnlocksWhenDiscountEnds(t *testing.T) {
	h := newHarness(t)
	end := "2026-10-10"
	h.seed(t, item{Code: "701285", Name: "Almonds", Price: 9900, Base: 15000}, product.Patch{
		product.ColIsManualPrice:   true,
		product.ColDiscountEndDate: &end,
	})
	h.store.pages[0] = listingPage(item{Code: "701285", Name: "Almonds", Price: 15000})

	stats, err := h.service.RunCategorySync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	rec := h.product(t, "701285")
	if rec.IsManualPrice {
		t.Fatal("expected manual lock cleared")
	}
	if rec.PriceLocal != 15000 || rec.OriginalPriceLocal != nil || rec.DiscountEndDate != nil {
		t.Fatalf("unexpected price state %d/%v/%v", rec.PriceLocal, rec.OriginalPriceLocal, rec.DiscountEndDate)
	}
	if stats.PriceReverted != 1 || stats.DiscountsEnded != 1 {
		t.Fatalf("unexpected change counts %+v", stats)
	}

	reverted := h.events(t, enums.EventProductPriceReverted)
	if len(reverted) != 1 {
		t.Fatalf("expected one price_reverted event, got %d", len(reverted))
	}
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(reverted[0].Payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var data payloads.ProductPriceEvent
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if data.PriceLocal != 15000 || data.PreviousPriceLocal == nil || *data.PreviousPriceLocal != 9900 {
		t.Fatalf("unexpected event payload %+v", data)
	}
}

func TestRunCategorySyncSweepsAbsentProducts(t *testing.T) {
	h := newHarness(t)
	h.seed(t, item{Code: "gone", Name: "gone", Price: 1000}, product.Patch{
		product.ColSourceCategory: groceryTarget.Code,
	})
	h.seed(t, item{Code: "elsewhere", Name: "other", Price: 1000}, product.Patch{
		product.ColSourceCategory: "cos_6",
	})
	h.store.pages[0] = listingPage(item{Code: "kept", Name: "kept", Price: 1000})

	stats, err := h.service.RunCategorySync(context.Background(), groceryTarget)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stats.PendingReview != 1 {
		t.Fatalf("expected 1 pending review, got %d", stats.PendingReview)
	}
	gone := h.product(t, "gone")
	if gone.Status != enums.ProductStatusPendingReview || gone.PendingReviewReason == nil || *gone.PendingReviewReason != enums.PendingReviewReasonAbsent {
		t.Fatalf("unexpected lifecycle %s/%v", gone.Status, gone.PendingReviewReason)
	}
	if other := h.product(t, "elsewhere"); other.Status != enums.ProductStatusActive {
		t.Fatalf("products of other categories are not swept, got %s", other.Status)
	}
	if got := len(h.events(t, enums.EventProductPendingReview)); got != 1 {
		t.Fatalf("expected one pending review event, got %d", got)
	}

	// Seen again on the next walk, it comes back.
	h.store.pages[0] = listingPage(item{Code: "kept", Name: "kept", Price: 1000}, item{Code: "gone", Name: "gone", Price: 1000})
	if _, err := h.service.RunCategorySync(context.Background(), groceryTarget); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if back := h.product(t, "gone"); back.Status != enums.ProductStatusActive || back.PendingReviewReason != nil {
		t.Fatalf("expected reactivation, got %s/%v", back.Status, back.PendingReviewReason)
	}
}

func TestRunCategorySyncSaleEndOnlyRevokesTag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	both := listingPage(item{Code: "A", Name: "a", Price: 1000}, item{Code: "B", Name: "b", Price: 1000, Base: 1500})

	h.store.pages[0] = both
	if _, err := h.service.RunCategorySync(ctx, groceryTarget); err != nil {
		t.Fatalf("catalog sync: %v", err)
	}
	if _, err := h.service.RunCategorySync(ctx, saleTarget); err != nil {
		t.Fatalf("sale sync: %v", err)
	}

	h.store.pages[0] = listingPage(item{Code: "A", Name: "a", Price: 1000})
	stats, err := h.service.RunCategorySync(ctx, saleTarget)
	if err != nil {
		t.Fatalf("sale sync after promotion ended: %v", err)
	}
	if stats.PendingReview != 0 {
		t.Fatalf("promotion listings never sweep, got %d", stats.PendingReview)
	}
	b := h.product(t, "B")
	if b.Status != enums.ProductStatusActive || b.PendingReviewReason != nil {
		t.Fatalf("product still sold must stay active, got %s/%v", b.Status, b.PendingReviewReason)
	}
	if b.HasTag("Sale") {
		t.Fatalf("expected Sale revoked, got %v", b.AdditionalCategories)
	}
	if a := h.product(t, "A"); a.SourceCategory != groceryTarget.Code || a.Category != groceryTarget.Name {
		t.Fatalf("promotion walk moved the product to %s/%s", a.SourceCategory, a.Category)
	}

	// The catalog walk is still the one that notices B is gone.
	if _, err := h.service.RunCategorySync(ctx, groceryTarget); err != nil {
		t.Fatalf("catalog resync: %v", err)
	}
	if b := h.product(t, "B"); b.Status != enums.ProductStatusPendingReview {
		t.Fatalf("expected catalog sweep to flag B, got %s", b.Status)
	}
}

func TestRunCategorySyncKeepsRichColumnsOnThinListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.pages[0] = `{"products": [{
		"code": "p1",
		"name": "Widget",
		"summary": "sturdy",
		"description": "<p>rich</p>",
		"averageRating": 4.5,
		"price": {"value": 1200},
		"images": [{"galleryIndex": 0, "format": "zoom", "url": "/img/p1.jpg"}],
		"classifications": [{"features": [{"name": "용량", "featureValues": [{"value": "4L"}]}]}]
	}]}`
	if _, err := h.service.RunCategorySync(ctx, groceryTarget); err != nil {
		t.Fatalf("rich sync: %v", err)
	}

	h.store.pages[0] = `{"products": [{"code": "p1", "name": "Widget", "price": {"value": 1000}}]}`
	stats, err := h.service.RunCategorySync(ctx, groceryTarget)
	if err != nil {
		t.Fatalf("thin sync: %v", err)
	}
	if stats.PriceChanged != 1 {
		t.Fatalf("expected the price change to land, got %+v", stats)
	}

	rec := h.product(t, "p1")
	if rec.PriceLocal != 1000 {
		t.Fatalf("expected price 1000, got %d", rec.PriceLocal)
	}
	if rec.DescriptionHTML != "<p>rich</p>" || rec.Summary != "sturdy" {
		t.Fatalf("text columns blanked: %q %q", rec.DescriptionHTML, rec.Summary)
	}
	if len(rec.Specifications) != 1 || len(rec.Images) != 1 || rec.Images[0] != testBaseURL+"/img/p1.jpg" {
		t.Fatalf("list columns blanked: specs=%v images=%v", rec.Specifications, rec.Images)
	}
	if rec.Rating == nil || *rec.Rating != 4.5 {
		t.Fatalf("rating blanked: %v", rec.Rating)
	}
}

func TestRunCategorySyncAbortedWalkKeepsPartialWork(t *testing.T) {
	h := newHarness(t)
	h.seed(t, item{Code: "old", Name: "old", Price: 1000}, nil, "Sale")
	h.store.pages[0] = listingPage(item{Code: "A", Name: "a", Price: 1000})
	h.store.pageErrs = map[int]error{1: &catalog.FetchError{Status: 503, Message: "unavailable"}}

	stats, err := h.service.RunCategorySync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("soft abort should not error: %v", err)
	}
	if !stats.Aborted || stats.AbortErr == "" {
		t.Fatalf("expected aborted stats, got %+v", stats)
	}
	if stats.New != 1 {
		t.Fatalf("completed page should stand, got %+v", stats)
	}
	if old := h.product(t, "old"); old.Status != enums.ProductStatusActive || !old.HasTag("Sale") {
		t.Fatalf("incomplete walk must not sweep or untag, got %s %v", old.Status, old.AdditionalCategories)
	}
	if got := h.tagHolders(t, "Sale"); !reflect.DeepEqual(got, []string{"A", "old"}) {
		t.Fatalf("expected grant only, got %v", got)
	}
}

func TestRunCategorySyncSkipsUnidentifiableItems(t *testing.T) {
	h := newHarness(t)
	h.store.pages[0] = `{"products": [{"price": {"value": 1000}}, {"code": "A", "price": {"value": 1000}}]}`

	stats, err := h.service.RunCategorySync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stats.New != 1 || stats.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunCategorySyncHardFailure(t *testing.T) {
	h := newHarness(t)
	h.store.pageErrs = map[int]error{0: errors.New("boom")}

	if _, err := h.service.RunCategorySync(context.Background(), saleTarget); err == nil {
		t.Fatal("expected non storefront error to surface")
	}
}

func TestRunPriceSyncOnlyTouchesKnownProducts(t *testing.T) {
	h := newHarness(t)
	h.seed(t, item{Code: "known", Name: "Known", Price: 15000}, nil)
	h.store.pages[0] = listingPage(
		item{Code: "known", Name: "Renamed", Price: 12000, Base: 15000},
		item{Code: "unknown", Name: "Unknown", Price: 5000},
	)

	stats, err := h.service.RunPriceSync(context.Background(), saleTarget)
	if err != nil {
		t.Fatalf("price sync: %v", err)
	}
	if stats.Updated != 1 || stats.Skipped != 1 || stats.New != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.NewDiscounts != 1 || stats.PriceChanged != 1 {
		t.Fatalf("unexpected change counts %+v", stats)
	}
	if _, err := h.repo.GetByID(context.Background(), "unknown"); !errors.Is(err, product.ErrNotFound) {
		t.Fatalf("price pass must not create products, got %v", err)
	}
	rec := h.product(t, "known")
	if rec.Name != "Known" || rec.PriceLocal != 12000 {
		t.Fatalf("unexpected record %q %d", rec.Name, rec.PriceLocal)
	}
	if rec.HasTag("Sale") {
		t.Fatal("price pass must not touch tags")
	}
	if got := len(h.events(t, enums.EventProductNewDiscount)); got != 1 {
		t.Fatalf("expected one new discount event, got %d", got)
	}
}

func TestRunAllCombinesFailures(t *testing.T) {
	h := newHarness(t)
	h.store.pages[0] = listingPage(item{Code: "A", Name: "a", Price: 1000})
	targets := []Target{
		saleTarget,
		{Code: "whatsnew", Name: "New Arrivals", UseSearchAPI: true, Binding: TagBinding{Tag: "New"}},
	}

	all, err := h.service.RunAll(context.Background(), targets, ModeFull)
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected stats per target, got %d", len(all))
	}
	if got := h.product(t, "A"); got.SourceCategory != "whatsnew" || !got.HasTag("Sale") || !got.HasTag("New") {
		t.Fatalf("unexpected record after both walks: %s %v", got.SourceCategory, got.AdditionalCategories)
	}
}
