package catalogsync

import (
	"slices"
	"time"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

// Mode selects which columns a sync pass may write.
type Mode string

const (
	// ModeFull writes every extracted column and creates unknown products.
	ModeFull Mode = "full"
	// ModePrice touches only price, stock and discount columns of known products.
	ModePrice Mode = "price"
)

type Outcome string

const (
	OutcomeNew     Outcome = "new"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Change flags are observational and independent of each other.
type Change string

const (
	ChangeNewDiscount   Change = "new_discount"
	ChangeDiscountEnded Change = "discount_ended"
	ChangePriceChanged  Change = "price_changed"
	ChangePriceReverted Change = "price_reverted"
)

// Decision is the write derived for one incoming record.
type Decision struct {
	Outcome Outcome
	Patch   product.Patch
	Changes []Change
}

func (d Decision) Has(c Change) bool {
	for _, change := range d.Changes {
		if change == c {
			return true
		}
	}
	return false
}

// heldPriceColumns stay untouched while a price is held, by a manual lock
// or by a zero incoming price.
var heldPriceColumns = append(slices.Clone(product.PriceColumns), product.ColRawPrice)

// priceModeColumns are the non-price columns a price pass refreshes.
var priceModeColumns = []string{
	product.ColRawPrice,
	product.ColStockStatus,
	product.ColDiscountMessage,
}

// Reconcile merges incoming onto persisted (nil when unknown). It never fails:
// manual locks, zero prices and lifecycle states resolve to a narrower patch.
func Reconcile(incoming catalog.ProductRecord, persisted *catalog.ProductRecord, mode Mode, now time.Time) Decision {
	if persisted == nil {
		if mode == ModePrice {
			return Decision{Outcome: OutcomeSkipped}
		}
		return reconcileNew(incoming, now)
	}

	var patch product.Patch
	if mode == ModePrice {
		patch = product.PricePatch(incoming)
		for k, v := range product.MergePatch(incoming).Only(priceModeColumns...) {
			patch[k] = v
		}
	} else {
		patch = product.MergePatch(incoming)
	}
	patch.Set(product.ColLastSeenAt, now).Set(product.ColUpdatedAt, now)

	if persisted.Status == enums.ProductStatusPendingReview {
		patch.Set(product.ColStatus, enums.ProductStatusActive).
			Set(product.ColPendingReviewReason, nil)
	}

	decision := Decision{Outcome: OutcomeUpdated}

	// A zero incoming price never overwrites a known positive one.
	if incoming.PriceLocal <= 0 && persisted.PriceLocal > 0 {
		decision.Patch = patch.Without(heldPriceColumns...)
		return decision
	}

	hadDiscount := persisted.HasDiscount()
	hasDiscount := incoming.HasDiscount()

	if persisted.IsManualPrice {
		if hasDiscount {
			decision.Patch = patch.Without(heldPriceColumns...)
			return decision
		}
		patch.Set(product.ColIsManualPrice, false).
			Set(product.ColDiscountEndDate, nil)
		decision.Changes = append(decision.Changes, ChangePriceReverted)
	}

	if hasDiscount && !hadDiscount {
		decision.Changes = append(decision.Changes, ChangeNewDiscount)
		patch.Set(product.ColDiscountStartedAt, now).Set(product.ColDiscountEndedAt, nil)
	}
	if !hasDiscount && hadDiscount {
		decision.Changes = append(decision.Changes, ChangeDiscountEnded)
		patch.Set(product.ColDiscountEndedAt, now)
	}
	if incoming.PriceLocal != persisted.PriceLocal {
		decision.Changes = append(decision.Changes, ChangePriceChanged)
		patch.Set(product.ColPriceUpdatedAt, now)
	}
	if incoming.PriceLocal > 0 {
		patch.Set(product.ColNeedsPriceReview, false)
	}

	decision.Patch = patch
	return decision
}

func reconcileNew(incoming catalog.ProductRecord, now time.Time) Decision {
	patch := product.ContentPatch(incoming).
		Set(product.ColStatus, enums.ProductStatusActive).
		Set(product.ColIsManualPrice, false).
		Set(product.ColNeedsTranslation, true).
		Set(product.ColNeedsPriceReview, false).
		Set(product.ColPriceUpdatedAt, now).
		Set(product.ColCreatedAt, now).
		Set(product.ColUpdatedAt, now).
		Set(product.ColLastSeenAt, now)
	if incoming.HasDiscount() {
		patch.Set(product.ColDiscountStartedAt, now)
	}
	return Decision{Outcome: OutcomeNew, Patch: patch}
}
