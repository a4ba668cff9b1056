package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
)

const defaultZeroPriceLimit = 50

// AuditStats summarizes a zero price audit. Skipped counts every candidate
// left unfixed: manual locks plus those flagged or deactivated.
type AuditStats struct {
	Candidates  int `json:"candidates"`
	Fixed       int `json:"fixed"`
	Skipped     int `json:"skipped"`
	ManualLocks int `json:"manual_locks"`
	Flagged     int `json:"flagged"`
	Deactivated int `json:"deactivated"`
}

type ZeroPriceParams struct {
	DB        txRunner
	Repo      *product.Repository
	Fetcher   catalog.Fetcher
	Endpoints catalog.Endpoints
	Extractor *catalog.Extractor
	Outbox    emitter
	Pacer     catalog.Pacer
	Metrics   *metrics.SyncMetrics
	Limit     int
	Logger    *logger.Logger
	Now       func() time.Time
}

// ZeroPriceReconciler re-fetches products whose stored price collapsed to
// zero and repairs, flags or deactivates them.
type ZeroPriceReconciler struct {
	db        txRunner
	repo      *product.Repository
	fetcher   catalog.Fetcher
	endpoints catalog.Endpoints
	extractor *catalog.Extractor
	outbox    emitter
	pacer     catalog.Pacer
	metrics   *metrics.SyncMetrics
	limit     int
	logg      *logger.Logger
	now       func() time.Time
}

func NewZeroPriceReconciler(params ZeroPriceParams) (*ZeroPriceReconciler, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Fetcher == nil {
		return nil, fmt.Errorf("fetcher required")
	}
	if params.Extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultZeroPriceLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ZeroPriceReconciler{
		db:        params.DB,
		repo:      params.Repo,
		fetcher:   params.Fetcher,
		endpoints: params.Endpoints,
		extractor: params.Extractor,
		outbox:    params.Outbox,
		pacer:     params.Pacer,
		metrics:   params.Metrics,
		limit:     limit,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Run audits up to the configured limit of zero price candidates. Per
// product store failures are combined into the returned error.
func (z *ZeroPriceReconciler) Run(ctx context.Context) (AuditStats, error) {
	return z.RunLimit(ctx, z.limit)
}

// RunLimit is Run with an explicit candidate cap; limit <= 0 uses the
// configured one.
func (z *ZeroPriceReconciler) RunLimit(ctx context.Context, limit int) (AuditStats, error) {
	if limit <= 0 {
		limit = z.limit
	}
	ctx = z.logg.WithJob(ctx, "zero-price-audit")
	var stats AuditStats

	candidates, err := z.repo.ListZeroPriceCandidates(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("list zero price candidates: %w", err)
	}
	stats.Candidates = len(candidates)

	var errs error
	for i, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, multierr.Append(errs, err)
		}
		if rec.IsManualPrice {
			stats.ManualLocks++
			stats.Skipped++
			continue
		}
		if i > 0 && z.pacer != nil {
			if err := z.pacer.Wait(ctx); err != nil {
				return stats, multierr.Append(errs, err)
			}
		}
		if err := z.audit(ctx, rec, &stats); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rec.ID, err))
		}
	}

	z.metrics.AddAudit("fixed", stats.Fixed)
	z.metrics.AddAudit("manual_lock", stats.ManualLocks)
	z.metrics.AddAudit("flagged", stats.Flagged)
	z.metrics.AddAudit("deactivated", stats.Deactivated)
	z.logg.Info(z.logg.WithFields(ctx, map[string]any{
		"candidates":  stats.Candidates,
		"fixed":       stats.Fixed,
		"skipped":     stats.Skipped,
		"flagged":     stats.Flagged,
		"deactivated": stats.Deactivated,
	}), "zero price audit completed")
	return stats, errs
}

func (z *ZeroPriceReconciler) audit(ctx context.Context, stored catalog.ProductRecord, stats *AuditStats) error {
	ctx = z.logg.WithProductID(ctx, stored.ID)
	path, params := z.endpoints.DetailRequest(stored.ID)
	payload, err := z.fetcher.Get(ctx, path, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var fetchErr *catalog.FetchError
		if errors.As(err, &fetchErr) && fetchErr.NotFound() {
			stats.Skipped++
			stats.Deactivated++
			return z.deactivate(ctx, stored)
		}
		z.logg.Warn(ctx, "zero price refetch failed: "+err.Error())
		stats.Skipped++
		stats.Flagged++
		return z.flag(ctx, stored.ID)
	}

	cat := catalog.Category{Code: stored.SourceCategory, Name: stored.Category}
	fresh, err := z.extractor.Extract(payload.Root(), cat)
	if err != nil || fresh.PriceLocal <= 0 {
		stats.Skipped++
		stats.Flagged++
		return z.flag(ctx, stored.ID)
	}
	fresh.ID = stored.ID

	if err := z.fix(ctx, fresh, stored); err != nil {
		return err
	}
	stats.Fixed++
	return nil
}

func (z *ZeroPriceReconciler) fix(ctx context.Context, fresh, stored catalog.ProductRecord) error {
	now := z.now().UTC()
	patch := product.PricePatch(fresh).
		Set(product.ColRawPrice, fresh.RawPrice).
		Set(product.ColStockStatus, fresh.StockStatus).
		Set(product.ColStatus, enums.ProductStatusActive).
		Set(product.ColInactiveReason, nil).
		Set(product.ColPendingReviewReason, nil).
		Set(product.ColNeedsPriceReview, false).
		Set(product.ColLastFixedAt, now).
		Set(product.ColPriceUpdatedAt, now).
		Set(product.ColUpdatedAt, now)
	return z.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := z.repo.WithTx(tx).UpsertMerge(ctx, stored.ID, patch); err != nil {
			return err
		}
		return z.outbox.Emit(ctx, tx, priceEvent(enums.EventProductPriceChanged, fresh, &stored, false, now))
	})
}

func (z *ZeroPriceReconciler) flag(ctx context.Context, id string) error {
	patch := product.Patch{
		product.ColNeedsPriceReview: true,
		product.ColUpdatedAt:        z.now().UTC(),
	}
	return z.repo.UpsertMerge(ctx, id, patch)
}

func (z *ZeroPriceReconciler) deactivate(ctx context.Context, stored catalog.ProductRecord) error {
	now := z.now().UTC()
	z.logg.Warn(ctx, "product not found on storefront, deactivating")
	return z.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := z.repo.WithTx(tx).MarkInactive(ctx, stored.ID, enums.InactiveReasonNotFoundOnSource, now); err != nil {
			return err
		}
		event := statusEvent(enums.EventProductInactive, stored.ID, stored.SourceCategory, enums.ProductStatusInactive, enums.InactiveReasonNotFoundOnSource, now)
		return z.outbox.Emit(ctx, tx, event)
	})
}
