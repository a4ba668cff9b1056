package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
)

const defaultPendingReviewCap = 400

// SyncStats summarizes one category pass.
type SyncStats struct {
	Category       string `json:"category"`
	Mode           Mode   `json:"mode"`
	New            int    `json:"new"`
	Updated        int    `json:"updated"`
	Skipped        int    `json:"skipped"`
	PendingReview  int    `json:"pending_review"`
	Failed         int    `json:"failed"`
	NewDiscounts   int    `json:"new_discounts"`
	DiscountsEnded int    `json:"discounts_ended"`
	PriceChanged   int    `json:"price_changed"`
	PriceReverted  int    `json:"price_reverted"`
	Pages          int    `json:"pages"`
	Aborted        bool   `json:"aborted"`
	Capped         bool   `json:"capped"`
	AbortErr       string `json:"abort_error,omitempty"`
	TagsAdded      int64  `json:"tags_added"`
	TagsRemoved    int64  `json:"tags_removed"`
	TagFailures    int    `json:"tag_failures"`
}

func (s *SyncStats) count(d Decision) {
	switch d.Outcome {
	case OutcomeNew:
		s.New++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
	}
	for _, c := range d.Changes {
		switch c {
		case ChangeNewDiscount:
			s.NewDiscounts++
		case ChangeDiscountEnded:
			s.DiscountsEnded++
		case ChangePriceChanged:
			s.PriceChanged++
		case ChangePriceReverted:
			s.PriceReverted++
		}
	}
}

type ServiceParams struct {
	DB               txRunner
	Repo             *product.Repository
	Walker           *catalog.Walker
	Extractor        *catalog.Extractor
	Tags             *TagManager
	Outbox           emitter
	Status           *StatusBoard
	Metrics          *metrics.SyncMetrics
	PendingReviewCap int
	Logger           *logger.Logger
	Now              func() time.Time
}

// Service runs category syncs: walk, reconcile, tag and sweep.
type Service struct {
	db        txRunner
	repo      *product.Repository
	walker    *catalog.Walker
	extractor *catalog.Extractor
	tags      *TagManager
	outbox    emitter
	status    *StatusBoard
	metrics   *metrics.SyncMetrics
	reviewCap int
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Walker == nil {
		return nil, fmt.Errorf("catalog walker required")
	}
	if params.Extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	if params.Tags == nil {
		return nil, fmt.Errorf("tag manager required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	reviewCap := params.PendingReviewCap
	if reviewCap <= 0 {
		reviewCap = defaultPendingReviewCap
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		walker:    params.Walker,
		extractor: params.Extractor,
		tags:      params.Tags,
		outbox:    params.Outbox,
		status:    params.Status,
		metrics:   params.Metrics,
		reviewCap: reviewCap,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// RunCategorySync walks target, creating and updating products, then
// converges its tag. Catalog targets also flag absent products for review. A walk cut short
// by the storefront is reported through SyncStats.Aborted, not the error.
func (s *Service) RunCategorySync(ctx context.Context, target Target) (SyncStats, error) {
	return s.run(ctx, target, ModeFull)
}

// RunPriceSync refreshes prices of already known products listed by target.
// It never creates products, touches tags or sweeps.
func (s *Service) RunPriceSync(ctx context.Context, target Target) (SyncStats, error) {
	return s.run(ctx, target, ModePrice)
}

// RunAll syncs each target in order. Per category failures are combined.
func (s *Service) RunAll(ctx context.Context, targets []Target, mode Mode) ([]SyncStats, error) {
	var (
		all  []SyncStats
		errs error
	)
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return all, multierr.Append(errs, err)
		}
		if mode == ModeFull && target.PriceOnly {
			continue
		}
		stats, err := s.run(ctx, target, mode)
		all = append(all, stats)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", target.Code, err))
		}
	}
	return all, errs
}

func (s *Service) run(ctx context.Context, target Target, mode Mode) (SyncStats, error) {
	ctx = s.logg.WithFields(s.logg.WithCategory(ctx, target.Code), map[string]any{"mode": string(mode)})
	cat := target.Category()
	stats := SyncStats{Category: target.Code, Mode: mode}
	status := SyncStatus{Category: target.Code, Mode: mode, State: StateRunning, StartedAt: s.now().UTC()}
	s.putStatus(ctx, status)

	seen := make(map[string]struct{})
	var observed []string

	result, err := s.walker.Walk(ctx, cat, func(page int, items []gjson.Result) error {
		records := make([]catalog.ProductRecord, 0, len(items))
		for _, item := range items {
			rec, err := s.extractor.Extract(item, cat)
			if err != nil {
				var extErr *catalog.ExtractionError
				if !errors.As(err, &extErr) {
					return err
				}
				stats.Skipped++
				s.logg.Warn(s.logg.WithField(ctx, "page", page), "listing item without identifiable data skipped")
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			observed = append(observed, rec.ID)
			records = append(records, rec)
		}

		var pageErr error
		if mode == ModePrice {
			pageErr = s.applyPricePage(ctx, records, &stats)
		} else {
			pageErr = s.applyEach(ctx, target, records, &stats)
		}
		if pageErr != nil {
			return pageErr
		}

		status.Page = page + 1
		status.Items += len(items)
		s.putStatus(ctx, status)
		return nil
	})
	stats.Pages = result.Pages
	stats.Aborted = result.Aborted
	stats.Capped = result.Capped
	if result.Err != nil {
		stats.AbortErr = result.Err.Error()
	}
	if err != nil {
		s.finish(ctx, &status, StateFailed, &stats, err)
		return stats, err
	}
	s.recordWalk(target.Code, result)

	if mode == ModeFull {
		s.converge(ctx, target, result, observed, &stats)
		if target.Catalog && result.Complete() {
			if err := s.sweepAbsent(ctx, target.Code, seen, &stats); err != nil {
				s.finish(ctx, &status, StateFailed, &stats, err)
				return stats, err
			}
		}
	}

	s.recordStats(stats)
	state := StateCompleted
	if !result.Complete() {
		state = StateAborted
	}
	s.finish(ctx, &status, state, &stats, nil)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"new":            stats.New,
		"updated":        stats.Updated,
		"skipped":        stats.Skipped,
		"pending_review": stats.PendingReview,
		"failed":         stats.Failed,
		"pages":          stats.Pages,
		"aborted":        stats.Aborted,
		"capped":         stats.Capped,
	}), "category sync completed")
	return stats, nil
}

// applyEach reconciles one record per transaction so a bad row only costs
// itself.
func (s *Service) applyEach(ctx context.Context, target Target, records []catalog.ProductRecord, stats *SyncStats) error {
	for _, rec := range records {
		var decision Decision
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			d, err := s.applyOne(ctx, tx, target, rec)
			decision = d
			return err
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			stats.Failed++
			s.logg.Error(s.logg.WithProductID(ctx, rec.ID), "product reconcile failed", err)
			continue
		}
		stats.count(decision)
	}
	return nil
}

// applyPricePage commits a whole page in one transaction.
func (s *Service) applyPricePage(ctx context.Context, records []catalog.ProductRecord, stats *SyncStats) error {
	if len(records) == 0 {
		return nil
	}
	var decisions []Decision
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		decisions = decisions[:0]
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		upserts := make([]product.Upsert, 0, len(records))
		type pending struct {
			rec       catalog.ProductRecord
			persisted *catalog.ProductRecord
			decision  Decision
		}
		var queued []pending
		for _, rec := range records {
			persisted, err := s.load(ctx, repo, rec.ID)
			if err != nil {
				return err
			}
			d := Reconcile(rec, persisted, ModePrice, now)
			decisions = append(decisions, d)
			if d.Outcome == OutcomeSkipped {
				continue
			}
			upserts = append(upserts, product.Upsert{ID: rec.ID, Patch: d.Patch})
			queued = append(queued, pending{rec: rec, persisted: persisted, decision: d})
		}
		for start := 0; start < len(upserts); start += product.MaxBatch {
			end := start + product.MaxBatch
			if end > len(upserts) {
				end = len(upserts)
			}
			if err := repo.BatchUpsertMerge(ctx, upserts[start:end]); err != nil {
				return err
			}
		}
		for _, q := range queued {
			if err := emitDecision(ctx, tx, s.outbox, q.rec, q.persisted, q.decision, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		stats.Failed += len(records)
		s.logg.Error(ctx, "price page apply failed", err)
		return nil
	}
	for _, d := range decisions {
		stats.count(d)
	}
	return nil
}

// placementColumns place a product in the catalog tree. Only catalog
// targets move a known product; promotion listings just tag it.
var placementColumns = []string{product.ColCategory, product.ColSubCategory, product.ColSourceCategory}

func (s *Service) applyOne(ctx context.Context, tx *gorm.DB, target Target, rec catalog.ProductRecord) (Decision, error) {
	repo := s.repo.WithTx(tx)
	persisted, err := s.load(ctx, repo, rec.ID)
	if err != nil {
		return Decision{}, err
	}
	now := s.now().UTC()
	decision := Reconcile(rec, persisted, ModeFull, now)
	if decision.Outcome == OutcomeSkipped {
		return decision, nil
	}
	if persisted != nil && !target.Catalog {
		decision.Patch = decision.Patch.Without(placementColumns...)
	}
	if err := repo.UpsertMerge(ctx, rec.ID, decision.Patch); err != nil {
		return Decision{}, err
	}
	if err := emitDecision(ctx, tx, s.outbox, rec, persisted, decision, now); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func (s *Service) load(ctx context.Context, repo *product.Repository, id string) (*catalog.ProductRecord, error) {
	persisted, err := repo.GetByID(ctx, id)
	if errors.Is(err, product.ErrNotFound) {
		return nil, nil
	}
	return persisted, err
}

func (s *Service) converge(ctx context.Context, target Target, result catalog.WalkResult, observed []string, stats *SyncStats) {
	if target.Binding.Tag == "" {
		return
	}
	var (
		tagStats TagStats
		err      error
	)
	if result.Complete() {
		tagStats, err = s.tags.Converge(ctx, target.Binding, observed)
	} else {
		tagStats, err = s.tags.Grant(ctx, target.Binding, observed)
	}
	stats.TagsAdded = tagStats.Added
	stats.TagsRemoved = tagStats.Removed
	stats.TagFailures = tagStats.FailedBatches
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "failed_batches", tagStats.FailedBatches), "tag convergence incomplete")
	}
}

// sweepAbsent moves active products of the category that the walk did not
// list to pendingReview, at most reviewCap per run.
func (s *Service) sweepAbsent(ctx context.Context, code string, seen map[string]struct{}, stats *SyncStats) error {
	active, err := s.repo.ListIDsBySourceCategory(ctx, code, enums.ProductStatusActive)
	if err != nil {
		return fmt.Errorf("list active products: %w", err)
	}
	var absent []string
	for _, id := range active {
		if _, ok := seen[id]; !ok {
			absent = append(absent, id)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	if len(absent) > s.reviewCap {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"absent": len(absent), "cap": s.reviewCap}), "absence sweep capped")
		absent = absent[:s.reviewCap]
	}

	now := s.now().UTC()
	var marked int64
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).MarkPendingReview(ctx, absent, enums.PendingReviewReasonAbsent, now)
		if err != nil {
			return err
		}
		marked = n
		for _, id := range absent {
			event := statusEvent(enums.EventProductPendingReview, id, code, enums.ProductStatusPendingReview, enums.PendingReviewReasonAbsent, now)
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark pending review: %w", err)
	}
	stats.PendingReview = int(marked)
	return nil
}

func (s *Service) recordWalk(code string, result catalog.WalkResult) {
	switch {
	case result.Capped:
		s.metrics.IncWalkAbort(code, "page_cap")
	case result.Aborted:
		var parseErr *catalog.ParseError
		if errors.As(result.Err, &parseErr) {
			s.metrics.IncWalkAbort(code, "parse")
		} else {
			s.metrics.IncWalkAbort(code, "fetch")
		}
	}
}

func (s *Service) recordStats(stats SyncStats) {
	s.metrics.AddItems(stats.Category, string(OutcomeNew), stats.New)
	s.metrics.AddItems(stats.Category, string(OutcomeUpdated), stats.Updated)
	s.metrics.AddItems(stats.Category, string(OutcomeSkipped), stats.Skipped)
	s.metrics.AddItems(stats.Category, "failed", stats.Failed)
	s.metrics.AddItems(stats.Category, "pending_review", stats.PendingReview)
	s.metrics.AddChanges(stats.Category, string(ChangeNewDiscount), stats.NewDiscounts)
	s.metrics.AddChanges(stats.Category, string(ChangeDiscountEnded), stats.DiscountsEnded)
	s.metrics.AddChanges(stats.Category, string(ChangePriceChanged), stats.PriceChanged)
	s.metrics.AddChanges(stats.Category, string(ChangePriceReverted), stats.PriceReverted)
}

func (s *Service) putStatus(ctx context.Context, status SyncStatus) {
	if err := s.status.Put(ctx, status); err != nil {
		s.logg.Warn(ctx, "sync status write failed: "+err.Error())
	}
}

func (s *Service) finish(ctx context.Context, status *SyncStatus, state SyncState, stats *SyncStats, err error) {
	finished := s.now().UTC()
	status.State = state
	status.FinishedAt = &finished
	status.Stats = stats
	if err != nil {
		status.Error = err.Error()
	} else if stats.AbortErr != "" {
		status.Error = stats.AbortErr
	}
	s.putStatus(ctx, *status)
}
