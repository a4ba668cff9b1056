package catalogsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const defaultTagBatchSize = 400

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TagStats counts tag rows written by one convergence pass.
type TagStats struct {
	Added         int64
	Removed       int64
	FailedBatches int
}

type TagManagerParams struct {
	Repo      *product.Repository
	TxRunner  txRunner
	BatchSize int
	Logger    *logger.Logger
	Now       func() time.Time
}

// TagManager keeps a category's display tags in step with its listing.
type TagManager struct {
	repo      *product.Repository
	tx        txRunner
	batchSize int
	logg      *logger.Logger
	now       func() time.Time
}

func NewTagManager(params TagManagerParams) (*TagManager, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 || batch > product.MaxBatch {
		batch = defaultTagBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &TagManager{
		repo:      params.Repo,
		tx:        params.TxRunner,
		batchSize: batch,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Converge grants the binding's tags to every observed id and revokes them
// from every other holder. Failed batches are counted and reported through
// the returned error, while the remaining batches still run.
func (m *TagManager) Converge(ctx context.Context, binding TagBinding, observed []string) (TagStats, error) {
	stats, errs := m.grant(ctx, binding, observed)

	seen := make(map[string]struct{}, len(observed))
	for _, id := range observed {
		seen[id] = struct{}{}
	}

	for _, tag := range binding.Tags() {
		held, err := m.repo.ListIDsByTag(ctx, tag)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list %q holders: %w", tag, err))
			stats.FailedBatches++
			continue
		}
		var stale []string
		for _, id := range held {
			if _, ok := seen[id]; !ok {
				stale = append(stale, id)
			}
		}
		sort.Strings(stale)
		for _, batch := range chunk(stale, m.batchSize) {
			var removed int64
			err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := m.repo.WithTx(tx).RemoveTags(ctx, batch, []string{tag}, m.now().UTC())
				removed = n
				return err
			})
			if err != nil {
				stats.FailedBatches++
				errs = multierr.Append(errs, fmt.Errorf("remove %q: %w", tag, err))
				m.logg.Error(m.logg.WithField(ctx, "tag", tag), "tag removal batch failed", err)
				continue
			}
			stats.Removed += removed
		}
	}
	return stats, errs
}

// Grant only adds tags. Used when the walk ended early and absence cannot
// be trusted.
func (m *TagManager) Grant(ctx context.Context, binding TagBinding, observed []string) (TagStats, error) {
	return m.grant(ctx, binding, observed)
}

func (m *TagManager) grant(ctx context.Context, binding TagBinding, observed []string) (TagStats, error) {
	var (
		stats TagStats
		errs  error
	)
	for _, tag := range binding.Tags() {
		for _, batch := range chunk(observed, m.batchSize) {
			var added int64
			err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := m.repo.WithTx(tx).AddTag(ctx, batch, tag, m.now().UTC())
				added = n
				return err
			})
			if err != nil {
				stats.FailedBatches++
				errs = multierr.Append(errs, fmt.Errorf("add %q: %w", tag, err))
				m.logg.Error(m.logg.WithField(ctx, "tag", tag), "tag grant batch failed", err)
				continue
			}
			stats.Added += added
		}
	}
	return stats, errs
}

func chunk(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
