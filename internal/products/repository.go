package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"gorm.io/gorm"
)

// MaxBatch is the largest number of rows a single batched write may touch.
const MaxBatch = 400

var ErrNotFound = errors.New("product not found")

// Upsert pairs a product id with the columns to merge into it.
type Upsert struct {
	ID    string
	Patch Patch
}

// Repository persists synced products and their tag memberships.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// GetByID loads the product with its tags.
func (r *Repository) GetByID(ctx context.Context, id string) (*catalog.ProductRecord, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tag ASC") }).
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ToRecord(&row), nil
}

// UpsertMerge writes patch onto the row keyed by id, creating it when absent.
// Columns outside the patch keep their stored values.
func (r *Repository) UpsertMerge(ctx context.Context, id string, patch Patch) error {
	if id == "" {
		return fmt.Errorf("product id required")
	}
	if len(patch) == 0 {
		return nil
	}
	tx := r.db.WithContext(ctx)
	res := tx.Model(&models.Product{}).Where("id = ?", id).Updates(map[string]any(patch))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	row := patch.Without()
	row[ColID] = id
	return tx.Model(&models.Product{}).Create(map[string]any(row)).Error
}

// BatchUpsertMerge merges up to MaxBatch rows. Callers chunk larger sets.
func (r *Repository) BatchUpsertMerge(ctx context.Context, rows []Upsert) error {
	if len(rows) > MaxBatch {
		return fmt.Errorf("batch of %d exceeds max %d", len(rows), MaxBatch)
	}
	for _, row := range rows {
		if err := r.UpsertMerge(ctx, row.ID, row.Patch); err != nil {
			return fmt.Errorf("upsert %s: %w", row.ID, err)
		}
	}
	return nil
}

// ListIDsByTag returns the ids currently holding tag.
func (r *Repository) ListIDsByTag(ctx context.Context, tag string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.ProductTag{}).
		Where("tag = ?", tag).
		Order("product_id ASC").
		Pluck("product_id", &ids).Error
	return ids, err
}

// ListIDsBySourceCategory returns the ids last extracted from a category in
// the given status.
func (r *Repository) ListIDsBySourceCategory(ctx context.Context, code string, status enums.ProductStatus) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("source_category = ? AND status = ?", code, status).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListZeroPriceCandidates returns up to limit products whose stored price and
// raw price are both non-positive or unparseable.
func (r *Repository) ListZeroPriceCandidates(ctx context.Context, limit int) ([]catalog.ProductRecord, error) {
	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Where("price_local <= 0").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]catalog.ProductRecord, 0, len(rows))
	for i := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		if raw, ok := catalog.ParseRawPrice(rows[i].RawPrice); ok && raw > 0 {
			continue
		}
		out = append(out, *ToRecord(&rows[i]))
	}
	return out, nil
}

// MarkPendingReview moves active rows among ids to pendingReview.
func (r *Repository) MarkPendingReview(ctx context.Context, ids []string, reason string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id IN ? AND status = ?", ids, enums.ProductStatusActive).
		Updates(map[string]any{
			ColStatus:              enums.ProductStatusPendingReview,
			ColPendingReviewReason: reason,
			ColUpdatedAt:           now,
		})
	return res.RowsAffected, res.Error
}

// MarkInactive deactivates one product.
func (r *Repository) MarkInactive(ctx context.Context, id, reason string, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			ColStatus:         enums.ProductStatusInactive,
			ColInactiveReason: reason,
			ColUpdatedAt:      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const addTagQuery = `
INSERT INTO product_tags (product_id, tag, created_at)
SELECT id, ?, ? FROM products WHERE id IN ?
ON CONFLICT (product_id, tag) DO NOTHING
`

// AddTag grants tag to every existing product among ids. Already tagged
// products and unknown ids are ignored.
func (r *Repository) AddTag(ctx context.Context, ids []string, tag string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(addTagQuery, tag, now, ids)
	return res.RowsAffected, res.Error
}

// RemoveTags drops tags from ids and bumps updated_at on the touched rows.
func (r *Repository) RemoveTags(ctx context.Context, ids []string, tags []string, now time.Time) (int64, error) {
	if len(ids) == 0 || len(tags) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx)
	res := tx.Where("product_id IN ? AND tag IN ?", ids, tags).Delete(&models.ProductTag{})
	if res.Error != nil {
		return 0, res.Error
	}
	if err := tx.Model(&models.Product{}).
		Where("id IN ?", ids).
		Update(ColUpdatedAt, now).Error; err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Delete hard-deletes a product and its tags.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", id).Delete(&models.ProductTag{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
