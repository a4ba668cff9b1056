package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"gorm.io/gorm"
)

// ManualPriceInput pins a price that the sync jobs must respect while the
// storefront keeps advertising a discount.
type ManualPriceInput struct {
	PriceLocal         int64   `json:"price_local" validate:"required,gt=0"`
	OriginalPriceLocal *int64  `json:"original_price_local,omitempty" validate:"omitempty,gtfield=PriceLocal"`
	DiscountEndDate    *string `json:"discount_end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Service exposes the admin operations on synced products.
type Service interface {
	GetProduct(ctx context.Context, id string) (*ProductDTO, error)
	SetManualPrice(ctx context.Context, id string, input ManualPriceInput) (*ProductDTO, error)
	ClearManualPrice(ctx context.Context, id string) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, id string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     *Repository
	dbClient txRunner
	now      func() time.Time
}

// NewService builds the admin product service.
func NewService(repo *Repository, dbClient *db.Client) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, dbClient: dbClient, now: time.Now}, nil
}

func (s *service) GetProduct(ctx context.Context, id string) (*ProductDTO, error) {
	rec, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(rec), nil
}

func (s *service) SetManualPrice(ctx context.Context, id string, input ManualPriceInput) (*ProductDTO, error) {
	if input.PriceLocal <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_local must be positive")
	}
	if input.OriginalPriceLocal != nil && *input.OriginalPriceLocal <= input.PriceLocal {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "original_price_local must exceed price_local")
	}

	rec := catalog.ProductRecord{
		PriceLocal:         input.PriceLocal,
		OriginalPriceLocal: input.OriginalPriceLocal,
		DiscountEndDate:    input.DiscountEndDate,
		DiscountPercent:    catalog.DiscountPercent(input.PriceLocal, input.OriginalPriceLocal),
	}
	now := s.now().UTC()
	patch := PricePatch(rec).
		Set(ColIsManualPrice, true).
		Set(ColNeedsPriceReview, false).
		Set(ColPriceUpdatedAt, now).
		Set(ColUpdatedAt, now)

	return s.update(ctx, id, patch)
}

func (s *service) ClearManualPrice(ctx context.Context, id string) (*ProductDTO, error) {
	now := s.now().UTC()
	return s.update(ctx, id, Patch{ColIsManualPrice: false, ColUpdatedAt: now})
}

func (s *service) DeleteProduct(ctx context.Context, id string) error {
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Delete(ctx, id)
	})
	if errors.Is(err, ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	return nil
}

func (s *service) update(ctx context.Context, id string, patch Patch) (*ProductDTO, error) {
	var updated *catalog.ProductRecord
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.load(ctx, repo, id); err != nil {
			return err
		}
		if err := repo.UpsertMerge(ctx, id, patch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
		}
		rec, err := s.load(ctx, repo, id)
		updated = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return NewProductDTO(updated), nil
}

func (s *service) load(ctx context.Context, repo *Repository, id string) (*catalog.ProductRecord, error) {
	rec, err := repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return rec, nil
}
