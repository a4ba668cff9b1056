package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/catalogsync-backend/api/responses"
	"github.com/angelmondragon/catalogsync-backend/api/validators"
	"github.com/angelmondragon/catalogsync-backend/internal/pricehistory"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

type PriceHistoryReader interface {
	Recent(ctx context.Context, productID string, limit int) ([]pricehistory.Point, error)
}

// AdminProductPriceHistory returns a product's recorded price snapshots,
// newest first. ?limit= accepts 1..500.
func AdminProductPriceHistory(reader PriceHistoryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathParam(r, "id", maxProductIDLength)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pricehistory.DefaultHistoryLimit, 1, pricehistory.MaxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		points, err := reader.Recent(r.Context(), id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, points)
	}
}
