package controllers

import (
	"net/http"

	"github.com/angelmondragon/catalogsync-backend/api/middleware"
	"github.com/angelmondragon/catalogsync-backend/api/responses"
	"github.com/angelmondragon/catalogsync-backend/api/validators"
	productsvc "github.com/angelmondragon/catalogsync-backend/internal/products"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const maxProductIDLength = 64

// productAction is the body of a product route once the id is known. A
// nil result with a nil error means 204.
type productAction func(r *http.Request, id string) (*productsvc.ProductDTO, error)

func productRoute(svc productsvc.Service, logg *logger.Logger, audit string, act productAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "product service unavailable"))
			return
		}
		id, err := validators.PathParam(r, "id", maxProductIDLength)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		product, err := act(r, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if audit != "" && logg != nil {
			logg.Info(logg.WithField(logg.WithProductID(ctx, id), "actor", middleware.SubjectFromContext(ctx)), audit)
		}
		if product == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminGetProduct returns one synced product.
func AdminGetProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return productRoute(svc, logg, "", func(r *http.Request, id string) (*productsvc.ProductDTO, error) {
		return svc.GetProduct(r.Context(), id)
	})
}

// AdminSetManualPrice pins a price the sync jobs will not overwrite.
func AdminSetManualPrice(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return productRoute(svc, logg, "product.manual_price.set", func(r *http.Request, id string) (*productsvc.ProductDTO, error) {
		var input productsvc.ManualPriceInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.SetManualPrice(r.Context(), id, input)
	})
}

// AdminClearManualPrice hands the price back to the sync jobs.
func AdminClearManualPrice(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return productRoute(svc, logg, "product.manual_price.cleared", func(r *http.Request, id string) (*productsvc.ProductDTO, error) {
		return svc.ClearManualPrice(r.Context(), id)
	})
}

func AdminDeleteProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return productRoute(svc, logg, "product.deleted", func(r *http.Request, id string) (*productsvc.ProductDTO, error) {
		return nil, svc.DeleteProduct(r.Context(), id)
	})
}
