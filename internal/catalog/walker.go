package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const DefaultMaxPages = 100

// Pacer spaces page requests. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// PageFunc receives the items of one non-empty page. Returning an error stops
// the walk and surfaces as a hard failure.
type PageFunc func(page int, items []gjson.Result) error

// WalkResult summarizes a walk. Aborted is set when a fetch or parse failure
// cut the walk short; pages handled before it stand. Capped is set when the
// walk stopped at MaxPages. Only a walk with neither flag saw the whole listing.
type WalkResult struct {
	Pages   int
	Items   int
	Aborted bool
	Capped  bool
	Err     error
}

// Complete reports whether the walk reached the end of the listing.
func (r WalkResult) Complete() bool {
	return !r.Aborted && !r.Capped
}

type WalkerParams struct {
	Fetcher   Fetcher
	Endpoints Endpoints
	Pacer     Pacer
	MaxPages  int
	Logger    *logger.Logger
}

// Walker paginates a category listing until an empty page.
type Walker struct {
	fetcher   Fetcher
	endpoints Endpoints
	pacer     Pacer
	maxPages  int
	logg      *logger.Logger
}

func NewWalker(params WalkerParams) (*Walker, error) {
	if params.Fetcher == nil {
		return nil, fmt.Errorf("fetcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Walker{
		fetcher:   params.Fetcher,
		endpoints: params.Endpoints,
		pacer:     params.Pacer,
		maxPages:  maxPages,
		logg:      params.Logger,
	}, nil
}

// Walk requests pages 0, 1, ... of cat and hands every non-empty page to
// yield. Fetch and parse failures end the walk softly through WalkResult;
// the returned error is reserved for cancellation and yield failures.
func (w *Walker) Walk(ctx context.Context, cat Category, yield PageFunc) (WalkResult, error) {
	var result WalkResult
	for page := 0; ; page++ {
		if page >= w.maxPages {
			result.Capped = true
			w.logg.Warn(ctx, "catalog.walk.capped")
			return result, nil
		}
		if page > 0 && w.pacer != nil {
			if err := w.pacer.Wait(ctx); err != nil {
				return result, err
			}
		}

		path, params := w.endpoints.ListingRequest(cat, page)
		payload, err := w.fetcher.Get(ctx, path, params)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			if !isSoftFailure(err) {
				return result, err
			}
			result.Aborted = true
			result.Err = err
			pageCtx := w.logg.WithField(ctx, "page", page)
			w.logg.Error(pageCtx, "catalog.walk.aborted", err)
			return result, nil
		}

		items, err := pageItems(payload)
		if err != nil {
			result.Aborted = true
			result.Err = err
			w.logg.Error(w.logg.WithField(ctx, "page", page), "catalog.walk.aborted", err)
			return result, nil
		}
		if len(items) == 0 {
			return result, nil
		}

		if err := yield(page, items); err != nil {
			return result, err
		}
		result.Pages++
		result.Items += len(items)
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{"page": page, "items": len(items)}), "catalog.page.fetched")
	}
}

// pageItems reads the listing array. A payload carrying neither results nor
// products is not a listing at all.
func pageItems(payload RawPayload) ([]gjson.Result, error) {
	root := payload.Root()
	for _, key := range []string{"results", "products"} {
		list := root.Get(key)
		if !list.Exists() {
			continue
		}
		if !list.IsArray() {
			return nil, &ParseError{Message: key + " is not an array"}
		}
		return list.Array(), nil
	}
	return nil, &ParseError{Message: "payload has neither results nor products"}
}

func isSoftFailure(err error) bool {
	var fetchErr *FetchError
	var parseErr *ParseError
	return errors.As(err, &fetchErr) || errors.As(err, &parseErr)
}
