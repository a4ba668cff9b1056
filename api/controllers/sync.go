package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/catalogsync-backend/api/responses"
	"github.com/angelmondragon/catalogsync-backend/api/validators"
	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

// CategorySyncer runs a single category pass.
type CategorySyncer interface {
	RunCategorySync(ctx context.Context, target catalogsync.Target) (catalogsync.SyncStats, error)
	RunPriceSync(ctx context.Context, target catalogsync.Target) (catalogsync.SyncStats, error)
}

type ZeroPriceAuditor interface {
	RunLimit(ctx context.Context, limit int) (catalogsync.AuditStats, error)
}

const (
	maxAuditLimit = 500
	maxCodeLength = 64
)

type StatusLister interface {
	List(ctx context.Context, categories []string) ([]catalogsync.SyncStatus, error)
}

// Lock guards a manual run against an overlapping cron or API run.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lock for a named run, e.g. "sync:cos_1.2".
type LockFactory func(name string) (Lock, error)

// AdminListTargets returns the configured sync targets.
func AdminListTargets(targets []catalogsync.Target) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, targets)
	}
}

// AdminTriggerCategorySync runs one category sync inline and returns its
// stats. ?mode=price runs the price-only pass.
func AdminTriggerCategorySync(svc CategorySyncer, targets []catalogsync.Target, locks LockFactory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		code := validators.Clean(chi.URLParam(r, "code"), maxCodeLength)
		target, ok := catalogsync.FindTarget(targets, code)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown category"))
			return
		}

		mode, err := parseMode(r.URL.Query().Get("mode"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if mode == catalogsync.ModeFull && target.PriceOnly {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "category is price only").
				WithDetails(map[string]any{"category": target.Code}))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(logg.WithCategory(ctx, target.Code), map[string]any{"mode": string(mode)})
		}
		release, err := acquire(ctx, locks, "sync:"+target.Code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer release()

		var stats catalogsync.SyncStats
		if mode == catalogsync.ModePrice {
			stats, err = svc.RunPriceSync(ctx, target)
		} else {
			stats, err = svc.RunCategorySync(ctx, target)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "category sync failed").
				WithDetails(map[string]any{"category": target.Code, "stats": stats}))
			return
		}
		if logg != nil {
			logg.Info(ctx, "admin.sync.triggered")
		}
		responses.WriteSuccess(w, stats)
	}
}

// AdminTriggerZeroPriceAudit runs the zero price audit inline, capped by
// ?limit= when given. Partial failures still return the stats with the
// combined error message.
func AdminTriggerZeroPriceAudit(auditor ZeroPriceAuditor, locks LockFactory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auditor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, maxAuditLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		release, err := acquire(r.Context(), locks, "audit:zero-price")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer release()

		stats, err := auditor.RunLimit(r.Context(), limit)
		if err != nil && stats.Candidates == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "zero price audit failed"))
			return
		}

		payload := map[string]any{"stats": stats}
		if err != nil {
			payload["error"] = err.Error()
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "admin.audit.partial_failure")
			}
		}
		responses.WriteSuccess(w, payload)
	}
}

// AdminSyncStatus lists the last recorded run of every target, or of the
// categories named by ?category=a,b.
func AdminSyncStatus(board StatusLister, targets []catalogsync.Target, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if board == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync status store unavailable"))
			return
		}

		codes := validators.QueryList(r, "category", maxCodeLength)
		if len(codes) == 0 {
			for _, t := range targets {
				codes = append(codes, t.Code)
			}
		}

		statuses, err := board.List(r.Context(), codes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read sync status"))
			return
		}
		responses.WriteSuccess(w, statuses)
	}
}

func parseMode(raw string) (catalogsync.Mode, error) {
	switch catalogsync.Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", catalogsync.ModeFull:
		return catalogsync.ModeFull, nil
	case catalogsync.ModePrice:
		return catalogsync.ModePrice, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "mode must be full or price").WithDetails(map[string]any{"field": "mode"})
}

func acquire(ctx context.Context, locks LockFactory, name string) (func(), error) {
	if locks == nil {
		return func() {}, nil
	}
	lock, err := locks(name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build run lock")
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire run lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "run already in progress")
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
