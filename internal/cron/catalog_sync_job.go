package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const (
	catalogSyncJobName = "catalog-sync"
	priceSyncJobName   = "price-sync"
)

type categorySyncer interface {
	RunAll(ctx context.Context, targets []catalogsync.Target, mode catalogsync.Mode) ([]catalogsync.SyncStats, error)
}

type CatalogSyncJobParams struct {
	Logger  *logger.Logger
	Syncer  categorySyncer
	Targets []catalogsync.Target
	Mode    catalogsync.Mode
}

// NewCatalogSyncJob walks every target in Mode. Full mode registers as
// catalog-sync and price mode as price-sync.
func NewCatalogSyncJob(params CatalogSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("catalog syncer required")
	}
	if len(params.Targets) == 0 {
		return nil, fmt.Errorf("at least one sync target required")
	}
	mode := params.Mode
	if mode == "" {
		mode = catalogsync.ModeFull
	}
	name := catalogSyncJobName
	if mode == catalogsync.ModePrice {
		name = priceSyncJobName
	}
	return &catalogSyncJob{
		name:    name,
		logg:    params.Logger,
		syncer:  params.Syncer,
		targets: params.Targets,
		mode:    mode,
	}, nil
}

type catalogSyncJob struct {
	name    string
	logg    *logger.Logger
	syncer  categorySyncer
	targets []catalogsync.Target
	mode    catalogsync.Mode
}

func (j *catalogSyncJob) Name() string { return j.name }

func (j *catalogSyncJob) Run(ctx context.Context) error {
	all, err := j.syncer.RunAll(ctx, j.targets, j.mode)
	var created, updated, pending, aborted int
	for _, stats := range all {
		created += stats.New
		updated += stats.Updated
		pending += stats.PendingReview
		if stats.Aborted || stats.Capped {
			aborted++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"categories":     len(all),
		"new":            created,
		"updated":        updated,
		"pending_review": pending,
		"partial_walks":  aborted,
	})
	j.logg.Info(logCtx, "catalog sync summary")
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}
