package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/catalogsync-backend/internal/app"
	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	"github.com/angelmondragon/catalogsync-backend/internal/cron"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
)

const serviceName = "cron-worker"

func main() {
	bootCtx := context.Background()
	rt, err := app.Boot(bootCtx, serviceName, app.NeedDB|app.NeedRedis)
	app.Fatal(bootCtx, logger.New(logger.Options{ServiceName: serviceName}), "boot", err)
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	components, err := catalogsync.NewComponents(catalogsync.ComponentsParams{
		Config:     cfg,
		DB:         rt.DB,
		Redis:      rt.Redis,
		Logger:     logg,
		Registerer: prometheus.DefaultRegisterer,
	})
	app.Fatal(bootCtx, logg, "wire catalog sync", err)

	schedule, err := buildSchedule(cfg, logg, rt.DB, components)
	app.Fatal(bootCtx, logg, "build schedule", err)

	// one worker lock per environment; manual api runs use their own keys
	lock, err := cron.NewRunLock(rt.Redis, rt.Redis.LockKey(serviceName+":"+envOrLocal(cfg.App.Env)), 0)
	app.Fatal(bootCtx, logg, "worker lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lock,
		Ledger:   cron.NewRedisRunLedger(rt.Redis, 7*cfg.Sync.FullSyncEvery),
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Sync.CronInterval,
	})
	app.Fatal(bootCtx, logg, "cron service", err)

	ctx, stop := rt.SignalContext(map[string]any{
		"targets": len(components.Targets),
		"tick":    cfg.Sync.CronInterval.String(),
	})
	defer stop()
	rt.ServeMetrics(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer)
	logg.Info(ctx, "cron worker started")

	if err := service.Run(ctx); !app.Stopped(err) {
		app.Fatal(ctx, logg, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker stopped")
}

// buildSchedule orders one tick: the full walk, the price pass, the zero
// price audit and outbox retention.
func buildSchedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, components *catalogsync.Components) (*cron.Schedule, error) {
	schedule := cron.NewSchedule()

	fullSync, err := cron.NewCatalogSyncJob(cron.CatalogSyncJobParams{
		Logger:  logg,
		Syncer:  components.Sync,
		Targets: components.Targets,
		Mode:    catalogsync.ModeFull,
	})
	if err != nil {
		return nil, err
	}
	schedule.Add(fullSync, cfg.Sync.FullSyncEvery)

	if cfg.Sync.PriceSyncEnabled {
		priceSync, err := cron.NewCatalogSyncJob(cron.CatalogSyncJobParams{
			Logger:  logg,
			Syncer:  components.Sync,
			Targets: components.Targets,
			Mode:    catalogsync.ModePrice,
		})
		if err != nil {
			return nil, err
		}
		schedule.Add(priceSync, cfg.Sync.PriceSyncEvery)
	}

	audit, err := cron.NewZeroPriceAuditJob(cron.ZeroPriceAuditJobParams{
		Logger:  logg,
		Auditor: components.Audit,
	})
	if err != nil {
		return nil, err
	}
	schedule.Add(audit, cfg.Sync.AuditEvery)

	purge, err := cron.NewOutboxPurgeJob(cron.OutboxPurgeJobParams{
		Logger:         logg,
		DB:             dbClient,
		Store:          outbox.NewStore(dbClient.DB()),
		Keep:           time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		ParkedAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	schedule.Add(purge, cfg.Sync.RetentionEvery)

	return schedule, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
