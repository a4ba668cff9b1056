package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/catalogsync-backend/internal/app"
	"github.com/angelmondragon/catalogsync-backend/internal/relay"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

func main() {
	bootCtx := context.Background()
	rt, err := app.Boot(bootCtx, serviceName, app.NeedDB|app.NeedPubSub)
	app.Fatal(bootCtx, logger.New(logger.Options{ServiceName: serviceName}), "boot", err)
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	router, err := registry.NewEventRegistry(cfg.PubSub)
	app.Fatal(bootCtx, logg, "catalog event registry", err)

	r, err := relay.New(relay.Params{
		Logger:       logg,
		DB:           rt.DB,
		Store:        outbox.NewStore(rt.DB.DB()),
		Router:       router,
		Topics:       relay.PubSubTopics(rt.PubSub),
		Metrics:      metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	})
	app.Fatal(bootCtx, logg, "outbox relay", err)
	defer r.Stop()

	ctx, stop := rt.SignalContext(map[string]any{"topics": router.Topics()})
	defer stop()
	rt.ServeMetrics(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer)
	logg.Info(ctx, "outbox publisher started")

	if err := r.Run(ctx); !app.Stopped(err) {
		app.Fatal(ctx, logg, "outbox publisher stopped unexpectedly", err)
	}
	logg.Info(ctx, "outbox publisher stopped")
}
