package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/catalogsync-backend/api/routes"
	"github.com/angelmondragon/catalogsync-backend/internal/app"
	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	"github.com/angelmondragon/catalogsync-backend/internal/pricehistory"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/auth"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
)

const (
	serviceName     = "api"
	shutdownTimeout = 30 * time.Second
)

func main() {
	bootCtx := context.Background()
	rt, err := app.Boot(bootCtx, serviceName, app.NeedDB|app.NeedRedis)
	app.Fatal(bootCtx, logger.New(logger.Options{ServiceName: serviceName}), "boot", err)
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	tokens, err := auth.NewSigner(cfg.JWT)
	app.Fatal(bootCtx, logg, "admin api token signer", err)

	components, err := catalogsync.NewComponents(catalogsync.ComponentsParams{
		Config:     cfg,
		DB:         rt.DB,
		Redis:      rt.Redis,
		Logger:     logg,
		Registerer: prometheus.DefaultRegisterer,
	})
	app.Fatal(bootCtx, logg, "wire catalog sync", err)

	products, err := product.NewService(product.NewRepository(rt.DB.DB()), rt.DB)
	app.Fatal(bootCtx, logg, "product service", err)

	deps := routes.Deps{
		DB:          rt.DB,
		Redis:       rt.Redis,
		Tokens:      tokens,
		Gatherer:    prometheus.DefaultGatherer,
		Targets:     components.Targets,
		Sync:        components.Sync,
		Audit:       components.Audit,
		Status:      components.Status,
		Products:    products,
		DeadLetters: outbox.NewStore(rt.DB.DB()),
	}
	if cfg.BigQuery.APIReads {
		app.Fatal(bootCtx, logg, "open bigquery", rt.Attach(bootCtx, app.NeedBigQuery))
		deps.PriceHistory = pricehistory.NewHistory(rt.BigQuery)
	}

	// Cloud Run injects PORT
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := rt.SignalContext(map[string]any{"addr": server.Addr, "targets": len(components.Targets)})
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	logg.Info(ctx, "admin api listening")

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			app.Fatal(ctx, logg, "admin api stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "admin api shutdown", err)
		}
		logg.Info(ctx, "admin api stopped")
	}
}
