package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/catalogsync-backend/internal/app"
	"github.com/angelmondragon/catalogsync-backend/internal/pricehistory"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/idempotency"
)

const serviceName = "pricehistory-worker"

func main() {
	bootCtx := context.Background()
	rt, err := app.Boot(bootCtx, serviceName, app.NeedRedis|app.NeedPubSub|app.NeedBigQuery)
	app.Fatal(bootCtx, logger.New(logger.Options{ServiceName: serviceName}), "boot", err)
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	subscription := rt.PubSub.PriceHistorySubscription()
	if subscription == nil {
		app.Fatal(bootCtx, logg, "price history subscription", errors.New(cfg.PubSub.PriceHistorySubscription+" not configured"))
	}

	ledger, err := idempotency.NewLedger(rt.Redis, cfg.Eventing.IdempotencyTTL)
	app.Fatal(bootCtx, logg, "idempotency ledger", err)

	writer, err := pricehistory.NewBigQueryWriter(rt.BigQuery, rt.BigQuery.PriceHistoryTable(), pricehistory.RetryPolicy{})
	app.Fatal(bootCtx, logg, "price history writer", err)

	recorder, err := pricehistory.NewRecorder(writer, logg)
	app.Fatal(bootCtx, logg, "price history recorder", err)

	worker, err := pricehistory.NewWorker(subscription, recorder, ledger, logg)
	app.Fatal(bootCtx, logg, "price history worker", err)

	ctx, stop := rt.SignalContext(map[string]any{
		"subscription": cfg.PubSub.PriceHistorySubscription,
		"table":        rt.BigQuery.PriceHistoryTable(),
	})
	defer stop()
	logg.Info(ctx, "price history worker started")

	if err := worker.Run(ctx); !app.Stopped(err) {
		app.Fatal(ctx, logg, "price history worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "price history worker stopped")
}
