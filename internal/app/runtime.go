// Package app boots the resources shared by the catalogsync binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/catalogsync-backend/pkg/bigquery"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/instance"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/migrate"
	"github.com/angelmondragon/catalogsync-backend/pkg/pubsub"
	"github.com/angelmondragon/catalogsync-backend/pkg/redis"
)

// Need selects the backing services a binary opens at boot.
type Need uint8

const (
	NeedDB Need = 1 << iota
	NeedRedis
	NeedPubSub
	NeedBigQuery
)

// Runtime holds the config, the logger and whichever clients were requested.
// Clients that were not requested stay nil.
type Runtime struct {
	Service  string
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	PubSub   *pubsub.Client
	BigQuery *bigquery.Client

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Boot loads .env and config, builds the service logger and opens the
// requested clients in a fixed order: db (with dev migrations), redis,
// pubsub, bigquery. On failure everything already opened is closed.
func Boot(ctx context.Context, service string, needs Need) (*Runtime, error) {
	bootLog := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env not found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service

	rt := &Runtime{
		Service: service,
		Config:  cfg,
		Logger: logger.New(logger.Options{
			ServiceName: service,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Console:     strings.EqualFold(cfg.App.LogFormat, "console"),
		}),
	}
	if err := rt.open(ctx, needs); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Attach opens clients a binary only needs under some config. Attached
// clients are closed with the rest.
func (rt *Runtime) Attach(ctx context.Context, needs Need) error {
	return rt.open(ctx, needs)
}

func (rt *Runtime) open(ctx context.Context, needs Need) error {
	cfg, logg := rt.Config, rt.Logger

	if needs&NeedDB != 0 {
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		rt.DB = client
		rt.closers = append(rt.closers, closer{"database", client.Close})
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			return fmt.Errorf("dev migrations: %w", err)
		}
	}
	if needs&NeedRedis != 0 {
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		rt.Redis = client
		rt.closers = append(rt.closers, closer{"redis", client.Close})
	}
	if needs&NeedPubSub != 0 {
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return fmt.Errorf("open pubsub: %w", err)
		}
		rt.PubSub = client
		rt.closers = append(rt.closers, closer{"pubsub", client.Close})
	}
	if needs&NeedBigQuery != 0 {
		client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return fmt.Errorf("open bigquery: %w", err)
		}
		rt.BigQuery = client
		rt.closers = append(rt.closers, closer{"bigquery", client.Close})
	}
	return nil
}

// Close releases clients in reverse open order.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.Logger.Error(context.Background(), "close "+c.name, err)
		}
	}
	rt.closers = nil
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the service
// log fields.
func (rt *Runtime) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Service,
		"instance":    instance.GetID(),
	}
	for k, v := range fields {
		base[k] = v
	}
	return rt.Logger.WithFields(ctx, base), stop
}

// Fatal logs err under what and exits the process when err is non-nil.
func Fatal(ctx context.Context, logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, what, err)
	os.Exit(1)
}

// Stopped reports whether err is the normal end of a signal-driven run.
func Stopped(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
