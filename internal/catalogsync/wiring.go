package catalogsync

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
	"github.com/angelmondragon/catalogsync-backend/pkg/redis"
	"github.com/angelmondragon/catalogsync-backend/pkg/storefront"
)

// Components bundles the sync core as the binaries use it.
type Components struct {
	Targets []Target
	Sync    *Service
	Audit   *ZeroPriceReconciler
	Status  *StatusBoard
}

type ComponentsParams struct {
	Config     *config.Config
	DB         *db.Client
	Redis      *redis.Client
	Logger     *logger.Logger
	Registerer prometheus.Registerer
}

// NewPacer spaces storefront requests by delay. A zero delay disables pacing.
func NewPacer(delay time.Duration) catalog.Pacer {
	if delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// NewComponents wires the storefront client, walker, reconciler and audit.
func NewComponents(params ComponentsParams) (*Components, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	targets, err := LoadTargets(cfg.Sync.TargetsFile)
	if err != nil {
		return nil, err
	}

	client, err := storefront.NewClient(cfg.Storefront, storefront.WithLogger(params.Logger))
	if err != nil {
		return nil, fmt.Errorf("storefront client: %w", err)
	}
	endpoints := catalog.Endpoints{Site: cfg.Storefront.Site, PageSize: cfg.Storefront.PageSize}
	pacer := NewPacer(cfg.Storefront.PageDelay)

	walker, err := catalog.NewWalker(catalog.WalkerParams{
		Fetcher:   client,
		Endpoints: endpoints,
		Pacer:     pacer,
		MaxPages:  cfg.Storefront.MaxPages,
		Logger:    params.Logger,
	})
	if err != nil {
		return nil, err
	}

	conn := params.DB.DB()
	repo := product.NewRepository(conn)
	emitter := outbox.NewEmitter(outbox.NewStore(conn), params.Logger)
	extractor := catalog.NewExtractor(cfg.Storefront.BaseURL)
	syncMetrics := metrics.NewSyncMetrics(params.Registerer)

	var status *StatusBoard
	if params.Redis != nil {
		status = NewStatusBoard(params.Redis, cfg.Sync.StatusTTL)
	}

	tags, err := NewTagManager(TagManagerParams{
		Repo:      repo,
		TxRunner:  params.DB,
		BatchSize: cfg.Sync.TagBatchSize,
		Logger:    params.Logger,
	})
	if err != nil {
		return nil, err
	}

	sync, err := NewService(ServiceParams{
		DB:               params.DB,
		Repo:             repo,
		Walker:           walker,
		Extractor:        extractor,
		Tags:             tags,
		Outbox:           emitter,
		Status:           status,
		Metrics:          syncMetrics,
		PendingReviewCap: cfg.Sync.PendingReviewCap,
		Logger:           params.Logger,
	})
	if err != nil {
		return nil, err
	}

	audit, err := NewZeroPriceReconciler(ZeroPriceParams{
		DB:        params.DB,
		Repo:      repo,
		Fetcher:   client,
		Endpoints: endpoints,
		Extractor: extractor,
		Outbox:    emitter,
		Pacer:     pacer,
		Metrics:   syncMetrics,
		Limit:     cfg.Sync.ZeroPriceLimit,
		Logger:    params.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Components{Targets: targets, Sync: sync, Audit: audit, Status: status}, nil
}
