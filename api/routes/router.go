package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/catalogsync-backend/api/controllers"
	"github.com/angelmondragon/catalogsync-backend/api/middleware"
	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	"github.com/angelmondragon/catalogsync-backend/internal/cron"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/redis"
)

// manualRunLockTTL bounds a stuck manual run; a full category walk at the
// default page delay finishes well within it.
const manualRunLockTTL = 2 * time.Hour

// Deps are the services behind the admin API. Nil Redis disables locks,
// rate limits and idempotency.
type Deps struct {
	DB          db.Pinger
	Redis       *redis.Client
	Tokens      middleware.TokenVerifier
	Gatherer    prometheus.Gatherer
	Targets     []catalogsync.Target
	Sync        controllers.CategorySyncer
	Audit       controllers.ZeroPriceAuditor
	Status      controllers.StatusLister
	Products    product.Service
	DeadLetters controllers.DeadLetterReader
	// PriceHistory is nil when the API runs without BigQuery reads.
	PriceHistory controllers.PriceHistoryReader
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		chimw.RealIP,
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	var locks controllers.LockFactory
	triggerPolicy := middleware.NewRateLimitPolicy("sync-trigger", cfg.Sync.TriggerWindow, cfg.Sync.TriggerLimit)
	rateLimit := func(next http.Handler) http.Handler { return next }
	triggerReplay := func(next http.Handler) http.Handler { return next }
	editReplay := triggerReplay
	if redisClient := deps.Redis; redisClient != nil {
		readiness["redis"] = redisClient
		locks = func(name string) (controllers.Lock, error) {
			lock, err := cron.NewRunLock(redisClient, redisClient.LockKey(name), manualRunLockTTL)
			if err != nil {
				return nil, err
			}
			return lock, nil
		}
		rateLimit = middleware.RateLimit(triggerPolicy, redisClient, logg)
		triggerReplay = middleware.Idempotency(redisClient, middleware.TriggerReplayTTL, logg)
		editReplay = middleware.Idempotency(redisClient, middleware.EditReplayTTL, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Tokens, logg))

		r.Get("/targets", controllers.AdminListTargets(deps.Targets))
		r.Get("/sync/status", controllers.AdminSyncStatus(deps.Status, deps.Targets, logg))
		r.Get("/products/{id}", controllers.AdminGetProduct(deps.Products, logg))
		if deps.PriceHistory != nil {
			r.Get("/products/{id}/price-history", controllers.AdminProductPriceHistory(deps.PriceHistory, logg))
		}
		if deps.DeadLetters != nil {
			r.Get("/outbox/dead-letters", controllers.AdminListDeadLetters(deps.DeadLetters, logg))
			r.Get("/outbox/dead-letters/{eventId}", controllers.AdminGetDeadLetter(deps.DeadLetters, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireWrite(logg))

			r.With(rateLimit, triggerReplay).Post("/sync/categories/{code}", controllers.AdminTriggerCategorySync(deps.Sync, deps.Targets, locks, logg))
			r.With(rateLimit, triggerReplay).Post("/audits/zero-price", controllers.AdminTriggerZeroPriceAudit(deps.Audit, locks, logg))
			r.With(editReplay).Put("/products/{id}/manual-price", controllers.AdminSetManualPrice(deps.Products, logg))
			r.Delete("/products/{id}/manual-price", controllers.AdminClearManualPrice(deps.Products, logg))
		})

		r.With(middleware.RequireRole(logg, enums.AdminRoleAdmin)).Delete("/products/{id}", controllers.AdminDeleteProduct(deps.Products, logg))
	})

	return r
}
