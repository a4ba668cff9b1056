package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

// devModels are created by AutoMigrate on sqlite, which cannot run the
// postgres SQL files.
var devModels = []any{
	&models.Product{},
	&models.ProductTag{},
	&models.OutboxEvent{},
	&models.OutboxDLQ{},
}

// MaybeRunDev brings a dev database up to date when AutoMigrate is set.
// Other environments migrate through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "driver", cfg.DB.Driver)

	if cfg.DB.Driver == config.DriverSQLite {
		if err := client.DB().WithContext(ctx).AutoMigrate(devModels...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		logg.Info(ctx, "dev schema migrated")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := NewMigrator(sqlDB, nil)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "dev schema migrated")
	return nil
}
