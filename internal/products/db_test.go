package product

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.ProductTag{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func mustSeedProduct(t *testing.T, repo *Repository, rec catalog.ProductRecord, extra Patch) {
	t.Helper()
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	patch := ContentPatch(rec).
		Set(ColStatus, "active").
		Set(ColCreatedAt, now).
		Set(ColUpdatedAt, now)
	for k, v := range extra {
		patch[k] = v
	}
	if err := repo.UpsertMerge(context.Background(), rec.ID, patch); err != nil {
		t.Fatalf("seed product %s: %v", rec.ID, err)
	}
}
