package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

type syncRun struct {
	ID       int
	Category string
}

func memoryClient(t *testing.T, name string) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&syncRun{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return FromConn(conn)
}

func countRuns(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	if err := c.DB().Model(&syncRun{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	client := memoryClient(t, "withtx")
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&syncRun{Category: "cos_1.1"}).Error
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&syncRun{Category: "cos_1.2"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}
	if got := countRuns(t, client); got != 1 {
		t.Fatalf("expected 1 committed row, got %d", got)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := memoryClient(t, "withtx_panic")

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&syncRun{Category: "cos_9"})
			panic("walker bug")
		})
	}()

	if got := countRuns(t, client); got != 0 {
		t.Fatalf("panicking tx left %d rows", got)
	}
}

func TestNewOpensSQLite(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf})

	client, err := New(context.Background(), config.DBConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:client_new?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, logg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.Contains(buf.String(), "database connected") {
		t.Fatalf("expected a connect log, got %q", buf.String())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: config.DriverSQLite}, nil); !errors.Is(err, errNoDSN) {
		t.Fatalf("expected missing dsn, got %v", err)
	}
	if _, err := New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "root@/catalog"}, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_product_tags_product_tag"}
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"wrapped pg match", fmt.Errorf("insert: %w", pgErr), "ux_product_tags_product_tag", true},
		{"pg any constraint", pgErr, "", true},
		{"pg other constraint", pgErr, "other_constraint", false},
		{"pg other code", &pgconn.PgError{Code: "23503"}, "", false},
		{"sqlite text", errors.New("UNIQUE constraint failed: product_tags.product_id"), "", true},
		{"sqlite named", errors.New("UNIQUE constraint failed: outbox_events.idx"), "ux_products", false},
		{"unrelated", errors.New("connection reset"), "", false},
		{"nil", nil, "", false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
