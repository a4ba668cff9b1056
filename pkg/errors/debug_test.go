package errors

import (
	"fmt"
	"testing"

	legacypgconn "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPostgresFields(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		code       string
		constraint string
	}{
		{
			name:       "pgx v5",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "products_pkey", TableName: "products", Message: "duplicate key"},
			code:       "23505",
			constraint: "products_pkey",
		},
		{
			name:       "pgconn v1",
			err:        &legacypgconn.PgError{Code: "23514", ConstraintName: "products_price_check", TableName: "products", Message: "check violation"},
			code:       "23514",
			constraint: "products_price_check",
		},
		{
			name:       "lib/pq",
			err:        &pq.Error{Code: "23503", Constraint: "product_tags_product_id_fkey", Table: "product_tags", Message: "fk violation"},
			code:       "23503",
			constraint: "product_tags_product_id_fkey",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("upsert product: %w", tc.err)
			pg := Dump(wrapped).Postgres
			if pg == nil {
				t.Fatal("expected postgres detail")
			}
			if pg.Code != tc.code || pg.Constraint != tc.constraint {
				t.Fatalf("got code=%q constraint=%q, want %q %q", pg.Code, pg.Constraint, tc.code, tc.constraint)
			}
			if pg.Table == "" || pg.Message == "" {
				t.Fatalf("expected table and message, got %+v", pg)
			}
		})
	}
}

func TestDumpNil(t *testing.T) {
	if got := Dump(nil); got.TopMessage != "" || len(got.Chain) != 0 || got.Postgres != nil {
		t.Fatalf("expected empty dump, got %+v", got)
	}
}

func TestLogFieldsSkipsEmptyPostgresColumns(t *testing.T) {
	err := Wrap(CodeDependency, &pgconn.PgError{Code: "40001", Message: "could not serialize"}, "apply batch")
	fields := Dump(err).LogFields()

	if fields["pg_code"] != "40001" || fields["error_code"] != CodeDependency {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_constraint"]; ok {
		t.Fatalf("empty constraint should be omitted, got %v", fields)
	}
	if plain := Dump(fmt.Errorf("boom")).LogFields(); len(plain) != 1 {
		t.Fatalf("plain errors only carry the chain, got %v", plain)
	}
}
