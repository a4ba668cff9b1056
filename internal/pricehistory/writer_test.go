package pricehistory

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeInserter struct {
	errs   []error
	calls  int
	tables []string
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls++
	f.tables = append(f.tables, table)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func newTestWriter(t *testing.T, inserter *fakeInserter) *BigQueryWriter {
	t.Helper()
	w, err := NewBigQueryWriter(inserter, " price_history ", RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return w
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	inserter := &fakeInserter{errs: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "down"),
	}}
	w := newTestWriter(t, inserter)

	if err := w.Insert(context.Background(), Row{EventID: "e"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserter.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inserter.calls)
	}
	if inserter.tables[0] != "price_history" {
		t.Fatalf("expected trimmed table name, got %q", inserter.tables[0])
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	inserter := &fakeInserter{errs: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	w := newTestWriter(t, inserter)

	if err := w.Insert(context.Background(), Row{}); err == nil {
		t.Fatal("expected error")
	}
	if inserter.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", inserter.calls)
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	transient := &googleapi.Error{Code: http.StatusTooManyRequests}
	inserter := &fakeInserter{errs: []error{transient, transient, transient, transient}}
	w := newTestWriter(t, inserter)

	if err := w.Insert(context.Background(), Row{}); err == nil {
		t.Fatal("expected error after retries")
	}
	if inserter.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inserter.calls)
	}
}

func TestWriterHonorsCancellation(t *testing.T) {
	inserter := &fakeInserter{errs: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}}}
	w, err := NewBigQueryWriter(inserter, "price_history", RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := w.Insert(ctx, Row{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if inserter.calls != 1 {
		t.Fatalf("expected one attempt before the wait, got %d", inserter.calls)
	}
}

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"http 500", &googleapi.Error{Code: http.StatusInternalServerError}, true},
		{"http 404", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "slow down"), true},
		{"row errors transient", cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}},
		}, true},
		{"row errors mixed", cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}},
			{Errors: cbigquery.MultiError{errors.New("schema mismatch")}},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := transient(tc.err); got != tc.want {
				t.Fatalf("transient = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewBigQueryWriterRequiresTable(t *testing.T) {
	if _, err := NewBigQueryWriter(&fakeInserter{}, "  ", RetryPolicy{}); err == nil {
		t.Fatal("expected missing table error")
	}
}
