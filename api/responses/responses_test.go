package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"run_id": "r-1"})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body dataEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.(map[string]any)["run_id"] != "r-1" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteSuccessNilDataStillHasKey(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, nil)
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":null}` {
		t.Fatalf("body = %s", got)
	}
}

func TestWriteErrorShapes(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		wantDetails bool
	}{
		{
			name:        "validation echoes message and details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "limit out of range").WithDetails(map[string]any{"field": "limit"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "limit out of range",
			wantDetails: true,
		},
		{
			name:    "not found echoes message without details",
			err:     pkgerrors.New(pkgerrors.CodeNotFound, "product 630123 not found").WithDetails("hidden"),
			status:  http.StatusNotFound,
			code:    pkgerrors.CodeNotFound,
			message: "product 630123 not found",
		},
		{
			name:    "upstream keeps public message",
			err:     pkgerrors.Wrap(pkgerrors.CodeUpstream, errors.New("503"), "category fetch failed"),
			status:  http.StatusBadGateway,
			code:    pkgerrors.CodeUpstream,
			message: "storefront unavailable",
		},
		{
			name:    "dependency keeps public message",
			err:     pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "redis lock"),
			status:  http.StatusServiceUnavailable,
			code:    pkgerrors.CodeDependency,
			message: "dependency unavailable",
		},
		{
			name:    "untyped becomes internal",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, tc.err)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var body problemEnvelope
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != string(tc.code) || body.Error.Message != tc.message {
				t.Fatalf("got %+v", body.Error)
			}
			if (body.Error.Details != nil) != tc.wantDetails {
				t.Fatalf("details = %v, want present=%v", body.Error.Details, tc.wantDetails)
			}
		})
	}
}

func TestWriteErrorLogsPostgresContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	cause := &pgconn.PgError{Code: "23505", ConstraintName: "products_pkey", Message: "duplicate key"}

	w := httptest.NewRecorder()
	WriteError(context.Background(), logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "product exists"))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	entry := buf.String()
	for _, want := range []string{`"pg_code":"23505"`, `"pg_constraint":"products_pkey"`, `"message":"request.error"`} {
		if !strings.Contains(entry, want) {
			t.Fatalf("log entry missing %s: %s", want, entry)
		}
	}
	if strings.Contains(w.Body.String(), "products_pkey") {
		t.Fatalf("postgres detail leaked to caller: %s", w.Body.String())
	}
}
