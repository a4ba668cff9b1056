// Package responses writes the admin API's JSON envelopes: {"data": ...} on
// success and {"error": {...}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

type dataEnvelope struct {
	Data any `json:"data"`
}

// Problem is the caller-visible part of a failed request.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type problemEnvelope struct {
	Error Problem `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

// WriteError renders err by its code. Untyped errors become internal errors
// and never leak their text. The full chain, including Postgres context, is
// logged when logg is set.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	if logg != nil {
		logg.Error(logg.WithFields(ctx, pkgerrors.Dump(typed).LogFields()), "request.error", err)
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	writeJSON(w, meta.HTTPStatus, problemEnvelope{Error: problemFor(typed, meta)})
}

func problemFor(typed *pkgerrors.Error, meta pkgerrors.Metadata) Problem {
	p := Problem{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.EchoMessage && typed.Message() != "" {
		p.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		p.Details = typed.Details()
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Int("status", status).Msg("encode response")
	}
}
