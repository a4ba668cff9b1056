package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/catalogsync-backend/api/responses"
	"github.com/angelmondragon/catalogsync-backend/api/validators"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const (
	defaultDeadLetterPage = 50
	maxDeadLetterPage     = 200
)

type DeadLetterReader interface {
	DeadLetters(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	DeadLetterFor(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// DeadLetterDTO is one event the relay gave up on.
type DeadLetterDTO struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Reason        string          `json:"reason"`
	Error         *string         `json:"error,omitempty"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failedAt"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func deadLetterDTO(row models.OutboxDLQ, withPayload bool) DeadLetterDTO {
	dto := DeadLetterDTO{
		EventID:       row.EventID.String(),
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID,
		Reason:        string(row.ErrorReason),
		Error:         row.ErrorMessage,
		Attempts:      row.AttemptCount,
		FailedAt:      row.FailedAt.UTC(),
	}
	if withPayload {
		dto.Payload = row.Payload
	}
	return dto
}

// AdminListDeadLetters lists the newest dead-lettered outbox events.
func AdminListDeadLetters(store DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultDeadLetterPage, 1, maxDeadLetterPage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := store.DeadLetters(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := make([]DeadLetterDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, deadLetterDTO(row, false))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminGetDeadLetter returns one dead letter with its stored payload.
func AdminGetDeadLetter(store DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuid.Parse(chi.URLParam(r, "eventId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "eventId must be a uuid"))
			return
		}
		row, err := store.DeadLetterFor(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter"))
			return
		}
		if row == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
			return
		}
		responses.WriteSuccess(w, deadLetterDTO(*row, true))
	}
}
