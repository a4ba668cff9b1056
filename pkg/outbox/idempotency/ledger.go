// Package idempotency keeps the per-consumer ledger of catalog events that
// were already handled, so Pub/Sub redeliveries are applied once.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/catalogsync-backend/pkg/redis"
)

const (
	markerPending = "pending"
	markerDone    = "done"

	// DefaultClaimTTL bounds how long a crashed consumer blocks redelivery.
	DefaultClaimTTL = 5 * time.Minute
)

// Outcome is the result of claiming an event.
type Outcome int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota
	// Done means an earlier delivery finished the event.
	Done
	// InFlight means another delivery holds an unexpired claim.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

var (
	errStoreRequired    = errors.New("idempotency store is required")
	errConsumerRequired = errors.New("consumer name is required")
	errEventRequired    = errors.New("event id is required")
)

// Ledger writes a short-lived pending marker on claim and replaces it with
// a long-lived done marker on completion. Keys look like
// catalogsync:idempotency:evt:<consumer>:<event_id>.
type Ledger struct {
	store    redis.IdempotencyStore
	doneTTL  time.Duration
	claimTTL time.Duration
}

func NewLedger(store redis.IdempotencyStore, doneTTL time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errStoreRequired
	}
	if doneTTL < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Ledger{store: store, doneTTL: doneTTL, claimTTL: DefaultClaimTTL}, nil
}

func (l *Ledger) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Outcome, error) {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	won, err := l.store.SetNX(ctx, key, markerPending, l.claimTTL)
	if err != nil {
		return 0, err
	}
	if won {
		return Claimed, nil
	}

	marker, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The claim expired between the two calls; let the next delivery retry.
		return InFlight, nil
	case err != nil:
		return 0, err
	case marker == markerDone:
		return Done, nil
	}
	return InFlight, nil
}

// Complete marks a claimed event as handled for the ledger TTL.
func (l *Ledger) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, key, markerDone, l.doneTTL)
}

// Release drops a claim so a redelivery can retry the event.
func (l *Ledger) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *Ledger) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", errEventRequired
	}
	return l.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
