package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type SyncState string

const (
	StateRunning   SyncState = "running"
	StateCompleted SyncState = "completed"
	StateAborted   SyncState = "aborted"
	StateFailed    SyncState = "failed"
)

// SyncStatus is the progress document kept per category.
type SyncStatus struct {
	Category   string     `json:"category"`
	Mode       Mode       `json:"mode"`
	State      SyncState  `json:"state"`
	Page       int        `json:"page"`
	Items      int        `json:"items"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stats      *SyncStats `json:"stats,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type statusStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SyncStatusKey(category string) string
}

// StatusBoard persists SyncStatus documents in redis. A nil board drops
// writes, so the sync core runs without redis in tests.
type StatusBoard struct {
	store statusStore
	ttl   time.Duration
}

func NewStatusBoard(store statusStore, ttl time.Duration) *StatusBoard {
	if store == nil {
		return nil
	}
	return &StatusBoard{store: store, ttl: ttl}
}

func (b *StatusBoard) Put(ctx context.Context, status SyncStatus) error {
	if b == nil {
		return nil
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode sync status: %w", err)
	}
	return b.store.Set(ctx, b.store.SyncStatusKey(status.Category), raw, b.ttl)
}

// Get returns the last status of category, or nil when none was recorded.
func (b *StatusBoard) Get(ctx context.Context, category string) (*SyncStatus, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := b.store.Get(ctx, b.store.SyncStatusKey(category))
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var status SyncStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("decode sync status: %w", err)
	}
	return &status, nil
}

// List returns the recorded statuses for the given categories in order.
func (b *StatusBoard) List(ctx context.Context, categories []string) ([]SyncStatus, error) {
	out := make([]SyncStatus, 0, len(categories))
	for _, code := range categories {
		status, err := b.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if status != nil {
			out = append(out, *status)
		}
	}
	return out, nil
}
