package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultRunLockTTL outlives the longest full walk over every target.
const defaultRunLockTTL = 25 * time.Hour

// Lock guards a sync run against overlapping runs on other replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
}

// RunLock is a SETNX lock keyed by run name. Release only drops the key
// while it still carries the token minted by this holder's Acquire.
type RunLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRunLock(store lockStore, key string, ttl time.Duration) (*RunLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		ttl = defaultRunLockTTL
	}
	return &RunLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RunLock) Key() string { return l.key }

// Acquire reports false without error when another holder owns the key.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	if l.token != "" {
		return false, fmt.Errorf("lock %s already held by this process", l.key)
	}
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *RunLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.ReleaseOwned(ctx, l.key, token); err != nil {
		return err
	}
	return nil
}
