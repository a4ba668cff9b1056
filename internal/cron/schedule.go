package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its cadence. Every <= 0 runs the job on every tick.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Schedule is the ordered job list of the cron worker. Order matters: the
// full walk runs before the price pass and the audit within one tick.
type Schedule struct {
	entries []Entry
}

func NewSchedule(entries ...Entry) *Schedule {
	s := &Schedule{}
	for _, e := range entries {
		s.Add(e.Job, e.Every)
	}
	return s
}

func (s *Schedule) Add(job Job, every time.Duration) {
	if job == nil {
		return
	}
	s.entries = append(s.entries, Entry{Job: job, Every: every})
}

func (s *Schedule) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Due returns the entries whose cadence has elapsed at now, in order. A job
// with no recorded run is due.
func (s *Schedule) Due(ctx context.Context, ledger RunLedger, now time.Time) ([]Entry, error) {
	var due []Entry
	for _, e := range s.entries {
		if e.Every <= 0 {
			due = append(due, e)
			continue
		}
		last, ok, err := ledger.LastRun(ctx, e.Job.Name())
		if err != nil {
			return nil, fmt.Errorf("last run of %s: %w", e.Job.Name(), err)
		}
		if !ok || !now.Before(last.Add(e.Every)) {
			due = append(due, e)
		}
	}
	return due, nil
}

// RunLedger remembers when each job last started.
type RunLedger interface {
	LastRun(ctx context.Context, job string) (time.Time, bool, error)
	MarkRun(ctx context.Context, job string, at time.Time) error
}

type ledgerStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CronRunKey(job string) string
}

// RedisRunLedger keeps run times in redis so replicas and restarts agree on
// what is due.
type RedisRunLedger struct {
	store ledgerStore
	ttl   time.Duration
}

func NewRedisRunLedger(store ledgerStore, ttl time.Duration) *RedisRunLedger {
	return &RedisRunLedger{store: store, ttl: ttl}
}

func (l *RedisRunLedger) LastRun(ctx context.Context, job string) (time.Time, bool, error) {
	raw, err := l.store.Get(ctx, l.store.CronRunKey(job))
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// an unreadable marker makes the job due again
		return time.Time{}, false, nil
	}
	return at, true, nil
}

func (l *RedisRunLedger) MarkRun(ctx context.Context, job string, at time.Time) error {
	return l.store.Set(ctx, l.store.CronRunKey(job), at.UTC().Format(time.RFC3339), l.ttl)
}

// MemoryRunLedger is the process local ledger.
type MemoryRunLedger struct {
	mu   sync.Mutex
	runs map[string]time.Time
}

func NewMemoryRunLedger() *MemoryRunLedger {
	return &MemoryRunLedger{runs: map[string]time.Time{}}
}

func (l *MemoryRunLedger) LastRun(_ context.Context, job string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.runs[job]
	return at, ok, nil
}

func (l *MemoryRunLedger) MarkRun(_ context.Context, job string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[job] = at
	return nil
}
