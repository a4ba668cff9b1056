package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const (
	defaultOutboxKeep   = 14 * 24 * time.Hour
	defaultParkedCutoff = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, parkedAttempts int) (int64, error)
}

// OutboxPurgeJobParams configure deletion of delivered and parked outbox
// rows. ParkedAttempts must match the relay's max attempts.
type OutboxPurgeJobParams struct {
	Logger         *logger.Logger
	DB             txRunner
	Store          outboxPurger
	Keep           time.Duration
	ParkedAttempts int
}

type outboxPurgeJob struct {
	logg   *logger.Logger
	db     txRunner
	store  outboxPurger
	keep   time.Duration
	parked int
	now    func() time.Time
}

func NewOutboxPurgeJob(params OutboxPurgeJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox purge: logger required")
	case params.DB == nil:
		return nil, errors.New("outbox purge: db required")
	case params.Store == nil:
		return nil, errors.New("outbox purge: store required")
	}
	job := &outboxPurgeJob{
		logg:   params.Logger,
		db:     params.DB,
		store:  params.Store,
		keep:   params.Keep,
		parked: params.ParkedAttempts,
		now:    time.Now,
	}
	if job.keep <= 0 {
		job.keep = defaultOutboxKeep
	}
	if job.parked <= 0 {
		job.parked = defaultParkedCutoff
	}
	return job, nil
}

func (j *outboxPurgeJob) Name() string { return "outbox-purge" }

func (j *outboxPurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var purged int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		purged, err = j.store.Purge(ctx, tx, cutoff, j.parked)
		return err
	})
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff": cutoff.Format(time.RFC3339),
		"purged": purged,
	}), "outbox purged")
	return nil
}
