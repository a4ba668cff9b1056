// Package relay drains outbox_events to Pub/Sub.
//
// Each batch is claimed inside one transaction, published with the product id
// as ordering key, and settled before commit: published rows are stamped,
// transient failures are counted for retry, and rows that can never succeed
// are dead lettered.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/metrics"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	idleBackoffCap     = 10 * time.Second
	jitter             = 250 * time.Millisecond
)

type Store interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, at time.Time, ids ...uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, parkAt int, at time.Time) error
}

type Router interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type Database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// Topic publishes ordered messages. A failed publish pauses its ordering key
// until ResumePublish.
type Topic interface {
	Publish(context.Context, *gcppubsub.Message) Result
	ResumePublish(orderingKey string)
}

type Result interface {
	Get(context.Context) (string, error)
}

// Topics returns the Topic for a topic id, or nil when it cannot be opened.
type Topics func(topic string) Topic

type Params struct {
	Logger       *logger.Logger
	DB           Database
	Store        Store
	Router       Router
	Topics       Topics
	Metrics      *metrics.RelayMetrics
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

type Relay struct {
	logg        *logger.Logger
	db          Database
	store       Store
	router      Router
	topics      Topics
	metrics     *metrics.RelayMetrics
	batchSize   int
	poll        time.Duration
	maxAttempts int
	now         func() time.Time
	wait        func(context.Context, time.Duration) error

	mu   sync.Mutex
	open map[string]Topic
}

func New(params Params) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("relay: logger required")
	case params.DB == nil:
		return nil, errors.New("relay: db required")
	case params.Store == nil:
		return nil, errors.New("relay: store required")
	case params.Router == nil:
		return nil, errors.New("relay: router required")
	case params.Topics == nil:
		return nil, errors.New("relay: topics required")
	}
	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		store:       params.Store,
		router:      params.Router,
		topics:      params.Topics,
		metrics:     params.Metrics,
		batchSize:   params.BatchSize,
		poll:        params.PollInterval,
		maxAttempts: params.MaxAttempts,
		now:         time.Now,
		wait:        wait,
		open:        map[string]Topic{},
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	return r, nil
}

// Run drains until ctx ends. A full batch is followed immediately by the
// next; an empty or failed one waits, doubling up to idleBackoffCap on
// consecutive errors.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("relay: database unreachable: %w", err)
	}
	pause := r.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			pause = min(pause*2, idleBackoffCap)
		case claimed > 0:
			pause = r.poll
			continue
		default:
			pause = r.poll
		}
		if err := r.wait(ctx, pause+time.Duration(rand.Int64N(int64(jitter)))); err != nil {
			return err
		}
	}
}

type outcome struct {
	event  models.OutboxEvent
	kind   string
	reason enums.OutboxDLQErrorReason
	err    error
}

type inflight struct {
	event  models.OutboxEvent
	topic  string
	key    string
	result Result
}

// Drain claims, publishes and settles one batch. It returns the number of
// rows claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	started := r.now()
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}
		return r.settle(ctx, tx, r.publish(ctx, events))
	})
	if claimed > 0 {
		r.metrics.Batch(claimed, r.now().Sub(started))
	}
	return claimed, err
}

// publish sends every routable event before waiting on any result, so the
// client can batch them per topic.
func (r *Relay) publish(ctx context.Context, events []models.OutboxEvent) []outcome {
	outcomes := make([]outcome, 0, len(events))
	pending := make([]inflight, 0, len(events))

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for _, event := range events {
		resolved, err := r.router.Resolve(event)
		if err != nil {
			outcomes = append(outcomes, outcome{event: event, kind: metrics.RelayDead, reason: enums.OutboxDLQReasonNonRetryable, err: err})
			continue
		}
		name := resolved.Descriptor.Topic
		topic := r.topic(name)
		if topic == nil {
			outcomes = append(outcomes, outcome{event: event, kind: metrics.RelayDead, reason: enums.OutboxDLQReasonNonRetryable, err: fmt.Errorf("topic %q unavailable", name)})
			continue
		}
		msg := message(event, resolved)
		pending = append(pending, inflight{event: event, topic: name, key: msg.OrderingKey, result: topic.Publish(pubCtx, msg)})
	}

	paused := map[string]map[string]bool{}
	for _, p := range pending {
		var err error
		if p.result == nil {
			err = errors.New("publisher returned no result")
		} else {
			_, err = p.result.Get(pubCtx)
		}
		if err == nil {
			outcomes = append(outcomes, outcome{event: p.event, kind: metrics.RelayPublished})
			continue
		}
		if paused[p.topic] == nil {
			paused[p.topic] = map[string]bool{}
		}
		paused[p.topic][p.key] = true
		outcomes = append(outcomes, r.failed(p.event, err))
	}
	for name, keys := range paused {
		topic := r.topic(name)
		for key := range keys {
			topic.ResumePublish(key)
		}
	}
	return outcomes
}

func (r *Relay) failed(event models.OutboxEvent, err error) outcome {
	var permanent registry.NonRetryableError
	if errors.As(err, &permanent) {
		return outcome{event: event, kind: metrics.RelayDead, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		return outcome{event: event, kind: metrics.RelayDead, reason: enums.OutboxDLQReasonMaxAttempts, err: fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err)}
	}
	return outcome{event: event, kind: metrics.RelayRetry, err: err}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, outcomes []outcome) error {
	at := r.now().UTC()
	var published []uuid.UUID
	for _, o := range outcomes {
		switch o.kind {
		case metrics.RelayPublished:
			published = append(published, o.event.ID)
		case metrics.RelayRetry:
			if err := r.store.RecordFailure(tx, o.event.ID, o.err); err != nil {
				return fmt.Errorf("record failure %s: %w", o.event.ID, err)
			}
			r.logg.Warn(r.eventContext(ctx, o), "outbox publish failed, will retry")
		case metrics.RelayDead:
			if err := r.store.DeadLetter(tx, o.event, o.reason, o.err, r.maxAttempts, at); err != nil {
				return fmt.Errorf("dead letter %s: %w", o.event.ID, err)
			}
			r.logg.Warn(r.eventContext(ctx, o), "outbox event dead lettered")
		}
	}
	if err := r.store.MarkPublished(tx, at, published...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	for _, o := range outcomes {
		r.metrics.Settled(string(o.event.EventType), o.kind)
	}
	if len(published) > 0 {
		r.logg.Info(r.logg.WithField(ctx, "published", len(published)), "outbox batch published")
	}
	return nil
}

func (r *Relay) eventContext(ctx context.Context, o outcome) context.Context {
	fields := map[string]any{
		"outbox_id":     o.event.ID.String(),
		"event_type":    o.event.EventType,
		"aggregate_id":  o.event.AggregateID,
		"attempt_count": o.event.AttemptCount,
	}
	if o.reason != "" {
		fields["dlq_reason"] = o.reason
	}
	if o.err != nil {
		fields["error"] = o.err.Error()
	}
	return r.logg.WithFields(ctx, fields)
}

func (r *Relay) topic(name string) Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.open[name]; ok {
		return t
	}
	t := r.topics(name)
	if t != nil {
		r.open[name] = t
	}
	return t
}

// Stop flushes every topic the relay opened.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.open {
		if s, ok := t.(interface{ Stop() }); ok {
			s.Stop()
		}
		delete(r.open, name)
	}
}

// message keys by product id so one product's events arrive in outbox order.
func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"version":        strconv.Itoa(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
