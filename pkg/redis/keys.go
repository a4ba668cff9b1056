package redis

import "strings"

const (
	defaultNamespace = "catalogsync"

	segIdempotency = "idempotency"
	segRateLimit   = "rate_limit"
	segLock        = "lock"
	segSyncStatus  = "sync_status"
	segCronRun     = "cron_run"
)

// Keyspace builds the redis keys shared by the api, the cron worker and the
// price history worker. Empty segments are dropped.
type Keyspace struct {
	namespace string
}

func NewKeyspace(namespace string) Keyspace {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keyspace{namespace: namespace}
}

func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.join(segIdempotency, scope, id)
}

func (k Keyspace) RateLimitKey(scope string) string {
	return k.join(segRateLimit, scope)
}

// LockKey names a run lock, e.g. "sync:cos_1.2" or "cron-worker:prod".
func (k Keyspace) LockKey(name string) string {
	return k.join(segLock, name)
}

// SyncStatusKey holds the progress document of one category.
func (k Keyspace) SyncStatusKey(category string) string {
	return k.join(segSyncStatus, category)
}

// CronRunKey holds the last start time of a scheduled job.
func (k Keyspace) CronRunKey(job string) string {
	return k.join(segCronRun, job)
}

func (k Keyspace) join(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
