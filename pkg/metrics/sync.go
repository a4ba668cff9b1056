package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics counts catalog sync and audit outcomes.
type SyncMetrics struct {
	items   *prometheus.CounterVec
	changes *prometheus.CounterVec
	aborts  *prometheus.CounterVec
	audit   *prometheus.CounterVec
}

// NewSyncMetrics registers the sync counters on reg. A nil registerer yields
// a no-op recorder.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_items_total",
		Help: "Listing items reconciled, by outcome.",
	}, []string{"category", "outcome"})
	changes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_changes_total",
		Help: "Price and discount changes detected during sync.",
	}, []string{"category", "change"})
	aborts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_walk_aborts_total",
		Help: "Category walks that ended before the last page.",
	}, []string{"category", "reason"})
	audit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_zero_price_audit_total",
		Help: "Zero price audit results.",
	}, []string{"result"})
	reg.MustRegister(items, changes, aborts, audit)
	return &SyncMetrics{items: items, changes: changes, aborts: aborts, audit: audit}
}

func (m *SyncMetrics) AddItems(category, outcome string, n int) {
	if m == nil || m.items == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(labelOr(category, "unknown"), labelOr(outcome, "unknown")).Add(float64(n))
}

func (m *SyncMetrics) AddChanges(category, change string, n int) {
	if m == nil || m.changes == nil || n <= 0 {
		return
	}
	m.changes.WithLabelValues(labelOr(category, "unknown"), labelOr(change, "unknown")).Add(float64(n))
}

// IncWalkAbort records why a walk stopped early: "fetch", "parse" or "page_cap".
func (m *SyncMetrics) IncWalkAbort(category, reason string) {
	if m == nil || m.aborts == nil {
		return
	}
	m.aborts.WithLabelValues(labelOr(category, "unknown"), labelOr(reason, "unknown")).Inc()
}

func (m *SyncMetrics) AddAudit(result string, n int) {
	if m == nil || m.audit == nil || n <= 0 {
		return
	}
	m.audit.WithLabelValues(labelOr(result, "unknown")).Add(float64(n))
}
