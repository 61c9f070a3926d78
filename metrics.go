package fhiravro

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks conversion counters using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	conversionsTotal  atomic.Uint64
	conversionsFailed atomic.Uint64

	// Timing (nanoseconds)
	timeTotal atomic.Uint64
	timeMin   atomic.Uint64
	timeMax   atomic.Uint64

	recordsBuilt     atomic.Uint64
	branchesRejected atomic.Uint64
	trackerMismatch  atomic.Uint64

	perSchema sync.Map // map[string]*schemaMetrics
}

type schemaMetrics struct {
	conversions atomic.Uint64
	failures    atomic.Uint64
	totalTime   atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.timeMin.Store(^uint64(0))
	return m
}

// RecordConversion records a finished top-level conversion of a resource
// against the named schema.
func (m *Metrics) RecordConversion(schema string, duration time.Duration, err error) {
	ns := uint64(duration.Nanoseconds()) //nolint:gosec // durations are non-negative

	m.conversionsTotal.Add(1)
	m.timeTotal.Add(ns)
	if err != nil {
		m.conversionsFailed.Add(1)
	}

	for {
		old := m.timeMin.Load()
		if ns >= old || m.timeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.timeMax.Load()
		if ns <= old || m.timeMax.CompareAndSwap(old, ns) {
			break
		}
	}

	sm := m.schema(schema)
	sm.conversions.Add(1)
	sm.totalTime.Add(ns)
	if err != nil {
		sm.failures.Add(1)
	}
}

// RecordRecord counts a built record, nested ones included.
func (m *Metrics) RecordRecord() { m.recordsBuilt.Add(1) }

// RecordRejectedBranch counts a union branch that rejected its value.
func (m *Metrics) RecordRejectedBranch() { m.branchesRejected.Add(1) }

// RecordTrackerMismatch counts array elements where the tracked element
// differed from the resolved one.
func (m *Metrics) RecordTrackerMismatch() { m.trackerMismatch.Add(1) }

func (m *Metrics) schema(name string) *schemaMetrics {
	if v, ok := m.perSchema.Load(name); ok {
		return v.(*schemaMetrics)
	}
	actual, _ := m.perSchema.LoadOrStore(name, &schemaMetrics{})
	return actual.(*schemaMetrics)
}

// ConversionsTotal returns the number of conversions recorded.
func (m *Metrics) ConversionsTotal() uint64 { return m.conversionsTotal.Load() }

// ConversionsFailed returns the number of failed conversions.
func (m *Metrics) ConversionsFailed() uint64 { return m.conversionsFailed.Load() }

// RecordsBuilt returns the number of records built.
func (m *Metrics) RecordsBuilt() uint64 { return m.recordsBuilt.Load() }

// BranchesRejected returns the number of rejected union branches.
func (m *Metrics) BranchesRejected() uint64 { return m.branchesRejected.Load() }

// TrackerMismatches returns the number of tracker mismatches.
func (m *Metrics) TrackerMismatches() uint64 { return m.trackerMismatch.Load() }

// SuccessRate returns the share of successful conversions (0.0 to 1.0).
func (m *Metrics) SuccessRate() float64 {
	total := m.conversionsTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(total-m.conversionsFailed.Load()) / float64(total)
}

// AverageTime returns the mean conversion duration.
func (m *Metrics) AverageTime() time.Duration {
	total := m.conversionsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.timeTotal.Load() / total) //nolint:gosec // nanoseconds within int64 range
}

// MinTime returns the fastest conversion.
func (m *Metrics) MinTime() time.Duration {
	v := m.timeMin.Load()
	if v == ^uint64(0) {
		return 0
	}
	return time.Duration(v) //nolint:gosec // nanoseconds within int64 range
}

// MaxTime returns the slowest conversion.
func (m *Metrics) MaxTime() time.Duration {
	return time.Duration(m.timeMax.Load()) //nolint:gosec // nanoseconds within int64 range
}

// SchemaStats holds the counters of one schema.
type SchemaStats struct {
	Name        string        `json:"name"`
	Conversions uint64        `json:"conversions"`
	Failures    uint64        `json:"failures"`
	AvgTime     time.Duration `json:"avg_time_ns"`
}

// SchemaStats returns the counters of one schema.
func (m *Metrics) SchemaStats(name string) (SchemaStats, bool) {
	v, ok := m.perSchema.Load(name)
	if !ok {
		return SchemaStats{Name: name}, false
	}
	return v.(*schemaMetrics).stats(name), true
}

func (sm *schemaMetrics) stats(name string) SchemaStats {
	n := sm.conversions.Load()
	var avg time.Duration
	if n > 0 {
		avg = time.Duration(sm.totalTime.Load() / n) //nolint:gosec // nanoseconds within int64 range
	}
	return SchemaStats{
		Name:        name,
		Conversions: n,
		Failures:    sm.failures.Load(),
		AvgTime:     avg,
	}
}

// AllSchemaStats returns the counters of every schema, sorted by name.
func (m *Metrics) AllSchemaStats() []SchemaStats {
	var stats []SchemaStats
	m.perSchema.Range(func(key, value any) bool {
		stats = append(stats, value.(*schemaMetrics).stats(key.(string)))
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	ConversionsTotal  uint64  `json:"conversions_total"`
	ConversionsFailed uint64  `json:"conversions_failed"`
	SuccessRate       float64 `json:"success_rate"`

	AvgTimeNs uint64 `json:"avg_time_ns"`
	MinTimeNs uint64 `json:"min_time_ns"`
	MaxTimeNs uint64 `json:"max_time_ns"`

	RecordsBuilt      uint64 `json:"records_built"`
	BranchesRejected  uint64 `json:"branches_rejected"`
	TrackerMismatches uint64 `json:"tracker_mismatches"`

	Schemas []SchemaStats `json:"schemas,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:         time.Now(),
		ConversionsTotal:  m.ConversionsTotal(),
		ConversionsFailed: m.ConversionsFailed(),
		SuccessRate:       m.SuccessRate(),
		AvgTimeNs:         uint64(m.AverageTime()), //nolint:gosec // non-negative
		MinTimeNs:         uint64(m.MinTime()),     //nolint:gosec // non-negative
		MaxTimeNs:         m.timeMax.Load(),
		RecordsBuilt:      m.RecordsBuilt(),
		BranchesRejected:  m.BranchesRejected(),
		TrackerMismatches: m.TrackerMismatches(),
		Schemas:           m.AllSchemaStats(),
	}
}

// Export returns the scalar metrics as a flat map for external systems.
func (m *Metrics) Export() map[string]any {
	s := m.Snapshot()
	return map[string]any{
		"conversions_total":  s.ConversionsTotal,
		"conversions_failed": s.ConversionsFailed,
		"success_rate":       s.SuccessRate,
		"avg_time_ns":        s.AvgTimeNs,
		"min_time_ns":        s.MinTimeNs,
		"max_time_ns":        s.MaxTimeNs,
		"records_built":      s.RecordsBuilt,
		"branches_rejected":  s.BranchesRejected,
		"tracker_mismatches": s.TrackerMismatches,
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.conversionsTotal.Store(0)
	m.conversionsFailed.Store(0)
	m.timeTotal.Store(0)
	m.timeMin.Store(^uint64(0))
	m.timeMax.Store(0)
	m.recordsBuilt.Store(0)
	m.branchesRejected.Store(0)
	m.trackerMismatch.Store(0)
	m.perSchema.Range(func(key, _ any) bool {
		m.perSchema.Delete(key)
		return true
	})
}
