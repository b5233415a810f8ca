package engine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine activity. Each counter is kept twice: an atomic
// for the /status endpoint and a Prometheus counter for scraping. A nil
// *Metrics is valid and counts nothing.
type Metrics struct {
	turnsAdded       atomic.Int64
	summariesCreated atomic.Int64
	summariesFailed  atomic.Int64
	summariesSkipped atomic.Int64
	turnsArchived    atomic.Int64
	sessionsExpired  atomic.Int64
	snapshotSaves    atomic.Int64
	archiveSearches  atomic.Int64

	promTurnsAdded       prometheus.Counter
	promSummariesCreated prometheus.Counter
	promSummariesFailed  prometheus.Counter
	promSummariesSkipped prometheus.Counter
	promTurnsArchived    prometheus.Counter
	promSessionsExpired  prometheus.Counter
	promSnapshotSaves    prometheus.Counter
	promArchiveSearches  prometheus.Counter
}

// NewMetrics creates engine metrics registered against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		promTurnsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "turns_added_total",
			Help: "Dialogue turns appended to session windows.",
		}),
		promSummariesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "summaries_created_total",
			Help: "Summaries successfully generated.",
		}),
		promSummariesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "summaries_failed_total",
			Help: "Summarization attempts that returned an error.",
		}),
		promSummariesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "summaries_skipped_total",
			Help: "Summarizations skipped because one was already in flight.",
		}),
		promTurnsArchived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "turns_archived_total",
			Help: "Turns moved into the long-term archive.",
		}),
		promSessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "sessions_expired_total",
			Help: "Sessions discarded by TTL expiry.",
		}),
		promSnapshotSaves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "snapshot_saves_total",
			Help: "Snapshot files written to disk.",
		}),
		promArchiveSearches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tiermem", Name: "archive_searches_total",
			Help: "Similarity searches executed against the archive.",
		}),
	}
}

func (m *Metrics) addTurn() {
	if m == nil {
		return
	}
	m.turnsAdded.Add(1)
	m.promTurnsAdded.Inc()
}

func (m *Metrics) summaryCreated() {
	if m == nil {
		return
	}
	m.summariesCreated.Add(1)
	m.promSummariesCreated.Inc()
}

func (m *Metrics) summaryFailed() {
	if m == nil {
		return
	}
	m.summariesFailed.Add(1)
	m.promSummariesFailed.Inc()
}

func (m *Metrics) summarySkipped() {
	if m == nil {
		return
	}
	m.summariesSkipped.Add(1)
	m.promSummariesSkipped.Inc()
}

func (m *Metrics) archived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.turnsArchived.Add(int64(n))
	m.promTurnsArchived.Add(float64(n))
}

func (m *Metrics) sessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Add(1)
	m.promSessionsExpired.Inc()
}

func (m *Metrics) snapshotSaved() {
	if m == nil {
		return
	}
	m.snapshotSaves.Add(1)
	m.promSnapshotSaves.Inc()
}

func (m *Metrics) searched() {
	if m == nil {
		return
	}
	m.archiveSearches.Add(1)
	m.promArchiveSearches.Inc()
}

// Counters is a point-in-time copy of the counter values.
type Counters struct {
	TurnsAdded       int64 `json:"turns_added"`
	SummariesCreated int64 `json:"summaries_created"`
	SummariesFailed  int64 `json:"summaries_failed"`
	SummariesSkipped int64 `json:"summaries_skipped"`
	TurnsArchived    int64 `json:"turns_archived"`
	SessionsExpired  int64 `json:"sessions_expired"`
	SnapshotSaves    int64 `json:"snapshot_saves"`
	ArchiveSearches  int64 `json:"archive_searches"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Counters {
	if m == nil {
		return Counters{}
	}
	return Counters{
		TurnsAdded:       m.turnsAdded.Load(),
		SummariesCreated: m.summariesCreated.Load(),
		SummariesFailed:  m.summariesFailed.Load(),
		SummariesSkipped: m.summariesSkipped.Load(),
		TurnsArchived:    m.turnsArchived.Load(),
		SessionsExpired:  m.sessionsExpired.Load(),
		SnapshotSaves:    m.snapshotSaves.Load(),
		ArchiveSearches:  m.archiveSearches.Load(),
	}
}
