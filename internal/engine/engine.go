// Package engine ties the three memory tiers together: the in-memory
// session windows, the per-session summary lists, and the long-term
// vector archive. It owns the background summarization goroutines, the
// periodic archive sweep, and snapshot persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/tiermem/internal/archive"
	"github.com/flemzord/tiermem/internal/capability"
	"github.com/flemzord/tiermem/internal/config"
	"github.com/flemzord/tiermem/internal/session"
	"github.com/flemzord/tiermem/internal/summary"
	"github.com/flemzord/tiermem/internal/tokens"
)

// Engine is the tiered conversational memory engine. Safe for concurrent use.
type Engine struct {
	cfg config.MemoryConfig

	store      *session.Store
	summarizer *summary.Summarizer
	archive    *archive.Archive

	metrics *Metrics
	logger  *slog.Logger

	snapshotPath string

	// dirty marks unsaved state; SaveSnapshot clears it with a
	// compare-and-swap so concurrent savers do not double-write.
	dirty atomic.Bool

	closed atomic.Bool

	// inflight holds the keys of sessions with a summarization running.
	// A trigger firing while one is in flight is dropped, not queued.
	inflight sync.Map
	wg       sync.WaitGroup
}

// New assembles an engine from configuration and capabilities. Either
// capability may be nil: summarization and archiving then degrade to
// no-ops while the session window keeps working.
func New(cfg config.MemoryConfig, generator capability.Generator, embedder capability.Embedder, metrics *Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	estimator := tokens.NewScriptEstimator()

	if !cfg.Summarization.IsEnabled() {
		generator = nil
	}

	store := session.NewStore(session.Config{
		MaxTurns:  cfg.MaxTurns,
		MaxTokens: cfg.MaxTokens,
		TTL:       cfg.TTL(),
	}, estimator, logger)

	summarizer := summary.NewSummarizer(generator, estimator, summary.Config{
		TriggerTurns:     cfg.Summarization.TriggerTurns,
		MaxSummaries:     cfg.Summarization.MaxSummaries,
		SummaryMaxTokens: cfg.Summarization.SummaryMaxTokens,
	}, logger)

	arch := archive.New(archive.Config{
		Enabled:          cfg.Archive.Enabled,
		Directory:        cfg.Archive.Directory,
		ArchiveAfterDays: cfg.Archive.ArchiveAfterDays,
		SearchTopK:       cfg.Archive.SearchTopK,
	}, embedder, logger)

	var snapshotPath string
	if cfg.Persistence.Enabled && cfg.Persistence.Directory != "" {
		snapshotPath = filepath.Join(cfg.Persistence.Directory, snapshotFile)
	}

	return &Engine{
		cfg:          cfg,
		store:        store,
		summarizer:   summarizer,
		archive:      arch,
		metrics:      metrics,
		logger:       logger.With("component", "engine"),
		snapshotPath: snapshotPath,
	}
}

// Start opens the archive stores and restores the last snapshot.
func (e *Engine) Start(ctx context.Context) error {
	if !e.cfg.IsEnabled() {
		e.logger.Info("memory engine disabled")
		return nil
	}
	if err := e.archive.Initialize(ctx); err != nil {
		return fmt.Errorf("engine: open archive: %w", err)
	}
	e.loadSnapshot()
	return nil
}

// loadSnapshot restores sessions and summaries from disk. Any problem
// with the file means a cold start, never a startup failure.
func (e *Engine) loadSnapshot() {
	if e.snapshotPath == "" {
		return
	}
	snap, err := readSnapshot(e.snapshotPath)
	if err != nil {
		e.logger.Warn("snapshot unreadable, starting cold", "path", e.snapshotPath, "error", err)
		return
	}
	if snap == nil {
		return
	}
	e.store.Import(snap.Conversations)
	e.summarizer.Import(snap.Summaries)
	e.logger.Info("snapshot restored",
		"sessions", e.store.Len(),
		"saved_at", snap.SavedAt,
	)
}

// AddTurn records one completed user/assistant exchange. When the
// session's turn counter crosses the summarization threshold, a
// background summarization of the window's older half is scheduled.
func (e *Engine) AddTurn(isGroup bool, targetID int64, userMessage string, attachments []string, botResponse string) {
	if !e.cfg.IsEnabled() {
		return
	}

	key, turnCount := e.store.Append(isGroup, targetID, userMessage, attachments, botResponse)
	e.metrics.addTurn()
	e.dirty.Store(true)

	if e.summarizer.Enabled() && e.summarizer.RecordTurn(key) {
		e.scheduleSummarization(key)
	}

	e.logger.Debug("turn added", "session", key, "turns", turnCount)
}

// scheduleSummarization runs the compaction of the session's older half
// in the background. At most one summarization per session runs at a
// time; a trigger firing while one is in flight is dropped because the
// next turn will re-arm it.
func (e *Engine) scheduleSummarization(key string) {
	if e.closed.Load() {
		return
	}
	if _, loaded := e.inflight.LoadOrStore(key, struct{}{}); loaded {
		e.metrics.summarySkipped()
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.inflight.Delete(key)

		turns := e.store.OlderHalf(key)
		if len(turns) == 0 {
			return
		}
		if _, err := e.summarizer.Generate(context.Background(), key, turns); err != nil {
			if !errors.Is(err, summary.ErrDisabled) {
				e.metrics.summaryFailed()
			}
			return
		}
		e.metrics.summaryCreated()
		e.dirty.Store(true)
	}()
}

// History composes the memory context for a session, in three sections:
//
//	[Related History]   archive turns similar to query (when query is set)
//	[Summary]           the session's stored summaries, oldest first
//	[Recent Dialogue]   the live window verbatim
//
// Sections without content are omitted; an empty string means the
// session has no memory at all. Reading an expired session deletes it
// and its summaries and yields nothing, even when a query is set; the
// session's archive records survive for later reads.
func (e *Engine) History(ctx context.Context, isGroup bool, targetID int64, query string) string {
	if !e.cfg.IsEnabled() {
		return ""
	}
	key := session.Key(isGroup, targetID)

	sess, ok, expired := e.store.Live(key)
	if expired {
		e.summarizer.DeleteSession(key)
		e.metrics.sessionExpired()
		e.dirty.Store(true)
		return ""
	}

	var sections []string

	if query != "" && e.archive.IsReady() {
		results := e.archive.Search(ctx, query, key, e.cfg.Archive.SearchTopK)
		e.metrics.searched()
		if block := formatResults(results); block != "" {
			sections = append(sections, "[Related History]\n"+block)
		}
	}

	if block := e.summarizer.Format(key); block != "" {
		sections = append(sections, "[Summary]\n"+block)
	}

	if ok && len(sess.Turns) > 0 {
		sections = append(sections, "[Recent Dialogue]\n"+formatTurns(sess.Turns))
	}

	return strings.Join(sections, "\n\n")
}

// SearchArchive runs a similarity search over a session's archived turns.
func (e *Engine) SearchArchive(ctx context.Context, isGroup bool, targetID int64, query string, topK int) []archive.Result {
	if !e.cfg.IsEnabled() || !e.archive.IsReady() {
		return nil
	}
	key := session.Key(isGroup, targetID)
	results := e.archive.Search(ctx, query, key, topK)
	e.metrics.searched()
	return results
}

// ClearConversation wipes every tier for one session: the live window,
// its summaries, and its archive records. Returns whether a live
// session existed.
func (e *Engine) ClearConversation(ctx context.Context, isGroup bool, targetID int64) bool {
	key := session.Key(isGroup, targetID)
	existed := e.store.Delete(key)
	e.summarizer.DeleteSession(key)
	e.archive.DeleteSession(ctx, key)
	e.dirty.Store(true)
	e.logger.Info("conversation cleared", "session", key, "existed", existed)
	return existed
}

// ClearAll wipes every tier for every session.
func (e *Engine) ClearAll(ctx context.Context) {
	keys := e.store.Clear()
	e.summarizer.Clear()
	for _, key := range keys {
		e.archive.DeleteSession(ctx, key)
	}
	e.dirty.Store(true)
	e.logger.Info("all conversations cleared", "sessions", len(keys))
}

// Sweep moves window turns older than the archive cutoff into the
// archive and returns how many were moved. Turns are removed from the
// window only after the archive confirms the write, so a failed batch
// stays in memory and is retried on the next sweep.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.cfg.IsEnabled() || !e.archive.IsReady() {
		return 0, nil
	}

	cutoff := e.archive.Threshold()
	total := 0
	for _, aged := range e.store.CollectOlder(cutoff) {
		written := e.archive.Archive(ctx, aged.SessionID, aged.IsGroup, aged.TargetID, aged.Turns)
		if written == 0 {
			continue
		}
		e.store.DropOlder(aged.SessionID, cutoff)
		total += written
	}
	if total > 0 {
		e.metrics.archived(total)
		e.dirty.Store(true)
		e.logger.Info("sweep archived turns", "count", total)
	}
	return total, nil
}

// SaveSnapshot writes the current sessions and summaries to disk if
// anything changed since the last save. The dirty flag is claimed
// before writing and restored on failure so the change is not lost.
func (e *Engine) SaveSnapshot(_ context.Context) error {
	if e.snapshotPath == "" {
		return nil
	}
	if !e.dirty.CompareAndSwap(true, false) {
		return nil
	}

	snap := snapshot{
		Version:       snapshotVersion,
		SavedAt:       time.Now(),
		Conversations: e.store.Export(),
		Summaries:     e.summarizer.Export(),
	}
	if err := writeSnapshot(e.snapshotPath, snap); err != nil {
		e.dirty.Store(true)
		return err
	}
	e.metrics.snapshotSaved()
	e.logger.Debug("snapshot saved", "sessions", len(snap.Conversations))
	return nil
}

// Flush blocks until all in-flight summarizations have finished.
func (e *Engine) Flush() {
	e.wg.Wait()
}

// Close flushes background work, saves a final snapshot, and closes the
// archive. The engine must not be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.closed.Store(true)
	e.wg.Wait()

	var errs []error
	if err := e.SaveSnapshot(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.archive.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: close archive: %w", err))
	}
	return errors.Join(errs...)
}

// Status describes the engine for the /status endpoint.
type Status struct {
	Enabled      bool     `json:"enabled"`
	Sessions     int      `json:"sessions"`
	ArchiveReady bool     `json:"archive_ready"`
	Summarizing  bool     `json:"summarizing"`
	Counters     Counters `json:"counters"`
}

// Status returns a point-in-time view of the engine.
func (e *Engine) Status() Status {
	return Status{
		Enabled:      e.cfg.IsEnabled(),
		Sessions:     e.store.Len(),
		ArchiveReady: e.archive.IsReady(),
		Summarizing:  e.summarizer.Enabled(),
		Counters:     e.metrics.Snapshot(),
	}
}

// formatTurns renders window turns as a transcript.
func formatTurns(turns []session.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(t.UserMessage)
		b.WriteByte('\n')
		if len(t.AttachmentMarkers) > 0 {
			fmt.Fprintf(&b, "[attachments: %s]\n", strings.Join(t.AttachmentMarkers, ", "))
		}
		b.WriteString("Assistant: ")
		b.WriteString(t.BotResponse)
	}
	return b.String()
}

// formatResults renders archive search results, newest relevance first.
func formatResults(results []archive.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "(%s) User: %s\nAssistant: %s",
			r.Message.Timestamp.Format("2006-01-02 15:04"),
			r.Message.UserMessage,
			r.Message.BotResponse,
		)
	}
	return b.String()
}
