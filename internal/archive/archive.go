// Package archive implements the vector-searchable long-term store for
// turns that have aged out of the session window. Records live in SQLite
// (modernc.org/sqlite, pure Go); vectors live in an embedded chromem-go
// index persisted next to the database. The record store is authoritative:
// a record without an index entry is invisible to similarity search but is
// never lost.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/flemzord/tiermem/internal/capability"
	"github.com/flemzord/tiermem/internal/session"
)

const (
	recordDBFile   = "archive.db"
	indexDir       = "index"
	collectionName = "turns"

	// addConcurrency bounds parallel embedding-index writes per batch.
	addConcurrency = 4
)

// Message is a turn moved to long-term storage.
type Message struct {
	ID          string
	SessionID   string
	IsGroup     bool
	TargetID    int64
	UserMessage string
	BotResponse string
	Timestamp   time.Time

	// Vector is set on search results when the index returned it.
	Vector []float32
}

// Result is a single similarity-search hit. Score is a normalized
// similarity in [0, 1], not a raw distance.
type Result struct {
	Message Message
	Score   float32
}

// Config holds the archive tuning knobs.
type Config struct {
	Enabled          bool
	Directory        string
	ArchiveAfterDays int
	SearchTopK       int
}

func (c Config) withDefaults() Config {
	if c.ArchiveAfterDays == 0 {
		c.ArchiveAfterDays = 7
	}
	if c.SearchTopK == 0 {
		c.SearchTopK = 5
	}
	return c
}

// Archive is the long-term store. All failure paths degrade to zero-value
// results; nothing here propagates errors into a turn append or a history
// read.
type Archive struct {
	cfg      Config
	embedder capability.Embedder
	logger   *slog.Logger

	mu    sync.RWMutex
	db    *sql.DB
	index *chromem.Collection
	ready atomic.Bool

	now func() time.Time
}

// New creates an Archive. Call Initialize before use.
func New(cfg Config, embedder capability.Embedder, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		cfg:      cfg.withDefaults(),
		embedder: embedder,
		logger:   logger.With("component", "archive"),
		now:      time.Now,
	}
}

// Initialize opens or creates the backing stores. Idempotent; a no-op when
// the archive is disabled or no embedding capability is attached.
func (a *Archive) Initialize(ctx context.Context) error {
	if !a.cfg.Enabled || a.embedder == nil {
		a.logger.Debug("archive disabled", "enabled", a.cfg.Enabled, "embedder", a.embedder != nil)
		return nil
	}
	if a.ready.Load() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready.Load() {
		return nil
	}

	if err := os.MkdirAll(a.cfg.Directory, 0o700); err != nil {
		return fmt.Errorf("archive: create directory %s: %w", a.cfg.Directory, err)
	}

	db, err := openRecordDB(ctx, filepath.Join(a.cfg.Directory, recordDBFile))
	if err != nil {
		return err
	}

	vdb, err := chromem.NewPersistentDB(filepath.Join(a.cfg.Directory, indexDir), false)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("archive: open vector index: %w", err)
	}
	// Embeddings are always supplied explicitly; no embedding func needed.
	col, err := vdb.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("archive: open collection %s: %w", collectionName, err)
	}

	a.db = db
	a.index = col
	a.ready.Store(true)
	a.logger.Info("archive initialized", "dir", a.cfg.Directory)
	return nil
}

// IsReady reports whether the archive is enabled, initialized, and has an
// embedding capability attached. Callers must check this before Archive or
// Search to get a defined no-op instead of an error.
func (a *Archive) IsReady() bool {
	return a.ready.Load()
}

// Threshold returns the archive cutoff: turns older than this are eligible
// for archiving.
func (a *Archive) Threshold() time.Time {
	return a.now().Add(-time.Duration(a.cfg.ArchiveAfterDays) * 24 * time.Hour)
}

// Archive embeds and persists the given turns for a session, returning the
// number written. Archiving is all-or-nothing per batch: any embedding
// failure, count mismatch, or record-store failure writes nothing and
// returns 0, so the caller keeps the turns in the window.
func (a *Archive) Archive(ctx context.Context, sessionID string, isGroup bool, targetID int64, turns []session.Turn) int {
	if !a.IsReady() || len(turns) == 0 {
		return 0
	}

	texts := make([]string, len(turns))
	for i, t := range turns {
		texts[i] = turnText(t)
	}

	vecs, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		a.logger.Warn("archive: batch embedding failed", "session", sessionID, "error", err)
		return 0
	}
	if len(vecs) != len(turns) {
		a.logger.Warn("archive: embedding count mismatch",
			"session", sessionID, "want", len(turns), "got", len(vecs))
		return 0
	}

	msgs := make([]Message, len(turns))
	docs := make([]chromem.Document, len(turns))
	for i, t := range turns {
		msgs[i] = Message{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			IsGroup:     isGroup,
			TargetID:    targetID,
			UserMessage: t.UserMessage,
			BotResponse: t.BotResponse,
			Timestamp:   t.Timestamp,
		}
		docs[i] = chromem.Document{
			ID:        msgs[i].ID,
			Content:   texts[i],
			Embedding: vecs[i],
			Metadata:  map[string]string{"session_id": sessionID},
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := insertMessages(ctx, a.db, msgs); err != nil {
		a.logger.Warn("archive: record insert failed", "session", sessionID, "error", err)
		return 0
	}
	if err := a.index.AddDocuments(ctx, docs, addConcurrency); err != nil {
		// Records stand; they are just not searchable. Never lose a turn.
		a.logger.Warn("archive: index write failed", "session", sessionID, "error", err)
	}

	a.logger.Debug("turns archived", "session", sessionID, "count", len(msgs))
	return len(msgs)
}

// Search embeds the query and returns archived messages by descending
// similarity, optionally filtered to one session. Every failure path
// returns an empty result; search errors never propagate.
func (a *Archive) Search(ctx context.Context, query, sessionID string, topK int) []Result {
	if !a.IsReady() || strings.TrimSpace(query) == "" {
		return nil
	}
	if topK <= 0 {
		topK = a.cfg.SearchTopK
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("archive: query embedding failed", "error", err)
		return nil
	}

	var where map[string]string
	if sessionID != "" {
		where = map[string]string{"session_id": sessionID}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if count := a.index.Count(); count == 0 {
		return nil
	} else if topK > count {
		topK = count
	}

	hits, err := stepDownQuery(topK, func(k int) ([]chromem.Result, error) {
		return a.index.QueryEmbedding(ctx, vec, k, where, nil)
	})
	if err != nil {
		a.logger.Warn("archive: similarity query failed", "error", err)
		return nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	records, err := messagesByID(ctx, a.db, ids)
	if err != nil {
		a.logger.Warn("archive: record lookup failed", "error", err)
		return nil
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		msg, ok := records[h.ID]
		if !ok {
			// Index entry without a record; skip rather than fabricate.
			continue
		}
		msg.Vector = h.Embedding
		out = append(out, Result{Message: msg, Score: clampScore(h.Similarity)})
	}
	return out
}

// stepDownQuery works around chromem rejecting nResults above the
// post-filter document count, which Count() cannot see: it retries with
// a smaller count while chromem reports that mismatch. Any other error
// is returned immediately, not retried.
func stepDownQuery(topK int, query func(k int) ([]chromem.Result, error)) ([]chromem.Result, error) {
	var err error
	for k := topK; k >= 1; k-- {
		var hits []chromem.Result
		hits, err = query(k)
		if err == nil {
			return hits, nil
		}
		if !strings.Contains(err.Error(), "nResults") {
			return nil, err
		}
	}
	return nil, err
}

// DeleteSession removes all archived records and index entries for a
// session.
func (a *Archive) DeleteSession(ctx context.Context, sessionID string) {
	if !a.IsReady() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := deleteBySession(ctx, a.db, sessionID); err != nil {
		a.logger.Warn("archive: record delete failed", "session", sessionID, "error", err)
	}
	if err := a.index.Delete(ctx, map[string]string{"session_id": sessionID}, nil); err != nil {
		a.logger.Warn("archive: index delete failed", "session", sessionID, "error", err)
	}
}

// Count returns the number of archived records for a session, 0 on any
// failure or when the archive is not ready.
func (a *Archive) Count(ctx context.Context, sessionID string) int {
	if !a.IsReady() {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	n, err := countBySession(ctx, a.db, sessionID)
	if err != nil {
		a.logger.Warn("archive: count failed", "session", sessionID, "error", err)
		return 0
	}
	return n
}

// Close releases the record store. The vector index needs no teardown.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready.Swap(false) {
		return nil
	}
	return a.db.Close()
}

// turnText renders a turn for embedding.
func turnText(t session.Turn) string {
	var b strings.Builder
	b.WriteString("User: ")
	b.WriteString(t.UserMessage)
	if len(t.AttachmentMarkers) > 0 {
		b.WriteString("\n[attachments: ")
		b.WriteString(strings.Join(t.AttachmentMarkers, ", "))
		b.WriteString("]")
	}
	b.WriteString("\nAssistant: ")
	b.WriteString(t.BotResponse)
	return b.String()
}

// clampScore maps cosine similarity onto [0, 1].
func clampScore(sim float32) float32 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
