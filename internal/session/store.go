package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/tiermem/internal/tokens"
)

// Config holds the window bounds and expiry for the store.
type Config struct {
	// MaxTurns bounds the window by turn count.
	MaxTurns int

	// MaxTokens bounds the window by estimated tokens. At least one turn
	// is always retained, even if it alone exceeds the budget.
	MaxTokens int

	// TTL discards a session after this much inactivity. 0 means never.
	TTL time.Duration

	// Now is injectable for expiry tests. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxTurns == 0 {
		c.MaxTurns = 20
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4000
	}
	return c
}

// Store is the in-memory session map. The map itself is guarded by a
// read-write mutex; each session carries its own mutex so that all
// mutations of one window (append, trim, archive removal) are serialized
// without blocking unrelated sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	cfg       Config
	estimator tokens.Estimator
	logger    *slog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

type entry struct {
	mu sync.Mutex
	s  Session
}

// NewStore creates an empty session store.
func NewStore(cfg Config, estimator tokens.Estimator, logger *slog.Logger) *Store {
	if estimator == nil {
		estimator = tokens.NewScriptEstimator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions:  make(map[string]*entry),
		cfg:       cfg.withDefaults(),
		estimator: estimator,
		logger:    logger.With("component", "session"),
		now:       now,
	}
}

// Append adds a turn to the session for (isGroup, targetID), creating the
// session lazily, then trims the window. It returns the session key and
// the post-append turn count.
func (st *Store) Append(isGroup bool, targetID int64, userMessage string, attachments []string, botResponse string) (string, int) {
	key := Key(isGroup, targetID)
	e := st.getOrCreate(key, isGroup, targetID)

	turn := Turn{
		UserMessage:       userMessage,
		BotResponse:       botResponse,
		Timestamp:         st.now(),
		EstimatedTokens:   st.estimator.Estimate(userMessage) + st.estimator.Estimate(botResponse),
		AttachmentMarkers: attachments,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.Turns = append(e.s.Turns, turn)
	e.s.LastActive = turn.Timestamp
	e.s.TotalTokens += turn.EstimatedTokens
	st.trimLocked(&e.s)

	return key, len(e.s.Turns)
}

// trimLocked enforces the window bounds: oldest turns drop first, by count
// and then by token budget. The last turn is never dropped.
func (st *Store) trimLocked(s *Session) {
	for len(s.Turns) > st.cfg.MaxTurns {
		s.TotalTokens -= s.Turns[0].EstimatedTokens
		s.Turns = s.Turns[1:]
	}
	for s.TotalTokens > st.cfg.MaxTokens && len(s.Turns) > 1 {
		s.TotalTokens -= s.Turns[0].EstimatedTokens
		s.Turns = s.Turns[1:]
	}
}

// Live returns a copy of the session if it exists and has not expired.
// An expired session is deleted on the spot; expired reports that deletion
// so the caller can cascade cleanup of the session's summaries.
func (st *Store) Live(key string) (s Session, ok bool, expired bool) {
	st.mu.RLock()
	e, exists := st.sessions[key]
	st.mu.RUnlock()
	if !exists {
		return Session{}, false, false
	}

	e.mu.Lock()
	stale := st.expiredLocked(&e.s)
	if !stale {
		s = copySession(&e.s)
	}
	e.mu.Unlock()

	if stale {
		st.mu.Lock()
		// Re-check: the entry may have been replaced while unlocked.
		if cur, exists := st.sessions[key]; exists && cur == e {
			delete(st.sessions, key)
		}
		st.mu.Unlock()
		st.logger.Debug("session expired", "session", key)
		return Session{}, false, true
	}
	return s, true, false
}

// expiredLocked applies the TTL rule: a TTL of 0 disables expiry.
func (st *Store) expiredLocked(s *Session) bool {
	return st.cfg.TTL > 0 && st.now().Sub(s.LastActive) > st.cfg.TTL
}

// OlderHalf returns a copy of the older half of the session's window, the
// segment handed to the summarizer. Fewer than two turns yield nil so the
// most recent turns always stay verbatim.
func (st *Store) OlderHalf(key string) []Turn {
	st.mu.RLock()
	e, exists := st.sessions[key]
	st.mu.RUnlock()
	if !exists {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	half := len(e.s.Turns) / 2
	if half == 0 {
		return nil
	}
	out := make([]Turn, half)
	copy(out, e.s.Turns[:half])
	return out
}

// Aged is one session's turns older than an archive cutoff.
type Aged struct {
	SessionID string
	IsGroup   bool
	TargetID  int64
	Turns     []Turn
}

// CollectOlder returns, per session, copies of the turns with a timestamp
// before cutoff. Nothing is removed; call DropOlder after the turns have
// been durably archived.
func (st *Store) CollectOlder(cutoff time.Time) []Aged {
	st.mu.RLock()
	entries := make(map[string]*entry, len(st.sessions))
	for k, e := range st.sessions {
		entries[k] = e
	}
	st.mu.RUnlock()

	var out []Aged
	for key, e := range entries {
		e.mu.Lock()
		var old []Turn
		for _, t := range e.s.Turns {
			if t.Timestamp.Before(cutoff) {
				old = append(old, t)
			}
		}
		if len(old) > 0 {
			out = append(out, Aged{
				SessionID: key,
				IsGroup:   e.s.IsGroup,
				TargetID:  e.s.TargetID,
				Turns:     old,
			})
		}
		e.mu.Unlock()
	}
	return out
}

// DropOlder removes the turns with a timestamp before cutoff from the
// session window and recomputes the token sum. It returns the number of
// turns removed. Turns appended after CollectOlder are newer than the
// cutoff and are untouched.
func (st *Store) DropOlder(key string, cutoff time.Time) int {
	st.mu.RLock()
	e, exists := st.sessions[key]
	st.mu.RUnlock()
	if !exists {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.s.Turns[:0]
	total := 0
	dropped := 0
	for _, t := range e.s.Turns {
		if t.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, t)
		total += t.EstimatedTokens
	}
	e.s.Turns = kept
	e.s.TotalTokens = total
	return dropped
}

// Delete removes a session. Returns true if it existed.
func (st *Store) Delete(key string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, exists := st.sessions[key]
	delete(st.sessions, key)
	return exists
}

// Clear removes all sessions and returns their keys, for cascading
// deletion into the other layers.
func (st *Store) Clear() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	keys := make([]string, 0, len(st.sessions))
	for k := range st.sessions {
		keys = append(keys, k)
	}
	st.sessions = make(map[string]*entry)
	return keys
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Export returns copies of all sessions for snapshotting.
func (st *Store) Export() []Session {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.sessions))
	for _, e := range st.sessions {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copySession(&e.s))
		e.mu.Unlock()
	}
	return out
}

// Import restores sessions from a snapshot, silently dropping entries that
// are already expired. Existing sessions with the same key are replaced.
func (st *Store) Import(sessions []Session) {
	for i := range sessions {
		s := copySession(&sessions[i])
		if st.expiredLocked(&s) {
			continue
		}
		if s.ID == "" {
			s.ID = Key(s.IsGroup, s.TargetID)
		}
		st.mu.Lock()
		st.sessions[s.ID] = &entry{s: s}
		st.mu.Unlock()
	}
}

func (st *Store) getOrCreate(key string, isGroup bool, targetID int64) *entry {
	st.mu.RLock()
	e, exists := st.sessions[key]
	st.mu.RUnlock()
	if exists {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e, exists := st.sessions[key]; exists {
		return e
	}
	e = &entry{s: Session{
		ID:       key,
		IsGroup:  isGroup,
		TargetID: targetID,
	}}
	st.sessions[key] = e
	return e
}

func copySession(s *Session) Session {
	cp := *s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return cp
}
