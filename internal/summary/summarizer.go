// Package summary decides when a session has accumulated enough turns to
// warrant compaction, performs the compaction through an injected
// text-generation capability, and keeps a bounded, ordered list of
// summaries per session.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/tiermem/internal/capability"
	"github.com/flemzord/tiermem/internal/session"
	"github.com/flemzord/tiermem/internal/tokens"
)

// ErrDisabled indicates no text-generation capability is configured.
var ErrDisabled = errors.New("summary: no generator configured")

// Summary is a compaction of a contiguous run of turns.
type Summary struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Content         string    `json:"content"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	TurnCount       int       `json:"turn_count"`
	CreatedAt       time.Time `json:"created_at"`
	EstimatedTokens int       `json:"estimated_tokens"`
}

// Config holds the summarizer tuning knobs.
type Config struct {
	// TriggerTurns is the per-session turn count at which RecordTurn
	// starts reporting true.
	TriggerTurns int

	// MaxSummaries bounds the per-session list; oldest dropped first.
	MaxSummaries int

	// SummaryMaxTokens is the target length requested from the generator.
	SummaryMaxTokens int
}

func (c Config) withDefaults() Config {
	if c.TriggerTurns == 0 {
		c.TriggerTurns = 12
	}
	if c.MaxSummaries == 0 {
		c.MaxSummaries = 5
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = 500
	}
	return c
}

// Summarizer tracks per-session turn counters and summary lists.
// Safe for concurrent use.
type Summarizer struct {
	mu        sync.Mutex
	counters  map[string]int
	summaries map[string][]Summary

	generator capability.Generator
	estimator tokens.Estimator
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewSummarizer creates a Summarizer. A nil generator disables summary
// generation — counters still advance, Generate returns ErrDisabled.
func NewSummarizer(generator capability.Generator, estimator tokens.Estimator, cfg Config, logger *slog.Logger) *Summarizer {
	if estimator == nil {
		estimator = tokens.NewScriptEstimator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		counters:  make(map[string]int),
		summaries: make(map[string][]Summary),
		generator: generator,
		estimator: estimator,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "summary"),
		now:       time.Now,
	}
}

// Enabled reports whether a text-generation capability is attached.
func (s *Summarizer) Enabled() bool {
	return s.generator != nil
}

// RecordTurn increments the session's turn counter and reports whether the
// trigger threshold has been reached. The counter is reset only by a
// completed summarization, never by this call — a failed summarization
// leaves the trigger armed for the next turn.
func (s *Summarizer) RecordTurn(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[sessionID]++
	return s.counters[sessionID] >= s.cfg.TriggerTurns
}

const systemInstruction = "You condense chat history. Write a factual, third-person summary " +
	"of the conversation below. Preserve names, decisions, and open questions. " +
	"Do not add commentary."

// Generate compacts the given turns into a Summary and appends it to the
// session's list, trimming the oldest entry past MaxSummaries. On success
// the session's turn counter resets to zero. Returns (nil, error) without
// touching the counter when the generator fails, and (nil, ErrDisabled)
// when no generator is configured. Empty input yields (nil, nil).
func (s *Summarizer) Generate(ctx context.Context, sessionID string, turns []session.Turn) (*Summary, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	if s.generator == nil {
		return nil, ErrDisabled
	}

	prompt := buildPrompt(turns, s.cfg.SummaryMaxTokens)

	content, err := s.generator.Generate(ctx, systemInstruction, prompt)
	if err != nil {
		s.logger.Warn("summarization failed", "session", sessionID, "error", err)
		return nil, fmt.Errorf("summary: generate for %s: %w", sessionID, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		s.logger.Warn("summarization produced empty text", "session", sessionID)
		return nil, fmt.Errorf("summary: empty result for %s", sessionID)
	}

	sum := Summary{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Content:         content,
		StartTime:       turns[0].Timestamp,
		EndTime:         turns[len(turns)-1].Timestamp,
		TurnCount:       len(turns),
		CreatedAt:       s.now(),
		EstimatedTokens: s.estimator.Estimate(content),
	}

	s.mu.Lock()
	s.appendLocked(sum)
	s.counters[sessionID] = 0
	s.mu.Unlock()

	s.logger.Debug("summary created", "session", sessionID, "turns", sum.TurnCount)
	return &sum, nil
}

// appendLocked adds a summary in creation order and trims the list.
func (s *Summarizer) appendLocked(sum Summary) {
	list := append(s.summaries[sum.SessionID], sum)
	if len(list) > s.cfg.MaxSummaries {
		list = list[len(list)-s.cfg.MaxSummaries:]
	}
	s.summaries[sum.SessionID] = list
}

// buildPrompt renders the turns as a transcript with a length hint.
func buildPrompt(turns []session.Turn, maxTokens int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this dialogue in at most %d tokens.\n\n", maxTokens)
	for _, t := range turns {
		b.WriteString("User: ")
		b.WriteString(t.UserMessage)
		b.WriteByte('\n')
		if len(t.AttachmentMarkers) > 0 {
			fmt.Fprintf(&b, "[attachments: %s]\n", strings.Join(t.AttachmentMarkers, ", "))
		}
		b.WriteString("Assistant: ")
		b.WriteString(t.BotResponse)
		b.WriteByte('\n')
	}
	return b.String()
}

// Format renders a session's summaries chronologically, one block per
// summary, for inclusion in the composed context. Empty when none exist.
func (s *Summarizer) Format(sessionID string) string {
	s.mu.Lock()
	list := s.summaries[sessionID]
	out := make([]Summary, len(list))
	copy(out, list)
	s.mu.Unlock()

	if len(out) == 0 {
		return ""
	}
	var b strings.Builder
	for i, sum := range out {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "(%s – %s, %d turns) %s",
			sum.StartTime.Format("2006-01-02 15:04"),
			sum.EndTime.Format("2006-01-02 15:04"),
			sum.TurnCount,
			sum.Content,
		)
	}
	return b.String()
}

// Count returns the number of stored summaries for a session.
func (s *Summarizer) Count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.summaries[sessionID])
}

// Export flattens all sessions' summaries for snapshotting, ordered by
// session key and creation order within each session.
func (s *Summarizer) Export() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.summaries))
	for k := range s.summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Summary
	for _, k := range keys {
		out = append(out, s.summaries[k]...)
	}
	return out
}

// Import re-inserts summaries from a snapshot, re-applying the per-session
// trim rule. Used to restore state across restarts.
func (s *Summarizer) Import(list []Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range list {
		if sum.SessionID == "" {
			continue
		}
		s.appendLocked(sum)
	}
}

// DeleteSession removes a session's summaries and counter.
func (s *Summarizer) DeleteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, sessionID)
	delete(s.counters, sessionID)
}

// Clear removes all summaries and counters.
func (s *Summarizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = make(map[string][]Summary)
	s.counters = make(map[string]int)
}
