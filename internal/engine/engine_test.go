package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/tiermem/internal/capability/capabilitytest"
	"github.com/flemzord/tiermem/internal/config"
	"github.com/flemzord/tiermem/internal/engine"
)

func newMetrics() *engine.Metrics {
	return engine.NewMetrics(prometheus.NewRegistry())
}

func baseConfig() config.MemoryConfig {
	return config.MemoryConfig{
		MaxTurns:  20,
		MaxTokens: 4000,
		Summarization: config.SummarizationConfig{
			TriggerTurns: 2,
			MaxSummaries: 5,
		},
	}
}

func TestEngine_HistoryComposition(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "They planned a trip to Lisbon."}
	e := engine.New(baseConfig(), gen, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 42, "let's plan a trip", nil, "sure, where to?")
	e.AddTurn(false, 42, "Lisbon in May", nil, "noted, Lisbon in May")
	e.Flush()

	got := e.History(context.Background(), false, 42, "")
	if !strings.Contains(got, "[Summary]") {
		t.Errorf("history missing summary section:\n%s", got)
	}
	if !strings.Contains(got, "They planned a trip to Lisbon.") {
		t.Errorf("history missing summary content:\n%s", got)
	}
	if !strings.Contains(got, "[Recent Dialogue]") {
		t.Errorf("history missing recent dialogue section:\n%s", got)
	}
	if !strings.Contains(got, "User: Lisbon in May") {
		t.Errorf("history missing recent turn:\n%s", got)
	}
	// Summary comes before the verbatim window.
	if strings.Index(got, "[Summary]") > strings.Index(got, "[Recent Dialogue]") {
		t.Errorf("sections out of order:\n%s", got)
	}
}

func TestEngine_HistoryEmptySession(t *testing.T) {
	t.Parallel()

	e := engine.New(baseConfig(), nil, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	if got := e.History(context.Background(), true, 99, ""); got != "" {
		t.Errorf("history for unknown session = %q, want empty", got)
	}
}

func TestEngine_SessionIsolation(t *testing.T) {
	t.Parallel()

	e := engine.New(baseConfig(), nil, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(true, 7, "group secret", nil, "ack")
	e.AddTurn(false, 7, "private note", nil, "ok")

	got := e.History(context.Background(), false, 7, "")
	if strings.Contains(got, "group secret") {
		t.Errorf("private history leaked group turns:\n%s", got)
	}
	if !strings.Contains(got, "private note") {
		t.Errorf("private history missing own turn:\n%s", got)
	}
}

func TestEngine_SummarizationFailureLeavesTriggerArmed(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Err: context.DeadlineExceeded}
	m := newMetrics()
	e := engine.New(baseConfig(), gen, nil, m, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 1, "a", nil, "b")
	e.AddTurn(false, 1, "c", nil, "d")
	e.Flush()

	if got := m.Snapshot().SummariesFailed; got != 1 {
		t.Fatalf("failed summaries = %d, want 1", got)
	}
	if got := e.History(context.Background(), false, 1, ""); strings.Contains(got, "[Summary]") {
		t.Errorf("failed summarization produced a summary section:\n%s", got)
	}

	// The generator recovers; the still-armed trigger fires on the next turn.
	gen.Err = nil
	gen.Response = "recovered summary"
	e.AddTurn(false, 1, "e", nil, "f")
	e.Flush()

	if got := m.Snapshot().SummariesCreated; got != 1 {
		t.Errorf("created summaries after recovery = %d, want 1", got)
	}
}

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Persistence = config.PersistenceConfig{Enabled: true, Directory: dir}

	m := newMetrics()
	e := engine.New(cfg, nil, nil, m, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	e.AddTurn(false, 5, "remember this", nil, "will do")
	if err := e.SaveSnapshot(context.Background()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Nothing changed since the save; the second call must be a no-op.
	if err := e.SaveSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := m.Snapshot().SnapshotSaves; got != 1 {
		t.Errorf("snapshot saves = %d, want 1 (clean state skipped)", got)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	restarted := engine.New(cfg, nil, nil, newMetrics(), nil)
	if err := restarted.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer restarted.Close(context.Background())

	got := restarted.History(context.Background(), false, 5, "")
	if !strings.Contains(got, "remember this") {
		t.Errorf("restored history missing turn:\n%s", got)
	}
}

func TestEngine_SweepArchivesOldTurns(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Summarization.Enabled = boolPtr(false)
	cfg.Archive = config.ArchiveConfig{
		Enabled:   true,
		Directory: t.TempDir(),
		// Negative cutoff lies in the future, so every turn is eligible.
		ArchiveAfterDays: -1,
		SearchTopK:       5,
	}

	m := newMetrics()
	e := engine.New(cfg, nil, capabilitytest.NewFakeEmbedder(32), m, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 3, "old news about the launch", nil, "archived reply")

	moved, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if moved != 1 {
		t.Fatalf("Sweep moved %d turns, want 1", moved)
	}
	if got := m.Snapshot().TurnsArchived; got != 1 {
		t.Errorf("archived counter = %d, want 1", got)
	}

	// The turn left the window but is findable through the archive.
	got := e.History(context.Background(), false, 3, "news about the launch")
	if strings.Contains(got, "[Recent Dialogue]") {
		t.Errorf("swept turn still in window:\n%s", got)
	}
	if !strings.Contains(got, "[Related History]") {
		t.Errorf("history missing related section after sweep:\n%s", got)
	}
	if !strings.Contains(got, "old news about the launch") {
		t.Errorf("archived turn not surfaced:\n%s", got)
	}

	results := e.SearchArchive(context.Background(), false, 3, "launch", 5)
	if len(results) != 1 {
		t.Fatalf("SearchArchive returned %d results, want 1", len(results))
	}
	if results[0].Score < 0 || results[0].Score > 1 {
		t.Errorf("score = %f, want within [0,1]", results[0].Score)
	}
}

func TestEngine_SweepWithoutArchiveIsNoop(t *testing.T) {
	t.Parallel()

	e := engine.New(baseConfig(), nil, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 1, "stay put", nil, "ok")
	moved, err := e.Sweep(context.Background())
	if err != nil || moved != 0 {
		t.Errorf("Sweep = (%d, %v), want (0, nil)", moved, err)
	}
}

func TestEngine_ClearConversation(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "a summary"}
	e := engine.New(baseConfig(), gen, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 8, "wipe me", nil, "ok")
	e.AddTurn(false, 8, "really", nil, "sure")
	e.Flush()

	if !e.ClearConversation(context.Background(), false, 8) {
		t.Fatal("ClearConversation reported no session")
	}
	if got := e.History(context.Background(), false, 8, ""); got != "" {
		t.Errorf("history after clear = %q, want empty", got)
	}
	if e.ClearConversation(context.Background(), false, 8) {
		t.Error("second clear reported a live session")
	}
}

func TestEngine_ClearAll(t *testing.T) {
	t.Parallel()

	e := engine.New(baseConfig(), nil, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 1, "one", nil, "a")
	e.AddTurn(true, 2, "two", nil, "b")
	e.ClearAll(context.Background())

	if got := e.Status().Sessions; got != 0 {
		t.Errorf("sessions after ClearAll = %d, want 0", got)
	}
}

func TestEngine_DisabledIsInert(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Enabled = boolPtr(false)

	e := engine.New(cfg, nil, nil, newMetrics(), nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 1, "ignored", nil, "ignored")
	if got := e.History(context.Background(), false, 1, ""); got != "" {
		t.Errorf("disabled engine returned history %q", got)
	}
	if got := e.Status(); got.Enabled || got.Sessions != 0 {
		t.Errorf("disabled engine status = %+v", got)
	}
}

func TestEngine_StatusCounters(t *testing.T) {
	t.Parallel()

	m := newMetrics()
	e := engine.New(baseConfig(), nil, nil, m, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Close(context.Background())

	e.AddTurn(false, 1, "x", nil, "y")
	e.AddTurn(false, 1, "z", nil, "w")

	st := e.Status()
	if st.Counters.TurnsAdded != 2 {
		t.Errorf("turns added = %d, want 2", st.Counters.TurnsAdded)
	}
	if st.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", st.Sessions)
	}
	if st.Summarizing {
		t.Error("status reports summarizing without a generator")
	}
}

func boolPtr(b bool) *bool { return &b }
