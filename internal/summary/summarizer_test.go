package summary_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/tiermem/internal/capability/capabilitytest"
	"github.com/flemzord/tiermem/internal/session"
	"github.com/flemzord/tiermem/internal/summary"
)

func makeTurns(n int) []session.Turn {
	base := time.Now().Add(-time.Hour)
	turns := make([]session.Turn, n)
	for i := range turns {
		turns[i] = session.Turn{
			UserMessage:     "question",
			BotResponse:     "answer",
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			EstimatedTokens: 4,
		}
	}
	return turns
}

func TestSummarizer_RecordTurnThreshold(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "a summary"}
	s := summary.NewSummarizer(gen, nil, summary.Config{TriggerTurns: 5}, nil)

	for i := 1; i <= 4; i++ {
		if s.RecordTurn("group_1") {
			t.Fatalf("RecordTurn call %d returned true before the threshold", i)
		}
	}
	if !s.RecordTurn("group_1") {
		t.Fatal("RecordTurn call 5 = false, want true at the threshold")
	}
	// The counter is not reset by RecordTurn itself.
	if !s.RecordTurn("group_1") {
		t.Fatal("RecordTurn call 6 = false, want true while counter stands")
	}
}

func TestSummarizer_CounterResetsOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Err: errors.New("backend down")}
	s := summary.NewSummarizer(gen, nil, summary.Config{TriggerTurns: 3}, nil)

	for i := 0; i < 3; i++ {
		s.RecordTurn("private_2")
	}

	if _, err := s.Generate(context.Background(), "private_2", makeTurns(2)); err == nil {
		t.Fatal("Generate succeeded with a failing generator")
	}
	// Failure leaves the trigger armed.
	if !s.RecordTurn("private_2") {
		t.Fatal("counter was reset by a failed summarization")
	}

	gen.Err = nil
	gen.Response = "now it works"
	if _, err := s.Generate(context.Background(), "private_2", makeTurns(2)); err != nil {
		t.Fatalf("Generate returned unexpected error: %v", err)
	}
	// Success resets the counter: the next turn is number 1 of a new cycle.
	if s.RecordTurn("private_2") {
		t.Fatal("counter not reset by a successful summarization")
	}
}

func TestSummarizer_Generate(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "they argued about tabs and spaces"}
	s := summary.NewSummarizer(gen, nil, summary.Config{SummaryMaxTokens: 123}, nil)

	turns := makeTurns(4)
	sum, err := s.Generate(context.Background(), "group_7", turns)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if sum == nil {
		t.Fatal("Generate returned nil summary")
	}

	if sum.SessionID != "group_7" {
		t.Errorf("SessionID = %q", sum.SessionID)
	}
	if sum.TurnCount != 4 {
		t.Errorf("TurnCount = %d, want 4", sum.TurnCount)
	}
	if !sum.StartTime.Equal(turns[0].Timestamp) || !sum.EndTime.Equal(turns[3].Timestamp) {
		t.Errorf("time range = [%v, %v], want the turn range", sum.StartTime, sum.EndTime)
	}
	if sum.ID == "" {
		t.Error("summary ID is empty")
	}
	if sum.EstimatedTokens <= 0 {
		t.Errorf("EstimatedTokens = %d, want > 0", sum.EstimatedTokens)
	}

	calls := gen.Calls()
	if len(calls) != 1 {
		t.Fatalf("generator called %d times, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "123 tokens") {
		t.Errorf("prompt lacks length hint: %q", calls[0].Prompt)
	}
	if !strings.Contains(calls[0].Prompt, "User: question") {
		t.Errorf("prompt lacks transcript: %q", calls[0].Prompt)
	}
}

func TestSummarizer_GenerateEdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("empty turns", func(t *testing.T) {
		t.Parallel()
		s := summary.NewSummarizer(&capabilitytest.FakeGenerator{Response: "x"}, nil, summary.Config{}, nil)
		sum, err := s.Generate(context.Background(), "k", nil)
		if sum != nil || err != nil {
			t.Errorf("Generate(empty) = (%v, %v), want (nil, nil)", sum, err)
		}
	})

	t.Run("no generator", func(t *testing.T) {
		t.Parallel()
		s := summary.NewSummarizer(nil, nil, summary.Config{}, nil)
		if s.Enabled() {
			t.Error("Enabled() = true without a generator")
		}
		_, err := s.Generate(context.Background(), "k", makeTurns(1))
		if !errors.Is(err, summary.ErrDisabled) {
			t.Errorf("Generate without generator: err = %v, want ErrDisabled", err)
		}
	})
}

func TestSummarizer_BoundedList(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "s"}
	s := summary.NewSummarizer(gen, nil, summary.Config{MaxSummaries: 2}, nil)

	for i := 0; i < 4; i++ {
		if _, err := s.Generate(context.Background(), "group_1", makeTurns(2)); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	if got := s.Count("group_1"); got != 2 {
		t.Errorf("Count = %d, want 2 (oldest dropped first)", got)
	}
}

func TestSummarizer_ExportImport(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "persisted"}
	s := summary.NewSummarizer(gen, nil, summary.Config{MaxSummaries: 2}, nil)

	for i := 0; i < 3; i++ {
		if _, err := s.Generate(context.Background(), "group_1", makeTurns(1)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Generate(context.Background(), "private_2", makeTurns(1)); err != nil {
		t.Fatal(err)
	}

	exported := s.Export()
	// group_1 trimmed to 2, plus one for private_2.
	if len(exported) != 3 {
		t.Fatalf("Export returned %d summaries, want 3", len(exported))
	}

	fresh := summary.NewSummarizer(nil, nil, summary.Config{MaxSummaries: 2}, nil)
	fresh.Import(exported)
	if fresh.Count("group_1") != 2 || fresh.Count("private_2") != 1 {
		t.Errorf("after Import: group_1=%d private_2=%d, want 2/1",
			fresh.Count("group_1"), fresh.Count("private_2"))
	}

	if got := fresh.Format("private_2"); !strings.Contains(got, "persisted") {
		t.Errorf("Format after import = %q, want summary content", got)
	}
}

func TestSummarizer_DeleteSession(t *testing.T) {
	t.Parallel()

	gen := &capabilitytest.FakeGenerator{Response: "gone soon"}
	s := summary.NewSummarizer(gen, nil, summary.Config{}, nil)

	if _, err := s.Generate(context.Background(), "group_9", makeTurns(1)); err != nil {
		t.Fatal(err)
	}
	s.RecordTurn("group_9")

	s.DeleteSession("group_9")
	if s.Count("group_9") != 0 {
		t.Error("summaries survived DeleteSession")
	}
	if s.Format("group_9") != "" {
		t.Error("Format not empty after DeleteSession")
	}
}
