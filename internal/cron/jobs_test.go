package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/tiermem/internal/cron"
	"github.com/flemzord/tiermem/internal/cron/crontest"
)

func TestArchiveSweepJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &cron.ArchiveSweepJob{Sweeper: &crontest.MockSweeper{}, Logger: slog.Default()}
	if got := j.Name(); got != "archive_sweep" {
		t.Errorf("Name() = %q", got)
	}
	if got := j.Schedule(); got != "@every 1h" {
		t.Errorf("Schedule() = %q, want @every 1h", got)
	}

	j.ScheduleExpr = "*/30 * * * *"
	if got := j.Schedule(); got != "*/30 * * * *" {
		t.Errorf("Schedule() with override = %q", got)
	}
}

func TestArchiveSweepJob_Run(t *testing.T) {
	t.Parallel()

	sweeper := &crontest.MockSweeper{
		SweepFunc: func(_ context.Context) (int, error) { return 3, nil },
	}
	j := &cron.ArchiveSweepJob{Sweeper: sweeper, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sweeper.SweepCalls.Load(); got != 1 {
		t.Errorf("sweep calls = %d, want 1", got)
	}
}

func TestArchiveSweepJob_RunError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("archive unavailable")
	sweeper := &crontest.MockSweeper{
		SweepFunc: func(_ context.Context) (int, error) { return 0, wantErr },
	}
	j := &cron.ArchiveSweepJob{Sweeper: sweeper, Logger: slog.Default()}

	err := j.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("Run error = %v, want wrapped %v", err, wantErr)
	}
}

func TestArchiveSweepJob_CancelledContext(t *testing.T) {
	t.Parallel()

	sweeper := &crontest.MockSweeper{}
	j := &cron.ArchiveSweepJob{Sweeper: sweeper, Logger: slog.Default()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := j.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run on cancelled ctx = %v, want context.Canceled", err)
	}
	if got := sweeper.SweepCalls.Load(); got != 0 {
		t.Errorf("sweep ran despite cancellation: %d calls", got)
	}
}

func TestSnapshotSaveJob_Schedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  cron.SnapshotSaveJob
		want string
	}{
		{name: "default", job: cron.SnapshotSaveJob{}, want: "@every 5m0s"},
		{name: "interval", job: cron.SnapshotSaveJob{Interval: 90 * time.Second}, want: "@every 1m30s"},
		{name: "expr override", job: cron.SnapshotSaveJob{Interval: time.Minute, ScheduleExpr: "0 * * * *"}, want: "0 * * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.job.Schedule(); got != tt.want {
				t.Errorf("Schedule() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnapshotSaveJob_Run(t *testing.T) {
	t.Parallel()

	saver := &crontest.MockSaver{}
	j := &cron.SnapshotSaveJob{Saver: saver, Logger: slog.Default()}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := saver.SaveCalls.Load(); got != 1 {
		t.Errorf("save calls = %d, want 1", got)
	}

	saver.SaveFunc = func(_ context.Context) error { return errors.New("disk full") }
	if err := j.Run(context.Background()); err == nil {
		t.Error("Run with failing saver returned nil error")
	}
}

func TestJobsSchedulable(t *testing.T) {
	t.Parallel()

	// Both job schedules must parse with the scheduler's parser.
	s := cron.NewScheduler(slog.Default())
	if err := s.RegisterJob(&cron.ArchiveSweepJob{Sweeper: &crontest.MockSweeper{}, Logger: slog.Default()}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterJob(&cron.SnapshotSaveJob{Saver: &crontest.MockSaver{}, Logger: slog.Default()}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
