package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper moves cold conversation turns into the long-term archive.
// Defined here to avoid a circular dependency on the engine package.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Saver persists the current in-memory state to disk.
type Saver interface {
	SaveSnapshot(ctx context.Context) error
}

// ArchiveSweepJob periodically archives turns older than the configured cutoff.
type ArchiveSweepJob struct {
	Sweeper      Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "@every 1h"
}

// Compile-time interface check.
var _ Job = (*ArchiveSweepJob)(nil)

// Name implements Job.
func (j *ArchiveSweepJob) Name() string { return "archive_sweep" }

// Schedule implements Job.
func (j *ArchiveSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@every 1h"
}

// Run archives all turns past the cutoff across every live session.
func (j *ArchiveSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: archive sweep cancelled: %w", ctx.Err())
	}
	n, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("cron: archive sweep: %w", err)
	}
	if n > 0 {
		j.Logger.Info("cron: archived aged turns", "count", n)
	}
	return nil
}

// SnapshotSaveJob periodically writes the memory snapshot to disk.
// The save is skipped by the engine when nothing has changed since
// the last write.
type SnapshotSaveJob struct {
	Saver        Saver
	Logger       *slog.Logger
	Interval     time.Duration // zero = default 5m
	ScheduleExpr string        // overrides Interval when set
}

// Compile-time interface check.
var _ Job = (*SnapshotSaveJob)(nil)

// Name implements Job.
func (j *SnapshotSaveJob) Name() string { return "snapshot_save" }

// Schedule implements Job.
func (j *SnapshotSaveJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	interval := j.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return "@every " + interval.String()
}

// Run saves the snapshot unless cancellation is already in progress.
func (j *SnapshotSaveJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: snapshot save cancelled: %w", ctx.Err())
	}
	if err := j.Saver.SaveSnapshot(ctx); err != nil {
		return fmt.Errorf("cron: snapshot save: %w", err)
	}
	return nil
}
