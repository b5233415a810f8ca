// Package cron schedules the engine's periodic maintenance: archive
// sweeps and memory snapshot saves.
package cron

import "context"

// Job is one periodic maintenance task.
type Job interface {
	// Name identifies the job in logs and registration. Unique per scheduler.
	Name() string

	// Schedule is a 5-field cron expression ("*/5 * * * *") or an
	// interval descriptor ("@every 10m").
	Schedule() string

	// Run does one pass of the work. The context is cancelled when the
	// scheduler stops; long runs should honor it.
	Run(ctx context.Context) error
}
