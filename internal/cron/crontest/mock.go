// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/tiermem/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// MockSweeper is a test double for cron.Sweeper.
type MockSweeper struct {
	SweepFunc  func(ctx context.Context) (int, error)
	SweepCalls atomic.Int32
}

// Sweep implements cron.Sweeper.
func (m *MockSweeper) Sweep(ctx context.Context) (int, error) {
	m.SweepCalls.Add(1)
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx)
	}
	return 0, nil
}

// MockSaver is a test double for cron.Saver.
type MockSaver struct {
	SaveFunc  func(ctx context.Context) error
	SaveCalls atomic.Int32
}

// SaveSnapshot implements cron.Saver.
func (m *MockSaver) SaveSnapshot(ctx context.Context) error {
	m.SaveCalls.Add(1)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx)
	}
	return nil
}
