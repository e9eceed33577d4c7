// Package usage caches token usage and decides whether a send may proceed.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// DefaultWarnPercent is the usage level at which a warning banner shows.
const DefaultWarnPercent = 90

// Fetcher loads the current usage snapshot.
type Fetcher interface {
	GetUsage(ctx context.Context) (*model.UsageSnapshot, error)
}

// Gate is a read-through cache of the usage snapshot.
type Gate struct {
	fetcher     Fetcher
	warnPercent float64
	logger      *logger.Logger

	mu       sync.RWMutex
	snapshot *model.UsageSnapshot

	// At most one fetch runs at a time. Callers arriving while it runs
	// share the queued fetch that starts after it.
	flightMu sync.Mutex
	running  *flight
	queued   *flight
}

type flight struct {
	ctx  context.Context
	done chan struct{}
	err  error
}

// fetchTimeout bounds a single fetch, which runs detached from the callers
// waiting on it.
const fetchTimeout = 30 * time.Second

// NewGate creates a gate. A warnPercent of zero selects the default.
func NewGate(fetcher Fetcher, warnPercent float64, log *logger.Logger) *Gate {
	if warnPercent <= 0 {
		warnPercent = DefaultWarnPercent
	}
	return &Gate{
		fetcher:     fetcher,
		warnPercent: warnPercent,
		logger:      log.Named("usage"),
	}
}

// Refresh fetches a snapshot that reflects usage at or after the call. A
// fetch already running when Refresh is called may have read older usage, so
// the caller waits for the next fetch instead; concurrent callers share that
// one. Cancelling ctx only stops the wait. On failure the previous snapshot
// is kept.
func (g *Gate) Refresh(ctx context.Context) error {
	g.flightMu.Lock()
	var f *flight
	switch {
	case g.running == nil:
		f = newFlight(ctx)
		g.running = f
		go g.fetch(f)
	case g.queued != nil:
		f = g.queued
	default:
		f = newFlight(ctx)
		g.queued = f
	}
	g.flightMu.Unlock()

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newFlight(ctx context.Context) *flight {
	return &flight{ctx: context.WithoutCancel(ctx), done: make(chan struct{})}
}

func (g *Gate) fetch(f *flight) {
	ctx, cancel := context.WithTimeout(f.ctx, fetchTimeout)
	snapshot, err := g.fetcher.GetUsage(ctx)
	cancel()

	if err == nil {
		g.mu.Lock()
		g.snapshot = snapshot
		g.mu.Unlock()
	} else {
		g.logger.Warn("usage refresh failed", zap.Error(err))
	}

	g.flightMu.Lock()
	f.err = err
	close(f.done)
	g.running, g.queued = g.queued, nil
	if next := g.running; next != nil {
		go g.fetch(next)
	}
	g.flightMu.Unlock()
}

// Snapshot returns the cached snapshot, or nil before the first refresh.
func (g *Gate) Snapshot() *model.UsageSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.snapshot == nil {
		return nil
	}
	s := *g.snapshot
	return &s
}

// CanSend reports whether no configured limit is exhausted. Before the first
// successful refresh limits are unknown and sending is allowed.
func (g *Gate) CanSend() bool {
	s := g.Snapshot()
	if s == nil {
		return true
	}
	return !globalExceeded(s) && !monthlyExceeded(s)
}

// StatusMessage describes the most pressing limit, or returns "" when no
// banner should show. The global limit takes priority over the monthly one.
func (g *Gate) StatusMessage() string {
	s := g.Snapshot()
	if s == nil {
		return ""
	}

	switch {
	case globalExceeded(s):
		return fmt.Sprintf("You have used all %d tokens of your account limit. Contact an administrator to raise it.", s.GlobalLimit)
	case monthlyExceeded(s):
		return fmt.Sprintf("You have used all %d tokens of your monthly limit. It resets at the start of next month.", s.MonthlyLimit)
	case s.GlobalLimit > 0 && s.PercentGlobal >= g.warnPercent:
		return fmt.Sprintf("You have used %.0f%% of your account token limit (%d tokens remaining).", s.PercentGlobal, s.RemainingGlobal)
	case s.MonthlyLimit > 0 && s.PercentMonthly >= g.warnPercent:
		return fmt.Sprintf("You have used %.0f%% of your monthly token limit (%d tokens remaining).", s.PercentMonthly, s.RemainingMonthly)
	}
	return ""
}

func globalExceeded(s *model.UsageSnapshot) bool {
	return s.GlobalLimit > 0 && s.RemainingGlobal <= 0
}

func monthlyExceeded(s *model.UsageSnapshot) bool {
	return s.MonthlyLimit > 0 && s.RemainingMonthly <= 0
}
