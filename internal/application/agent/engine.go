package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/atombot/internal/application/signal"
	"github.com/alejandrodnm/atombot/internal/domain"
	"github.com/alejandrodnm/atombot/internal/ports"
)

// Deps bundles the external dependencies of an account engine.
type Deps struct {
	Venue    ports.VenueClient
	Custody  ports.CustodyClient
	Storage  ports.Storage
	Tokens   ports.TokenSource
	Notifier ports.Notifier
	Signals  *signal.Aggregator
	Logger   *slog.Logger

	CyclePeriod   time.Duration // nominal evaluation period (1h)
	CheckInterval time.Duration // pause-flag observation interval (≤60s)
}

// Engine runs the evaluation loop of ONE account. Every account gets
// its own Engine and its own goroutine; engines never share mutable
// state. The engine mutex guards the account and the open positions,
// and is never held across a network call: state is snapshotted,
// external work happens unlocked, and mutations are re-applied after.
type Engine struct {
	deps Deps
	log  *slog.Logger

	mu        sync.Mutex
	acct      *domain.Account
	positions map[string]domain.Position
	paused    bool
	lastCycle domain.CycleReport

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEngine creates an engine for the account. The account pointer is
// owned by the engine from here on.
func NewEngine(acct *domain.Account, deps Deps) *Engine {
	return &Engine{
		deps:      deps,
		log:       deps.Logger.With("account", acct.ID),
		acct:      acct,
		positions: make(map[string]domain.Position),
		paused:    acct.Paused,
		done:      make(chan struct{}),
	}
}

// Start launches the engine loop. Safe to call more than once: only the
// first call starts the goroutine. A paused account still gets its
// loop — the pause flag is observed inside, so unpausing never needs a
// new goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		go e.loop(runCtx)
	})
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// Pause stops future cycles. Open positions stay open and untouched:
// pausing freezes management, it does not liquidate.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	e.paused = true
	e.acct.Paused = true
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("agent.Pause: persist: %w", err)
	}
	e.log.Info("engine paused")
	return nil
}

// Resume re-enables cycles on the existing loop.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	e.paused = false
	e.acct.Paused = false
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("agent.Resume: persist: %w", err)
	}
	e.log.Info("engine resumed")
	return nil
}

// Paused reports the current pause flag.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Snapshot returns a copy of the account, the open positions and the
// last cycle report, for status endpoints.
func (e *Engine) Snapshot() (domain.Account, []domain.Position, domain.CycleReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := *e.acct
	acct.Indicators = append([]domain.Factor(nil), e.acct.Indicators...)
	acct.Weights = e.acct.CloneWeights()

	positions := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		positions = append(positions, p)
	}
	return acct, positions, e.lastCycle
}

// ApplyWeights replaces the account's factor weights. Validation (keys,
// sum bounds) happens in the registry before this is called.
func (e *Engine) ApplyWeights(ctx context.Context, weights map[domain.Factor]float64) error {
	e.mu.Lock()
	e.acct.Weights = weights
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("agent.ApplyWeights: persist: %w", err)
	}
	e.log.Info("weights overridden")
	return nil
}

// ApplyIndicators replaces the enabled factor set.
func (e *Engine) ApplyIndicators(ctx context.Context, indicators []domain.Factor) error {
	e.mu.Lock()
	e.acct.Indicators = indicators
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		return fmt.Errorf("agent.ApplyIndicators: persist: %w", err)
	}
	e.log.Info("indicators overridden", "count", len(indicators))
	return nil
}

// loop is the cooperative scheduler of the account: it wakes up every
// CheckInterval to observe cancellation and the pause flag, and runs a
// full cycle once per CyclePeriod. A pause takes effect within one
// check interval, never mid-cycle — cycles are atomic with respect to
// pausing.
func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	// Make funds available before the first evaluation, like the
	// account did at signup.
	if !e.Paused() {
		if err := e.ensureBridged(ctx); err != nil {
			e.log.Warn("initial bridge failed", "error", err)
		}
	}

	ticker := time.NewTicker(e.deps.CheckInterval)
	defer ticker.Stop()

	nextCycle := time.Now().Add(e.deps.CyclePeriod)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine loop stopped")
			return
		case now := <-ticker.C:
			if e.Paused() || now.Before(nextCycle) {
				continue
			}
			report, err := e.RunCycle(ctx)
			if err != nil {
				e.log.Error("cycle failed", "error", err)
			} else if err := e.deps.Notifier.CycleReport(ctx, report); err != nil {
				e.log.Warn("cycle report failed", "error", err)
			}
			nextCycle = time.Now().Add(e.deps.CyclePeriod)
		}
	}
}

// RunCycle executes one full evaluation cycle: refresh capital → prune
// losers and stuck positions → scheduled exits → evaluate the universe
// and open new positions. Exported so the registry can trigger a cycle
// manually and tests can drive the engine synchronously.
func (e *Engine) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	report := domain.CycleReport{At: time.Now()}

	e.mu.Lock()
	report.AccountID = e.acct.ID
	e.mu.Unlock()

	if err := e.refreshCapital(ctx, &report); err != nil {
		// Stale capital figures are survivable; position management
		// still runs against the previous totals.
		report.Warnings = append(report.Warnings, fmt.Sprintf("capital refresh failed: %v", err))
	}

	// One price quote per asset per cycle, shared by prune, exit and
	// close decisions.
	quotes := make(map[string]float64)

	pruned := e.prunePositions(ctx, quotes, &report)
	report.Pruned = pruned

	closed := e.scheduledExits(ctx, quotes, &report)
	report.Closed = closed

	e.evaluateAndOpen(ctx, quotes, &report)

	e.mu.Lock()
	report.TotalCapital = e.acct.TotalCapital
	report.BridgedCapital = e.acct.BridgedCapital
	report.ActiveCapital = e.acct.ActiveCapital
	for _, p := range e.positions {
		report.OpenPositions = append(report.OpenPositions, p)
	}
	e.lastCycle = report
	e.mu.Unlock()

	e.log.Info("cycle complete",
		"evaluated", report.Evaluated, "opened", report.Opened,
		"pruned", report.Pruned, "closed", report.Closed,
		"open_positions", len(report.OpenPositions))
	return report, nil
}

// quote returns the cycle-cached price for the asset, fetching it from
// the venue at most once per cycle.
func (e *Engine) quote(ctx context.Context, quotes map[string]float64, marketID, asset string) (float64, error) {
	if price, ok := quotes[asset]; ok {
		return price, nil
	}
	price, err := e.deps.Venue.CurrentPrice(ctx, marketID)
	if err != nil {
		return 0, err
	}
	quotes[asset] = price
	return price, nil
}
