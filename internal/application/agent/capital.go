package agent

// capital.go — capital lifecycle: refreshing the custody balance and
// bridging funds toward the venue. All capital figures are derived from
// the live custody balance at the start of every cycle; the engine
// never invents capital.

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// refreshCapital reads the custody balance and updates the account's
// total capital. On failure the previous figure is kept: trading
// against a stale total beats trading against a made-up one.
func (e *Engine) refreshCapital(ctx context.Context, report *domain.CycleReport) error {
	e.mu.Lock()
	address := e.acct.CustodyAddress
	e.mu.Unlock()

	balance, err := e.deps.Custody.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("agent.refreshCapital: %w", err)
	}

	e.mu.Lock()
	e.acct.TotalCapital = balance
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		e.log.Warn("persist capital refresh failed", "error", err)
	}
	return nil
}

// ensureBridged moves funds from custody to the venue when there is
// room to bridge: min(50% of total, total − active). The bridged figure
// is only credited after the transfer confirms — a failed transfer
// credits nothing.
func (e *Engine) ensureBridged(ctx context.Context) error {
	e.mu.Lock()
	amount := e.acct.BridgeAmount()
	from := e.acct.CustodyAddress
	to := e.acct.TradingAddress
	e.mu.Unlock()

	if amount <= 0 {
		return nil
	}

	err := e.deps.Custody.Transfer(ctx, domain.BridgeRequest{
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
	})
	if err != nil {
		return fmt.Errorf("agent.ensureBridged: %w", err)
	}

	e.mu.Lock()
	e.acct.BridgedCapital += amount
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		e.log.Warn("persist bridge failed", "error", err)
	}
	e.log.Info("capital bridged", "amount", amount)
	return nil
}
