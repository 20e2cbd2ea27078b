package agent

// positions.go — position lifecycle: pruning, scheduled exits, signal
// evaluation and order placement. The engine is the only writer of the
// positions map; at most one position per asset.

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// prunePositions closes positions that hit the stop-loss or have been
// stuck sideways for too long. Returns how many were closed.
func (e *Engine) prunePositions(ctx context.Context, quotes map[string]float64, report *domain.CycleReport) int {
	pruned := 0
	now := time.Now()

	for _, pos := range e.snapshotPositions() {
		price, err := e.quote(ctx, quotes, pos.MarketID, pos.Asset)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("prune %s: no quote: %v", pos.Asset, err))
			continue
		}

		reason, ok := pos.ShouldPrune(now, price)
		if !ok {
			continue
		}
		if err := e.closePosition(ctx, pos.Asset, price); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("prune %s: %v", pos.Asset, err))
			continue
		}
		e.log.Info("position pruned", "asset", pos.Asset, "reason", string(reason))
		pruned++
	}
	return pruned
}

// scheduledExits closes positions that reached the maximum holding time
// or the take-profit target.
func (e *Engine) scheduledExits(ctx context.Context, quotes map[string]float64, report *domain.CycleReport) int {
	closed := 0
	now := time.Now()

	for _, pos := range e.snapshotPositions() {
		price, err := e.quote(ctx, quotes, pos.MarketID, pos.Asset)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("exit %s: no quote: %v", pos.Asset, err))
			continue
		}
		if !pos.ShouldExit(now, price) {
			continue
		}
		if err := e.closePosition(ctx, pos.Asset, price); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("exit %s: %v", pos.Asset, err))
			continue
		}
		e.log.Info("scheduled exit", "asset", pos.Asset, "held", pos.HeldFor(now).String())
		closed++
	}
	return closed
}

// evaluateAndOpen walks the tradable universe, evaluates every asset
// without an open position and opens where the signal clears the
// threshold.
func (e *Engine) evaluateAndOpen(ctx context.Context, quotes map[string]float64, report *domain.CycleReport) {
	assets, err := e.deps.Tokens.TradableAssets(ctx)
	if err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("token discovery failed: %v", err))
		return
	}

	for _, asset := range assets {
		if ctx.Err() != nil {
			return
		}
		// A pause that lands mid-cycle stops further opens; positions
		// already managed this cycle stay managed.
		if e.Paused() {
			return
		}
		if e.hasPosition(asset) {
			continue
		}

		market, err := e.deps.Venue.FindMarket(ctx, asset)
		if err != nil {
			// Not every discovered token has a derivative market.
			e.log.Debug("no market for asset", "asset", asset)
			report.Skipped++
			continue
		}

		res, err := e.deps.Signals.Evaluate(ctx, e.accountView(), market)
		if err != nil {
			return // only context cancellation reaches here
		}
		report.Evaluated++
		report.Warnings = append(report.Warnings, res.Warnings...)
		e.recordTrends(res.Trends)

		if !res.OK {
			report.Skipped++
			continue
		}

		price, err := e.quote(ctx, quotes, market.MarketID, asset)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("open %s: no quote: %v", asset, err))
			continue
		}
		e.openPosition(ctx, market, res.Direction, res.FactorScores, price, report)
	}
}

// openPosition places a market order and registers the position. When
// capital preconditions fail it tries to bridge more funds so the next
// cycle can open, and skips this one.
func (e *Engine) openPosition(
	ctx context.Context,
	market domain.Market,
	direction domain.Direction,
	factorScores map[domain.Factor]float64,
	price float64,
	report *domain.CycleReport,
) {
	e.mu.Lock()
	if !e.acct.CanOpen() {
		e.mu.Unlock()
		report.Skipped++
		if err := e.ensureBridged(ctx); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("open %s: insufficient capital and bridge failed: %v", market.Asset, err))
		}
		return
	}
	tradeSize := e.acct.TradeSize()
	tradingAddress := e.acct.TradingAddress
	e.mu.Unlock()

	amount := tradeSize * domain.AccountLeverage

	orderRef, err := e.deps.Venue.PlaceMarketOrder(ctx, domain.OrderRequest{
		MarketID:       market.MarketID,
		TradingAddress: tradingAddress,
		Direction:      direction,
		Quantity:       amount,
		Price:          price,
	})
	if err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("open %s: order rejected: %v", market.Asset, err))
		return
	}

	e.mu.Lock()
	e.positions[market.Asset] = domain.Position{
		Asset:        market.Asset,
		MarketID:     market.MarketID,
		Direction:    direction,
		Amount:       amount,
		Leverage:     domain.AccountLeverage,
		EntryTime:    time.Now(),
		EntryPrice:   price,
		FactorScores: factorScores,
		OrderRef:     orderRef,
	}
	e.acct.ActiveCapital += tradeSize
	e.acct.BridgedCapital -= tradeSize
	acct := *e.acct
	e.mu.Unlock()

	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		e.log.Warn("persist open failed", "error", err)
	}
	e.log.Info("position opened",
		"asset", market.Asset, "direction", string(direction),
		"price", price, "nominal", amount)
	report.Opened++
}

// closePosition cancels the venue order, realizes the P&L, releases the
// capital, learns from the outcome and records the trade. The position
// is detached before the venue call and re-attached if the cancel
// fails, so a venue outage never loses track of an open position.
func (e *Engine) closePosition(ctx context.Context, asset string, price float64) error {
	e.mu.Lock()
	pos, ok := e.positions[asset]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	delete(e.positions, asset)
	tradingAddress := e.acct.TradingAddress
	e.mu.Unlock()

	if err := e.deps.Venue.CancelOrder(ctx, pos.MarketID, tradingAddress, pos.OrderRef); err != nil {
		e.mu.Lock()
		e.positions[asset] = pos
		e.mu.Unlock()
		return fmt.Errorf("agent.closePosition: cancel %s: %w", pos.OrderRef, err)
	}

	profit := pos.Profit(price)

	e.mu.Lock()
	tradeSize := e.acct.TradeSize()
	e.acct.ActiveCapital -= tradeSize
	// The margin comes back plus the realized P&L, de-levered.
	e.acct.BridgedCapital += tradeSize + profit/pos.Leverage
	newWeights, credits := domain.UpdateWeights(
		e.acct.Weights, pos.FactorScores, profit, tradeSize, pos.Direction)
	e.acct.Weights = newWeights
	acct := *e.acct
	accountID := e.acct.ID
	e.mu.Unlock()

	trade := domain.Trade{
		AccountID:    accountID,
		Asset:        asset,
		Direction:    pos.Direction,
		EntryTime:    pos.EntryTime,
		ExitTime:     time.Now(),
		Profit:       profit,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    price,
		FactorScores: pos.FactorScores,
	}
	if err := e.deps.Storage.AppendTrade(ctx, trade); err != nil {
		e.log.Warn("persist trade failed", "error", err)
	}
	for _, credit := range credits {
		if err := e.deps.Storage.RecordFactorOutcome(ctx, credit.Factor, credit.Profit, credit.Correct); err != nil {
			e.log.Warn("persist factor outcome failed", "factor", string(credit.Factor), "error", err)
		}
	}
	if err := e.deps.Storage.UpdateAccount(ctx, acct); err != nil {
		e.log.Warn("persist close failed", "error", err)
	}

	e.log.Info("position closed", "asset", asset, "profit", profit)
	return nil
}

// ManualClose closes one position at the current market price, outside
// the cycle schedule.
func (e *Engine) ManualClose(ctx context.Context, asset string) error {
	e.mu.Lock()
	pos, ok := e.positions[asset]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent.ManualClose: no open position for %q", asset)
	}

	price, err := e.deps.Venue.CurrentPrice(ctx, pos.MarketID)
	if err != nil {
		return fmt.Errorf("agent.ManualClose: quote %s: %w", asset, err)
	}
	return e.closePosition(ctx, asset, price)
}

// --- small locked helpers ---

func (e *Engine) snapshotPositions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out
}

func (e *Engine) hasPosition(asset string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.positions[asset]
	return ok
}

// accountView returns a read snapshot for the signal aggregator.
func (e *Engine) accountView() *domain.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct := *e.acct
	acct.Indicators = append([]domain.Factor(nil), e.acct.Indicators...)
	acct.Weights = e.acct.CloneWeights()
	return &acct
}

// recordTrends keeps the latest normalized sub-scores for monitoring.
func (e *Engine) recordTrends(trends map[domain.Factor]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.acct.Trends == nil {
		e.acct.Trends = make(map[domain.Factor]float64, len(trends))
	}
	for f, v := range trends {
		e.acct.Trends[f] = v
	}
}
