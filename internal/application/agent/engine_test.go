package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/atombot/internal/application/signal"
	"github.com/alejandrodnm/atombot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeVenue struct {
	mu        sync.Mutex
	price     float64
	priceErr  error
	placed    []domain.OrderRequest
	cancelErr error
	cancelled []string
	orderSeq  int
}

func (f *fakeVenue) FindMarket(ctx context.Context, asset string) (domain.Market, error) {
	return domain.Market{MarketID: "0x" + asset, Ticker: asset + "/USDT PERP", Asset: asset}, nil
}

func (f *fakeVenue) CurrentPrice(ctx context.Context, marketID string) (float64, error) {
	return f.price, f.priceErr
}

func (f *fakeVenue) Candles(ctx context.Context, marketID string, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (f *fakeVenue) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	f.orderSeq++
	return fmt.Sprintf("0xorder%d", f.orderSeq), nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, marketID, tradingAddress, orderRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderRef)
	return nil
}

func (f *fakeVenue) TradeHistory(ctx context.Context, marketID string, limit int) ([]domain.VenueTrade, error) {
	return nil, nil
}

func (f *fakeVenue) StakingYield(ctx context.Context) (float64, error) { return 0, nil }

func (f *fakeVenue) BankBalance(ctx context.Context, address, denom string) (float64, error) {
	return 0, nil
}

type fakeCustody struct {
	mu          sync.Mutex
	balance     float64
	balanceErr  error
	transferErr error
	transfers   []domain.BridgeRequest
}

func (f *fakeCustody) Balance(ctx context.Context, address string) (float64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeCustody) Transfer(ctx context.Context, req domain.BridgeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, req)
	return nil
}

type fakeStorage struct {
	mu       sync.Mutex
	accounts []domain.Account
	trades   []domain.Trade
	outcomes []domain.FactorCredit
}

func (f *fakeStorage) CreateAccount(ctx context.Context, acct *domain.Account) error { return nil }

func (f *fakeStorage) GetAccountByAddress(ctx context.Context, addr string) (*domain.Account, error) {
	return nil, nil
}

func (f *fakeStorage) LoadAccounts(ctx context.Context) ([]domain.Account, error) { return nil, nil }

func (f *fakeStorage) UpdateAccount(ctx context.Context, acct domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, acct)
	return nil
}

func (f *fakeStorage) CreateSession(ctx context.Context, id int64, sid string, exp time.Time) error {
	return nil
}

func (f *fakeStorage) AccountIDForSession(ctx context.Context, sid string) (int64, error) {
	return 0, nil
}

func (f *fakeStorage) AppendTrade(ctx context.Context, t domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeStorage) TradesForAccount(ctx context.Context, id int64) ([]domain.Trade, error) {
	return nil, nil
}

func (f *fakeStorage) RecordFactorOutcome(ctx context.Context, factor domain.Factor, profit float64, correct bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, domain.FactorCredit{Factor: factor, Profit: profit, Correct: correct})
	return nil
}

func (f *fakeStorage) PlatformStats(ctx context.Context) ([]domain.FactorStats, error) {
	return nil, nil
}

func (f *fakeStorage) Close() error { return nil }

type fakeTokens struct{ assets []string }

func (f *fakeTokens) TradableAssets(ctx context.Context) ([]string, error) {
	return f.assets, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []domain.CycleReport
}

func (f *fakeNotifier) CycleReport(ctx context.Context, r domain.CycleReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

type fakeSentiment struct{ web, social float64 }

func (f *fakeSentiment) WebSentiment(ctx context.Context, asset string) (float64, error) {
	return f.web, nil
}

func (f *fakeSentiment) SocialSentiment(ctx context.Context, asset string) (float64, error) {
	return f.social, nil
}

// --- fixture ---

type fixture struct {
	engine  *Engine
	venue   *fakeVenue
	custody *fakeCustody
	storage *fakeStorage
	tokens  *fakeTokens
}

// newFixture wires an engine whose account signals long on every asset:
// sentiment 1+1=2 combined and out-of-band weights of 5 per factor give
// a weighted total of 20, above the threshold. Production weights are
// clamped to 0.5; the inflated values here just force the signal path.
func newFixture(t *testing.T, assets ...string) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	venue := &fakeVenue{price: 10}
	custodyC := &fakeCustody{balance: 100000}
	storageC := &fakeStorage{}
	tokensC := &fakeTokens{assets: assets}

	acct := &domain.Account{
		ID:             1,
		CustodyAddress: "cosmos1test",
		TradingAddress: "inj1test",
		TotalCapital:   100000,
		BridgedCapital: 50000,
		Indicators:     []domain.Factor{domain.FactorSocial, domain.FactorMarket},
		Weights: map[domain.Factor]float64{
			domain.FactorSocial: 5,
			domain.FactorMarket: 5,
		},
		CreatedAt: time.Now(),
	}

	eng := NewEngine(acct, Deps{
		Venue:         venue,
		Custody:       custodyC,
		Storage:       storageC,
		Tokens:        tokensC,
		Notifier:      &fakeNotifier{},
		Signals:       signal.New(venue, &fakeSentiment{web: 1, social: 1}, 50, 500000, logger),
		Logger:        logger,
		CyclePeriod:   time.Hour,
		CheckInterval: time.Second,
	})
	return &fixture{engine: eng, venue: venue, custody: custodyC, storage: storageC, tokens: tokensC}
}

func (fx *fixture) seedPosition(pos domain.Position) {
	fx.engine.mu.Lock()
	defer fx.engine.mu.Unlock()
	fx.engine.positions[pos.Asset] = pos
	fx.engine.acct.ActiveCapital += fx.engine.acct.TradeSize()
	fx.engine.acct.BridgedCapital -= fx.engine.acct.TradeSize()
}

// --- tests ---

func TestRunCycle_OpensPositionOnSignal(t *testing.T) {
	fx := newFixture(t, "atom")

	report, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Opened)
	assert.Equal(t, 1, report.Evaluated)
	require.Len(t, fx.venue.placed, 1)

	order := fx.venue.placed[0]
	assert.Equal(t, domain.Long, order.Direction)
	assert.InDelta(t, 100*domain.AccountLeverage, order.Quantity, 0.0001, "nominal = tradeSize × leverage")

	acct, positions, _ := fx.engine.Snapshot()
	require.Len(t, positions, 1)
	assert.Equal(t, "atom", positions[0].Asset)
	assert.InDelta(t, 100, acct.ActiveCapital, 0.0001)
	assert.InDelta(t, 49900, acct.BridgedCapital, 0.0001)
}

func TestRunCycle_NeverDoublesUpOnAsset(t *testing.T) {
	fx := newFixture(t, "atom")

	_, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)
	report, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Opened, "el activo ya tiene posición")
	assert.Len(t, fx.venue.placed, 1)
}

func TestRunCycle_RespectsActiveCapitalCap(t *testing.T) {
	fx := newFixture(t, "atom")
	fx.engine.mu.Lock()
	fx.engine.acct.ActiveCapital = fx.engine.acct.MaxActiveCapital()
	fx.engine.mu.Unlock()

	report, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Opened)
	assert.Empty(t, fx.venue.placed)
	// Capital insuficiente dispara un intento de bridging para el
	// próximo ciclo.
	assert.NotEmpty(t, fx.custody.transfers)
}

func TestRunCycle_PrunesStopLoss(t *testing.T) {
	fx := newFixture(t) // universo vacío: solo gestión de posiciones
	fx.seedPosition(domain.Position{
		Asset:      "atom",
		MarketID:   "0xatom",
		Direction:  domain.Long,
		Amount:     2000,
		Leverage:   domain.AccountLeverage,
		EntryTime:  time.Now().Add(-2 * time.Hour),
		EntryPrice: 10,
		OrderRef:   "0xseed",
	})
	fx.venue.price = 9.4 // −6%, por debajo del stop-loss

	report, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pruned)
	assert.Contains(t, fx.venue.cancelled, "0xseed")
	_, positions, _ := fx.engine.Snapshot()
	assert.Empty(t, positions)
}

func TestRunCycle_ScheduledExitAfterMaxHolding(t *testing.T) {
	fx := newFixture(t)
	fx.seedPosition(domain.Position{
		Asset:      "atom",
		MarketID:   "0xatom",
		Direction:  domain.Long,
		Amount:     2000,
		Leverage:   domain.AccountLeverage,
		EntryTime:  time.Now().Add(-73 * time.Hour),
		EntryPrice: 10,
		OrderRef:   "0xseed",
	})
	fx.venue.price = 10.2 // +2%: ni stop-loss ni take-profit, cierra por tiempo

	report, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Pruned)
	assert.Equal(t, 1, report.Closed)
}

func TestClosePosition_RealizesProfitAndLearns(t *testing.T) {
	fx := newFixture(t)
	fx.seedPosition(domain.Position{
		Asset:      "atom",
		MarketID:   "0xatom",
		Direction:  domain.Long,
		Amount:     2000,
		Leverage:   domain.AccountLeverage,
		EntryTime:  time.Now().Add(-time.Hour),
		EntryPrice: 10,
		FactorScores: map[domain.Factor]float64{
			domain.FactorSocial: 10,
			domain.FactorMarket: 10,
		},
		OrderRef: "0xseed",
	})

	require.NoError(t, fx.engine.closePosition(context.Background(), "atom", 10.5))

	// profit = 0.5 × 2000 × 20 = 20000
	require.Len(t, fx.storage.trades, 1)
	trade := fx.storage.trades[0]
	assert.InDelta(t, 20000, trade.Profit, 0.0001)
	assert.InDelta(t, 10.5, trade.ExitPrice, 0.0001)

	acct, positions, _ := fx.engine.Snapshot()
	assert.Empty(t, positions)
	assert.InDelta(t, 0, acct.ActiveCapital, 0.0001)
	// margen de vuelta + profit desapalancado: 49900 + 100 + 1000
	assert.InDelta(t, 51000, acct.BridgedCapital, 0.0001)

	// Trade muy rentable: ambos factores acertaron y saturan el clamp.
	assert.InDelta(t, domain.WeightMax, acct.Weights[domain.FactorSocial], 0.0001)
	assert.InDelta(t, domain.WeightMax, acct.Weights[domain.FactorMarket], 0.0001)

	require.Len(t, fx.storage.outcomes, 2)
	for _, o := range fx.storage.outcomes {
		assert.True(t, o.Correct)
		assert.InDelta(t, 20000, o.Profit, 0.0001)
	}
}

func TestClosePosition_CancelFailureKeepsPosition(t *testing.T) {
	fx := newFixture(t)
	fx.seedPosition(domain.Position{
		Asset:     "atom",
		MarketID:  "0xatom",
		Direction: domain.Long,
		Amount:    2000,
		OrderRef:  "0xseed",
	})
	fx.venue.cancelErr = errors.New("venue down")

	err := fx.engine.closePosition(context.Background(), "atom", 10.5)
	require.Error(t, err)

	_, positions, _ := fx.engine.Snapshot()
	require.Len(t, positions, 1, "la posición se re-adjunta si el cancel falla")
	assert.Empty(t, fx.storage.trades)
}

func TestManualClose_UnknownAsset(t *testing.T) {
	fx := newFixture(t)
	err := fx.engine.ManualClose(context.Background(), "osmo")
	assert.Error(t, err)
}

func TestEnsureBridged_CreditsOnlyOnConfirmation(t *testing.T) {
	fx := newFixture(t)
	fx.engine.mu.Lock()
	fx.engine.acct.BridgedCapital = 0
	fx.engine.mu.Unlock()

	require.NoError(t, fx.engine.ensureBridged(context.Background()))

	require.Len(t, fx.custody.transfers, 1)
	// min(50% de 100000, 100000 − 0) = 50000
	assert.InDelta(t, 50000, fx.custody.transfers[0].Amount, 0.0001)
	acct, _, _ := fx.engine.Snapshot()
	assert.InDelta(t, 50000, acct.BridgedCapital, 0.0001)
}

func TestEnsureBridged_FailureCreditsNothing(t *testing.T) {
	fx := newFixture(t)
	fx.engine.mu.Lock()
	fx.engine.acct.BridgedCapital = 0
	fx.engine.mu.Unlock()
	fx.custody.transferErr = errors.New("ibc timeout")

	err := fx.engine.ensureBridged(context.Background())
	require.Error(t, err)

	acct, _, _ := fx.engine.Snapshot()
	assert.Zero(t, acct.BridgedCapital, "sin confirmación no hay crédito")
}

func TestRefreshCapital_FailureKeepsPreviousTotal(t *testing.T) {
	fx := newFixture(t)
	fx.custody.balanceErr = errors.New("lcd down")

	report, err := fx.engine.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.Warnings)
	acct, _, _ := fx.engine.Snapshot()
	assert.InDelta(t, 100000, acct.TotalCapital, 0.0001)
}

func TestPausedEngineOpensNothingUntilResumed(t *testing.T) {
	fx := newFixture(t, "atom")
	ctx := context.Background()

	// Con la pausa observada a mitad de ciclo no se abre nada, aunque
	// el universo tenga señal fuerte.
	require.NoError(t, fx.engine.Pause(ctx))
	report, err := fx.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Opened)
	assert.Empty(t, fx.venue.placed, "una cuenta pausada no coloca órdenes")

	require.NoError(t, fx.engine.Resume(ctx))
	report, err = fx.engine.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Opened)
	assert.Len(t, fx.venue.placed, 1)
}

func TestPauseResume(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.engine.Pause(ctx))
	assert.True(t, fx.engine.Paused())

	require.NoError(t, fx.engine.Resume(ctx))
	assert.False(t, fx.engine.Paused())

	// Ambas transiciones quedan persistidas.
	require.GreaterOrEqual(t, len(fx.storage.accounts), 2)
	assert.True(t, fx.storage.accounts[0].Paused)
	assert.False(t, fx.storage.accounts[len(fx.storage.accounts)-1].Paused)
}
