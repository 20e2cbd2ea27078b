package signal

// aggregator.go — multi-factor signal evaluation for one asset. Pulls
// candles, public trades, chain metrics and sentiment, scores every
// enabled factor, applies the account's weights and emits a direction
// when the weighted total clears the decision threshold.
//
// Data source failures never abort an evaluation: the affected factor
// scores neutral and the failure is surfaced as a warning on the
// result. A venue outage must not take the whole cycle down with it.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/atombot/internal/domain"
	"github.com/alejandrodnm/atombot/internal/ports"
)

const tradeHistoryLimit = 50

// Fundamental contribution multipliers on top of the account weight,
// matching how the composite is split across the four factors.
const (
	tokenomicsShare = 0.30
	onchainShare    = 0.25
	ecosystemShare  = 0.25
	tvlShare        = 0.20
	fundingShare    = 0.25
)

// Result is the outcome of evaluating one asset for one account.
type Result struct {
	Direction    domain.Direction
	Confidence   float64
	FactorScores map[domain.Factor]float64 // weighted contributions
	Trends       map[domain.Factor]float64 // normalized sub-scores, monitoring only
	OK           bool                      // true when the threshold was cleared
	Warnings     []string
}

// Aggregator evaluates assets against the venue and sentiment sources.
type Aggregator struct {
	venue          ports.VenueClient
	sentiment      ports.SentimentProvider
	candleLimit    int
	whaleThreshold float64
	logger         *slog.Logger
}

// New creates an Aggregator.
func New(venue ports.VenueClient, sentiment ports.SentimentProvider, candleLimit int, whaleThreshold float64, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		venue:          venue,
		sentiment:      sentiment,
		candleLimit:    candleLimit,
		whaleThreshold: whaleThreshold,
		logger:         logger,
	}
}

// Evaluate scores one asset for the account. Every external read
// happens at most once per call; sub-scores are reused across factors.
func (a *Aggregator) Evaluate(ctx context.Context, acct *domain.Account, market domain.Market) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{
		FactorScores: make(map[domain.Factor]float64, len(acct.Indicators)),
		Trends:       make(map[domain.Factor]float64, len(acct.Indicators)),
	}

	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		res.Warnings = append(res.Warnings, msg)
		a.logger.Warn("signal input degraded", "account", acct.ID, "asset", market.Asset, "detail", msg)
	}

	// Technical block: one candle fetch feeds all five factors.
	var candles []domain.Candle
	if needsTechnical(acct) {
		var err error
		candles, err = a.venue.Candles(ctx, market.MarketID, a.candleLimit)
		if err != nil {
			warn("candles unavailable: %v", err)
			candles = nil
		}
	}
	a.scoreTechnical(acct, candles, &res)

	// Whale pressure: fetched once, reused by the whale factor and the
	// fundamental adjustment.
	whale := 0.0
	if acct.HasIndicator(domain.FactorWhale) || needsFundamental(acct) {
		trades, err := a.venue.TradeHistory(ctx, market.MarketID, tradeHistoryLimit)
		if err != nil {
			warn("trade history unavailable: %v", err)
		} else {
			whale = whaleScore(asTradeViews(trades), a.whaleThreshold)
		}
	}
	if acct.HasIndicator(domain.FactorWhale) {
		res.FactorScores[domain.FactorWhale] = whale * acct.Weights[domain.FactorWhale]
		res.Trends[domain.FactorWhale] = whale
	}

	a.scoreFundamental(ctx, acct, whale, warn, &res)
	a.scoreSentiment(ctx, acct, market.Asset, warn, &res)

	total := domain.TotalScore(res.FactorScores)
	res.Direction, res.Confidence, res.OK = domain.Decide(total)

	a.logger.Debug("asset evaluated",
		"account", acct.ID, "asset", market.Asset,
		"total_score", total, "signal", res.OK, "direction", res.Direction)
	return res, nil
}

// scoreTechnical applies the candle-based factors the account enabled.
func (a *Aggregator) scoreTechnical(acct *domain.Account, candles []domain.Candle, res *Result) {
	technical := map[domain.Factor]func([]domain.Candle) float64{
		domain.FactorICT:     ictScore,
		domain.FactorElliott: elliottScore,
		domain.FactorEMA:     emaScore,
		domain.FactorRSI:     rsiScore,
		domain.FactorWyckoff: wyckoffScore,
	}

	for factor, fn := range technical {
		if !acct.HasIndicator(factor) {
			continue
		}
		raw := 0.0
		if len(candles) > 0 {
			raw = fn(candles)
		}
		res.FactorScores[factor] = raw * acct.Weights[factor]
		res.Trends[factor] = raw / 10
	}
}

// scoreFundamental reads staking yield and on-chain volume, builds the
// composite and spreads it across the fundamental factors.
func (a *Aggregator) scoreFundamental(ctx context.Context, acct *domain.Account, whale float64, warn func(string, ...any), res *Result) {
	if !needsFundamental(acct) {
		return
	}

	yield, err := a.venue.StakingYield(ctx)
	if err != nil {
		warn("staking yield unavailable: %v", err)
		yield = 0
	}
	volume, err := a.venue.BankBalance(ctx, acct.TradingAddress, "uatom")
	if err != nil {
		warn("bank balance unavailable: %v", err)
		volume = 0
	}

	b := fundamentalScore(yield, volume, whale)

	shares := map[domain.Factor]float64{
		domain.FactorTokenomics: tokenomicsShare,
		domain.FactorOnchain:    onchainShare,
		domain.FactorEcosystem:  ecosystemShare,
		domain.FactorTVL:        tvlShare,
		domain.FactorFunding:    fundingShare,
	}
	for factor, share := range shares {
		if !acct.HasIndicator(factor) {
			continue
		}
		res.FactorScores[factor] = b.Composite * acct.Weights[factor] * share
	}

	trends := map[domain.Factor]float64{
		domain.FactorTokenomics: b.Tokenomics / 10,
		domain.FactorOnchain:    b.Onchain / 10,
		domain.FactorEcosystem:  b.Ecosystem / 10,
		domain.FactorTVL:        b.TVL / 10,
		domain.FactorFunding:    yield * fundingShare,
	}
	for factor, v := range trends {
		if acct.HasIndicator(factor) {
			res.Trends[factor] = v
		}
	}
}

// scoreSentiment scores news and social text, feeding the combined
// sentiment into both the social and market factors.
func (a *Aggregator) scoreSentiment(ctx context.Context, acct *domain.Account, asset string, warn func(string, ...any), res *Result) {
	if !acct.HasIndicator(domain.FactorSocial) && !acct.HasIndicator(domain.FactorMarket) {
		return
	}

	web, err := a.sentiment.WebSentiment(ctx, asset)
	if err != nil {
		warn("web sentiment unavailable, scored neutral: %v", err)
		web = 0
	}
	social, err := a.sentiment.SocialSentiment(ctx, asset)
	if err != nil {
		warn("social sentiment unavailable, scored neutral: %v", err)
		social = 0
	}
	total := web + social

	if acct.HasIndicator(domain.FactorSocial) {
		res.FactorScores[domain.FactorSocial] = total * acct.Weights[domain.FactorSocial]
		res.Trends[domain.FactorSocial] = social
	}
	if acct.HasIndicator(domain.FactorMarket) {
		res.FactorScores[domain.FactorMarket] = total * acct.Weights[domain.FactorMarket]
		res.Trends[domain.FactorMarket] = web
	}
}

func needsTechnical(acct *domain.Account) bool {
	for _, f := range acct.Indicators {
		if f.Category() == domain.CategoryTechnical {
			return true
		}
	}
	return false
}

// needsFundamental incluye funding: pertenece a la categoría de
// sentimiento pero se deriva del mismo composite fundamental.
func needsFundamental(acct *domain.Account) bool {
	if acct.HasIndicator(domain.FactorFunding) {
		return true
	}
	for _, f := range acct.Indicators {
		if f.Category() == domain.CategoryFundamental {
			return true
		}
	}
	return false
}

func asTradeViews(trades []domain.VenueTrade) []tradeView {
	out := make([]tradeView, len(trades))
	for i, t := range trades {
		out[i] = tradeView{Price: t.Price, Quantity: t.Quantity, Receiver: t.Receiver}
	}
	return out
}
