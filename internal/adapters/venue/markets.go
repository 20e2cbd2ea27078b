package venue

// markets.go — descubrimiento de mercados, precios, velas e histórico
// público de trades del indexer del venue.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
)

type marketsResponse struct {
	Markets []marketInfo `json:"markets"`
}

type marketInfo struct {
	MarketID     string `json:"market_id"`
	Ticker       string `json:"ticker"`
	MarketStatus string `json:"market_status"`
}

type marketDetailResponse struct {
	Market struct {
		MarketID  string `json:"market_id"`
		MarkPrice string `json:"mark_price"`
	} `json:"market"`
}

type candlesResponse struct {
	Candles []struct {
		Timestamp int64  `json:"t"` // epoch millis
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
	} `json:"candles"`
}

type tradesResponse struct {
	Trades []struct {
		Price    string `json:"price"`
		Quantity string `json:"quantity"`
		Receiver string `json:"subaccount_id"`
	} `json:"trades"`
}

// FindMarket resuelve el mercado PERP del activo dado. El ticker del
// venue tiene la forma "ATOM/USDT PERP": comparamos el símbolo base.
func (c *Client) FindMarket(ctx context.Context, asset string) (domain.Market, error) {
	var resp marketsResponse
	url := fmt.Sprintf("%s/api/exchange/derivative/v1/markets?market_status=active", c.indexerBase)
	if err := c.get(ctx, c.marketLimiter, url, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("venue.FindMarket: %s: %w", asset, err)
	}

	want := strings.ToUpper(asset)
	for _, m := range resp.Markets {
		base, _, found := strings.Cut(m.Ticker, "/")
		if found && strings.EqualFold(base, want) {
			return domain.Market{
				MarketID: m.MarketID,
				Ticker:   m.Ticker,
				Asset:    strings.ToLower(asset),
			}, nil
		}
	}
	return domain.Market{}, fmt.Errorf("venue.FindMarket: no active market for %q", asset)
}

// CurrentPrice devuelve el mark price del mercado.
func (c *Client) CurrentPrice(ctx context.Context, marketID string) (float64, error) {
	var resp marketDetailResponse
	url := fmt.Sprintf("%s/api/exchange/derivative/v1/markets/%s", c.indexerBase, marketID)
	if err := c.get(ctx, c.marketLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("venue.CurrentPrice: %s: %w", marketID, err)
	}

	price, err := strconv.ParseFloat(resp.Market.MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("venue.CurrentPrice: parse mark price %q: %w", resp.Market.MarkPrice, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("venue.CurrentPrice: non-positive price for %s", marketID)
	}
	return price, nil
}

// Candles devuelve las últimas `limit` velas de 1h del mercado, en
// orden cronológico.
func (c *Client) Candles(ctx context.Context, marketID string, limit int) ([]domain.Candle, error) {
	var resp candlesResponse
	url := fmt.Sprintf("%s/api/chronos/v1/market/candles?marketID=%s&resolution=60&countback=%d",
		c.indexerBase, marketID, limit)
	if err := c.get(ctx, c.marketLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("venue.Candles: %s: %w", marketID, err)
	}

	candles := make([]domain.Candle, 0, len(resp.Candles))
	for _, raw := range resp.Candles {
		candle, err := parseCandle(raw.Open, raw.High, raw.Low, raw.Close, raw.Volume)
		if err != nil {
			return nil, fmt.Errorf("venue.Candles: %s: %w", marketID, err)
		}
		candle.Timestamp = time.UnixMilli(raw.Timestamp)
		candles = append(candles, candle)
	}
	return candles, nil
}

// TradeHistory devuelve los últimos trades públicos del mercado.
func (c *Client) TradeHistory(ctx context.Context, marketID string, limit int) ([]domain.VenueTrade, error) {
	var resp tradesResponse
	url := fmt.Sprintf("%s/api/exchange/derivative/v1/trades?marketId=%s&limit=%d",
		c.indexerBase, marketID, limit)
	if err := c.get(ctx, c.marketLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("venue.TradeHistory: %s: %w", marketID, err)
	}

	trades := make([]domain.VenueTrade, 0, len(resp.Trades))
	for _, raw := range resp.Trades {
		price, err := strconv.ParseFloat(raw.Price, 64)
		if err != nil {
			continue // trade con precio corrupto, lo ignoramos
		}
		qty, err := strconv.ParseFloat(raw.Quantity, 64)
		if err != nil {
			continue
		}
		trades = append(trades, domain.VenueTrade{
			Price:    price,
			Quantity: qty,
			Receiver: raw.Receiver,
		})
	}
	return trades, nil
}

func parseCandle(o, h, l, cl, v string) (domain.Candle, error) {
	var candle domain.Candle
	var err error
	if candle.Open, err = strconv.ParseFloat(o, 64); err != nil {
		return candle, fmt.Errorf("parse open %q: %w", o, err)
	}
	if candle.High, err = strconv.ParseFloat(h, 64); err != nil {
		return candle, fmt.Errorf("parse high %q: %w", h, err)
	}
	if candle.Low, err = strconv.ParseFloat(l, 64); err != nil {
		return candle, fmt.Errorf("parse low %q: %w", l, err)
	}
	if candle.Close, err = strconv.ParseFloat(cl, 64); err != nil {
		return candle, fmt.Errorf("parse close %q: %w", cl, err)
	}
	if candle.Volume, err = strconv.ParseFloat(v, 64); err != nil {
		return candle, fmt.Errorf("parse volume %q: %w", v, err)
	}
	return candle, nil
}
