package ports

import (
	"context"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// VenueClient habla con el venue de derivados: descubrimiento de
// mercados, precios, velas, órdenes y métricas de chain.
type VenueClient interface {
	// FindMarket resuelve el mercado de derivados del activo dado.
	FindMarket(ctx context.Context, asset string) (domain.Market, error)

	// CurrentPrice devuelve el último precio del mercado.
	CurrentPrice(ctx context.Context, marketID string) (float64, error)

	// Candles devuelve las últimas velas del mercado (1h por defecto).
	Candles(ctx context.Context, marketID string, limit int) ([]domain.Candle, error)

	// PlaceMarketOrder envía una orden a mercado y devuelve su referencia.
	PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (orderRef string, err error)

	// CancelOrder cancela la orden referenciada.
	CancelOrder(ctx context.Context, marketID, tradingAddress, orderRef string) error

	// TradeHistory devuelve los últimos trades públicos del mercado.
	TradeHistory(ctx context.Context, marketID string, limit int) ([]domain.VenueTrade, error)

	// StakingYield devuelve la comisión media de los validadores de la
	// chain del venue, usada como proxy de yield.
	StakingYield(ctx context.Context) (float64, error)

	// BankBalance devuelve el balance del denom en la dirección dada,
	// ya normalizado a unidades enteras del activo.
	BankBalance(ctx context.Context, address, denom string) (float64, error)
}
