package venue

// orders.go — envío y cancelación de órdenes a mercado.

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/atombot/internal/domain"
)

type orderPayload struct {
	MarketID       string  `json:"market_id"`
	SubaccountID   string  `json:"subaccount_id"`
	OrderType      string  `json:"order_type"` // "buy" | "sell"
	Quantity       float64 `json:"quantity"`
	Price          float64 `json:"price"`
	Leverage       float64 `json:"leverage"`
	ReduceOnly     bool    `json:"reduce_only"`
	TradingAddress string  `json:"trading_address"`
}

type orderResponse struct {
	OrderHash string `json:"order_hash"`
}

// PlaceMarketOrder envía una orden a mercado y devuelve el hash con el
// que el venue la referencia. La orden sale apalancada al nivel fijo
// de la cuenta.
func (c *Client) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	orderType := "buy"
	if req.Direction == domain.Short {
		orderType = "sell"
	}

	payload := orderPayload{
		MarketID:       req.MarketID,
		SubaccountID:   subaccountID(req.TradingAddress),
		OrderType:      orderType,
		Quantity:       req.Quantity,
		Price:          req.Price,
		Leverage:       domain.AccountLeverage,
		TradingAddress: req.TradingAddress,
	}

	var resp orderResponse
	url := fmt.Sprintf("%s/api/exchange/derivative/v1/orders", c.indexerBase)
	if err := c.post(ctx, c.orderLimiter, url, payload, &resp); err != nil {
		return "", fmt.Errorf("venue.PlaceMarketOrder: %s %s: %w", orderType, req.MarketID, err)
	}
	if resp.OrderHash == "" {
		return "", fmt.Errorf("venue.PlaceMarketOrder: venue returned empty order hash for %s", req.MarketID)
	}
	return resp.OrderHash, nil
}

// CancelOrder cancela la orden referenciada en el mercado dado.
func (c *Client) CancelOrder(ctx context.Context, marketID, tradingAddress, orderRef string) error {
	payload := map[string]string{
		"market_id":     marketID,
		"subaccount_id": subaccountID(tradingAddress),
		"order_hash":    orderRef,
	}

	var resp struct {
		Success bool `json:"success"`
	}
	url := fmt.Sprintf("%s/api/exchange/derivative/v1/orders/cancel", c.indexerBase)
	if err := c.post(ctx, c.orderLimiter, url, payload, &resp); err != nil {
		return fmt.Errorf("venue.CancelOrder: %s: %w", orderRef, err)
	}
	if !resp.Success {
		return fmt.Errorf("venue.CancelOrder: venue rejected cancel of %s", orderRef)
	}
	return nil
}

// subaccountID deriva el subaccount por defecto de la dirección de
// trading: la dirección más 24 bytes a cero, como hace el venue.
func subaccountID(tradingAddress string) string {
	return tradingAddress + "000000000000000000000000"
}
