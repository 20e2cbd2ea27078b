package venue

// chain.go — consultas al LCD de la chain del venue: balances bancarios
// y comisión media de validadores como proxy de staking yield.

import (
	"context"
	"fmt"
	"strconv"
)

// denomExponent normaliza los micro-denoms de la chain a unidades
// enteras del activo. Todo lo que manejamos usa 6 decimales.
const denomExponent = 1e6

type balanceResponse struct {
	Balance struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

type validatorsResponse struct {
	Validators []struct {
		Commission struct {
			CommissionRates struct {
				Rate string `json:"rate"`
			} `json:"commission_rates"`
		} `json:"commission"`
	} `json:"validators"`
	Pagination struct {
		NextKey string `json:"next_key"`
	} `json:"pagination"`
}

// BankBalance devuelve el balance del denom en la dirección dada, ya
// dividido por el exponente del denom.
func (c *Client) BankBalance(ctx context.Context, address, denom string) (float64, error) {
	var resp balanceResponse
	url := fmt.Sprintf("%s/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s",
		c.lcdBase, address, denom)
	if err := c.get(ctx, c.chainLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("venue.BankBalance: %s: %w", address, err)
	}

	if resp.Balance.Amount == "" {
		return 0, nil // sin balance registrado para el denom
	}
	raw, err := strconv.ParseFloat(resp.Balance.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("venue.BankBalance: parse amount %q: %w", resp.Balance.Amount, err)
	}
	return raw / denomExponent, nil
}

// StakingYield devuelve la comisión media de los validadores activos de
// la chain, en [0, 1]. Se usa como proxy de atractivo de yield en la
// señal fundamental.
func (c *Client) StakingYield(ctx context.Context) (float64, error) {
	var resp validatorsResponse
	url := fmt.Sprintf("%s/cosmos/staking/v1beta1/validators?status=BOND_STATUS_BONDED&pagination.limit=100", c.lcdBase)
	if err := c.get(ctx, c.chainLimiter, url, &resp); err != nil {
		return 0, fmt.Errorf("venue.StakingYield: %w", err)
	}
	if len(resp.Validators) == 0 {
		return 0, fmt.Errorf("venue.StakingYield: no bonded validators returned")
	}

	var sum float64
	var n int
	for _, v := range resp.Validators {
		rate, err := strconv.ParseFloat(v.Commission.CommissionRates.Rate, 64)
		if err != nil {
			continue
		}
		sum += rate
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("venue.StakingYield: no parseable commission rates")
	}
	return sum / float64(n), nil
}
