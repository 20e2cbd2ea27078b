package custody

// client.go — chain de custodia: balance en ATOM y bridging IBC hacia
// la chain del venue. Transfer solo devuelve nil con la transferencia
// confirmada on-chain; un fallo nunca deja crédito parcial.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	denom         = "uatom"
	denomExponent = 1e6

	lcdRatePerSec = 10
	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// Polling de confirmación del tx IBC.
	confirmPollEvery = 3 * time.Second
	confirmTimeout   = 2 * time.Minute
)

// Client habla con el LCD de la chain de custodia.
type Client struct {
	http       *http.Client
	lcdBase    string
	ibcChannel string
	limiter    *rate.Limiter
}

// NewClient crea un Client contra el LCD dado, usando el canal IBC
// configurado hacia la chain del venue.
func NewClient(lcdBase, ibcChannel string) *Client {
	return &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		lcdBase:    lcdBase,
		ibcChannel: ibcChannel,
		limiter:    rate.NewLimiter(lcdRatePerSec, 5),
	}
}

type balanceResponse struct {
	Balance struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

// Balance devuelve el capital en ATOM de la dirección.
func (c *Client) Balance(ctx context.Context, address string) (float64, error) {
	var resp balanceResponse
	url := fmt.Sprintf("%s/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s",
		c.lcdBase, address, denom)
	if err := c.get(ctx, url, &resp); err != nil {
		return 0, fmt.Errorf("custody.Balance: %s: %w", address, err)
	}

	if resp.Balance.Amount == "" {
		return 0, nil
	}
	raw, err := strconv.ParseFloat(resp.Balance.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("custody.Balance: parse amount %q: %w", resp.Balance.Amount, err)
	}
	return raw / denomExponent, nil
}

type transferPayload struct {
	SourceChannel string `json:"source_channel"`
	Sender        string `json:"sender"`
	Receiver      string `json:"receiver"`
	Token         struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"token"`
	TimeoutTimestamp int64 `json:"timeout_timestamp"`
}

type broadcastResponse struct {
	TxResponse struct {
		TxHash string `json:"txhash"`
		Code   int    `json:"code"`
		RawLog string `json:"raw_log"`
	} `json:"tx_response"`
}

// Transfer mueve fondos por IBC hacia la chain del venue. Hace el
// broadcast del MsgTransfer y después espera a que el tx confirme.
// Un timeout o un código de error del tx devuelven error: el que llama
// no debe acreditar nada.
func (c *Client) Transfer(ctx context.Context, req domain.BridgeRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("custody.Transfer: non-positive amount %f", req.Amount)
	}

	var payload transferPayload
	payload.SourceChannel = c.ibcChannel
	payload.Sender = req.FromAddress
	payload.Receiver = req.ToAddress
	payload.Token.Denom = denom
	payload.Token.Amount = strconv.FormatInt(int64(math.Round(req.Amount*denomExponent)), 10)
	payload.TimeoutTimestamp = time.Now().Add(10 * time.Minute).UnixNano()

	var resp broadcastResponse
	url := fmt.Sprintf("%s/cosmos/tx/v1beta1/txs", c.lcdBase)
	if err := c.post(ctx, url, payload, &resp); err != nil {
		return fmt.Errorf("custody.Transfer: broadcast: %w", err)
	}
	if resp.TxResponse.Code != 0 {
		return fmt.Errorf("custody.Transfer: tx rejected (code %d): %s",
			resp.TxResponse.Code, resp.TxResponse.RawLog)
	}
	if resp.TxResponse.TxHash == "" {
		return fmt.Errorf("custody.Transfer: broadcast returned empty tx hash")
	}

	if err := c.waitConfirmed(ctx, resp.TxResponse.TxHash); err != nil {
		return fmt.Errorf("custody.Transfer: %w", err)
	}
	return nil
}

type txStatusResponse struct {
	TxResponse struct {
		Height string `json:"height"`
		Code   int    `json:"code"`
		RawLog string `json:"raw_log"`
	} `json:"tx_response"`
}

// waitConfirmed espera a que el tx aparezca incluido en un bloque con
// código 0, o falla al agotar el timeout.
func (c *Client) waitConfirmed(ctx context.Context, txHash string) error {
	deadline := time.Now().Add(confirmTimeout)
	url := fmt.Sprintf("%s/cosmos/tx/v1beta1/txs/%s", c.lcdBase, txHash)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(confirmPollEvery):
		}

		var resp txStatusResponse
		if err := c.get(ctx, url, &resp); err != nil {
			continue // el LCD devuelve 404 hasta que el tx se indexa
		}
		if resp.TxResponse.Height == "" || resp.TxResponse.Height == "0" {
			continue
		}
		if resp.TxResponse.Code != 0 {
			return fmt.Errorf("tx %s failed on-chain (code %d): %s",
				txHash, resp.TxResponse.Code, resp.TxResponse.RawLog)
		}
		return nil
	}
	return fmt.Errorf("tx %s not confirmed after %s", txHash, confirmTimeout)
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON. Sin retries: reintentar un broadcast puede
// duplicar la transferencia.
func (c *Client) post(ctx context.Context, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
