package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// Rate limits al 60% de los límites documentados del indexer.
	// Endpoints de mercado (markets, candles, trades): 20/s → 12/s
	marketRatePerSec = 12
	// Endpoints de órdenes: 10/s → 6/s
	orderRatePerSec = 6
	// LCD de la chain (bank, staking): generoso, 30/s → 18/s
	chainRatePerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client habla con el exchange de derivados: el indexer para mercados y
// órdenes, y el LCD de la chain para balances y staking. Todas las
// requests pasan por un circuit breaker compartido: si el venue empieza
// a fallar en serie, dejamos de golpearlo durante el cooldown en vez de
// agravar el incidente.
type Client struct {
	http          *http.Client
	indexerBase   string
	lcdBase       string
	marketLimiter *rate.Limiter
	orderLimiter  *rate.Limiter
	chainLimiter  *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
}

// NewClient crea un Client contra los base URLs dados.
func NewClient(indexerBase, lcdBase string) *Client {
	settings := gobreaker.Settings{
		Name:    "venue",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Un 4xx es culpa de la request, no del venue.
			_, is4xx := err.(clientError)
			return is4xx
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("venue circuit breaker state change",
				"from", from.String(), "to", to.String())
		},
	}
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		indexerBase:   indexerBase,
		lcdBase:       lcdBase,
		marketLimiter: rate.NewLimiter(marketRatePerSec, 10),
		orderLimiter:  rate.NewLimiter(orderRatePerSec, 3),
		chainLimiter:  rate.NewLimiter(chainRatePerSec, 10),
		breaker:       gobreaker.NewCircuitBreaker(settings),
	}
}

// get hace un GET con rate limiting, breaker y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting, breaker y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial y jitter,
// dentro del circuit breaker. Los 4xx no cuentan como fallo del venue.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}

			resp, err := fn()
			if err != nil {
				if attempt == maxRetries {
					return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
				}
				c.sleep(ctx, attempt)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				slog.Warn("rate limited by venue", "attempt", attempt+1)
				c.sleep(ctx, attempt)
				continue
			}

			if resp.StatusCode >= 500 {
				resp.Body.Close()
				if attempt == maxRetries {
					return nil, fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
				}
				c.sleep(ctx, attempt)
				continue
			}

			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				return nil, clientError{status: resp.StatusCode, body: string(body)}
			}

			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("exhausted %d retries", maxRetries)
	})
	return err
}

// clientError es un 4xx del venue: error de la request, no del venue,
// así que IsSuccessful del breaker no debe contarlo como fallo.
type clientError struct {
	status int
	body   string
}

func (e clientError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.status, e.body)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
