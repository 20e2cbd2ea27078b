package tokens

// discovery.go — descubrimiento del universo de activos tradeables.
// Junta tres fuentes (chain registry, DexScreener y opcionalmente
// CoinGecko) y deduplica. Si todas fallan usa el fallback estático:
// el agente nunca se queda sin universo.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staticFallback es el universo mínimo del ecosistema cuando ninguna
// fuente responde.
var staticFallback = []string{"atom", "osmo", "inj", "tia", "juno", "stars"}

const (
	cacheTTL   = 15 * time.Minute
	ratePerSec = 2
)

// Discovery implementa ports.TokenSource con cache en memoria.
type Discovery struct {
	http           *http.Client
	registryURL    string
	dexScreenerURL string
	coinGeckoURL   string
	coinGeckoKey   string
	limiter        *rate.Limiter

	mu       sync.Mutex // protege el cache y el refresh en curso
	cached   []string
	cachedAt time.Time
	refresh  chan struct{} // se cierra cuando termina el refresh en curso
}

// NewDiscovery crea un Discovery. coinGeckoKey vacío desactiva esa fuente.
func NewDiscovery(registryURL, dexScreenerURL, coinGeckoURL, coinGeckoKey string) *Discovery {
	return &Discovery{
		http:           &http.Client{Timeout: 10 * time.Second},
		registryURL:    registryURL,
		dexScreenerURL: dexScreenerURL,
		coinGeckoURL:   coinGeckoURL,
		coinGeckoKey:   coinGeckoKey,
		limiter:        rate.NewLimiter(ratePerSec, 3),
	}
}

// TradableAssets devuelve los símbolos (lowercase, deduplicados y
// ordenados) del universo actual. Nunca devuelve lista vacía.
//
// El scheduler llama una vez por ciclo desde la goroutine del engine de
// cada cuenta, pero el Discovery es compartido: el cache evita golpear
// las fuentes una vez por cuenta. El mutex sólo cubre lecturas y
// escrituras del cache; las peticiones HTTP corren fuera de él, y los
// misses concurrentes esperan al refresh que ya está en vuelo en vez de
// duplicarlo.
func (d *Discovery) TradableAssets(ctx context.Context) ([]string, error) {
	for {
		d.mu.Lock()
		if d.cached != nil && time.Since(d.cachedAt) < cacheTTL {
			out := make([]string, len(d.cached))
			copy(out, d.cached)
			d.mu.Unlock()
			return out, nil
		}
		if d.refresh != nil {
			done := d.refresh
			d.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		d.refresh = done
		d.mu.Unlock()

		symbols := d.fetchAll(ctx)

		d.mu.Lock()
		d.refresh = nil
		close(done)
		if len(symbols) == 0 {
			d.mu.Unlock()
			slog.Warn("token discovery: all sources failed, using static fallback")
			out := make([]string, len(staticFallback))
			copy(out, staticFallback)
			return out, nil
		}
		sort.Strings(symbols)
		d.cached = symbols
		d.cachedAt = time.Now()
		d.mu.Unlock()

		out := make([]string, len(symbols))
		copy(out, symbols)
		return out, nil
	}
}

// fetchAll consulta las tres fuentes y devuelve la unión deduplicada.
// Devuelve lista vacía si todas fallan; el caller decide el fallback.
func (d *Discovery) fetchAll(ctx context.Context) []string {
	seen := make(map[string]bool)
	var symbols []string
	add := func(sym string) {
		sym = strings.ToLower(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}

	if regSyms, err := d.fromRegistry(ctx); err != nil {
		slog.Warn("token discovery: registry failed", "error", err)
	} else {
		for _, s := range regSyms {
			add(s)
		}
	}

	if dexSyms, err := d.fromDexScreener(ctx); err != nil {
		slog.Warn("token discovery: dexscreener failed", "error", err)
	} else {
		for _, s := range dexSyms {
			add(s)
		}
	}

	if d.coinGeckoKey != "" {
		if cgSyms, err := d.fromCoinGecko(ctx); err != nil {
			slog.Warn("token discovery: coingecko failed", "error", err)
		} else {
			for _, s := range cgSyms {
				add(s)
			}
		}
	}

	return symbols
}

type registryResponse struct {
	Staking struct {
		StakingTokens []struct {
			Denom string `json:"denom"`
		} `json:"staking_tokens"`
	} `json:"staking"`
	Fees struct {
		FeeTokens []struct {
			Denom string `json:"denom"`
		} `json:"fee_tokens"`
	} `json:"fees"`
}

// fromRegistry lee el chain registry y deriva símbolos de los denoms
// (uatom → atom).
func (d *Discovery) fromRegistry(ctx context.Context) ([]string, error) {
	var resp registryResponse
	if err := d.getJSON(ctx, d.registryURL, "", &resp); err != nil {
		return nil, err
	}

	var symbols []string
	for _, t := range resp.Staking.StakingTokens {
		symbols = append(symbols, denomToSymbol(t.Denom))
	}
	for _, t := range resp.Fees.FeeTokens {
		symbols = append(symbols, denomToSymbol(t.Denom))
	}
	return symbols, nil
}

type dexScreenerResponse struct {
	Pairs []struct {
		BaseToken struct {
			Symbol string `json:"symbol"`
		} `json:"baseToken"`
	} `json:"pairs"`
}

func (d *Discovery) fromDexScreener(ctx context.Context) ([]string, error) {
	var resp dexScreenerResponse
	url := d.dexScreenerURL + "?q=cosmos"
	if err := d.getJSON(ctx, url, "", &resp); err != nil {
		return nil, err
	}

	var symbols []string
	for _, p := range resp.Pairs {
		symbols = append(symbols, p.BaseToken.Symbol)
	}
	return symbols, nil
}

type coinGeckoCoin struct {
	Symbol string `json:"symbol"`
}

func (d *Discovery) fromCoinGecko(ctx context.Context) ([]string, error) {
	var coins []coinGeckoCoin
	url := d.coinGeckoURL + "?vs_currency=usd&category=cosmos-ecosystem&per_page=50"
	if err := d.getJSON(ctx, url, d.coinGeckoKey, &coins); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(coins))
	for _, c := range coins {
		symbols = append(symbols, c.Symbol)
	}
	return symbols, nil
}

// denomToSymbol quita el prefijo micro ("u") de los denoms nativos.
func denomToSymbol(denom string) string {
	denom = strings.ToLower(denom)
	if strings.HasPrefix(denom, "ibc/") {
		return "" // denoms IBC opacos, sin símbolo fiable
	}
	return strings.TrimPrefix(denom, "u")
}

func (d *Discovery) getJSON(ctx context.Context, url, apiKey string, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", apiKey)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
