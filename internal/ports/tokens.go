package ports

import "context"

// TokenSource descubre el universo de activos tradeables de una cuenta.
type TokenSource interface {
	// TradableAssets devuelve los símbolos (lowercase) del universo
	// actual. Nunca devuelve lista vacía: en fallo total usa el
	// fallback estático.
	TradableAssets(ctx context.Context) ([]string, error)
}
