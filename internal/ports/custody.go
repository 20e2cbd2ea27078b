package ports

import (
	"context"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// CustodyClient habla con la chain de custodia donde vive el capital
// base de cada cuenta.
type CustodyClient interface {
	// Balance devuelve el capital en ATOM de la dirección.
	Balance(ctx context.Context, address string) (float64, error)

	// Transfer mueve fondos de la chain de custodia a la del venue por
	// IBC. Solo devuelve nil cuando la transferencia está confirmada;
	// en fallo no hay crédito parcial.
	Transfer(ctx context.Context, req domain.BridgeRequest) error
}
