package ports

import (
	"context"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// Notifier recibe el resumen de cada ciclo de evaluación.
type Notifier interface {
	CycleReport(ctx context.Context, report domain.CycleReport) error
}
