package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/atombot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo el resumen de cada
// ciclo a stdout.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// CycleReport imprime el resumen del ciclo en el modo configurado.
func (c *Console) CycleReport(_ context.Context, report domain.CycleReport) error {
	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime lo esencial en una línea por ciclo.
func (c *Console) printCompact(r domain.CycleReport) {
	now := r.At.Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][acct %d] eval:%d open:%d prune:%d close:%d skip:%d | pos:%d | cap $%.2f (bridged $%.2f, active $%.2f)",
		now, r.AccountID, r.Evaluated, r.Opened, r.Pruned, r.Closed, r.Skipped,
		len(r.OpenPositions), r.TotalCapital, r.BridgedCapital, r.ActiveCapital)

	for i, warn := range r.Warnings {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&sb, "\n  >> %s", warn)
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de posiciones abiertas además del resumen.
func (c *Console) printFull(r domain.CycleReport) {
	now := r.At.Format("15:04:05")

	fmt.Fprintf(c.out, "\n[%s] account %d — evaluated:%d opened:%d pruned:%d closed:%d skipped:%d\n",
		now, r.AccountID, r.Evaluated, r.Opened, r.Pruned, r.Closed, r.Skipped)
	fmt.Fprintf(c.out, "  capital: total $%.2f | bridged $%.2f | active $%.2f\n",
		r.TotalCapital, r.BridgedCapital, r.ActiveCapital)

	if len(r.OpenPositions) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Asset", "Dir", "Entry", "Nominal", "Held", "Order")

		for _, p := range r.OpenPositions {
			table.Append(
				p.Asset,
				string(p.Direction),
				fmt.Sprintf("%.4f", p.EntryPrice),
				fmt.Sprintf("$%.2f", p.Amount),
				heldLabel(p.HeldFor(r.At)),
				truncate(p.OrderRef, 14),
			)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (no open positions)")
	}

	for _, warn := range r.Warnings {
		fmt.Fprintf(c.out, "  >> %s\n", warn)
	}
	fmt.Fprintln(c.out)
}

func heldLabel(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
