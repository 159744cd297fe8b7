package reporting

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/crypto-trading-core/internal/position"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// ConsoleReporter renders positions and risk state as terminal tables.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo creates a reporter writing to the given writer.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintPositions renders the open positions table.
func (r *ConsoleReporter) PrintPositions(positions []position.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Symbol", "Side", "Quantity", "Avg Entry", "Mark", "Unrealized PnL", "Realized PnL", "Strategy"})
	for _, pos := range positions {
		side := "LONG"
		if pos.IsShort() {
			side = "SHORT"
		}
		t.AppendRow(table.Row{
			pos.Symbol,
			side,
			fmt.Sprintf("%.6f", math.Abs(pos.Quantity)),
			fmt.Sprintf("%.4f", pos.AvgEntryPrice),
			fmt.Sprintf("%.4f", pos.CurrentPrice),
			fmt.Sprintf("%+.2f", pos.UnrealizedPnL),
			fmt.Sprintf("%+.2f", pos.RealizedPnL),
			pos.Strategy,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintPortfolioSummary renders the ledger-level aggregates.
func (r *ConsoleReporter) PrintPortfolioSummary(summary position.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("PORTFOLIO SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Open Positions", summary.OpenPositions},
		{"Long / Short", fmt.Sprintf("%d / %d", summary.LongPositions, summary.ShortPositions)},
		{"Portfolio Value", fmt.Sprintf("$%.2f", summary.PortfolioValue)},
		{"Unrealized PnL", fmt.Sprintf("%+.2f", summary.UnrealizedPnL)},
		{"Realized PnL", fmt.Sprintf("%+.2f", summary.RealizedPnL)},
		{"Current Drawdown", fmt.Sprintf("%.2f%%", summary.CurrentDrawdown*100)},
		{"Closed Positions", summary.ClosedPositions},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintRiskSummary renders the risk engine's current view.
func (r *ConsoleReporter) PrintRiskSummary(summary risk.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RISK SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Portfolio Risk", fmt.Sprintf("%.2f%% (limit %.2f%%)", summary.Metrics.TotalPortfolioRisk*100, summary.Limits.MaxPortfolioRisk*100)},
		{"Max Position Risk", fmt.Sprintf("%.2f%%", summary.Metrics.MaxPositionRisk*100)},
		{"Current Drawdown", fmt.Sprintf("%.2f%% (limit %.2f%%)", summary.Metrics.CurrentDrawdown*100, summary.Limits.MaxDrawdown*100)},
		{"Correlation Risk", fmt.Sprintf("%.2f (limit %.2f)", summary.Metrics.CorrelationRisk, summary.Limits.MaxCorrelation)},
		{"Concentration Risk", fmt.Sprintf("%.2f%%", summary.Metrics.ConcentrationRisk*100)},
		{"Positions", fmt.Sprintf("%d / %d", summary.CurrentPositions, summary.Limits.MaxPositions)},
		{"Portfolio Value", fmt.Sprintf("$%.2f", summary.PortfolioValue)},
	})

	if len(summary.RecentAlerts) > 0 {
		t.AppendSeparator()
		for _, alert := range summary.RecentAlerts {
			t.AppendRow(table.Row{
				fmt.Sprintf("[%s] %s", alert.Severity, alert.Type),
				alert.Message,
			})
		}
	}

	t.Render()
	fmt.Fprintln(r.out)
}
