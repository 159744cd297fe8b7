package reporting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/crypto-trading-core/internal/position"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// ExcelReporter writes session results to a workbook.
type ExcelReporter struct{}

// NewExcelReporter creates an Excel reporter.
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// WriteSessionXLSX writes closed positions and the risk metrics history to
// an Excel workbook at path.
func (r *ExcelReporter) WriteSessionXLSX(closed []position.Position, history []risk.Metrics, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const positionsSheet = "Closed Positions"
	const riskSheet = "Risk History"

	fx.SetSheetName(fx.GetSheetName(0), positionsSheet)
	if _, err := fx.NewSheet(riskSheet); err != nil {
		return err
	}

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := r.writePositionsSheet(fx, positionsSheet, closed, headerStyle); err != nil {
		return err
	}
	if err := r.writeRiskSheet(fx, riskSheet, history, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) writePositionsSheet(fx *excelize.File, sheet string, closed []position.Position, headerStyle int) error {
	headers := []string{"Symbol", "Side", "Quantity", "Avg Entry", "Realized PnL", "Strategy", "Opened At", "Closed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", endHeader, headerStyle); err != nil {
		return err
	}

	for i, pos := range closed {
		row := i + 2
		side := "LONG"
		if pos.IsShort() {
			side = "SHORT"
		}
		values := []interface{}{
			pos.Symbol,
			side,
			math.Abs(pos.Quantity),
			pos.AvgEntryPrice,
			pos.RealizedPnL,
			pos.Strategy,
			pos.OpenedAt.Format("2006-01-02 15:04:05"),
			pos.ClosedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := fx.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *ExcelReporter) writeRiskSheet(fx *excelize.File, sheet string, history []risk.Metrics, headerStyle int) error {
	headers := []string{"Timestamp", "Portfolio Risk", "Max Position Risk", "Drawdown", "Correlation", "Concentration"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", endHeader, headerStyle); err != nil {
		return err
	}

	for i, m := range history {
		row := i + 2
		values := []interface{}{
			m.Timestamp.Format("2006-01-02 15:04:05"),
			m.TotalPortfolioRisk,
			m.MaxPositionRisk,
			m.CurrentDrawdown,
			m.CorrelationRisk,
			m.ConcentrationRisk,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := fx.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}
