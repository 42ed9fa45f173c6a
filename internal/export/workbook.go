// Package export renders usage reports as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"labstock/pkg/domain"
)

// Sheet names of the usage workbook.
const (
	UsageSheet   = "Usage"
	ReagentSheet = "Reagent"
)

var usageHeader = []any{"Date", "Amount", "User", "Note"}

// WriteUsageWorkbook writes an .xlsx report listing the usages of one reagent
// followed by a total, plus a sheet with the reagent's attributes.
func WriteUsageWorkbook(w io.Writer, reagent domain.Reagent, usages []domain.UsageRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), UsageSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(UsageSheet, "A1", &usageHeader); err != nil {
		return fmt.Errorf("usage header: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return fmt.Errorf("date style: %w", err)
	}

	total := 0
	row := 2
	for _, u := range usages {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []any{u.UsedAt.UTC(), u.Amount, u.UserName, u.Note}
		if err := f.SetSheetRow(UsageSheet, cell, &values); err != nil {
			return fmt.Errorf("usage row %d: %w", row, err)
		}
		if err := f.SetCellStyle(UsageSheet, cell, cell, dateStyle); err != nil {
			return err
		}
		total += u.Amount
		row++
	}
	totalCell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	totals := []any{"Total", total}
	if err := f.SetSheetRow(UsageSheet, totalCell, &totals); err != nil {
		return fmt.Errorf("total row: %w", err)
	}
	if err := f.SetColWidth(UsageSheet, "A", "A", 12); err != nil {
		return err
	}
	if err := f.SetColWidth(UsageSheet, "D", "D", 40); err != nil {
		return err
	}

	if _, err := f.NewSheet(ReagentSheet); err != nil {
		return fmt.Errorf("reagent sheet: %w", err)
	}
	attrs := [][]any{
		{"Name", reagent.Name},
		{"Description", reagent.Description},
		{"Form", string(reagent.Form)},
		{"Hazard class", reagent.HazardClass},
		{"Received", dateText(reagent.ReceivedAt)},
		{"Expires", dateText(reagent.ExpiresAt)},
		{"Stock", reagent.Stock},
	}
	for i, attr := range attrs {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReagentSheet, cell, &attr); err != nil {
			return fmt.Errorf("reagent row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func dateText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(domain.DateLayout)
}
