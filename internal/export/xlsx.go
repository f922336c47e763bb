package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const euroFormat = "#,##0.00"

// WriteXLSX writes the report as a workbook with one sheet per view.
func WriteXLSX(w io.Writer, report YearReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ComparisonSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(MatrixSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	numFmt := euroFormat
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := writeSheet(f, ComparisonSheet, comparisonRows(report.Comparison), money, bold); err != nil {
		return err
	}
	if err := writeSheet(f, MatrixSheet, matrixRows(report.Matrix), money, bold); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeSheet writes rows from A1 down. The first row is the header; every
// column after the first holds amounts.
func writeSheet(f *excelize.File, sheet string, rows [][]any, money, bold int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	cols := len(rows[0])
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if len(rows) > 1 && cols > 1 {
		bottom, err := excelize.CoordinatesToCellName(cols, len(rows))
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "B2", bottom, money); err != nil {
			return fmt.Errorf("style %s amounts: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 24); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return nil
}
