package report

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rneatherway/gh-apitest/internal/runner"
)

const (
	sheetNameFormat = "Run %s"
	sheetTimeFormat = "2006-01-02_15-04-05"
	sheetIDLength   = 6
	columnWidth     = 16

	failedColor = "FF5900"
	slowColor   = "FFEB9C"
)

var xlsxHeaders = []string{
	"ID", "Name", "Method", "URL", "Headers", "Body",
	"Expected", "Actual Status", "Response Time (ms)", "Result", "Error", "Curl",
}

// WriteXLSX adds a sheet for r to the workbook at path, creating the
// workbook if it does not exist yet. It returns the sheet name.
func WriteXLSX(path string, r Run) (string, error) {
	f, fresh, err := openWorkbook(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sheet, err := sheetName(f, r)
	if err != nil {
		return "", err
	}
	if fresh {
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			return "", fmt.Errorf("naming sheet: %w", err)
		}
	} else {
		index, err := f.NewSheet(sheet)
		if err != nil {
			return "", fmt.Errorf("creating sheet: %w", err)
		}
		f.SetActiveSheet(index)
	}

	last, _ := excelize.ColumnNumberToName(len(xlsxHeaders))
	if err := f.SetColWidth(sheet, "A", last, columnWidth); err != nil {
		return "", err
	}

	for i, h := range xlsxHeaders {
		if err := f.SetCellValue(sheet, cell(i, 1), h); err != nil {
			return "", err
		}
	}

	failedStyle, err := fillStyle(f, failedColor)
	if err != nil {
		return "", err
	}
	slowStyle, err := fillStyle(f, slowColor)
	if err != nil {
		return "", err
	}

	for i, c := range r.Cases {
		row := i + 2
		if err := writeCase(f, sheet, row, c); err != nil {
			return "", err
		}

		style := 0
		if c.Status == runner.Failed {
			style = failedStyle
		} else if c.ResponseTime > SlowThreshold {
			style = slowStyle
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell(0, row), cell(len(xlsxHeaders)-1, row), style); err != nil {
				return "", err
			}
		}
	}

	if err := writeSummary(f, sheet, len(r.Cases)+3, r); err != nil {
		return "", err
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving report: %w", err)
	}
	return sheet, nil
}

func openWorkbook(path string) (*excelize.File, bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	if err != nil {
		return nil, false, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("opening workbook: %w", err)
	}
	return f, false, nil
}

func fillStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
}

// sheetName names the sheet of r after its start time and run id. NewSheet
// reuses a sheet that already has the name, so a taken name gets a counter.
func sheetName(f *excelize.File, r Run) (string, error) {
	base := fmt.Sprintf(sheetNameFormat, r.Started.Format(sheetTimeFormat))
	if id := strings.ReplaceAll(r.RunID, "-", ""); id != "" {
		if len(id) > sheetIDLength {
			id = id[:sheetIDLength]
		}
		base += " " + id
	}

	name := base
	for n := 2; ; n++ {
		index, err := f.GetSheetIndex(name)
		if err != nil {
			return "", err
		}
		if index == -1 {
			return name, nil
		}
		suffix := fmt.Sprintf(" %d", n)
		if len(base)+len(suffix) > excelize.MaxSheetNameLength {
			name = base[:excelize.MaxSheetNameLength-len(suffix)] + suffix
		} else {
			name = base + suffix
		}
	}
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func writeCase(f *excelize.File, sheet string, row int, c runner.Case) error {
	expected := ""
	if c.ExpectedStatus != 0 {
		expected = fmt.Sprintf("status %d", c.ExpectedStatus)
	}
	if c.ExpectedSubstring != "" {
		if expected != "" {
			expected += ", "
		}
		expected += fmt.Sprintf("contains %q", c.ExpectedSubstring)
	}

	values := []any{
		c.ID,
		c.Name,
		string(c.Request.Method),
		c.Request.URL,
		c.Request.HeaderBlock(),
		string(c.Request.Body),
		expected,
		c.ActualStatus,
		c.ResponseTime.Milliseconds(),
		c.Status.String(),
		detail(c),
		c.Request.Curl(),
	}
	for i, v := range values {
		if err := f.SetCellValue(sheet, cell(i, row), v); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, sheet string, row int, r Run) error {
	s := r.Summary()
	lines := []string{
		"Summary",
		fmt.Sprintf("Run: %s", r.RunID),
		fmt.Sprintf("Total time: %dms", r.Duration.Milliseconds()),
		fmt.Sprintf("Total cases: %d", s.Total),
		fmt.Sprintf("Passed: %d", s.Passed),
		fmt.Sprintf("Failed: %d", s.Failed),
		fmt.Sprintf("Slow (>%dms): %d", SlowThreshold.Milliseconds(), s.Slow),
	}
	for i, line := range lines {
		if err := f.SetCellValue(sheet, cell(0, row+i), line); err != nil {
			return err
		}
	}
	return nil
}
