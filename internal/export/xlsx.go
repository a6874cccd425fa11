package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"waste-patrol-service/internal/domain/report"
)

const (
	sheetName   = "Reports"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	headerRow   = 3
)

var columns = []struct {
	label string
	width float64
	value func(r *report.Report) any
}{
	{"Code", 12, func(r *report.Report) any { return r.Code }},
	{"Status", 14, func(r *report.Report) any { return string(r.Status) }},
	{"Priority", 10, func(r *report.Report) any { return string(r.Priority) }},
	{"Severity", 10, func(r *report.Report) any { return string(r.Severity) }},
	{"Latitude", 12, func(r *report.Report) any {
		if r.Location == nil {
			return ""
		}
		return r.Location.Latitude
	}},
	{"Longitude", 12, func(r *report.Report) any {
		if r.Location == nil {
			return ""
		}
		return r.Location.Longitude
	}},
	{"Address", 30, func(r *report.Report) any {
		if r.Location == nil {
			return ""
		}
		return r.Location.Address
	}},
	{"Waste Types", 24, func(r *report.Report) any { return strings.Join(r.WasteTypes, ", ") }},
	{"Objects", 9, func(r *report.Report) any {
		if r.Detection == nil {
			return 0
		}
		return len(r.Detection.Objects)
	}},
	{"Area (px)", 12, func(r *report.Report) any {
		if r.Detection == nil {
			return ""
		}
		return r.Detection.TotalWasteArea
	}},
	{"Volume (m3)", 12, func(r *report.Report) any {
		if r.Detection == nil {
			return ""
		}
		return r.Detection.EstimatedVolume
	}},
	{"Submitter", 20, func(r *report.Report) any { return r.SubmitterID }},
	{"Created", 20, func(r *report.Report) any { return r.CreatedAt.Format("2006-01-02 15:04:05") }},
	{"Updated", 20, func(r *report.Report) any { return r.UpdatedAt.Format("2006-01-02 15:04:05") }},
}

// Reports renders reports as a single-sheet workbook.
func Reports(reports []report.Report, generated time.Time) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2E7D32"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheetName, "A1", "Waste reports")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)
	_ = f.SetCellValue(sheetName, "A2", fmt.Sprintf("Generated: %s", generated.UTC().Format("2006-01-02 15:04:05")))

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheetName, cell, col.label)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)

		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetColWidth(sheetName, name, name, col.width)
	}

	for row := range reports {
		r := &reports[row]
		for i, col := range columns {
			cell, err := excelize.CoordinatesToCellName(i+1, headerRow+1+row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, col.value(r)); err != nil {
				return nil, err
			}
		}
	}

	return f.WriteToBuffer()
}

func Filename(now time.Time) string {
	return fmt.Sprintf("waste_reports_%s.xlsx", now.UTC().Format("20060102_150405"))
}
