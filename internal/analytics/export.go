package analytics

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"raggingwatch/internal/models"
)

const (
	complaintsSheet = "Complaints"
	summarySheet    = "Summary"
	exportPageSize  = 500
)

// ExportHeader is the column order of the complaints sheet. Internal notes
// and owner ids are never exported.
var ExportHeader = []string{
	"Tracking Number",
	"Status",
	"Category",
	"Incident Date",
	"Incident Time",
	"Location",
	"Anonymous",
	"Description",
	"Public Notes",
	"Evidence File",
	"Submitted At",
	"Updated At",
}

var exportColumnWidths = []float64{16, 14, 16, 14, 12, 30, 11, 60, 40, 28, 22, 22}

// ExportXLSX writes every complaint matching status (empty for all) to a
// workbook with a complaints sheet and a summary sheet.
func (a *Aggregator) ExportXLSX(ctx context.Context, status models.Status) ([]byte, error) {
	var all []models.Complaint
	for offset := 0; ; offset += exportPageSize {
		page, total, err := a.src.ListComplaints(ctx, models.ComplaintQuery{Status: status, Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list complaints: %w", err)
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			break
		}
	}
	facts, err := a.facts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	return buildWorkbook(all, Summarize(facts), ResponseTimeStats(facts), a.now())
}

func buildWorkbook(complaints []models.Complaint, dash Dashboard, rt ResponseTimes, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(complaintsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(complaintsSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(complaintsSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(complaintsSheet, name, name, exportColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, c := range complaints {
		row := i + 2
		for col, value := range complaintRow(c) {
			if value == "" {
				continue
			}
			if err := setCellValue(f, complaintsSheet, col+1, row, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetPanes(complaintsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	summary := [][]any{
		{"Generated At", generatedAt.UTC().Format(time.RFC3339)},
		{"Total", dash.Total},
		{"Pending", dash.Pending},
		{"Under Review", dash.UnderReview},
		{"Investigating", dash.Investigating},
		{"Resolved", dash.Resolved},
		{"Closed", dash.Closed},
		{"Anonymous", dash.Anonymous},
		{"Average Resolution (days)", rt.AverageDays},
	}
	for _, b := range rt.Buckets {
		summary = append(summary, []any{"Resolved in " + b.Name + " days", b.Count})
	}
	for i, line := range summary {
		for col, value := range line {
			if err := setCellValue(f, summarySheet, col+1, i+1, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write summary: %w", err)
			}
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 28); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func complaintRow(c models.Complaint) []string {
	category := ""
	if c.Category != nil {
		category = string(*c.Category)
	}
	anonymous := "No"
	if c.Anonymous {
		anonymous = "Yes"
	}
	public := ""
	if c.PublicNotes != nil {
		public = *c.PublicNotes
	}
	evidenceFile := ""
	if c.Evidence != nil {
		evidenceFile = c.Evidence.FileName
	}
	return []string{
		c.TrackingNumber,
		string(c.Status),
		category,
		c.IncidentDate,
		c.IncidentTime,
		c.IncidentLocation,
		anonymous,
		c.Description,
		public,
		evidenceFile,
		c.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
		c.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
