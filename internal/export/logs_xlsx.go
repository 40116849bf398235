// Package export renders a child's timeline as an Excel workbook.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// SheetName is the worksheet holding the log rows.
const SheetName = "Logs"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LogsHeader is the column order of the export.
var LogsHeader = []string{"Date", "Author", "Role", "Title", "Description", "Tags", "Mood", "Attachment"}

var columnWidths = []float64{20, 20, 10, 30, 60, 25, 8, 40}

// LogsXLSX writes logs (in the given order) to a single-sheet workbook for
// childName and returns the file bytes.
func LogsXLSX(childName string, logs []domain.LogEntry) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close happens at the end.

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("%s timeline", childName),
		Creator: "Parentrak",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("set doc props: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for col, header := range LogsHeader {
		if err := setCell(f, col+1, 1, header); err != nil {
			f.Close()
			return nil, err
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(LogsHeader), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, l := range logs {
		row := i + 2
		attachment := l.DocumentURL
		if attachment == "" {
			attachment = l.AudioURL
		}
		values := []any{
			l.CreatedAt.UTC().Format("2006-01-02 15:04"),
			l.AuthorName,
			string(l.AuthorRole),
			l.Title,
			l.Description,
			strings.Join(l.Tags, ", "),
			l.EmotionScore,
			attachment,
		}
		for col, v := range values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			if err := setCell(f, col+1, row, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(SheetName, cell, v); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
