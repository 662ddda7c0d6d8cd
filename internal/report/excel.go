package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"calseed/internal/events"
)

// Writer collects outcome records per cycle and exports each finished cycle
// as an Excel workbook.
type Writer struct {
	dir string

	mu       sync.Mutex
	outcomes map[string][]events.Outcome
}

// NewWriter creates a writer exporting into dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, outcomes: make(map[string][]events.Outcome)}
}

// Handle is the outcome-bus subscriber.
func (w *Writer) Handle(o events.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[o.CycleID] = append(w.outcomes[o.CycleID], o)
}

// Flush writes the cycle's collected outcomes to disk and forgets them.
// A cycle without outcomes produces no file.
func (w *Writer) Flush(cycleID string) (string, error) {
	w.mu.Lock()
	recs := w.outcomes[cycleID]
	delete(w.outcomes, cycleID)
	w.mu.Unlock()

	if len(recs) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Outcomes"
	f.SetSheetName("Sheet1", sheet)

	header := []string{"Time", "Template ID", "Organizer", "Outcome", "Reason", "Start", "Event ID"}
	for i, col := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return "", err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return "", err
		}
	}

	// Bold header
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for row, rec := range recs {
		start := ""
		if !rec.Start.IsZero() {
			start = rec.Start.Format(time.RFC3339)
		}
		values := []interface{}{
			rec.At.Format(time.RFC3339),
			rec.TemplateID,
			rec.Organizer,
			string(rec.Kind),
			rec.Reason,
			start,
			rec.EventID,
		}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return "", err
			}
		}
	}

	path := filepath.Join(w.dir, fmt.Sprintf("cycle_%s_%s.xlsx", time.Now().Format("20060102_150405"), cycleID))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}
