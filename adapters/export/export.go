// Package export writes raw differenced ticks for offline analysis.
package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"ctleak/internal/profiling"
	"ctleak/ports"
)

// New picks the exporter from the file extension: .xlsx writes a workbook,
// anything else a text file with one value per line.
func New(path string) (ports.SampleExporter, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return NewXLSX(path)
	}
	return NewText(path)
}

// TextExporter appends every in-window tick to a file, one per line.
type TextExporter struct {
	file *os.File
	w    *bufio.Writer
}

// NewText truncates path.
func NewText(path string) (*TextExporter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	return &TextExporter{file: f, w: bufio.NewWriter(f)}, nil
}

func (e *TextExporter) WriteBatch(_ int, execTimes []int64) error {
	var buf [24]byte
	for _, x := range execTimes {
		b := strconv.AppendInt(buf[:0], x, 10)
		b = append(b, '\n')
		if _, err := e.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (e *TextExporter) Close() error {
	if err := e.w.Flush(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}

const (
	samplesSheet = "Samples"
	summarySheet = "Summary"
)

var summaryHeader = []interface{}{
	"round", "count", "wraparounds", "mean", "std_dev", "min", "q25", "median", "q75", "p99", "max", "skewness",
}

var samplesHeader = []interface{}{"round", "index", "ticks"}

// XLSXExporter streams (round, index, ticks) rows to Samples sheets and one
// distribution summary per round to a Summary sheet. A Samples sheet that
// reaches the workbook row limit continues on Samples_2, Samples_3 and so on.
type XLSXExporter struct {
	path    string
	file    *excelize.File
	stream  *excelize.StreamWriter
	sheets  int
	row     int
	maxRows int
	summary [][]interface{}
}

// NewXLSX prepares a workbook saved to path on Close.
func NewXLSX(path string) (*XLSXExporter, error) {
	return newXLSX(path, excelize.TotalRows)
}

func newXLSX(path string, maxRows int) (*XLSXExporter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", samplesSheet); err != nil {
		f.Close()
		return nil, err
	}
	e := &XLSXExporter{path: path, file: f, maxRows: maxRows}
	if err := e.openSamples(samplesSheet); err != nil {
		f.Close()
		return nil, err
	}
	return e, nil
}

func samplesSheetName(n int) string {
	if n == 1 {
		return samplesSheet
	}
	return fmt.Sprintf("%s_%d", samplesSheet, n)
}

// openSamples starts streaming into sheet, creating it unless it is the
// renamed first sheet.
func (e *XLSXExporter) openSamples(sheet string) error {
	if e.sheets > 0 {
		if _, err := e.file.NewSheet(sheet); err != nil {
			return err
		}
	}
	sw, err := e.file.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sample stream: %w", err)
	}
	if err := sw.SetRow("A1", samplesHeader); err != nil {
		return err
	}
	e.stream = sw
	e.sheets++
	e.row = 1
	return nil
}

func (e *XLSXExporter) rotate() error {
	if err := e.stream.Flush(); err != nil {
		return err
	}
	return e.openSamples(samplesSheetName(e.sheets + 1))
}

func (e *XLSXExporter) WriteBatch(round int, execTimes []int64) error {
	for i, x := range execTimes {
		if e.row >= e.maxRows {
			if err := e.rotate(); err != nil {
				return fmt.Errorf("failed to start sample sheet %d: %w", e.sheets+1, err)
			}
		}
		e.row++
		cell, err := excelize.CoordinatesToCellName(1, e.row)
		if err != nil {
			return err
		}
		if err := e.stream.SetRow(cell, []interface{}{round, i, x}); err != nil {
			return fmt.Errorf("failed to write sample row %d of %s: %w", e.row, samplesSheetName(e.sheets), err)
		}
	}

	s, err := profiling.SummarizeTicks(execTimes)
	if err != nil {
		// a batch that wrapped everywhere still gets a row
		e.summary = append(e.summary, []interface{}{round, 0, s.Wraparounds})
		return nil
	}
	e.summary = append(e.summary, []interface{}{
		round, s.Count, s.Wraparounds, s.Mean, s.StdDev, s.Min, s.Q25, s.Median, s.Q75, s.P99, s.Max, s.Skewness,
	})
	return nil
}

func (e *XLSXExporter) Close() error {
	defer e.file.Close()
	if err := e.stream.Flush(); err != nil {
		return err
	}
	if _, err := e.file.NewSheet(summarySheet); err != nil {
		return err
	}
	if err := e.file.SetSheetRow(summarySheet, "A1", &summaryHeader); err != nil {
		return err
	}
	for i, row := range e.summary {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := e.file.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := e.file.SaveAs(e.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
