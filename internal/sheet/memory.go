package sheet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

// Memory is an in-process Store. It backs tests and dry runs.
type Memory struct {
	mu     sync.RWMutex
	sheets map[string]*Table
	// FailWrites makes every WriteSheet on the named sheets fail with the error.
	FailWrites map[string]error
}

// NewMemory creates an empty in-memory workbook.
func NewMemory() *Memory {
	return &Memory{sheets: make(map[string]*Table), FailWrites: make(map[string]error)}
}

// ReadSheet returns a copy of the named sheet.
func (m *Memory) ReadSheet(_ context.Context, name string) (*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	return t.Clone(), nil
}

// WriteSheet replaces the named sheet.
func (m *Memory) WriteSheet(_ context.Context, name string, table *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailWrites[name]; err != nil {
		return err
	}
	m.sheets[name] = table.Clone()
	return nil
}

// EnsureSheet creates the sheet when missing.
func (m *Memory) EnsureSheet(_ context.Context, name string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[name]; !ok {
		m.sheets[name] = NewTable(header...)
	}
	return nil
}

// Snapshot writes every sheet to an .xlsx file.
func (m *Memory) Snapshot(_ context.Context, dst string) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.sheets))
	for n := range m.sheets {
		names = append(names, n)
	}
	sort.Strings(names)
	tables := make(map[string]*Table, len(names))
	for _, n := range names {
		tables[n] = m.sheets[n].Clone()
	}
	m.mu.RUnlock()

	return ExportXLSX(dst, names, tables)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// ExportXLSX writes the given sheets, in order, to a new workbook at dst.
func ExportXLSX(dst string, names []string, tables map[string]*Table) error {
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	for i, name := range names {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		if err := WriteRows(f, name, tables[name]); err != nil {
			return err
		}
	}

	if err := f.SaveAs(dst); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// dateFormat is the display format of Date columns.
const dateFormat = "yyyy-mm-dd"

// excelEpoch is day zero of the 1900 date system for dates after
// 1900-03-01.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// WriteRows writes a table into an existing excelize sheet, header first.
// Number and Date columns are stored as numeric cells so Excel can sum
// and sort them; cells that do not parse are kept as text.
func WriteRows(f *excelize.File, name string, table *Table) error {
	header := make([]any, len(table.Header))
	for j, h := range table.Header {
		header[j] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = CellValue(table.TypeOf(j), v)
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, name, err)
		}
	}

	if len(table.Rows) == 0 {
		return nil
	}
	return styleDates(f, name, table)
}

// CellValue converts a cell to the Go value excelize should store for
// the column type.
func CellValue(typ ColumnType, raw string) any {
	v := strings.TrimSpace(raw)
	if typ == Text || v == "" {
		return raw
	}
	if typ == Date {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t.Sub(excelEpoch).Hours() / 24
		}
	}
	// Values read back from a workbook are already serial numbers.
	if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return n
	}
	return raw
}

// styleDates shows the serial numbers of Date columns as dates.
func styleDates(f *excelize.File, name string, table *Table) error {
	var style int
	for j := range table.Header {
		if table.TypeOf(j) != Date {
			continue
		}
		if style == 0 {
			numFmt := dateFormat
			id, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
			if err != nil {
				return fmt.Errorf("failed to create date style: %w", err)
			}
			style = id
		}
		top, err := excelize.CoordinatesToCellName(j+1, 2)
		if err != nil {
			return err
		}
		bottom, err := excelize.CoordinatesToCellName(j+1, len(table.Rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(name, top, bottom, style); err != nil {
			return fmt.Errorf("failed to style dates of %s: %w", name, err)
		}
	}
	return nil
}
