// Package sheet defines the backing store of the ledger: a workbook of
// named sheets, each read and written as a whole.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Storage errors.
var (
	// ErrLocked means another program holds the workbook open. Closing
	// it and retrying is the fix.
	ErrLocked = errors.New("workbook is locked by another program")
	// ErrUnavailable means the store could not be reached or read.
	ErrUnavailable = errors.New("workbook is unavailable")
	// ErrSheetNotFound means the named sheet does not exist.
	ErrSheetNotFound = errors.New("sheet not found")
)

// Store reads and writes whole sheets.
//
// WriteSheet replaces the sheet content atomically: after a failed write
// the previous content is still in place.
type Store interface {
	ReadSheet(ctx context.Context, name string) (*Table, error)
	WriteSheet(ctx context.Context, name string, table *Table) error
	// EnsureSheet creates an empty sheet with the given header when it is missing.
	EnsureSheet(ctx context.Context, name string, header []string) error
	// Snapshot exports the whole workbook as an .xlsx file at dst.
	Snapshot(ctx context.Context, dst string) error
	Close() error
}

// ColumnType tells a workbook writer how to store a column's cells.
type ColumnType int

// Column types. Text is the default for columns a table does not list.
const (
	Text ColumnType = iota
	Number
	Date
)

// Table is the content of one sheet: a header row and data rows.
type Table struct {
	Header []string
	Rows   [][]string
	// Types maps column names to their cell type. IDs and phone numbers
	// stay Text so leading zeros survive.
	Types map[string]ColumnType
}

// TypeOf returns the cell type of the i-th column.
func (t *Table) TypeOf(i int) ColumnType {
	if i < 0 || i >= len(t.Header) {
		return Text
	}
	return t.Types[strings.TrimSpace(t.Header[i])]
}

// NewTable creates an empty table with the given header.
func NewTable(header ...string) *Table {
	return &Table{Header: append([]string(nil), header...)}
}

// Column returns the index of a header cell, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Require checks that every named column is present.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if t.Column(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// Append adds a row.
func (t *Table) Append(row ...string) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Header: append([]string(nil), t.Header...),
		Rows:   make([][]string, len(t.Rows)),
		Types:  maps.Clone(t.Types),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

// Record gives access to one row's cells by column name.
type Record struct {
	table *Table
	row   []string
}

// Record returns the i-th row as a Record.
func (t *Table) Record(i int) Record {
	return Record{table: t, row: t.Rows[i]}
}

// Get returns the trimmed cell of a column, or "" when the column or the
// cell is missing.
func (r Record) Get(name string) string {
	i := r.table.Column(name)
	if i < 0 || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

// Blank reports whether every cell of the row is empty.
func (r Record) Blank() bool {
	for _, c := range r.row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// RowFrom lays out values keyed by column name in header order. Columns
// the table has but values lack are left empty.
func (t *Table) RowFrom(values map[string]string) []string {
	row := make([]string, len(t.Header))
	for i, h := range t.Header {
		row[i] = values[strings.TrimSpace(h)]
	}
	return row
}
