// Package xlsx stores the ledger in a local Excel workbook.
//
// Every write rewrites the workbook into a temporary file next to it and
// renames it over the original, so a crash mid-save leaves the previous
// workbook intact.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"gym-ledger-bot/internal/sheet"
)

const defaultSheet = "Sheet1"

// Store is a sheet.Store over one .xlsx file.
type Store struct {
	path string
	mu   sync.Mutex
}

var _ sheet.Store = (*Store)(nil)

// Open returns a store for the workbook at path, creating an empty
// workbook when the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workbook directory: %w", err)
		}
		f := excelize.NewFile()
		defer f.Close()
		if err := s.save(f); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("Created new workbook")
	} else if err != nil {
		return nil, classify(err)
	}
	return s, nil
}

// Path returns the workbook location.
func (s *Store) Path() string {
	return s.path
}

// ReadSheet reads all rows of a sheet. The first row is the header.
func (s *Store) ReadSheet(ctx context.Context, name string) (*sheet.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(name); idx < 0 {
		return nil, fmt.Errorf("%w: %s", sheet.ErrSheetNotFound, name)
	}
	// Raw values keep dates as serial numbers and money without
	// thousands separators, whatever the display format.
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", sheet.ErrUnavailable, name, err)
	}

	table := &sheet.Table{}
	if len(rows) > 0 {
		table.Header = rows[0]
		table.Rows = rows[1:]
	}
	return table, nil
}

// WriteSheet replaces a sheet's content and saves the workbook.
func (s *Store) WriteSheet(ctx context.Context, name string, table *sheet.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnlocked(); err != nil {
		return err
	}
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(name); idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		if err := sheet.WriteRows(f, name, table); err != nil {
			return err
		}
	} else if err := overwrite(f, name, table); err != nil {
		return err
	}
	return s.save(f)
}

// EnsureSheet adds a sheet with only a header row when it is missing.
// A fresh workbook's placeholder sheet is renamed instead of kept.
func (s *Store) EnsureSheet(ctx context.Context, name string, header []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(name); idx >= 0 {
		return nil
	}
	if err := s.checkUnlocked(); err != nil {
		return err
	}

	if placeholder(f) {
		if err := f.SetSheetName(defaultSheet, name); err != nil {
			return fmt.Errorf("failed to rename placeholder sheet: %w", err)
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	if err := sheet.WriteRows(f, name, sheet.NewTable(header...)); err != nil {
		return err
	}

	log.Info().Str("sheet", name).Msg("Created missing sheet")
	return s.save(f)
}

// Snapshot saves a copy of the workbook at dst.
func (s *Store) Snapshot(ctx context.Context, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(dst); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", dst, err)
	}
	return nil
}

// Close is a no-op; the workbook is opened per call.
func (s *Store) Close() error {
	return nil
}

func (s *Store) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, classify(err)
	}
	return f, nil
}

// save writes the workbook to a temporary file and renames it into place.
func (s *Store) save(f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.xlsx")
	if err != nil {
		return classify(err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	if err := f.SaveAs(tmpName); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to save workbook: %v", sheet.ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return classify(err)
	}
	return nil
}

// checkUnlocked fails when Excel or LibreOffice holds the workbook open.
// Both drop an owner file next to it while editing.
func (s *Store) checkUnlocked() error {
	dir, base := filepath.Split(s.path)
	for _, owner := range []string{"~$" + base, ".~lock." + base + "#"} {
		if _, err := os.Stat(filepath.Join(dir, owner)); err == nil {
			return fmt.Errorf("%w: %s", sheet.ErrLocked, s.path)
		}
	}
	return nil
}

// overwrite replaces a sheet's content in place so the sheet keeps its
// position and formatting. Stale cells right of the new rows are blanked
// and rows past the new end are removed.
func overwrite(f *excelize.File, name string, table *sheet.Table) error {
	old, err := f.GetRows(name)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", sheet.ErrUnavailable, name, err)
	}
	width := 0
	for _, r := range old {
		width = max(width, len(r))
	}

	padded := &sheet.Table{Header: pad(table.Header, width), Rows: make([][]string, len(table.Rows)), Types: table.Types}
	for i, r := range table.Rows {
		padded.Rows[i] = pad(r, width)
	}
	if err := sheet.WriteRows(f, name, padded); err != nil {
		return err
	}

	for i := len(old); i > len(table.Rows)+1; i-- {
		if err := f.RemoveRow(name, i); err != nil {
			return fmt.Errorf("failed to trim %s: %w", name, err)
		}
	}
	return nil
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// placeholder reports whether the workbook only holds the empty default sheet.
func placeholder(f *excelize.File) bool {
	list := f.GetSheetList()
	if len(list) != 1 || list[0] != defaultSheet {
		return false
	}
	rows, err := f.GetRows(defaultSheet)
	return err == nil && len(rows) == 0
}

func classify(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", sheet.ErrLocked, err)
	}
	return fmt.Errorf("%w: %v", sheet.ErrUnavailable, err)
}
