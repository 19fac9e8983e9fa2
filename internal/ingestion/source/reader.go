package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Extensions accepted by Open.
var Extensions = []string{".csv", ".xlsx", ".xlsm"}

// rowReader yields raw records. Next returns io.EOF after the last row.
// Padded readers drop trailing empty cells, so short rows are not
// malformed.
type rowReader interface {
	Next() ([]string, error)
	Padded() bool
	Close() error
}

// IsSupported reports whether path has a dataset extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func open(path string) (rowReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return openCSV(path)
	case ".xlsx", ".xlsm":
		return openWorkbook(path)
	default:
		return nil, fmt.Errorf("unsupported dataset extension %q", filepath.Ext(path))
	}
}

type csvReader struct {
	f *os.File
	r *csv.Reader
}

func openCSV(path string) (*csvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return &csvReader{f: f, r: r}, nil
}

func (c *csvReader) Next() ([]string, error) {
	for {
		rec, err := c.r.Read()
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return rec, nil
	}
}

func (c *csvReader) Padded() bool { return false }

func (c *csvReader) Close() error { return c.f.Close() }

// workbookReader streams the first sheet of an Excel workbook.
type workbookReader struct {
	f    *excelize.File
	rows *excelize.Rows
}

func openWorkbook(path string) (*workbookReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return &workbookReader{f: f, rows: rows}, nil
}

func (w *workbookReader) Next() ([]string, error) {
	for w.rows.Next() {
		cols, err := w.rows.Columns()
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			continue
		}
		return cols, nil
	}
	if err := w.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (w *workbookReader) Padded() bool { return true }

func (w *workbookReader) Close() error {
	rerr := w.rows.Close()
	if err := w.f.Close(); err != nil {
		return err
	}
	return rerr
}
