// Package evaluate measures retrieval quality and load behaviour of a
// running search service. Quality is reported as mean reciprocal rank and
// precision@10 over a labelled set of query/title pairs.
package evaluate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Case is one labelled query: the search text and the title it should find.
type Case struct {
	Query string
	Title string
}

// LoadCases reads cases from a .csv or .xlsx file whose header row names
// queryColumn and a "title" column. Rows missing either value are skipped.
func LoadCases(path, queryColumn string) ([]Case, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(path)
	default:
		return nil, fmt.Errorf("unsupported evaluation file %q", path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("evaluation file is empty")
	}

	queryIdx, titleIdx := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case strings.ToLower(queryColumn):
			queryIdx = i
		case "title":
			titleIdx = i
		}
	}
	if queryIdx < 0 || titleIdx < 0 {
		return nil, fmt.Errorf("evaluation file needs %q and \"title\" columns", queryColumn)
	}

	cases := make([]Case, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if queryIdx >= len(row) || titleIdx >= len(row) {
			continue
		}
		c := Case{Query: strings.TrimSpace(row[queryIdx]), Title: strings.TrimSpace(row[titleIdx])}
		if c.Query == "" || c.Title == "" {
			continue
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}
