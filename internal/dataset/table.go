// Package dataset loads, cleans and encodes tabular customer data for
// training and offline scoring.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrSourceUnavailable is returned when a data source cannot be opened or read.
	ErrSourceUnavailable = errors.New("data source unavailable")
	// ErrUnknownColumn is returned when a referenced column does not exist.
	ErrUnknownColumn = errors.New("unknown column")
)

// Table is an in-memory CSV table. Values are kept as raw strings until Encode.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable builds a table from a header and rows. Rows are not copied.
func NewTable(columns []string, rows [][]string) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// Load reads a CSV file with a header row.
func Load(source string) (*Table, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, source, err)
	}
	defer file.Close()

	table, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	log.Info().
		Str("source", source).
		Int("rows", table.Len()).
		Int("columns", len(table.Columns)).
		Msg("Dataset loaded")

	return table, nil
}

// Read parses CSV content with a header row.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", ErrSourceUnavailable, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV rows: %v", ErrSourceUnavailable, err)
	}

	return &Table{Columns: header, Rows: rows}, nil
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Column returns a copy of the values of one column.
func (t *Table) Column(column string) ([]string, error) {
	idx := t.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// IsMissing reports whether a raw value counts as missing.
func IsMissing(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "NA", "N/A", "NaN", "nan", "null", "NULL", "None":
		return true
	}
	return false
}

// Clean drops exact-duplicate rows and rows with a missing value in any of the
// required columns (all columns when none are given). The first occurrence of
// a duplicate is kept and row order is preserved.
func Clean(t *Table, required ...string) (*Table, error) {
	checked := make([]int, 0, len(t.Columns))
	if len(required) == 0 {
		for i := range t.Columns {
			checked = append(checked, i)
		}
	} else {
		for _, column := range required {
			idx := t.Index(column)
			if idx < 0 {
				return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
			}
			checked = append(checked, idx)
		}
	}

	seen := make(map[string]struct{}, len(t.Rows))
	rows := make([][]string, 0, len(t.Rows))
	var duplicates, incomplete int

	for _, row := range t.Rows {
		if hasMissing(row, checked) {
			incomplete++
			continue
		}
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, row)
	}

	if duplicates > 0 || incomplete > 0 {
		log.Debug().
			Int("duplicates", duplicates).
			Int("incomplete", incomplete).
			Int("remaining", len(rows)).
			Msg("Dataset cleaned")
	}

	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}, nil
}

func hasMissing(row []string, columns []int) bool {
	for _, idx := range columns {
		if idx >= len(row) || IsMissing(row[idx]) {
			return true
		}
	}
	return false
}

// Split separates the target column from the feature columns.
func Split(t *Table, target string) (*Table, []string, error) {
	idx := t.Index(target)
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: target %s", ErrUnknownColumn, target)
	}

	values, _ := t.Column(target)
	features, err := t.Drop(target)
	if err != nil {
		return nil, nil, err
	}
	return features, values, nil
}

// Drop returns a table without the given columns. Unknown columns are an error.
func (t *Table) Drop(columns ...string) (*Table, error) {
	dropped := make(map[int]bool, len(columns))
	for _, column := range columns {
		idx := t.Index(column)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
		dropped[idx] = true
	}

	keep := make([]int, 0, len(t.Columns)-len(dropped))
	header := make([]string, 0, len(t.Columns)-len(dropped))
	for i, c := range t.Columns {
		if !dropped[i] {
			keep = append(keep, i)
			header = append(header, c)
		}
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(keep))
		for j, idx := range keep {
			out[j] = row[idx]
		}
		rows[r] = out
	}

	return &Table{Columns: header, Rows: rows}, nil
}

// DropIfPresent is Drop that ignores columns the table does not have.
func (t *Table) DropIfPresent(columns ...string) *Table {
	present := make([]string, 0, len(columns))
	for _, c := range columns {
		if t.Index(c) >= 0 {
			present = append(present, c)
		}
	}
	out, _ := t.Drop(present...)
	return out
}

// WriteCSV writes the table with its header row.
func WriteCSV(path string, t *Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := writeCSV(file, t.Columns, t.Rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
