package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidLabel is returned when a target value is not a recognised binary label.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrMissingValue is returned when Encode meets a missing value.
	ErrMissingValue = errors.New("missing value")
)

// Matrix is a dense numeric design matrix with named columns.
type Matrix struct {
	Names []string
	Rows  [][]float64
}

func (m *Matrix) Len() int {
	return len(m.Rows)
}

// Align returns a matrix whose columns follow names. Columns absent from m are
// zero-filled and extra columns are dropped.
func (m *Matrix) Align(names []string) *Matrix {
	index := make(map[string]int, len(m.Names))
	for i, n := range m.Names {
		index[n] = i
	}

	rows := make([][]float64, len(m.Rows))
	for r, row := range m.Rows {
		out := make([]float64, len(names))
		for j, name := range names {
			if idx, ok := index[name]; ok {
				out[j] = row[idx]
			}
		}
		rows[r] = out
	}

	return &Matrix{Names: append([]string(nil), names...), Rows: rows}
}

// Subset returns the rows at the given positions, sharing row storage.
func (m *Matrix) Subset(indices []int) *Matrix {
	rows := make([][]float64, len(indices))
	for i, idx := range indices {
		rows[i] = m.Rows[idx]
	}
	return &Matrix{Names: m.Names, Rows: rows}
}

// AlignRow builds one feature vector in the order of names from sparse named
// values; names without a value are zero.
func AlignRow(values map[string]float64, names []string) []float64 {
	row := make([]float64, len(names))
	for i, name := range names {
		row[i] = values[name]
	}
	return row
}

// OneHotName is the feature name of a category indicator column.
func OneHotName(column, category string) string {
	return column + "_" + category
}

// Encode converts a table to a numeric matrix. Columns whose values all parse
// as numbers stay numeric; any other column is one-hot encoded with the
// alphabetically first category dropped. Numeric columns come first in table
// order, followed by the indicator columns.
func Encode(t *Table) (*Matrix, error) {
	numeric := make([]int, 0, len(t.Columns))
	categorical := make([]int, 0)

	for i := range t.Columns {
		isNumeric := true
		for r, row := range t.Rows {
			if IsMissing(row[i]) {
				return nil, fmt.Errorf("%w: row %d column %s", ErrMissingValue, r, t.Columns[i])
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64); err != nil {
				isNumeric = false
				break
			}
		}
		if isNumeric {
			numeric = append(numeric, i)
		} else {
			categorical = append(categorical, i)
		}
	}

	type indicator struct {
		column int
		value  string
	}
	var indicators []indicator
	names := make([]string, 0, len(numeric))
	for _, i := range numeric {
		names = append(names, t.Columns[i])
	}
	for _, i := range categorical {
		categories := distinct(t, i)
		for _, c := range categories[1:] {
			indicators = append(indicators, indicator{column: i, value: c})
			names = append(names, OneHotName(t.Columns[i], c))
		}
	}

	rows := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]float64, 0, len(names))
		for _, i := range numeric {
			v, _ := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			out = append(out, v)
		}
		for _, ind := range indicators {
			if IsMissing(row[ind.column]) {
				return nil, fmt.Errorf("%w: row %d column %s", ErrMissingValue, r, t.Columns[ind.column])
			}
			if strings.TrimSpace(row[ind.column]) == ind.value {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
		rows[r] = out
	}

	return &Matrix{Names: names, Rows: rows}, nil
}

func distinct(t *Table, column int) []string {
	set := make(map[string]struct{})
	for _, row := range t.Rows {
		set[strings.TrimSpace(row[column])] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ParseLabels maps binary target values to 0/1. Accepted tokens are numeric
// 0/1, yes/no, true/false and the churn label strings.
func ParseLabels(values []string) ([]int, error) {
	labels := make([]int, len(values))
	for i, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "1.0", "yes", "true", "churned", "attrited customer":
			labels[i] = 1
		case "0", "0.0", "no", "false", "not churned", "existing customer":
			labels[i] = 0
		default:
			return nil, fmt.Errorf("%w: %q at row %d", ErrInvalidLabel, v, i)
		}
	}
	return labels, nil
}
