package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Dataset is an ordered-column tabular value. It is the unit of data a
// session owns and the only state skills are allowed to mutate.
//
// The JSON shape ("columns" + "rows") is the wire format shared with the
// sandbox harnesses, which rebuild it as a dataframe on their side.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewDataset creates a dataset with the given columns and no rows.
func NewDataset(columns ...string) *Dataset {
	return &Dataset{Columns: columns, Rows: [][]any{}}
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int {
	return len(d.Columns)
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column.
func (d *Dataset) Column(name string) ([]any, error) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column not found: %s", name)
	}
	values := make([]any, 0, len(d.Rows))
	for _, row := range d.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, nil)
		}
	}
	return values, nil
}

// Float64Column returns the named column coerced to float64, skipping
// nil cells. Non-numeric cells are an error.
func (d *Dataset) Float64Column(name string) ([]float64, error) {
	values, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("column %s: row %d is not numeric (%T)", name, i, v)
		}
		out = append(out, f)
	}
	return out, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AppendRow appends a row. The row length must match the column count.
func (d *Dataset) AppendRow(row ...any) error {
	if len(row) != len(d.Columns) {
		return fmt.Errorf("row has %d cells, dataset has %d columns", len(row), len(d.Columns))
	}
	d.Rows = append(d.Rows, row)
	return nil
}

// Clone returns a deep copy. Mutating the copy never affects the
// original; sandbox executors rely on this to honor the persist flag.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	clone := &Dataset{
		Columns: append([]string{}, d.Columns...),
		Rows:    make([][]any, len(d.Rows)),
	}
	for i, row := range d.Rows {
		clone.Rows[i] = append([]any{}, row...)
	}
	return clone
}

// Head returns a copy of the first n rows, for previews and data events.
func (d *Dataset) Head(n int) *Dataset {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	head := &Dataset{Columns: append([]string{}, d.Columns...)}
	head.Rows = make([][]any, n)
	for i := 0; i < n; i++ {
		head.Rows[i] = append([]any{}, d.Rows[i]...)
	}
	return head
}

// Equal reports whether two datasets hold the same columns and cells.
// Comparison goes through the JSON encoding so that numerically equal
// cells boxed as different Go types (int vs float64) still compare equal.
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == other
	}
	a, err := json.Marshal(normalized(d))
	if err != nil {
		return false
	}
	b, err := json.Marshal(normalized(other))
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func normalized(d *Dataset) *Dataset {
	norm := &Dataset{Columns: d.Columns, Rows: make([][]any, len(d.Rows))}
	for i, row := range d.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			if f, ok := toFloat64(v); ok {
				cells[j] = f
			} else {
				cells[j] = v
			}
		}
		norm.Rows[i] = cells
	}
	return norm
}
