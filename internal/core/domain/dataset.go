package domain

import (
	"errors"
	"sort"
)

// Row maps a column name to a scalar cell: string, float64, bool, or nil.
type Row map[string]any

// Dataset is an ordered list of rows. Columns is the header of the source
// table; when empty it is derived from the rows.
type Dataset struct {
	Columns []string
	Rows    []Row
}

func NewDataset(columns []string, rows []Row) Dataset {
	return Dataset{Columns: columns, Rows: rows}
}

// ColumnSet returns the dataset columns: the declared header, or the sorted
// union of row keys when no header was given.
func (d Dataset) ColumnSet() []string {
	if len(d.Columns) > 0 {
		out := make([]string, len(d.Columns))
		copy(out, d.Columns)
		return out
	}
	seen := make(map[string]struct{})
	for _, row := range d.Rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (d Dataset) HasColumn(name string) bool {
	for _, c := range d.ColumnSet() {
		if c == name {
			return true
		}
	}
	return false
}

func (d Dataset) Len() int {
	return len(d.Rows)
}

// ErrInvalidDataset marks data files that cannot be read as a table.
var ErrInvalidDataset = errors.New("invalid dataset")
