package domain

import "fmt"

// TableResult is a remote table materialized as ordered columns and rows.
// Every row has exactly len(Columns) cells.
type TableResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTableResult checks the row/column invariant. A short or long row is a
// data-integrity problem on the remote side; it is reported, never padded.
func NewTableResult(columns []string, rows [][]any) (TableResult, error) {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = [][]any{}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return TableResult{}, fmt.Errorf("%w: row %d has %d cells, expected %d", ErrTableShape, i, len(row), len(columns))
		}
	}
	return TableResult{Columns: columns, Rows: rows}, nil
}

// FirstCell returns the value at row 0, column 0.
func (t TableResult) FirstCell() (any, bool) {
	if len(t.Rows) == 0 || len(t.Rows[0]) == 0 {
		return nil, false
	}
	return t.Rows[0][0], true
}

// Clone returns a copy whose slices do not alias t.
func (t TableResult) Clone() TableResult {
	cols := make([]string, len(t.Columns))
	copy(cols, t.Columns)
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(r))
		copy(row, r)
		rows[i] = row
	}
	return TableResult{Columns: cols, Rows: rows}
}

// TableRef names a table in the engine's library/table namespace.
type TableRef struct {
	Library string `json:"library"`
	Name    string `json:"table_name"`
}
