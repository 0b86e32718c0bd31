package domain

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsOfLengths(lengths []int) [][]any {
	rows := make([][]any, len(lengths))
	for i, n := range lengths {
		row := make([]any, n)
		for j := range row {
			row[j] = float64(i*10 + j)
		}
		rows[i] = row
	}
	return rows
}

func columnsOf(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = string(rune('a' + i))
	}
	return cols
}

// Accepted tables are rectangular; anything else is rejected, never padded.
func TestNewTableResult_ShapeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted rows have one cell per column", prop.ForAll(
		func(ncols int, lengths []int) bool {
			table, err := NewTableResult(columnsOf(ncols), rowsOfLengths(lengths))
			if err != nil {
				return true
			}
			if len(table.Columns) != ncols || len(table.Rows) != len(lengths) {
				return false
			}
			for _, row := range table.Rows {
				if len(row) != ncols {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 6),
		gen.SliceOf(gen.IntRange(0, 7)),
	))

	properties.Property("any mismatched row is a shape error", prop.ForAll(
		func(ncols int, lengths []int) bool {
			mismatch := false
			for _, n := range lengths {
				if n != ncols {
					mismatch = true
				}
			}
			table, err := NewTableResult(columnsOf(ncols), rowsOfLengths(lengths))
			if !mismatch {
				return err == nil
			}
			return errors.Is(err, ErrTableShape) && table.Columns == nil && table.Rows == nil
		},
		gen.IntRange(0, 6),
		gen.SliceOf(gen.IntRange(0, 7)),
	))

	properties.Property("rectangular input is kept as is", prop.ForAll(
		func(ncols, nrows int) bool {
			lengths := make([]int, nrows)
			for i := range lengths {
				lengths[i] = ncols
			}
			rows := rowsOfLengths(lengths)
			table, err := NewTableResult(columnsOf(ncols), rows)
			if err != nil || len(table.Rows) != nrows {
				return false
			}
			for i := range rows {
				for j := range rows[i] {
					if table.Rows[i][j] != rows[i][j] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestNewTableResult_NilInputs(t *testing.T) {
	table, err := NewTableResult(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, table.Columns)
	assert.NotNil(t, table.Rows)

	_, err = NewTableResult([]string{"x", "y"}, [][]any{{1.0, 2.0}, {3.0}})
	assert.ErrorIs(t, err, ErrTableShape)
	assert.Contains(t, err.Error(), "row 1 has 1 cells, expected 2")
	assert.Equal(t, TagTableShape, ErrorTag(err))
}

func TestTableResult_CloneDoesNotAlias(t *testing.T) {
	orig := TableResult{Columns: []string{"x"}, Rows: [][]any{{1.0}}}
	c := orig.Clone()
	c.Columns[0] = "y"
	c.Rows[0][0] = 2.0

	assert.Equal(t, "x", orig.Columns[0])
	assert.Equal(t, 1.0, orig.Rows[0][0])

	cell, ok := orig.FirstCell()
	assert.True(t, ok)
	assert.Equal(t, 1.0, cell)
	_, ok = TableResult{}.FirstCell()
	assert.False(t, ok)
}
