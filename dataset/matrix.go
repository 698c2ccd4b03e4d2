// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"io"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gorse-io/canteen/base/encoding"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Aggregation decides how repeated (user, item) interactions are merged into one cell.
type Aggregation int

const (
	// Sum adds up ratings. Ratings are read as purchased quantities.
	Sum Aggregation = iota
	// Mean averages ratings. Ratings are read as explicit scores.
	Mean
)

func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case "", "sum":
		return Sum, nil
	case "mean":
		return Mean, nil
	default:
		return Sum, errors.NotValidf("aggregation %q", s)
	}
}

func (a Aggregation) String() string {
	if a == Mean {
		return "mean"
	}
	return "sum"
}

// Matrix is a user-by-item sparse matrix in compressed sparse row format. Column indices of each
// row are sorted in ascending order and every stored value is positive.
type Matrix struct {
	nRows   int32
	nCols   int32
	indptr  []int32
	indices []int32
	values  []float32
}

// BuildMatrix aggregates interactions by summing ratings.
func BuildMatrix(users, items *Dict, interactions []Interaction) (*Matrix, error) {
	return BuildMatrixWithAggregation(users, items, interactions, Sum)
}

// BuildMatrixWithAggregation converts interactions to a sparse matrix. Ratings that are not finite
// are ignored and cells whose aggregated weight is not positive are dropped.
func BuildMatrixWithAggregation(users, items *Dict, interactions []Interaction, aggregation Aggregation) (*Matrix, error) {
	type cell struct {
		sum   float32
		count int32
	}
	rows := make([]map[int32]*cell, users.Count())
	for i, interaction := range interactions {
		userIndex, ok := users.Id(interaction.UserId)
		if !ok {
			return nil, errors.WithType(
				errors.Errorf("interaction %d references unknown user %q", i, interaction.UserId), ErrUnknownIdentifier)
		}
		itemIndex, ok := items.Id(interaction.ItemId)
		if !ok {
			return nil, errors.WithType(
				errors.Errorf("interaction %d references unknown item %q", i, interaction.ItemId), ErrUnknownIdentifier)
		}
		if math32.IsNaN(interaction.Rating) || math32.IsInf(interaction.Rating, 0) {
			continue
		}
		if rows[userIndex] == nil {
			rows[userIndex] = make(map[int32]*cell)
		}
		c, exist := rows[userIndex][itemIndex]
		if !exist {
			c = &cell{}
			rows[userIndex][itemIndex] = c
		}
		c.sum += interaction.Rating
		c.count++
	}

	m := &Matrix{
		nRows:  users.Count(),
		nCols:  items.Count(),
		indptr: make([]int32, users.Count()+1),
	}
	for userIndex, row := range rows {
		columns := make([]int32, 0, len(row))
		for itemIndex := range row {
			columns = append(columns, itemIndex)
		}
		slices.Sort(columns)
		for _, itemIndex := range columns {
			c := row[itemIndex]
			weight := c.sum
			if aggregation == Mean {
				weight /= float32(c.count)
			}
			if weight <= 0 {
				continue
			}
			m.indices = append(m.indices, itemIndex)
			m.values = append(m.values, weight)
		}
		m.indptr[userIndex+1] = int32(len(m.indices))
	}
	return m, nil
}

// Shape returns the number of rows and columns.
func (m *Matrix) Shape() (int32, int32) {
	return m.nRows, m.nCols
}

// Nnz returns the number of stored cells.
func (m *Matrix) Nnz() int {
	return len(m.indices)
}

// Row returns column indices and values of a row. The slices must not be modified.
func (m *Matrix) Row(row int32) ([]int32, []float32) {
	if row < 0 || row >= m.nRows {
		return nil, nil
	}
	begin, end := m.indptr[row], m.indptr[row+1]
	return m.indices[begin:end], m.values[begin:end]
}

// Get returns the weight at (row, col), or zero if the cell is absent.
func (m *Matrix) Get(row, col int32) float32 {
	indices, values := m.Row(row)
	if pos, found := slices.BinarySearch(indices, col); found {
		return values[pos]
	}
	return 0
}

// ColumnSums returns the total weight of each column.
func (m *Matrix) ColumnSums() []float32 {
	sums := make([]float32, m.nCols)
	for i, col := range m.indices {
		sums[col] += m.values[i]
	}
	return sums
}

// ColumnCounts returns the number of stored cells in each column.
func (m *Matrix) ColumnCounts() []int {
	counts := make([]int, m.nCols)
	for _, col := range m.indices {
		counts[col]++
	}
	return counts
}

// Transpose returns the item-by-user matrix.
func (m *Matrix) Transpose() *Matrix {
	t := &Matrix{
		nRows:   m.nCols,
		nCols:   m.nRows,
		indptr:  make([]int32, m.nCols+1),
		indices: make([]int32, len(m.indices)),
		values:  make([]float32, len(m.values)),
	}
	for _, col := range m.indices {
		t.indptr[col+1]++
	}
	for i := int32(0); i < m.nCols; i++ {
		t.indptr[i+1] += t.indptr[i]
	}
	next := slices.Clone(t.indptr[:m.nCols])
	// rows are visited in ascending order so the columns of t stay sorted
	for row := int32(0); row < m.nRows; row++ {
		indices, values := m.Row(row)
		for j, col := range indices {
			pos := next[col]
			t.indices[pos] = row
			t.values[pos] = values[j]
			next[col]++
		}
	}
	return t
}

type matrixState struct {
	NRows   int32
	NCols   int32
	Indptr  []int32
	Indices []int32
	Values  []float32
}

// Marshal writes the matrix to a stream.
func (m *Matrix) Marshal(w io.Writer) error {
	return encoding.WriteGob(w, matrixState{
		NRows:   m.nRows,
		NCols:   m.nCols,
		Indptr:  m.indptr,
		Indices: m.indices,
		Values:  m.values,
	})
}

// UnmarshalMatrix reads a matrix written by Marshal and checks its structure.
func UnmarshalMatrix(r io.Reader) (*Matrix, error) {
	var state matrixState
	if err := encoding.ReadGob(r, &state); err != nil {
		return nil, errors.Trace(err)
	}
	if state.NRows < 0 || state.NCols < 0 || len(state.Indptr) != int(state.NRows)+1 ||
		len(state.Indices) != len(state.Values) || state.Indptr[0] != 0 ||
		int(state.Indptr[state.NRows]) != len(state.Indices) {
		return nil, errors.NotValidf("sparse matrix structure")
	}
	for i := int32(0); i < state.NRows; i++ {
		if state.Indptr[i] > state.Indptr[i+1] {
			return nil, errors.NotValidf("sparse matrix row pointer")
		}
	}
	for _, col := range state.Indices {
		if col < 0 || col >= state.NCols {
			return nil, errors.NotValidf("sparse matrix column %d", col)
		}
	}
	return &Matrix{
		nRows:   state.NRows,
		nCols:   state.NCols,
		indptr:  state.Indptr,
		indices: state.Indices,
		values:  state.Values,
	}, nil
}

// newMatrixFromRows builds a matrix from unsorted rows of positive cells.
func newMatrixFromRows(nRows, nCols int32, rowIndices [][]int32, rowValues [][]float32) *Matrix {
	m := &Matrix{
		nRows:  nRows,
		nCols:  nCols,
		indptr: make([]int32, nRows+1),
	}
	for row := int32(0); row < nRows; row++ {
		order := lo.Range(len(rowIndices[row]))
		slices.SortFunc(order, func(a, b int) int {
			return int(rowIndices[row][a]) - int(rowIndices[row][b])
		})
		for _, pos := range order {
			m.indices = append(m.indices, rowIndices[row][pos])
			m.values = append(m.values, rowValues[row][pos])
		}
		m.indptr[row+1] = int32(len(m.indices))
	}
	return m
}
