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
	"bytes"
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func newTestDicts() (*Dict, *Dict) {
	return FitDict([]string{"U1", "U2", "U3"}), FitDict([]string{"I1", "I2", "I3", "I4"})
}

func TestBuildMatrix(t *testing.T) {
	users, items := newTestDicts()
	m, err := BuildMatrix(users, items, []Interaction{
		{UserId: "U1", ItemId: "I3", Rating: 1},
		{UserId: "U1", ItemId: "I1", Rating: 2},
		{UserId: "U1", ItemId: "I3", Rating: 2},
		{UserId: "U2", ItemId: "I2", Rating: 0},
		{UserId: "U3", ItemId: "I4", Rating: 2},
		{UserId: "U3", ItemId: "I4", Rating: -3},
	})
	assert.NoError(t, err)
	nRows, nCols := m.Shape()
	assert.Equal(t, int32(3), nRows)
	assert.Equal(t, int32(4), nCols)
	assert.Equal(t, 2, m.Nnz())
	indices, values := m.Row(0)
	assert.Equal(t, []int32{0, 2}, indices)
	assert.Equal(t, []float32{2, 3}, values)
	// zero and negative cells are dropped
	indices, _ = m.Row(1)
	assert.Empty(t, indices)
	assert.Zero(t, m.Get(2, 3))
	assert.Equal(t, float32(3), m.Get(0, 2))
	assert.Zero(t, m.Get(0, 1))
	assert.Zero(t, m.Get(5, 1))
	assert.Equal(t, []float32{2, 0, 3, 0}, m.ColumnSums())
	assert.Equal(t, []int{1, 0, 1, 0}, m.ColumnCounts())
}

func TestBuildMatrixNonFinite(t *testing.T) {
	users, items := newTestDicts()
	m, err := BuildMatrixWithAggregation(users, items, []Interaction{
		{UserId: "U1", ItemId: "I1", Rating: float32(math.NaN())},
		{UserId: "U1", ItemId: "I1", Rating: 4},
		{UserId: "U2", ItemId: "I2", Rating: float32(math.Inf(1))},
	}, Mean)
	assert.NoError(t, err)
	assert.Equal(t, 1, m.Nnz())
	assert.Equal(t, float32(4), m.Get(0, 0))
}

func TestBuildMatrixMean(t *testing.T) {
	users, items := newTestDicts()
	m, err := BuildMatrixWithAggregation(users, items, []Interaction{
		{UserId: "U1", ItemId: "I1", Rating: 2},
		{UserId: "U1", ItemId: "I1", Rating: 4},
	}, Mean)
	assert.NoError(t, err)
	assert.Equal(t, float32(3), m.Get(0, 0))
}

func TestBuildMatrixUnknown(t *testing.T) {
	users, items := newTestDicts()
	_, err := BuildMatrix(users, items, []Interaction{{UserId: "U9", ItemId: "I1", Rating: 1}})
	assert.True(t, errors.Is(err, ErrUnknownIdentifier))
	assert.Contains(t, err.Error(), "U9")
	_, err = BuildMatrix(users, items, []Interaction{{UserId: "U1", ItemId: "I9", Rating: 1}})
	assert.True(t, errors.Is(err, ErrUnknownIdentifier))
	assert.Contains(t, err.Error(), "I9")
}

func TestParseAggregation(t *testing.T) {
	aggregation, err := ParseAggregation("mean")
	assert.NoError(t, err)
	assert.Equal(t, Mean, aggregation)
	aggregation, err = ParseAggregation("")
	assert.NoError(t, err)
	assert.Equal(t, Sum, aggregation)
	assert.Equal(t, "sum", aggregation.String())
	_, err = ParseAggregation("max")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestMatrixTranspose(t *testing.T) {
	users, items := newTestDicts()
	m, err := BuildMatrix(users, items, []Interaction{
		{UserId: "U3", ItemId: "I1", Rating: 1},
		{UserId: "U1", ItemId: "I1", Rating: 2},
		{UserId: "U2", ItemId: "I4", Rating: 5},
	})
	assert.NoError(t, err)
	tr := m.Transpose()
	nRows, nCols := tr.Shape()
	assert.Equal(t, int32(4), nRows)
	assert.Equal(t, int32(3), nCols)
	indices, values := tr.Row(0)
	assert.Equal(t, []int32{0, 2}, indices)
	assert.Equal(t, []float32{2, 1}, values)
	assert.Equal(t, float32(5), tr.Get(3, 1))
}

func TestMatrixMarshal(t *testing.T) {
	users, items := newTestDicts()
	m, err := BuildMatrix(users, items, []Interaction{
		{UserId: "U1", ItemId: "I2", Rating: 1},
		{UserId: "U3", ItemId: "I4", Rating: 2},
	})
	assert.NoError(t, err)
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, m.Marshal(buf))
	copied, err := UnmarshalMatrix(buf)
	assert.NoError(t, err)
	assert.Equal(t, m, copied)

	// empty matrix
	empty, err := BuildMatrix(NewDict(), NewDict(), nil)
	assert.NoError(t, err)
	buf.Reset()
	assert.NoError(t, empty.Marshal(buf))
	copied, err = UnmarshalMatrix(buf)
	assert.NoError(t, err)
	assert.Zero(t, copied.Nnz())

	// corrupted matrix
	buf.Reset()
	assert.NoError(t, (&Matrix{nRows: 1, nCols: 1, indptr: []int32{0, 1}, indices: []int32{3}, values: []float32{1}}).Marshal(buf))
	_, err = UnmarshalMatrix(buf)
	assert.True(t, errors.Is(err, errors.NotValid))
}
