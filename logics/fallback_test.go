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

package logics

import (
	"testing"

	"github.com/gorse-io/canteen/dataset"
	"github.com/stretchr/testify/assert"
)

func newPivotDataset(t *testing.T) *dataset.Dataset {
	d, err := dataset.NewDataset(
		[]dataset.User{{UserId: "U1"}, {UserId: "U2"}, {UserId: "U3"}, {UserId: "U4"}, {UserId: "U5"}, {UserId: "U6"}},
		[]dataset.Item{{ItemId: "A"}, {ItemId: "B"}, {ItemId: "C"}, {ItemId: "D"}, {ItemId: "E"}},
		[]dataset.Interaction{
			{UserId: "U1", ItemId: "A", Rating: 1},
			{UserId: "U1", ItemId: "B", Rating: 1},
			{UserId: "U2", ItemId: "A", Rating: 1},
			{UserId: "U2", ItemId: "B", Rating: 1},
			{UserId: "U3", ItemId: "A", Rating: 1},
			{UserId: "U3", ItemId: "C", Rating: 1},
			{UserId: "U4", ItemId: "D", Rating: 1},
			{UserId: "U5", ItemId: "A", Rating: 1},
		})
	assert.NoError(t, err)
	return d
}

func TestPivot_Similarity(t *testing.T) {
	p := NewPivot(newPivotDataset(t))
	assert.InDelta(t, 0.7071, p.Similarity("A", "B"), 1e-4)
	assert.InDelta(t, 0.5, p.Similarity("A", "C"), 1e-4)
	assert.InDelta(t, 1, p.Similarity("B", "B"), 1e-4)
	assert.Zero(t, p.Similarity("A", "D"))
	assert.Zero(t, p.Similarity("A", "E"))
	assert.Zero(t, p.Similarity("A", "Z"))
}

func TestPivot_Similar(t *testing.T) {
	p := NewPivot(newPivotDataset(t))
	assert.Equal(t, []string{"B", "C"}, p.Similar("U5", 2))
	assert.Equal(t, []string{"B", "C", "D", "E"}, p.Similar("U5", 10))
	// purchased items are excluded
	assert.Equal(t, []string{"C", "D", "E"}, p.Similar("U1", 10))
	// zero scores are ordered by item index
	assert.Equal(t, []string{"A", "B", "C", "E"}, p.Similar("U4", 10))
	// no history
	assert.Nil(t, p.Similar("U6", 10))
	assert.Nil(t, p.Similar("U7", 10))
	assert.Empty(t, p.Similar("U5", 0))
}

func TestPivot_Popular(t *testing.T) {
	p := NewPivot(newPivotDataset(t))
	assert.Equal(t, 5, p.CountItems())
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, p.Popular(10))
	assert.Equal(t, []string{"A", "B"}, p.Popular(2))
	assert.Empty(t, p.Popular(0))
	assert.Empty(t, p.Popular(-1))
}

func TestPivot_History(t *testing.T) {
	p := NewPivot(newPivotDataset(t))
	assert.True(t, p.HasHistory("U1"))
	assert.False(t, p.HasHistory("U6"))
	assert.False(t, p.HasHistory("U7"))
	assert.Equal(t, []string{"A", "B"}, p.History("U1"))
	assert.Empty(t, p.History("U6"))
	assert.Nil(t, p.History("U7"))
}
