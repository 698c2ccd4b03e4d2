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
	"strings"

	"github.com/gorse-io/canteen/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// ErrUnknownIdentifier is returned when a record references a user or an item that has not been
// registered.
const ErrUnknownIdentifier = errors.ConstError("unknown identifier")

// Dataset is the in-memory training input: identity mappings, feature tags and the interaction
// matrix built from them.
type Dataset struct {
	users    []User
	items    []Item
	userDict *Dict
	itemDict *Dict
	encoder  *FeatureEncoder
	userTags [][]int32
	itemTags [][]int32
	matrix   *Matrix
}

// NewDataset registers users and items, encodes their attributes and builds the interaction
// matrix by summing ratings.
func NewDataset(users []User, items []Item, interactions []Interaction) (*Dataset, error) {
	return NewDatasetWithAggregation(users, items, interactions, Sum)
}

func NewDatasetWithAggregation(users []User, items []Item, interactions []Interaction, aggregation Aggregation) (*Dataset, error) {
	d := &Dataset{
		userDict: NewDict(),
		itemDict: NewDict(),
		encoder:  NewFeatureEncoder(),
	}
	// duplicated records keep the first occurrence
	for _, user := range users {
		user.UserId = strings.TrimSpace(user.UserId)
		if _, exist := d.userDict.Id(user.UserId); exist {
			continue
		}
		d.userDict.Add(user.UserId)
		d.users = append(d.users, user)
	}
	for _, item := range items {
		item.ItemId = strings.TrimSpace(item.ItemId)
		if _, exist := d.itemDict.Id(item.ItemId); exist {
			continue
		}
		d.itemDict.Add(item.ItemId)
		d.items = append(d.items, item)
	}
	d.userTags, d.itemTags = d.encoder.Fit(d.users, d.items)
	interactions = lo.Map(interactions, func(interaction Interaction, _ int) Interaction {
		interaction.UserId = strings.TrimSpace(interaction.UserId)
		interaction.ItemId = strings.TrimSpace(interaction.ItemId)
		return interaction
	})
	var err error
	d.matrix, err = BuildMatrixWithAggregation(d.userDict, d.itemDict, interactions, aggregation)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}

func (d *Dataset) GetUsers() []User {
	return d.users
}

func (d *Dataset) GetItems() []Item {
	return d.items
}

func (d *Dataset) CountUsers() int {
	return len(d.users)
}

func (d *Dataset) CountItems() int {
	return len(d.items)
}

func (d *Dataset) CountFeedback() int {
	return d.matrix.Nnz()
}

func (d *Dataset) GetUserDict() *Dict {
	return d.userDict
}

func (d *Dataset) GetItemDict() *Dict {
	return d.itemDict
}

func (d *Dataset) GetEncoder() *FeatureEncoder {
	return d.encoder
}

// GetUserTags returns tag indices of each user, indexed by user index.
func (d *Dataset) GetUserTags() [][]int32 {
	return d.userTags
}

// GetItemTags returns tag indices of each item, indexed by item index.
func (d *Dataset) GetItemTags() [][]int32 {
	return d.itemTags
}

func (d *Dataset) GetMatrix() *Matrix {
	return d.matrix
}

// Split holds out a fraction of each user's cells for validation. Users keep at least one cell in
// the train set. Both sets share identity mappings and tags.
func (d *Dataset) Split(testRatio float32, seed int64) (*Dataset, *Dataset) {
	rng := base.NewRandomGenerator(seed)
	nRows, nCols := d.matrix.Shape()
	trainIndices, trainValues := make([][]int32, nRows), make([][]float32, nRows)
	testIndices, testValues := make([][]int32, nRows), make([][]float32, nRows)
	for userIndex := int32(0); userIndex < nRows; userIndex++ {
		indices, values := d.matrix.Row(userIndex)
		perm := lo.Range(len(indices))
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		testSize := int(float32(len(indices)) * testRatio)
		if testSize >= len(indices) {
			testSize = len(indices) - 1
		}
		for i, pos := range perm {
			if i < testSize {
				testIndices[userIndex] = append(testIndices[userIndex], indices[pos])
				testValues[userIndex] = append(testValues[userIndex], values[pos])
			} else {
				trainIndices[userIndex] = append(trainIndices[userIndex], indices[pos])
				trainValues[userIndex] = append(trainValues[userIndex], values[pos])
			}
		}
	}
	train, test := *d, *d
	train.matrix = newMatrixFromRows(nRows, nCols, trainIndices, trainValues)
	test.matrix = newMatrixFromRows(nRows, nCols, testIndices, testValues)
	return &train, &test
}
