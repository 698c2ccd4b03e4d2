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
	"strconv"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewDataset(t *testing.T) {
	d, err := NewDataset([]User{
		{UserId: "U1", FavCategory: "Snack"},
		{UserId: " U2 ", Gender: "male"},
		{UserId: "U1", FavCategory: "Lunch"},
	}, []Item{
		{ItemId: "I1", Category: "Snack"},
		{ItemId: "I2", Category: "Snack"},
		{ItemId: "I3", Category: "Lunch"},
	}, []Interaction{
		{UserId: "U1", ItemId: "I1", Rating: 3},
		{UserId: "U2 ", ItemId: "I3", Rating: 1},
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, d.CountUsers())
	assert.Equal(t, 3, d.CountItems())
	assert.Equal(t, 2, d.CountFeedback())
	assert.Equal(t, []string{"U1", "U2"}, d.GetUserDict().Ids())
	assert.Equal(t, []string{"I1", "I2", "I3"}, d.GetItemDict().Ids())
	// the first record wins
	assert.Equal(t, "Snack", d.GetUsers()[0].FavCategory)
	assert.Len(t, d.GetUserTags(), 2)
	assert.Len(t, d.GetItemTags(), 3)
	assert.Equal(t, d.GetItemTags()[0], d.GetItemTags()[1])
	assert.NotEqual(t, d.GetItemTags()[0], d.GetItemTags()[2])
	assert.Contains(t, d.GetEncoder().Vocabulary(), "fav_category:Snack")
	assert.Equal(t, float32(3), d.GetMatrix().Get(0, 0))
	assert.Equal(t, float32(1), d.GetMatrix().Get(1, 2))
}

func TestNewDatasetUnknown(t *testing.T) {
	_, err := NewDataset([]User{{UserId: "U1"}}, []Item{{ItemId: "I1"}}, []Interaction{{UserId: "U2", ItemId: "I1", Rating: 1}})
	assert.True(t, errors.Is(err, ErrUnknownIdentifier))
}

func TestDatasetSplit(t *testing.T) {
	var (
		users        []User
		items        []Item
		interactions []Interaction
	)
	for i := 0; i < 10; i++ {
		items = append(items, Item{ItemId: strconv.Itoa(i)})
	}
	for i := 0; i < 5; i++ {
		users = append(users, User{UserId: strconv.Itoa(i)})
		for j := 0; j <= i*2; j++ {
			interactions = append(interactions, Interaction{UserId: strconv.Itoa(i), ItemId: strconv.Itoa(j), Rating: 1})
		}
	}
	d, err := NewDataset(users, items, interactions)
	assert.NoError(t, err)
	train, test := d.Split(0.5, 0)
	assert.Equal(t, d.CountFeedback(), train.CountFeedback()+test.CountFeedback())
	for userIndex := int32(0); userIndex < 5; userIndex++ {
		trainIndices, _ := train.GetMatrix().Row(userIndex)
		testIndices, _ := test.GetMatrix().Row(userIndex)
		assert.NotEmpty(t, trainIndices)
		for _, itemIndex := range testIndices {
			assert.Zero(t, train.GetMatrix().Get(userIndex, itemIndex))
		}
	}
	// the single cell of user 0 stays in train
	assert.Equal(t, float32(1), train.GetMatrix().Get(0, 0))
	assert.Equal(t, d.GetUserDict(), test.GetUserDict())
}
