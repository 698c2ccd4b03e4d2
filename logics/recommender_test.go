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
	"context"
	"fmt"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newOrders creates 20 users who each ordered 5 items of their favorite category.
func newOrders() ([]dataset.User, []dataset.Item, []dataset.Interaction) {
	var (
		users        []dataset.User
		items        []dataset.Item
		interactions []dataset.Interaction
	)
	categories := []string{"Snack", "Lunch"}
	for i := 0; i < 20; i++ {
		items = append(items, dataset.Item{ItemId: fmt.Sprintf("I%d", i), Category: categories[i/10]})
	}
	for u := 0; u < 20; u++ {
		users = append(users, dataset.User{UserId: fmt.Sprintf("U%d", u), FavCategory: categories[u/10]})
		for k := 0; k < 5; k++ {
			interactions = append(interactions, dataset.Interaction{
				UserId: fmt.Sprintf("U%d", u),
				ItemId: fmt.Sprintf("I%d", (u+k*3)%10+u/10*10),
				Rating: 1,
			})
		}
	}
	return users, items, interactions
}

func fitModel(t *testing.T, d *dataset.Dataset, seed int64) *model.HybridFM {
	m := model.NewHybridFM(model.Params{model.NFactors: 8, model.NEpochs: 10, model.RandomState: seed})
	_, err := m.Fit(context.Background(), d, nil, model.NewFitConfig())
	assert.NoError(t, err)
	return m
}

func TestRecommender_Model(t *testing.T) {
	users, items, interactions := newOrders()
	d, err := dataset.NewDataset(users, items, interactions)
	assert.NoError(t, err)
	r := NewRecommender(fitModel(t, d, 0), NewPivot(d))

	recommends, path := r.RecommendWithPath("U0", 100)
	assert.Equal(t, PathModel, path)
	// all unseen items are returned and consumed items are excluded
	assert.Len(t, recommends, 15)
	consumed := mapset.NewSet[string]()
	for _, interaction := range interactions {
		if interaction.UserId == "U0" {
			consumed.Add(interaction.ItemId)
		}
	}
	for _, itemId := range recommends {
		assert.False(t, consumed.Contains(itemId))
	}
	assert.Equal(t, 15, mapset.NewSet(recommends...).Cardinality())

	// bounded by n
	assert.Len(t, r.Recommend("U0", 3), 3)
	assert.Equal(t, recommends[:3], r.Recommend(" U0 ", 3))
	assert.Empty(t, r.Recommend("U0", 0))
	assert.NotNil(t, r.Recommend("U0", 0))
}

func TestRecommender_Snack(t *testing.T) {
	d, err := dataset.NewDataset(
		[]dataset.User{{UserId: "U1", FavCategory: "Snack"}},
		[]dataset.Item{
			{ItemId: "I1", Category: "Snack"},
			{ItemId: "I2", Category: "Snack"},
			{ItemId: "I3", Category: "Lunch"},
		},
		[]dataset.Interaction{{UserId: "U1", ItemId: "I1", Rating: 3}})
	assert.NoError(t, err)
	wins := 0
	for seed := int64(0); seed < 20; seed++ {
		m := model.NewHybridFM(model.Params{model.RandomState: seed})
		_, err = m.Fit(context.Background(), d, nil, model.NewFitConfig())
		assert.NoError(t, err)
		recommends := NewRecommender(m, NewPivot(d)).Recommend("U1", 2)
		assert.Len(t, recommends, 2)
		assert.NotContains(t, recommends, "I1")
		if len(recommends) > 0 && recommends[0] == "I2" {
			wins++
		}
	}
	assert.GreaterOrEqual(t, wins, 16)
}

func TestRecommender_ItemSimilarity(t *testing.T) {
	users, items, interactions := newOrders()
	full, err := dataset.NewDataset(users, items, interactions)
	assert.NoError(t, err)
	// U19 is registered in the model without training interactions and U0 is not registered
	var trainInteractions []dataset.Interaction
	for _, interaction := range interactions {
		if interaction.UserId != "U19" {
			trainInteractions = append(trainInteractions, interaction)
		}
	}
	train, err := dataset.NewDataset(users[1:], items, trainInteractions[5:])
	assert.NoError(t, err)
	r := NewRecommender(fitModel(t, train, 0), NewPivot(full))

	for _, userId := range []string{"U0", "U19"} {
		recommends, path := r.RecommendWithPath(userId, 3)
		assert.Equal(t, PathItemSimilarity, path)
		assert.Equal(t, NewPivot(full).Similar(userId, 3), recommends)
		for _, itemId := range NewPivot(full).History(userId) {
			assert.NotContains(t, recommends, itemId)
		}
	}
}

func TestRecommender_ColdStart(t *testing.T) {
	d, err := dataset.NewDataset(
		[]dataset.User{{UserId: "U1"}, {UserId: "U2"}, {UserId: "U3"}},
		[]dataset.Item{{ItemId: "A"}, {ItemId: "B"}, {ItemId: "C"}, {ItemId: "D"}, {ItemId: "E"}},
		[]dataset.Interaction{
			{UserId: "U1", ItemId: "C", Rating: 1},
			{UserId: "U2", ItemId: "C", Rating: 1},
			{UserId: "U3", ItemId: "C", Rating: 1},
			{UserId: "U1", ItemId: "A", Rating: 1},
			{UserId: "U2", ItemId: "A", Rating: 1},
			{UserId: "U3", ItemId: "E", Rating: 1},
		})
	assert.NoError(t, err)
	before := testutil.ToFloat64(RecommendTotal.WithLabelValues(string(PathPopularity)))
	for _, r := range []*Recommender{
		NewRecommender(nil, NewPivot(d)),
		NewRecommender(model.NewHybridFM(nil), NewPivot(d)),
		NewRecommender(fitModel(t, d, 0), NewPivot(d)),
	} {
		recommends, path := r.RecommendWithPath("U9", 10)
		assert.Equal(t, PathPopularity, path)
		assert.Equal(t, []string{"C", "A", "E", "B", "D"}, recommends)
		assert.Equal(t, []string{"C", "A"}, r.Recommend("U9", 2))
	}
	assert.Equal(t, before+6, testutil.ToFloat64(RecommendTotal.WithLabelValues(string(PathPopularity))))
}

func TestRecommender_EmptyCatalog(t *testing.T) {
	d, err := dataset.NewDataset([]dataset.User{{UserId: "U1"}}, nil, nil)
	assert.NoError(t, err)
	r := NewRecommender(nil, NewPivot(d))
	recommends := r.Recommend("U1", 5)
	assert.NotNil(t, recommends)
	assert.Empty(t, recommends)
}
