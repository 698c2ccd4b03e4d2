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
	"math"
	"strings"

	"github.com/gorse-io/canteen/common/heap"
	"github.com/gorse-io/canteen/dataset"
	"github.com/samber/lo"
)

// Score of an item in a catalog query.
type Score struct {
	Id    string  `json:"id"`
	Score float64 `json:"score"`
}

// Catalog answers non-personalized queries over raw order rows.
type Catalog struct {
	items        []dataset.Item
	interactions []dataset.Interaction
}

func NewCatalog(items []dataset.Item, interactions []dataset.Interaction) *Catalog {
	return &Catalog{items: items, interactions: interactions}
}

// PopularByCount returns items ordered by the number of order rows.
func (c *Catalog) PopularByCount(n int) []Score {
	counts := lo.CountValuesBy(c.interactions, func(interaction dataset.Interaction) string {
		return strings.TrimSpace(interaction.ItemId)
	})
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId, count := range counts {
		filter.Push(itemId, float64(count))
	}
	return toScores(filter)
}

// TopRated returns items ordered by mean rating. Rows without a rating are ignored.
func (c *Catalog) TopRated(n int) []Score {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, interaction := range c.interactions {
		if math.IsNaN(float64(interaction.Rating)) {
			continue
		}
		itemId := strings.TrimSpace(interaction.ItemId)
		sums[itemId] += float64(interaction.Rating)
		counts[itemId]++
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId, sum := range sums {
		filter.Push(itemId, sum/float64(counts[itemId]))
	}
	return toScores(filter)
}

// ByCategory returns distinct ids of catalog items in a category, compared case-insensitively.
func (c *Catalog) ByCategory(category string) []string {
	category = strings.TrimSpace(category)
	matched := lo.FilterMap(c.items, func(item dataset.Item, _ int) (string, bool) {
		return strings.TrimSpace(item.ItemId), strings.EqualFold(strings.TrimSpace(item.Category), category)
	})
	return lo.Uniq(matched)
}

func toScores(filter *heap.TopKFilter[string, float64]) []Score {
	elems := filter.PopAll()
	return lo.Map(elems, func(elem heap.Elem[string, float64], _ int) Score {
		return Score{Id: elem.Value, Score: elem.Weight}
	})
}
