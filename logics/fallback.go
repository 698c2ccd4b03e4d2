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
	"cmp"
	"slices"
	"strings"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/canteen/common/floats"
	"github.com/gorse-io/canteen/common/heap"
	"github.com/gorse-io/canteen/dataset"
)

// Pivot is a user by item table of historical interaction weights. It serves users the trained
// model cannot, and needs no training.
type Pivot struct {
	users   *dataset.Dict
	items   *dataset.Dict
	rows    *dataset.Matrix
	columns *dataset.Matrix
	norms   []float32
	popular []string
}

// NewPivot builds a pivot over the catalog and interactions of a dataset.
func NewPivot(d *dataset.Dataset) *Pivot {
	p := &Pivot{
		users:   d.GetUserDict(),
		items:   d.GetItemDict(),
		rows:    d.GetMatrix(),
		columns: d.GetMatrix().Transpose(),
	}
	_, nItems := p.rows.Shape()
	p.norms = make([]float32, nItems)
	for itemIndex := int32(0); itemIndex < nItems; itemIndex++ {
		_, values := p.columns.Row(itemIndex)
		p.norms[itemIndex] = floats.Norm(values)
	}
	// popularity order: total weight desc, item id asc
	sums := p.rows.ColumnSums()
	order := make([]int32, nItems)
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortFunc(order, func(a, b int32) int {
		if c := cmp.Compare(sums[b], sums[a]); c != 0 {
			return c
		}
		return strings.Compare(p.itemId(a), p.itemId(b))
	})
	p.popular = make([]string, nItems)
	for i, itemIndex := range order {
		p.popular[i] = p.itemId(itemIndex)
	}
	return p
}

func (p *Pivot) itemId(itemIndex int32) string {
	id, _ := p.items.String(itemIndex)
	return id
}

// CountItems returns the size of the catalog.
func (p *Pivot) CountItems() int {
	return int(p.items.Count())
}

// HasHistory returns true if the user has at least one recorded interaction.
func (p *Pivot) HasHistory(userId string) bool {
	userIndex, ok := p.users.Id(userId)
	if !ok {
		return false
	}
	indices, _ := p.rows.Row(userIndex)
	return len(indices) > 0
}

// History returns ids of items the user interacted with.
func (p *Pivot) History(userId string) []string {
	userIndex, ok := p.users.Id(userId)
	if !ok {
		return nil
	}
	indices, _ := p.rows.Row(userIndex)
	history := make([]string, len(indices))
	for i, itemIndex := range indices {
		history[i] = p.itemId(itemIndex)
	}
	return history
}

// Similarity returns the cosine similarity between two item columns. Items without any
// interaction have zero similarity with everything.
func (p *Pivot) Similarity(a, b string) float32 {
	i, ok := p.items.Id(a)
	if !ok {
		return 0
	}
	j, ok := p.items.Id(b)
	if !ok || p.norms[i] == 0 || p.norms[j] == 0 {
		return 0
	}
	usersA, valuesA := p.columns.Row(i)
	usersB, valuesB := p.columns.Row(j)
	var dot float32
	for x, y := 0, 0; x < len(usersA) && y < len(usersB); {
		switch {
		case usersA[x] < usersB[y]:
			x++
		case usersA[x] > usersB[y]:
			y++
		default:
			dot += valuesA[x] * valuesB[y]
			x++
			y++
		}
	}
	return dot / (p.norms[i] * p.norms[j])
}

// Similar scores every item the user has not purchased by the sum over purchased items of
// weight times cosine similarity and returns the top n. Ties are ordered by ascending item index.
// It returns nil if the user has no history.
func (p *Pivot) Similar(userId string, n int) []string {
	userIndex, ok := p.users.Id(userId)
	if !ok {
		return nil
	}
	purchased, weights := p.rows.Row(userIndex)
	if len(purchased) == 0 {
		return nil
	}
	_, nItems := p.rows.Shape()
	scores := make([]float32, nItems)
	dots := make([]float32, nItems)
	for k, itemIndex := range purchased {
		if p.norms[itemIndex] == 0 {
			continue
		}
		// dot products between the purchased column and every other column
		floats.Zero(dots)
		users, values := p.columns.Row(itemIndex)
		for j, u := range users {
			indices, row := p.rows.Row(u)
			for l, candidate := range indices {
				dots[candidate] += values[j] * row[l]
			}
		}
		for candidate, dot := range dots {
			if p.norms[candidate] > 0 {
				scores[candidate] += weights[k] * dot / (p.norms[itemIndex] * p.norms[candidate])
			}
		}
	}
	bought := mapset.NewThreadUnsafeSet(purchased...)
	filter := heap.NewTopKFilter[int32, float32](n)
	for candidate, score := range scores {
		if bought.Contains(int32(candidate)) || math32.IsNaN(score) {
			continue
		}
		filter.Push(int32(candidate), score)
	}
	recommends := make([]string, 0, max(n, 0))
	for _, itemIndex := range filter.PopAllValues() {
		recommends = append(recommends, p.itemId(itemIndex))
	}
	return recommends
}

// Popular returns the top n catalog items by total interaction weight. Ties are ordered by
// ascending item id. Items nobody interacted with come last.
func (p *Pivot) Popular(n int) []string {
	n = max(0, min(n, len(p.popular)))
	return slices.Clone(p.popular[:n])
}
