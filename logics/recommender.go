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
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/model"
	"go.uber.org/zap"
)

// Path names the way a recommendation was produced.
type Path string

const (
	PathModel          Path = "model"
	PathItemSimilarity Path = "item_similarity"
	PathPopularity     Path = "popularity"
)

// Recommender serves top-n item lists from a trained model and falls back to the pivot for users
// the model cannot serve.
type Recommender struct {
	model *model.HybridFM
	pivot *Pivot
}

// NewRecommender creates a recommender. The model may be nil or untrained, in which case every
// user is served by the fallback paths.
func NewRecommender(m *model.HybridFM, pivot *Pivot) *Recommender {
	return &Recommender{model: m, pivot: pivot}
}

// Recommend returns at most n item ids for a user, best first. Consumed items are never
// returned.
func (r *Recommender) Recommend(userId string, n int) []string {
	recommends, _ := r.RecommendWithPath(userId, n)
	return recommends
}

// RecommendWithPath is Recommend that also reports the path serving the user.
func (r *Recommender) RecommendWithPath(userId string, n int) ([]string, Path) {
	userId = strings.TrimSpace(userId)
	path := r.route(userId)
	RecommendTotal.WithLabelValues(string(path)).Inc()
	if n <= 0 {
		return []string{}, path
	}
	var recommends []string
	switch path {
	case PathModel:
		recommends = r.recommendModel(userId, n)
	case PathItemSimilarity:
		recommends = r.pivot.Similar(userId, n)
	default:
		recommends = r.pivot.Popular(n)
	}
	log.Logger().Debug("recommend",
		zap.String("user_id", userId),
		zap.String("path", string(path)),
		zap.Int("n", len(recommends)))
	if recommends == nil {
		recommends = []string{}
	}
	return recommends, path
}

// route picks the model for registered users unless they have no training interactions but do
// have history in the pivot. Users unknown everywhere get popular items.
func (r *Recommender) route(userId string) Path {
	hasHistory := r.pivot.HasHistory(userId)
	if r.model != nil && r.model.IsTrained() {
		if userIndex, ok := r.model.GetUserIndex().Id(userId); ok {
			if r.model.IsUserPredictable(userIndex) || !hasHistory {
				return PathModel
			}
		}
	}
	if hasHistory {
		return PathItemSimilarity
	}
	return PathPopularity
}

func (r *Recommender) recommendModel(userId string, n int) []string {
	userIndex, _ := r.model.GetUserIndex().Id(userId)
	itemIndex := r.model.GetItemIndex()
	consumed := mapset.NewThreadUnsafeSet(r.model.UserHistory(userIndex)...)
	for _, itemId := range r.pivot.History(userId) {
		if i, ok := itemIndex.Id(itemId); ok {
			consumed.Add(i)
		}
	}
	candidates := make([]int32, 0, itemIndex.Count())
	for i := int32(0); i < itemIndex.Count(); i++ {
		if !consumed.Contains(i) {
			candidates = append(candidates, i)
		}
	}
	items, _ := model.Rank(r.model, userIndex, candidates, n)
	recommends := make([]string, len(items))
	for i, item := range items {
		recommends[i], _ = itemIndex.String(item)
	}
	return recommends
}
