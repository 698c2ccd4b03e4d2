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

package model

import (
	"context"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/canteen/common/floats"
	"github.com/gorse-io/canteen/common/heap"
	"github.com/gorse-io/canteen/common/parallel"
	"github.com/gorse-io/canteen/dataset"
	"github.com/juju/errors"
)

/* Evaluate Item Ranking */

// Metric is used by evaluators in personalized ranking tasks.
type Metric func(targetSet mapset.Set[int32], rankList []int32) float32

// Evaluate ranks all items unseen in the train set for every user with test interactions and
// averages the metrics. Partial averages are never returned: a canceled context yields an error.
func Evaluate(ctx context.Context, m *HybridFM, testSet, trainSet *dataset.Dataset, topK, nJobs int, scorers ...Metric) ([]float32, error) {
	nJobs = max(nJobs, 1)
	partSum := make([][]float32, nJobs)
	partCount := make([]float32, nJobs)
	for i := 0; i < nJobs; i++ {
		partSum[i] = make([]float32, len(scorers))
	}
	nUsers, nItems := testSet.GetMatrix().Shape()
	err := parallel.Parallel(ctx, int(nUsers), nJobs, func(workerId, userIndex int) error {
		targets, _ := testSet.GetMatrix().Row(int32(userIndex))
		if len(targets) == 0 {
			return nil
		}
		targetSet := mapset.NewThreadUnsafeSet(targets...)
		seen, _ := trainSet.GetMatrix().Row(int32(userIndex))
		seenSet := mapset.NewThreadUnsafeSet(seen...)
		candidates := make([]int32, 0, nItems)
		for itemIndex := int32(0); itemIndex < nItems; itemIndex++ {
			if !seenSet.Contains(itemIndex) {
				candidates = append(candidates, itemIndex)
			}
		}
		rankList, _ := Rank(m, int32(userIndex), candidates, topK)
		partCount[workerId]++
		for i, metric := range scorers {
			partSum[workerId][i] += metric(targetSet, rankList)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	sum := make([]float32, len(scorers))
	for i := 0; i < nJobs; i++ {
		floats.Add(sum, partSum[i])
	}
	if count := floats.Sum(partCount); count > 0 {
		floats.MulConst(sum, 1/count)
	}
	return sum, nil
}

// Rank candidates for a user by descending score. Ties are ordered by ascending item index.
func Rank(m *HybridFM, userIndex int32, candidates []int32, topN int) ([]int32, []float32) {
	filter := heap.NewTopKFilter[int32, float32](topN)
	for _, itemIndex := range candidates {
		filter.Push(itemIndex, m.internalScore(userIndex, itemIndex))
	}
	elems := filter.PopAll()
	items := make([]int32, len(elems))
	scores := make([]float32, len(elems))
	for i, elem := range elems {
		items[i] = elem.Value
		scores[i] = elem.Weight
	}
	return items, scores
}

// NDCG means Normalized Discounted Cumulative Gain.
func NDCG(targetSet mapset.Set[int32], rankList []int32) float32 {
	// IDCG = \sum^{|REL|}_{i=1} \frac {1} {\log_2(i+1)}
	idcg := float32(0)
	for i := 0; i < targetSet.Cardinality() && i < len(rankList); i++ {
		idcg += 1.0 / math32.Log2(float32(i)+2.0)
	}
	if idcg == 0 {
		return 0
	}
	// DCG = \sum^{N}_{i=1} \frac {2^{rel_i}-1} {\log_2(i+1)}
	dcg := float32(0)
	for i, itemId := range rankList {
		if targetSet.Contains(itemId) {
			dcg += 1.0 / math32.Log2(float32(i)+2.0)
		}
	}
	return dcg / idcg
}

// Precision is the fraction of relevant items among the recommended items.
//
//	\frac{|relevant documents| \cap |retrieved documents|} {|{retrieved documents}|}
func Precision(targetSet mapset.Set[int32], rankList []int32) float32 {
	if len(rankList) == 0 {
		return 0
	}
	hit := float32(0)
	for _, itemId := range rankList {
		if targetSet.Contains(itemId) {
			hit++
		}
	}
	return hit / float32(len(rankList))
}

// Recall is the fraction of relevant items that have been recommended over the total
// amount of relevant items.
//
//	\frac{|relevant documents| \cap |retrieved documents|} {|{relevant documents}|}
func Recall(targetSet mapset.Set[int32], rankList []int32) float32 {
	if targetSet.Cardinality() == 0 {
		return 0
	}
	hit := 0
	for _, itemId := range rankList {
		if targetSet.Contains(itemId) {
			hit++
		}
	}
	return float32(hit) / float32(targetSet.Cardinality())
}
