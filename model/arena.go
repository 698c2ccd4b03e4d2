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
	"sync"

	"github.com/gorse-io/canteen/base"
	"github.com/gorse-io/canteen/common/floats"
)

const numStripes = 256

// Arena is the flat embedding table shared by users, items and feature tags. Rows are laid out as
// [users | items | features]. Each row has a latent vector and a bias. Rows are guarded by striped
// locks so that concurrent workers can update disjoint rows without a global lock.
type Arena struct {
	nFactors  int
	nUsers    int32
	nItems    int32
	nFeatures int32
	factors   []float32
	biases    []float32
	stripes   [numStripes]sync.Mutex
}

// NewArena creates an arena filled with zeros.
func NewArena(nUsers, nItems, nFeatures int32, nFactors int) *Arena {
	nRows := int(nUsers) + int(nItems) + int(nFeatures)
	return &Arena{
		nFactors:  nFactors,
		nUsers:    nUsers,
		nItems:    nItems,
		nFeatures: nFeatures,
		factors:   make([]float32, nRows*nFactors),
		biases:    make([]float32, nRows),
	}
}

// Init draws latent vectors from N(0, stdDev) and resets biases.
func (a *Arena) Init(rng base.RandomGenerator, stdDev float32) {
	for i := range a.factors {
		a.factors[i] = float32(rng.NormFloat64()) * stdDev
	}
	floats.Zero(a.biases)
}

func (a *Arena) NumRows() int {
	return len(a.biases)
}

func (a *Arena) UserRow(userIndex int32) int {
	return int(userIndex)
}

func (a *Arena) ItemRow(itemIndex int32) int {
	return int(a.nUsers) + int(itemIndex)
}

func (a *Arena) FeatureRow(featureIndex int32) int {
	return int(a.nUsers) + int(a.nItems) + int(featureIndex)
}

// Factor returns the latent vector of a row without locking.
func (a *Arena) Factor(row int) []float32 {
	return a.factors[row*a.nFactors : (row+1)*a.nFactors]
}

// Bias returns the bias of a row without locking.
func (a *Arena) Bias(row int) float32 {
	return a.biases[row]
}

// Sum adds up latent vectors of rows into dst without locking and returns the sum of biases.
func (a *Arena) Sum(rows []int, dst []float32) float32 {
	floats.Zero(dst)
	var bias float32
	for _, row := range rows {
		floats.Add(dst, a.Factor(row))
		bias += a.biases[row]
	}
	return bias
}

// Gather is the locked version of Sum. Each row lock is held only while the row is copied.
func (a *Arena) Gather(rows []int, dst []float32) float32 {
	floats.Zero(dst)
	var bias float32
	for _, row := range rows {
		mu := &a.stripes[row%numStripes]
		mu.Lock()
		floats.Add(dst, a.Factor(row))
		bias += a.biases[row]
		mu.Unlock()
	}
	return bias
}

// Update applies one SGD step to a row: factor += lr * (grad - reg * factor), and the same for the
// bias if updateBias is set.
func (a *Arena) Update(row int, grad []float32, gradBias float32, updateBias bool, lr, reg float32) {
	mu := &a.stripes[row%numStripes]
	mu.Lock()
	defer mu.Unlock()
	factor := a.Factor(row)
	floats.MulConst(factor, 1-lr*reg)
	floats.MulConstAdd(grad, lr, factor)
	if updateBias {
		a.biases[row] += lr * (gradBias - reg*a.biases[row])
	}
}

// IsFinite returns false if any parameter is NaN or Inf.
func (a *Arena) IsFinite() bool {
	return floats.IsFinite(a.factors) && floats.IsFinite(a.biases)
}
