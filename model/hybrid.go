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
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorse-io/canteen/base"
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/common/floats"
	"github.com/gorse-io/canteen/common/parallel"
	"github.com/gorse-io/canteen/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// maxLoss caps the rank weight of a single update.
const maxLoss = 10

type Score struct {
	NDCG      float32
	Precision float32
	Recall    float32
	Loss      float32
}

type FitConfig struct {
	Jobs    int
	Verbose int
	TopK    int
	// OnEpoch is called after every finished epoch.
	OnEpoch func(epoch int) `json:"-"`
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
		TopK:    10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetOnEpoch(onEpoch func(epoch int)) *FitConfig {
	config.OnEpoch = onEpoch
	return config
}

// HybridFM is a factorization model whose users and items are represented by the sum of their
// identity embedding and the embeddings of their feature tags. It is trained with the WARP loss:
// for each observed positive, random negatives are drawn until one scores within the margin of
// the positive, and the update is weighted by the estimated rank of the positive.
//
// Hyper-parameters:
//
//	NFactors	- The number of latent factors. Default is 32.
//	NEpochs		- The number of passes over observed interactions. Default is 25.
//	Lr			- The learning rate of SGD. Default is 0.05.
//	Reg			- The L2 regularization on touched rows. Default is 0.0001.
//	InitStdDev	- The standard deviation of initial latent factors. Default is 0.01.
//	MaxSampled	- The maximum number of negatives drawn per positive. Default is 10.
//	Margin		- The score margin between a positive and a negative. Default is 1.
//	RandomState	- The random seed. Default is 0.
type HybridFM struct {
	BaseModel
	UserIndex       *dataset.Dict
	ItemIndex       *dataset.Dict
	UserPredictable *bitset.BitSet
	vocabulary      []string
	userTags        [][]int32
	itemTags        [][]int32
	matrix          *dataset.Matrix
	arena           *Arena
	bundleId        string
	trained         bool
	// arena rows contributing to each user and item
	userRows [][]int
	itemRows [][]int
	// effective embeddings
	userFactor [][]float32
	userBias   []float32
	itemFactor [][]float32
	itemBias   []float32
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initStdDev float32
	maxSampled int
	margin     float32
}

// NewHybridFM creates an untrained model.
func NewHybridFM(params Params) *HybridFM {
	m := new(HybridFM)
	m.SetParams(params)
	return m
}

// SetParams sets hyper-parameters of the model.
func (m *HybridFM) SetParams(params Params) {
	m.BaseModel.SetParams(params)
	m.nFactors = m.Params.GetInt(NFactors, 32)
	m.nEpochs = m.Params.GetInt(NEpochs, 25)
	m.lr = m.Params.GetFloat32(Lr, 0.05)
	m.reg = m.Params.GetFloat32(Reg, 1e-4)
	m.initStdDev = m.Params.GetFloat32(InitStdDev, 0.01)
	m.maxSampled = m.Params.GetInt(MaxSampled, 10)
	m.margin = m.Params.GetFloat32(Margin, 1)
}

func (m *HybridFM) IsTrained() bool {
	return m.trained
}

func (m *HybridFM) GetUserIndex() *dataset.Dict {
	return m.UserIndex
}

func (m *HybridFM) GetItemIndex() *dataset.Dict {
	return m.ItemIndex
}

// Vocabulary returns feature tags ordered by index.
func (m *HybridFM) Vocabulary() []string {
	return m.vocabulary
}

// BundleId identifies a trained model. It changes on every training run.
func (m *HybridFM) BundleId() string {
	return m.bundleId
}

// UserHistory returns indices of items the user interacted with during training.
func (m *HybridFM) UserHistory(userIndex int32) []int32 {
	if m.matrix == nil {
		return nil
	}
	indices, _ := m.matrix.Row(userIndex)
	return indices
}

// IsUserPredictable returns false if the user has no training interactions.
func (m *HybridFM) IsUserPredictable(userIndex int32) bool {
	if m.UserPredictable == nil || userIndex < 0 || userIndex >= m.UserIndex.Count() {
		return false
	}
	return m.UserPredictable.Test(uint(userIndex))
}

// GetUserFactor returns the effective latent factor of a user.
func (m *HybridFM) GetUserFactor(userIndex int32) []float32 {
	return m.userFactor[userIndex]
}

// GetItemFactor returns the effective latent factor of an item.
func (m *HybridFM) GetItemFactor(itemIndex int32) []float32 {
	return m.itemFactor[itemIndex]
}

// Score predicts affinities between a user and candidate items.
func (m *HybridFM) Score(userIndex int32, candidates []int32) ([]float32, error) {
	if !m.trained {
		return nil, errors.WithType(errors.New("score with an untrained model"), ErrModelNotTrained)
	}
	if userIndex < 0 || userIndex >= m.UserIndex.Count() {
		return nil, errors.WithType(errors.Errorf("user index %d out of range", userIndex), dataset.ErrUnknownIdentifier)
	}
	scores := make([]float32, len(candidates))
	for i, itemIndex := range candidates {
		if itemIndex < 0 || itemIndex >= m.ItemIndex.Count() {
			return nil, errors.WithType(errors.Errorf("item index %d out of range", itemIndex), dataset.ErrUnknownIdentifier)
		}
		scores[i] = m.internalScore(userIndex, itemIndex)
	}
	return scores, nil
}

func (m *HybridFM) internalScore(userIndex, itemIndex int32) float32 {
	return floats.Dot(m.userFactor[userIndex], m.itemFactor[itemIndex]) + m.userBias[userIndex] + m.itemBias[itemIndex]
}

type positive struct {
	userIndex int32
	itemIndex int32
}

type workspace struct {
	user []float32
	pos  []float32
	neg  []float32
	grad []float32
}

// Fit trains the model. A model can only be trained once.
func (m *HybridFM) Fit(ctx context.Context, trainSet, validateSet *dataset.Dataset, config *FitConfig) (Score, error) {
	if m.trained {
		return Score{}, errors.WithType(errors.New("fit a trained model"), ErrAlreadyTrained)
	}
	if config == nil {
		config = NewFitConfig()
	}
	jobs := max(config.Jobs, 1)
	log.Logger().Info("fit hybrid model",
		zap.Int("train_set_size", trainSet.CountFeedback()),
		zap.Int("validate_set_size", lo.TernaryF(validateSet == nil,
			func() int { return 0 }, func() int { return validateSet.CountFeedback() })),
		zap.Any("params", m.GetParams()),
		zap.Any("config", config))
	start := time.Now()
	m.init(trainSet)
	m.arena.Init(m.GetRandomGenerator(), m.initStdDev)

	// Collect positives
	positives := make([]positive, 0, trainSet.CountFeedback())
	history := make([]mapset.Set[int32], m.UserIndex.Count())
	for userIndex := int32(0); userIndex < m.UserIndex.Count(); userIndex++ {
		indices, _ := m.matrix.Row(userIndex)
		history[userIndex] = mapset.NewSet[int32](indices...)
		for _, itemIndex := range indices {
			positives = append(positives, positive{userIndex: userIndex, itemIndex: itemIndex})
		}
	}
	// Create buffers
	rng := make([]base.RandomGenerator, jobs)
	buffers := make([]workspace, jobs)
	for i := 0; i < jobs; i++ {
		rng[i] = base.NewRandomGenerator(m.GetRandomGenerator().Int63())
		buffers[i] = workspace{
			user: make([]float32, m.nFactors),
			pos:  make([]float32, m.nFactors),
			neg:  make([]float32, m.nFactors),
			grad: make([]float32, m.nFactors),
		}
	}

	var score Score
	for epoch := 1; epoch <= m.nEpochs; epoch++ {
		fitStart := time.Now()
		m.GetRandomGenerator().Shuffle(len(positives), func(i, j int) {
			positives[i], positives[j] = positives[j], positives[i]
		})
		loss := make([]float32, jobs)
		err := parallel.Parallel(ctx, len(positives), jobs, func(workerId, jobId int) error {
			p := positives[jobId]
			loss[workerId] += m.warp(p.userIndex, p.itemIndex, history[p.userIndex], rng[workerId], &buffers[workerId])
			return nil
		})
		if err != nil {
			m.reset()
			return Score{}, errors.Trace(err)
		}
		if !m.arena.IsFinite() {
			m.reset()
			return Score{}, errors.WithType(errors.Errorf("non-finite parameters after epoch %d", epoch), ErrTrainingDiverged)
		}
		fitTime := time.Since(fitStart)
		score.Loss = floats.Sum(loss)
		EpochLoss.Set(float64(score.Loss))
		FitEpochsTotal.Inc()
		// Validation
		if validateSet != nil && config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == m.nEpochs) {
			m.refresh()
			evalStart := time.Now()
			scores, err := Evaluate(ctx, m, validateSet, trainSet, config.TopK, jobs, NDCG, Precision, Recall)
			if err != nil {
				m.reset()
				return Score{}, errors.Trace(err)
			}
			score.NDCG, score.Precision, score.Recall = scores[0], scores[1], scores[2]
			log.Logger().Info(fmt.Sprintf("fit hybrid model %v/%v", epoch, m.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", time.Since(evalStart).String()),
				zap.Float32("loss", score.Loss),
				zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), score.NDCG),
				zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), score.Precision),
				zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), score.Recall))
		} else {
			log.Logger().Debug(fmt.Sprintf("fit hybrid model %v/%v", epoch, m.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.Float32("loss", score.Loss))
		}
		if config.OnEpoch != nil {
			config.OnEpoch(epoch)
		}
	}
	m.refresh()
	m.bundleId = uuid.NewString()
	m.trained = true
	FitSeconds.Set(time.Since(start).Seconds())
	ValidationNDCG.Set(float64(score.NDCG))
	ValidationPrecision.Set(float64(score.Precision))
	ValidationRecall.Set(float64(score.Recall))
	log.Logger().Info("fit hybrid model complete",
		zap.String("bundle_id", m.bundleId),
		zap.Float32("loss", score.Loss),
		zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), score.NDCG),
		zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), score.Precision),
		zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), score.Recall))
	return score, nil
}

// warp runs one WARP update for a positive (user, item) pair and returns its loss.
func (m *HybridFM) warp(userIndex, posIndex int32, history mapset.Set[int32], rng base.RandomGenerator, ws *workspace) float32 {
	nItems := m.ItemIndex.Count()
	if nItems < 2 {
		return 0
	}
	userRows, posRows := m.userRows[userIndex], m.itemRows[posIndex]
	userBias := m.arena.Gather(userRows, ws.user)
	posBias := m.arena.Gather(posRows, ws.pos)
	posScore := floats.Dot(ws.user, ws.pos) + userBias + posBias
	for sampled := 1; sampled <= m.maxSampled; sampled++ {
		negIndex := rng.Int31n(nItems)
		if history.Contains(negIndex) {
			continue
		}
		negRows := m.itemRows[negIndex]
		negBias := m.arena.Gather(negRows, ws.neg)
		negScore := floats.Dot(ws.user, ws.neg) + userBias + negBias
		if negScore <= posScore-m.margin {
			continue
		}
		// the fewer samples needed, the higher the positive is estimated to be mis-ranked
		weight := math32.Log(math32.Max(1, math32.Floor(float32(nItems-1)/float32(sampled))))
		weight = min(weight, maxLoss)
		if weight <= 0 {
			return 0
		}
		// user rows: toward pos - neg
		floats.SubTo(ws.pos, ws.neg, ws.grad)
		floats.MulConst(ws.grad, weight)
		for _, row := range userRows {
			m.arena.Update(row, ws.grad, 0, false, m.lr, m.reg)
		}
		// positive rows: toward user
		floats.MulConstTo(ws.user, weight, ws.grad)
		for _, row := range posRows {
			m.arena.Update(row, ws.grad, weight, true, m.lr, m.reg)
		}
		// negative rows: away from user
		floats.MulConstTo(ws.user, -weight, ws.grad)
		for _, row := range negRows {
			m.arena.Update(row, ws.grad, -weight, true, m.lr, m.reg)
		}
		return weight * (m.margin - posScore + negScore)
	}
	return 0
}

func (m *HybridFM) init(trainSet *dataset.Dataset) {
	m.UserIndex = trainSet.GetUserDict()
	m.ItemIndex = trainSet.GetItemDict()
	m.vocabulary = trainSet.GetEncoder().Vocabulary()
	m.userTags = trainSet.GetUserTags()
	m.itemTags = trainSet.GetItemTags()
	m.matrix = trainSet.GetMatrix()
	m.arena = NewArena(m.UserIndex.Count(), m.ItemIndex.Count(), int32(len(m.vocabulary)), m.nFactors)
	m.prepare()
}

// prepare derives row lists and predictable flags from tags and the training matrix.
func (m *HybridFM) prepare() {
	m.userRows = make([][]int, m.UserIndex.Count())
	m.UserPredictable = bitset.New(uint(m.UserIndex.Count()))
	for userIndex := int32(0); userIndex < m.UserIndex.Count(); userIndex++ {
		m.userRows[userIndex] = m.rows(m.arena.UserRow(userIndex), m.userTags[userIndex])
		if indices, _ := m.matrix.Row(userIndex); len(indices) > 0 {
			m.UserPredictable.Set(uint(userIndex))
		}
	}
	m.itemRows = make([][]int, m.ItemIndex.Count())
	for itemIndex := int32(0); itemIndex < m.ItemIndex.Count(); itemIndex++ {
		m.itemRows[itemIndex] = m.rows(m.arena.ItemRow(itemIndex), m.itemTags[itemIndex])
	}
}

func (m *HybridFM) rows(identity int, tags []int32) []int {
	rows := make([]int, 0, len(tags)+1)
	rows = append(rows, identity)
	for _, tag := range tags {
		rows = append(rows, m.arena.FeatureRow(tag))
	}
	return rows
}

// refresh recomputes effective embeddings from the arena.
func (m *HybridFM) refresh() {
	m.userFactor = make([][]float32, len(m.userRows))
	m.userBias = make([]float32, len(m.userRows))
	for i, rows := range m.userRows {
		m.userFactor[i] = make([]float32, m.nFactors)
		m.userBias[i] = m.arena.Sum(rows, m.userFactor[i])
	}
	m.itemFactor = make([][]float32, len(m.itemRows))
	m.itemBias = make([]float32, len(m.itemRows))
	for i, rows := range m.itemRows {
		m.itemFactor[i] = make([]float32, m.nFactors)
		m.itemBias[i] = m.arena.Sum(rows, m.itemFactor[i])
	}
}

func (m *HybridFM) reset() {
	m.UserIndex = nil
	m.ItemIndex = nil
	m.UserPredictable = nil
	m.vocabulary = nil
	m.userTags = nil
	m.itemTags = nil
	m.matrix = nil
	m.arena = nil
	m.userRows = nil
	m.itemRows = nil
	m.userFactor = nil
	m.userBias = nil
	m.itemFactor = nil
	m.itemBias = nil
	m.bundleId = ""
	m.trained = false
}
