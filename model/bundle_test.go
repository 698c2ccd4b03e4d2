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
	"bytes"
	"context"
	"encoding/binary"
	"slices"
	"testing"

	"github.com/gorse-io/canteen/base/encoding"
	"github.com/gorse-io/canteen/storage/blob"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func newTrainedModel(t *testing.T) *HybridFM {
	m := NewHybridFM(Params{NFactors: 8, NEpochs: 5, RandomState: 7})
	_, err := m.Fit(context.Background(), newCategoryDataset(t), nil, NewFitConfig())
	assert.NoError(t, err)
	return m
}

func assertSameModel(t *testing.T, expected, actual *HybridFM) {
	assert.True(t, actual.IsTrained())
	assert.Equal(t, expected.BundleId(), actual.BundleId())
	assert.Equal(t, expected.Vocabulary(), actual.Vocabulary())
	assert.Equal(t, expected.GetUserIndex().Ids(), actual.GetUserIndex().Ids())
	assert.Equal(t, expected.GetItemIndex().Ids(), actual.GetItemIndex().Ids())
	assert.Equal(t, expected.UserPredictable.Count(), actual.UserPredictable.Count())
	candidates := make([]int32, expected.GetItemIndex().Count())
	for i := range candidates {
		candidates[i] = int32(i)
	}
	for userIndex := int32(0); userIndex < expected.GetUserIndex().Count(); userIndex++ {
		assert.Equal(t, expected.UserHistory(userIndex), actual.UserHistory(userIndex))
		a, err := expected.Score(userIndex, candidates)
		assert.NoError(t, err)
		b, err := actual.Score(userIndex, candidates)
		assert.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestHybridFM_Marshal(t *testing.T) {
	m := newTrainedModel(t)
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, m.Marshal(buf))

	loaded, err := UnmarshalModel(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
	assertSameModel(t, m, loaded)
	assert.Equal(t, 8, loaded.GetParams().GetInt(NFactors, 0))

	// unmarshal into a fresh model
	fresh := NewHybridFM(nil)
	assert.NoError(t, fresh.Unmarshal(bytes.NewReader(buf.Bytes())))
	assertSameModel(t, m, fresh)

	// unmarshal into a trained model
	err = m.Unmarshal(bytes.NewReader(buf.Bytes()))
	assert.True(t, errors.Is(err, ErrAlreadyTrained))
}

func TestHybridFM_MarshalUntrained(t *testing.T) {
	m := NewHybridFM(nil)
	err := m.Marshal(bytes.NewBuffer(nil))
	assert.True(t, errors.Is(err, ErrModelNotTrained))
	err = SaveModel(context.Background(), blob.NewPOSIX(t.TempDir()), "model.bin", m)
	assert.True(t, errors.Is(err, ErrModelNotTrained))
}

func TestUnmarshalModel_Incompatible(t *testing.T) {
	// unknown magic
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, encoding.WriteString(buf, "unknown/model"))
	_, err := UnmarshalModel(buf)
	assert.True(t, errors.Is(err, ErrIncompatibleModelVersion))

	// unknown version
	buf.Reset()
	assert.NoError(t, encoding.WriteString(buf, bundleMagic))
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, BundleVersion+1))
	_, err = UnmarshalModel(buf)
	assert.True(t, errors.Is(err, ErrIncompatibleModelVersion))

	// truncated bundle
	m := newTrainedModel(t)
	buf.Reset()
	assert.NoError(t, m.Marshal(buf))
	for _, size := range []int{0, 4, len(bundleMagic) + 8, buf.Len() / 2, buf.Len() - 16, buf.Len() - 1} {
		_, err = UnmarshalModel(bytes.NewReader(buf.Bytes()[:size]))
		assert.True(t, errors.Is(err, ErrIncompatibleModelVersion), "size %d: %v", size, err)
	}

	// corrupt params
	corrupt := bytes.NewBuffer(nil)
	assert.NoError(t, encoding.WriteString(corrupt, bundleMagic))
	assert.NoError(t, binary.Write(corrupt, binary.LittleEndian, BundleVersion))
	assert.NoError(t, encoding.WriteBytes(corrupt, []byte("not a gob")))
	_, err = UnmarshalModel(corrupt)
	assert.True(t, errors.Is(err, ErrIncompatibleModelVersion))

	// non-positive dimension
	corrupt.Reset()
	assert.NoError(t, encoding.WriteString(corrupt, bundleMagic))
	assert.NoError(t, binary.Write(corrupt, binary.LittleEndian, BundleVersion))
	assert.NoError(t, encoding.WriteGob(corrupt, Params{NFactors: -1}))
	assert.NoError(t, encoding.WriteGob(corrupt, bundleHeader{NFactors: -1, NUsers: 1, NItems: 1}))
	_, err = UnmarshalModel(corrupt)
	assert.True(t, errors.Is(err, ErrIncompatibleModelVersion))

	// broken model is left untouched
	fresh := NewHybridFM(nil)
	assert.Error(t, fresh.Unmarshal(bytes.NewReader(buf.Bytes()[:buf.Len()/2])))
	assert.False(t, fresh.IsTrained())
}

func TestHybridFM_CheckVocabulary(t *testing.T) {
	m := newTrainedModel(t)
	assert.NoError(t, m.CheckVocabulary(newCategoryDataset(t).GetEncoder().Vocabulary()))
	err := m.CheckVocabulary(newSnackDataset(t).GetEncoder().Vocabulary())
	assert.True(t, errors.Is(err, ErrIncompatibleModelVersion))
	err = m.CheckVocabulary(nil)
	assert.True(t, errors.Is(err, ErrIncompatibleModelVersion))

	// order and extra tags are accepted
	vocabulary := slices.Clone(m.Vocabulary())
	slices.Reverse(vocabulary)
	assert.NoError(t, m.CheckVocabulary(vocabulary))
	assert.NoError(t, m.CheckVocabulary(append([]string{"age:30"}, vocabulary...)))
	// a missing tag is rejected
	assert.True(t, errors.Is(m.CheckVocabulary(vocabulary[1:]), ErrIncompatibleModelVersion))
}

func TestSaveModel(t *testing.T) {
	ctx := context.Background()
	store := blob.NewPOSIX(t.TempDir())
	m := newTrainedModel(t)
	assert.NoError(t, SaveModel(ctx, store, "hybrid.bin", m))
	loaded, err := LoadModel(ctx, store, "hybrid.bin")
	assert.NoError(t, err)
	assertSameModel(t, m, loaded)

	_, err = LoadModel(ctx, store, "missing.bin")
	assert.True(t, errors.Is(err, errors.NotFound))
}
