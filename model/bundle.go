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
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/canteen/base/encoding"
	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/dataset"
	"github.com/gorse-io/canteen/storage/blob"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const bundleMagic = "canteen/hybrid"

// BundleVersion is bumped whenever the bundle layout changes.
const BundleVersion = int32(1)

type bundleHeader struct {
	NFactors  int
	NUsers    int32
	NItems    int32
	NFeatures int32
	BundleId  string
}

// Marshal writes a trained model as a self-describing bundle.
func (m *HybridFM) Marshal(w io.Writer) error {
	if !m.trained {
		return errors.WithType(errors.New("marshal an untrained model"), ErrModelNotTrained)
	}
	if err := encoding.WriteString(w, bundleMagic); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, BundleVersion); err != nil {
		return errors.Trace(err)
	}
	// write params
	if err := encoding.WriteGob(w, m.Params); err != nil {
		return errors.Trace(err)
	}
	// write header
	if err := encoding.WriteGob(w, bundleHeader{
		NFactors:  m.nFactors,
		NUsers:    m.UserIndex.Count(),
		NItems:    m.ItemIndex.Count(),
		NFeatures: int32(len(m.vocabulary)),
		BundleId:  m.bundleId,
	}); err != nil {
		return errors.Trace(err)
	}
	// write identities and tags
	for _, v := range []any{m.UserIndex.Ids(), m.ItemIndex.Ids(), m.vocabulary, m.userTags, m.itemTags} {
		if err := encoding.WriteGob(w, v); err != nil {
			return errors.Trace(err)
		}
	}
	// write interactions
	if err := m.matrix.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	// write embeddings
	if err := encoding.WriteVector(w, m.arena.factors); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteVector(w, m.arena.biases)
}

// Unmarshal reads a bundle into an untrained model. The model is left untouched on error.
func (m *HybridFM) Unmarshal(r io.Reader) error {
	if m.trained {
		return errors.WithType(errors.New("unmarshal into a trained model"), ErrAlreadyTrained)
	}
	loaded, err := UnmarshalModel(r)
	if err != nil {
		return errors.Trace(err)
	}
	*m = *loaded
	return nil
}

// UnmarshalModel reads a bundle written by Marshal. Any malformed or truncated bundle is reported
// as ErrIncompatibleModelVersion.
func UnmarshalModel(r io.Reader) (*HybridFM, error) {
	magic, err := encoding.ReadString(r)
	if err != nil {
		return nil, incompatible(err, "read bundle format")
	}
	if magic != bundleMagic {
		return nil, errors.WithType(errors.Errorf("unknown bundle format %q", magic), ErrIncompatibleModelVersion)
	}
	var version int32
	if err = binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, incompatible(err, "read bundle version")
	}
	if version != BundleVersion {
		return nil, errors.WithType(errors.Errorf("bundle version %d is not supported", version), ErrIncompatibleModelVersion)
	}
	// read params
	var params Params
	if err = encoding.ReadGob(r, &params); err != nil {
		return nil, incompatible(err, "read params")
	}
	m := NewHybridFM(params)
	// read header
	var header bundleHeader
	if err = encoding.ReadGob(r, &header); err != nil {
		return nil, incompatible(err, "read header")
	}
	if header.NFactors <= 0 || header.NFactors != m.nFactors ||
		header.NUsers < 0 || header.NItems < 0 || header.NFeatures < 0 {
		return nil, errors.WithType(errors.Errorf("inconsistent bundle header %+v", header), ErrIncompatibleModelVersion)
	}
	m.bundleId = header.BundleId
	// read identities and tags
	var userIds, itemIds []string
	for _, v := range []any{&userIds, &itemIds, &m.vocabulary, &m.userTags, &m.itemTags} {
		if err = encoding.ReadGob(r, v); err != nil {
			return nil, incompatible(err, "read identities")
		}
	}
	m.UserIndex = dataset.FitDict(userIds)
	m.ItemIndex = dataset.FitDict(itemIds)
	if m.UserIndex.Count() != header.NUsers || m.ItemIndex.Count() != header.NItems ||
		int32(len(m.vocabulary)) != header.NFeatures ||
		int32(len(m.userTags)) != header.NUsers || int32(len(m.itemTags)) != header.NItems {
		return nil, errors.WithType(errors.New("identities do not match bundle header"), ErrIncompatibleModelVersion)
	}
	for _, tags := range slices.Concat(m.userTags, m.itemTags) {
		for _, tag := range tags {
			if tag < 0 || tag >= header.NFeatures {
				return nil, errors.WithType(errors.Errorf("feature index %d out of range", tag), ErrIncompatibleModelVersion)
			}
		}
	}
	// read interactions
	if m.matrix, err = dataset.UnmarshalMatrix(r); err != nil {
		return nil, incompatible(err, "read interactions")
	}
	if nRows, nCols := m.matrix.Shape(); nRows != header.NUsers || nCols != header.NItems {
		return nil, errors.WithType(errors.New("interaction matrix does not match bundle header"), ErrIncompatibleModelVersion)
	}
	// read embeddings
	m.arena = NewArena(header.NUsers, header.NItems, header.NFeatures, header.NFactors)
	factors, err := encoding.ReadVector(r)
	if err != nil {
		return nil, incompatible(err, "read factors")
	}
	biases, err := encoding.ReadVector(r)
	if err != nil {
		return nil, incompatible(err, "read biases")
	}
	if len(factors) != len(m.arena.factors) || len(biases) != len(m.arena.biases) {
		return nil, errors.WithType(errors.New("embeddings do not match bundle header"), ErrIncompatibleModelVersion)
	}
	m.arena.factors, m.arena.biases = factors, biases
	m.prepare()
	m.refresh()
	m.trained = true
	return m, nil
}

func incompatible(err error, message string) error {
	return errors.WithType(errors.Annotate(err, message), ErrIncompatibleModelVersion)
}

// CheckVocabulary returns ErrIncompatibleModelVersion if a feature tag of the model is missing from
// the given vocabulary. Order and extra tags do not matter: the model scores with its own tags.
func (m *HybridFM) CheckVocabulary(vocabulary []string) error {
	known := mapset.NewThreadUnsafeSet(vocabulary...)
	missing := lo.Filter(m.vocabulary, func(tag string, _ int) bool {
		return !known.Contains(tag)
	})
	if len(missing) > 0 {
		return errors.WithType(errors.Errorf("%d of %d feature tags are unknown to the encoder: %v",
			len(missing), len(m.vocabulary), lo.Slice(missing, 0, 5)), ErrIncompatibleModelVersion)
	}
	return nil
}

// SaveModel writes a model bundle to a blob store. The blob is replaced only if the whole bundle
// is written.
func SaveModel(ctx context.Context, store blob.Store, name string, m *HybridFM) error {
	if !m.IsTrained() {
		return errors.WithType(errors.New("save an untrained model"), ErrModelNotTrained)
	}
	w, err := store.Create(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	buf := bufio.NewWriter(w)
	if err = m.Marshal(buf); err == nil {
		err = buf.Flush()
	}
	if err != nil {
		w.Abort(err)
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save model", zap.String("name", name), zap.String("bundle_id", m.BundleId()))
	return nil
}

// LoadModel reads a model bundle from a blob store.
func LoadModel(ctx context.Context, store blob.Store, name string) (*HybridFM, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Logger().Error("failed to close model", zap.String("name", name), zap.Error(err))
		}
	}()
	m, err := UnmarshalModel(bufio.NewReader(r))
	if err != nil {
		return nil, errors.Annotatef(err, "load model %s", name)
	}
	log.Logger().Info("load model", zap.String("name", name), zap.String("bundle_id", m.BundleId()))
	return m, nil
}
