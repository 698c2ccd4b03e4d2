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

package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteMatrix(t *testing.T) {
	a := [][]float32{{1, 2}, {3, 4}}
	buf := bytes.NewBuffer(nil)
	err := WriteMatrix(buf, a)
	assert.NoError(t, err)
	b := [][]float32{{0, 0}, {0, 0}}
	err = ReadMatrix(buf, b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteVector(t *testing.T) {
	a := []float32{1, 2, 3}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteVector(buf, a))
	b, err := ReadVector(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteString(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, a)
	assert.NoError(t, err)
	var b string
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadTruncated(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteString(buf, "abcdef"))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, err := ReadString(truncated)
	assert.Error(t, err)

	// negative length prefix
	buf.Reset()
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int32(-1)))
	_, err = ReadBytes(buf)
	assert.Error(t, err)

	// large length prefix followed by a short tail
	for _, length := range []int32{1 << 29, MaxBlockSize} {
		buf.Reset()
		assert.NoError(t, binary.Write(buf, binary.LittleEndian, length))
		buf.Write([]byte{1, 2, 3})
		_, err = ReadBytes(bytes.NewReader(buf.Bytes()))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	}
	buf.Reset()
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int32(1<<27)))
	buf.Write([]byte{1, 2, 3, 4, 5})
	_, err = ReadVector(buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteGob(t *testing.T) {
	a := map[string]int{"a": 1}
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b map[string]int
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFormatFloat32(t *testing.T) {
	assert.Equal(t, "1.5", FormatFloat32(1.5))
}
