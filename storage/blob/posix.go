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

package blob

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/gorse-io/canteen/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open a file for reading. It returns an io.Reader that can be used to read the file's content.
func (p *POSIX) Open(_ context.Context, name string) (io.ReadCloser, error) {
	fullPath := path.Join(p.dir, name)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("blob %s", name)
		}
		return nil, errors.Trace(err)
	}
	return file, nil
}

// Create a new file for writing. Data goes to a temporary file in the same directory which is
// renamed to the target name on Close, so readers never observe a partial file.
func (p *POSIX) Create(_ context.Context, name string) (Writer, error) {
	fullPath := path.Join(p.dir, name)
	if err := os.MkdirAll(path.Dir(fullPath), os.ModePerm); err != nil {
		return nil, errors.Trace(err)
	}
	file, err := os.CreateTemp(path.Dir(fullPath), path.Base(fullPath)+".tmp-*")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &posixWriter{file: file, path: fullPath}, nil
}

type posixWriter struct {
	file   *os.File
	path   string
	closed bool
}

func (w *posixWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *posixWriter) Close() error {
	if w.closed {
		return errors.New("writer already closed")
	}
	w.closed = true
	if err := w.file.Sync(); err != nil {
		w.discard()
		return errors.Trace(err)
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.file.Name())
		return errors.Trace(err)
	}
	if err := os.Rename(w.file.Name(), w.path); err != nil {
		_ = os.Remove(w.file.Name())
		return errors.Trace(err)
	}
	return nil
}

func (w *posixWriter) Abort(err error) {
	if w.closed {
		return
	}
	w.closed = true
	log.Logger().Warn("abort writing file", zap.String("file", w.path), zap.Error(err))
	w.discard()
}

func (w *posixWriter) discard() {
	_ = w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil {
		log.Logger().Error("failed to remove temporary file", zap.String("file", w.file.Name()), zap.Error(err))
	}
}
