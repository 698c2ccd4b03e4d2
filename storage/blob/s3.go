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
	"path/filepath"

	"github.com/gorse-io/canteen/base/log"
	"github.com/gorse-io/canteen/config"
	"github.com/juju/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type S3 struct {
	*minio.Client
	bucket string
	prefix string
}

func NewS3(cfg config.S3Config) (*S3, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &S3{
		Client: minioClient,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Open an object in S3 for reading.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.prefix, name)
	if _, err := s.Client.StatObject(ctx, s.bucket, fullPath, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.NotFoundf("blob %s", name)
		}
		return nil, errors.Trace(err)
	}
	object, err := s.Client.GetObject(ctx, s.bucket, fullPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return object, nil
}

// Create a new object in S3 for writing. Data is streamed to a single upload which only completes
// when the writer is closed. An aborted upload leaves no object behind.
func (s *S3) Create(ctx context.Context, name string) (Writer, error) {
	fullPath := filepath.Join(s.prefix, name)
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, path: fullPath, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		_, err := s.Client.PutObject(ctx, s.bucket, fullPath, pr, -1, minio.PutObjectOptions{})
		if err != nil {
			_ = pr.CloseWithError(err)
			w.err = err
		}
	}()
	return w, nil
}

type s3Writer struct {
	pw   *io.PipeWriter
	path string
	done chan struct{}
	err  error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	_ = w.pw.Close()
	<-w.done
	if w.err != nil {
		log.Logger().Error("failed to upload file to S3", zap.String("file", w.path), zap.Error(w.err))
	}
	return errors.Trace(w.err)
}

func (w *s3Writer) Abort(err error) {
	_ = w.pw.CloseWithError(err)
	<-w.done
}
