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

	"github.com/gorse-io/canteen/config"
)

// Store keeps named blobs such as model bundles. A blob becomes visible to Open only after its
// writer is closed successfully.
type Store interface {
	// Open a blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create a blob for writing.
	Create(ctx context.Context, name string) (Writer, error)
}

// Writer writes a blob. Close publishes the blob and Abort discards it.
type Writer interface {
	io.WriteCloser
	Abort(err error)
}

// Open creates a store from configuration. S3 is used if an endpoint is configured.
func Open(cfg config.BlobConfig) (Store, error) {
	if cfg.S3.Endpoint != "" {
		return NewS3(cfg.S3)
	}
	return NewPOSIX(cfg.Dir), nil
}
