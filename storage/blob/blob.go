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

// Package blob stores decomposed tensors in a local directory or an object store.
package blob

import (
	"context"
	"io"

	"github.com/gorse-io/ncp/common/log"
	"github.com/gorse-io/ncp/config"
	"github.com/gorse-io/ncp/tensor"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

type Store interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create a new object for writing. The returned channel receives the result of the
	// upload, nil on success, once the writer has been closed.
	Create(ctx context.Context, name string) (io.WriteCloser, <-chan error, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// New creates the store selected by the storage configuration.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "posix":
		return NewPOSIX(cfg.Dir), nil
	case "s3":
		return NewS3(cfg.S3)
	case "gcs":
		return NewGCS(ctx, cfg.GCS)
	case "azure":
		return NewAzure(cfg.Azure)
	default:
		return nil, errors.NotSupportedf("storage type %q", cfg.Type)
	}
}

// SaveKTensor writes a decomposed tensor to the store. A partially written object is
// removed when encoding fails.
func SaveKTensor(ctx context.Context, store Store, name string, k *tensor.KTensor) error {
	w, done, err := store.Create(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	if err = k.Marshal(w); err != nil {
		_ = w.Close()
		<-done
		if removeErr := store.Remove(ctx, name); removeErr != nil {
			log.Logger().Warn("failed to remove partial object", zap.String("name", name), zap.Error(removeErr))
		}
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	if err = <-done; err != nil {
		return errors.Annotatef(err, "upload %s", name)
	}
	return nil
}

// LoadKTensor reads a decomposed tensor written by SaveKTensor.
func LoadKTensor(ctx context.Context, store Store, name string) (*tensor.KTensor, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	var k tensor.KTensor
	if err = k.Unmarshal(r); err != nil {
		return nil, errors.Annotatef(err, "decode %s", name)
	}
	return &k, nil
}

// upload runs fn in the background on the reading end of a pipe and reports its
// result on the returned channel.
func upload(fn func(r io.Reader) error) (io.WriteCloser, <-chan error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := fn(pr)
		// unblock the writer if the upload stopped early
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return pw, done
}
