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
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/gorse-io/ncp/base"
	"github.com/gorse-io/ncp/common/encoding"
	"github.com/gorse-io/ncp/config"
	"github.com/gorse-io/ncp/tensor"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// testStore runs the common checks against a store that starts empty.
func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	// write a file
	w, done, err := store.Create(ctx, "test.txt")
	assert.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, <-done)

	// list files
	names, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"test.txt"}, names)

	// read the file
	r, err := store.Open(ctx, "test.txt")
	assert.NoError(t, err)
	data, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.NoError(t, r.Close())

	// save and load a decomposed tensor
	k := tensor.RandomKTensor(base.NewRandomGenerator(0), []int{3, 4, 5}, 2)
	k.Lambda[1] = 2
	assert.NoError(t, SaveKTensor(ctx, store, "factors/model.bin", k))
	loaded, err := LoadKTensor(ctx, store, "factors/model.bin")
	assert.NoError(t, err)
	assert.Equal(t, k.Lambda, loaded.Lambda)
	for n := range k.Factors {
		assert.True(t, mat.Equal(k.Factors[n], loaded.Factors[n]))
	}

	// remove files
	assert.NoError(t, store.Remove(ctx, "test.txt"))
	assert.NoError(t, store.Remove(ctx, "factors/model.bin"))
	names, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestPOSIX(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blob")
	store, err := New(context.Background(), config.StorageConfig{Type: "posix", Dir: dir})
	assert.NoError(t, err)
	// listing a store that has never been written to
	names, err := store.List(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, names)
	testStore(t, store)

	_, err = LoadKTensor(context.Background(), store, "missing")
	assert.Error(t, err)
}

func TestLoadCorrupted(t *testing.T) {
	ctx := context.Background()
	store := NewPOSIX(t.TempDir())
	save := func(name string, encode func(w io.Writer) error) {
		w, done, err := store.Create(ctx, name)
		assert.NoError(t, err)
		assert.NoError(t, encode(w))
		assert.NoError(t, w.Close())
		assert.NoError(t, <-done)
	}
	header := func(w io.Writer, lambda []float64) error {
		if err := encoding.WriteString(w, "ktensor"); err != nil {
			return err
		}
		return encoding.WriteGob(w, lambda)
	}

	for name, encode := range map[string]func(w io.Writer) error{
		"bad_magic": func(w io.Writer) error {
			_, err := w.Write([]byte{3, 0, 0, 0, 'b', 'a', 'd'})
			return err
		},
		"negative_modes": func(w io.Writer) error {
			if err := header(w, []float64{1}); err != nil {
				return err
			}
			return encoding.WriteGob(w, -1)
		},
		"too_many_modes": func(w io.Writer) error {
			if err := header(w, []float64{1}); err != nil {
				return err
			}
			return encoding.WriteGob(w, 1<<40)
		},
		"empty_lambda": func(w io.Writer) error {
			if err := header(w, []float64{}); err != nil {
				return err
			}
			return encoding.WriteGob(w, 1)
		},
		"huge_factor": func(w io.Writer) error {
			if err := header(w, []float64{1}); err != nil {
				return err
			}
			if err := encoding.WriteGob(w, 1); err != nil {
				return err
			}
			return binary.Write(w, binary.LittleEndian, [2]int64{1 << 40, 1 << 40})
		},
	} {
		save(name, encode)
		_, err := LoadKTensor(ctx, store, name)
		assert.True(t, errors.Is(err, errors.NotValid), "%s: %v", name, err)
	}
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.True(t, errors.Is(err, errors.NotSupported))
	_, err = New(context.Background(), config.StorageConfig{Type: "azure"})
	assert.True(t, errors.Is(err, errors.NotValid))
}
