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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestWriteDense(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	buf := bytes.NewBuffer(nil)
	err := WriteDense(buf, a)
	assert.NoError(t, err)
	b, err := ReadDense(buf)
	assert.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestReadDenseInvalidShape(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0})
	_, err := ReadDense(buf)
	assert.True(t, errors.Is(err, errors.NotValid))
	// overflowing element count
	buf = bytes.NewBuffer(nil)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, [2]int64{1 << 32, 1 << 32}))
	_, err = ReadDense(buf)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestWriteString(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, "ktensor")
	assert.NoError(t, err)
	s, err := ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, "ktensor", s)
	// truncated stream
	_, err = ReadString(bytes.NewBuffer([]byte{5, 0, 0, 0, 'a'}))
	assert.Error(t, err)
}

func TestWriteGob(t *testing.T) {
	a := []int{4, 5, 6}
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b []int
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}
