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

package base

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const randomEpsilon = 0.1

func TestRandomGenerator_UniformMatrix(t *testing.T) {
	rng := NewRandomGenerator(0)
	m := rng.UniformMatrix(10, 100, 1, 2)
	r, c := m.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 100, c)
	data := m.RawMatrix().Data
	assert.False(t, floats.Min(data) < 1)
	assert.False(t, floats.Max(data) >= 2)
}

func TestRandomGenerator_NormalMatrix(t *testing.T) {
	rng := NewRandomGenerator(0)
	data := rng.NormalMatrix(1, 1000, 1, 2).RawMatrix().Data
	assert.False(t, math.Abs(stat.Mean(data, nil)-1) > randomEpsilon)
	assert.False(t, math.Abs(stat.StdDev(data, nil)-2) > randomEpsilon)
}

func TestRandomGenerator_Seed(t *testing.T) {
	a := NewRandomGenerator(42).UniformMatrix(3, 3, 0, 1)
	b := NewRandomGenerator(42).UniformMatrix(3, 3, 0, 1)
	assert.True(t, mat.Equal(a, b))
}
