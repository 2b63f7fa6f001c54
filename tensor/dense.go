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

// Package tensor implements the dense tensor algebra consumed by the CP solvers:
// storage, norms, matricization, MTTKRP, Khatri-Rao products, leading eigenvectors
// of unfoldings and the Kruskal (decomposed) tensor.
package tensor

import (
	"fmt"
	"math"

	"github.com/gorse-io/ncp/common/parallel"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense is a nonnegative N-mode tensor stored in column-major order, i.e. the index
// of the first mode varies fastest.
type Dense struct {
	shape   []int
	strides []int
	data    []float64
}

// New creates a tensor of the given shape backed by data. A nil data allocates
// zeros. Every element must be finite and nonnegative.
func New(shape []int, data []float64) (*Dense, error) {
	if len(shape) == 0 {
		return nil, errors.NotValidf("empty shape")
	}
	size := 1
	for _, n := range shape {
		if n <= 0 {
			return nil, errors.NotValidf("shape %v", shape)
		}
		size *= n
	}
	if data == nil {
		data = make([]float64, size)
	} else if len(data) != size {
		return nil, errors.NotValidf("data length %d for shape %v", len(data), shape)
	}
	for i, v := range data {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NotValidf("element %v at %v", v, i)
		}
	}
	t := &Dense{shape: append([]int(nil), shape...), data: data}
	t.strides = make([]int, len(shape))
	stride := 1
	for k, n := range shape {
		t.strides[k] = stride
		stride *= n
	}
	return t, nil
}

// Dims returns the size of every mode.
func (t *Dense) Dims() []int {
	return append([]int(nil), t.shape...)
}

// NumModes returns the order of the tensor.
func (t *Dense) NumModes() int {
	return len(t.shape)
}

// Len returns the number of elements.
func (t *Dense) Len() int {
	return len(t.data)
}

// Data returns the column-major backing slice.
func (t *Dense) Data() []float64 {
	return t.data
}

func (t *Dense) offset(index []int) int {
	if len(index) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v for shape %v", index, t.shape))
	}
	l := 0
	for k, i := range index {
		if i < 0 || i >= t.shape[k] {
			panic(fmt.Sprintf("tensor: index %v out of range %v", index, t.shape))
		}
		l += i * t.strides[k]
	}
	return l
}

func (t *Dense) At(index ...int) float64 {
	return t.data[t.offset(index)]
}

// Set panics on negative values since the tensor is nonnegative by construction.
func (t *Dense) Set(v float64, index ...int) {
	if v < 0 || math.IsNaN(v) {
		panic(fmt.Sprintf("tensor: set negative value %v", v))
	}
	t.data[t.offset(index)] = v
}

// sub converts a linear offset to a multi-index.
func (t *Dense) sub(l int) []int {
	index := make([]int, len(t.shape))
	for k, n := range t.shape {
		index[k] = l % n
		l /= n
	}
	return index
}

// next advances a multi-index by one position in storage order.
func (t *Dense) next(index []int) {
	for k := range index {
		index[k]++
		if index[k] < t.shape[k] {
			return
		}
		index[k] = 0
	}
}

// Norm returns the Frobenius norm.
func (t *Dense) Norm() float64 {
	return floats.Norm(t.data, 2)
}

// Unfold returns the mode-n matricization X_(n) of size I_n × Π_{k≠n} I_k. Columns
// follow the ordering in which lower modes vary fastest.
func (t *Dense) Unfold(mode int) *mat.Dense {
	rows := t.shape[mode]
	cols := len(t.data) / rows
	m := mat.NewDense(rows, cols, nil)
	index := make([]int, len(t.shape))
	for _, v := range t.data {
		col, stride := 0, 1
		for k, i := range index {
			if k != mode {
				col += i * stride
				stride *= t.shape[k]
			}
		}
		m.Set(index[mode], col, v)
		t.next(index)
	}
	return m
}

// MTTKRP computes X_(n)·(U_N ⊙ … ⊙ U_{n+1} ⊙ U_{n−1} ⊙ … ⊙ U_1) without forming the
// Khatri-Rao product. factors[mode] is ignored. The element range is split over jobs
// workers, each with its own accumulator.
func (t *Dense) MTTKRP(factors []*mat.Dense, mode int, jobs int) *mat.Dense {
	if len(factors) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d factors for %d modes", len(factors), len(t.shape)))
	}
	_, rank := factors[mode].Dims()
	ranges := parallel.Split(len(t.data), jobs)
	partial := make([]*mat.Dense, len(ranges))
	parallel.For(len(ranges), jobs, func(_, jobId int) {
		m := mat.NewDense(t.shape[mode], rank, nil)
		begin, end := ranges[jobId][0], ranges[jobId][1]
		index := t.sub(begin)
		prod := make([]float64, rank)
		for l := begin; l < end; l++ {
			if v := t.data[l]; v != 0 {
				for r := range prod {
					prod[r] = v
				}
				for k, u := range factors {
					if k != mode {
						floats.Mul(prod, u.RawRowView(index[k]))
					}
				}
				floats.Add(m.RawRowView(index[mode]), prod)
			}
			t.next(index)
		}
		partial[jobId] = m
	})
	result := partial[0]
	for _, m := range partial[1:] {
		result.Add(result, m)
	}
	return result
}

// NVecs returns the leading min(r, I_n) eigenvectors of X_(n)·X_(n)ᵀ as columns,
// ordered by decreasing eigenvalue.
func (t *Dense) NVecs(mode, r int) (*mat.Dense, error) {
	var gram mat.SymDense
	gram.SymOuterK(1, t.Unfold(mode))
	var eigen mat.EigenSym
	if ok := eigen.Factorize(&gram, true); !ok {
		return nil, errors.Errorf("eigen decomposition of mode %d unfolding failed", mode)
	}
	var vectors mat.Dense
	eigen.VectorsTo(&vectors)
	n := t.shape[mode]
	k := min(r, n)
	// gonum orders eigenvalues ascending
	columns := lo.Map(lo.Range(k), func(j int, _ int) int { return n - 1 - j })
	result := mat.NewDense(n, k, nil)
	for j, c := range columns {
		result.SetCol(j, mat.Col(nil, c, &vectors))
	}
	return result, nil
}

// KhatriRao returns the column-wise Kronecker product A_1 ⊙ A_2 ⊙ … ⊙ A_m, in which
// the row index of the last matrix varies fastest. With no arguments it returns nil.
func KhatriRao(matrices ...*mat.Dense) *mat.Dense {
	if len(matrices) == 0 {
		return nil
	}
	result := mat.DenseCopyOf(matrices[0])
	_, rank := result.Dims()
	for _, b := range matrices[1:] {
		ra, _ := result.Dims()
		rb, cb := b.Dims()
		if cb != rank {
			panic(fmt.Sprintf("tensor: khatri-rao of matrices with %d and %d columns", rank, cb))
		}
		next := mat.NewDense(ra*rb, rank, nil)
		for i := 0; i < ra; i++ {
			for j := 0; j < rb; j++ {
				floats.MulTo(next.RawRowView(i*rb+j), result.RawRowView(i), b.RawRowView(j))
			}
		}
		result = next
	}
	return result
}
