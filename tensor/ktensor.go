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

package tensor

import (
	"io"
	"math"
	"slices"

	"github.com/gorse-io/ncp/base"
	"github.com/gorse-io/ncp/common/encoding"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	ktensorMagic = "ktensor"
	maxModes     = 1 << 10
)

// KTensor is a Kruskal tensor, the weighted sum of R rank-one outer products
// Σ_r λ_r · U_1(:,r) ∘ … ∘ U_N(:,r).
type KTensor struct {
	Lambda  []float64
	Factors []*mat.Dense
}

// NewKTensor builds a Kruskal tensor with unit weights. Factors are copied and must
// share the same number of columns.
func NewKTensor(factors []*mat.Dense) (*KTensor, error) {
	if len(factors) == 0 {
		return nil, errors.NotValidf("empty factor list")
	}
	_, rank := factors[0].Dims()
	k := &KTensor{Lambda: make([]float64, rank), Factors: make([]*mat.Dense, len(factors))}
	for n, u := range factors {
		if _, c := u.Dims(); c != rank {
			return nil, errors.NotValidf("factor %d with %d columns for rank %d", n, c, rank)
		}
		k.Factors[n] = mat.DenseCopyOf(u)
	}
	for r := range k.Lambda {
		k.Lambda[r] = 1
	}
	return k, nil
}

// RandomKTensor draws factors uniformly from [0, 1).
func RandomKTensor(rng base.RandomGenerator, shape []int, rank int) *KTensor {
	factors := make([]*mat.Dense, len(shape))
	for n, size := range shape {
		factors[n] = rng.UniformMatrix(size, rank, 0, 1)
	}
	k, err := NewKTensor(factors)
	if err != nil {
		panic(err)
	}
	return k
}

func (k *KTensor) Rank() int {
	return len(k.Lambda)
}

func (k *KTensor) Dims() []int {
	shape := make([]int, len(k.Factors))
	for n, u := range k.Factors {
		shape[n], _ = u.Dims()
	}
	return shape
}

// Full reconstructs the dense tensor through X_(1) = U_1·diag(λ)·(U_N ⊙ … ⊙ U_2)ᵀ.
func (k *KTensor) Full() (*Dense, error) {
	shape := k.Dims()
	u0 := mat.DenseCopyOf(k.Factors[0])
	for r, l := range k.Lambda {
		col := mat.Col(nil, r, u0)
		floats.Scale(l, col)
		u0.SetCol(r, col)
	}
	rest := slices.Clone(k.Factors[1:])
	slices.Reverse(rest)
	kr := KhatriRao(rest...)
	if kr == nil {
		kr = mat.NewDense(1, k.Rank(), nil)
		for r := 0; r < k.Rank(); r++ {
			kr.Set(0, r, 1)
		}
	}
	var unfolded mat.Dense
	unfolded.Mul(u0, kr.T())
	rows, cols := unfolded.Dims()
	data := make([]float64, rows*cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			// clamp rounding noise, Dense only holds nonnegative values
			data[i+rows*j] = math.Max(0, unfolded.At(i, j))
		}
	}
	return New(shape, data)
}

// Norm returns the Frobenius norm computed from the factor Gram matrices.
func (k *KTensor) Norm() float64 {
	rank := k.Rank()
	var coef mat.Dense
	coef.Outer(1, mat.NewVecDense(rank, k.Lambda), mat.NewVecDense(rank, k.Lambda))
	for _, u := range k.Factors {
		var gram mat.Dense
		gram.Mul(u.T(), u)
		coef.MulElem(&coef, &gram)
	}
	return math.Sqrt(math.Max(0, mat.Sum(&coef)))
}

// InnerProduct returns <X, K>.
func (k *KTensor) InnerProduct(x *Dense, jobs int) float64 {
	m := x.MTTKRP(k.Factors, 0, jobs)
	m.MulElem(m, k.Factors[0])
	sum := 0.0
	for r, l := range k.Lambda {
		sum += l * floats.Sum(mat.Col(nil, r, m))
	}
	return sum
}

// Fit returns 1 − ||X − K|| / ||X||.
func (k *KTensor) Fit(x *Dense, jobs int) float64 {
	normX := x.Norm()
	if normX == 0 {
		return 0
	}
	normK := k.Norm()
	residual := normX*normX + normK*normK - 2*k.InnerProduct(x, jobs)
	return 1 - math.Sqrt(math.Max(0, residual))/normX
}

// Normalize rescales every factor column to unit length and absorbs the norms into
// the weights. Zero columns are left unchanged.
func (k *KTensor) Normalize() {
	for _, u := range k.Factors {
		for r := range k.Lambda {
			col := mat.Col(nil, r, u)
			norm := floats.Norm(col, 2)
			if norm > 0 {
				floats.Scale(1/norm, col)
				u.SetCol(r, col)
				k.Lambda[r] *= norm
			}
		}
	}
}

// Marshal writes the weights and factors to a byte stream.
func (k *KTensor) Marshal(w io.Writer) error {
	if err := encoding.WriteString(w, ktensorMagic); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, k.Lambda); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, len(k.Factors)); err != nil {
		return errors.Trace(err)
	}
	for _, u := range k.Factors {
		if err := encoding.WriteDense(w, u); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal reads a Kruskal tensor written by Marshal.
func (k *KTensor) Unmarshal(r io.Reader) error {
	magic, err := encoding.ReadString(r)
	if err != nil {
		return errors.Trace(err)
	}
	if magic != ktensorMagic {
		return errors.NotValidf("ktensor header %q", magic)
	}
	var lambda []float64
	if err = encoding.ReadGob(r, &lambda); err != nil {
		return errors.Trace(err)
	}
	if len(lambda) == 0 {
		return errors.NotValidf("ktensor without weights")
	}
	var modes int
	if err = encoding.ReadGob(r, &modes); err != nil {
		return errors.Trace(err)
	}
	if modes <= 0 || modes > maxModes {
		return errors.NotValidf("ktensor with %d modes", modes)
	}
	factors := make([]*mat.Dense, modes)
	for n := range factors {
		if factors[n], err = encoding.ReadDense(r); err != nil {
			return errors.Trace(err)
		}
		if _, c := factors[n].Dims(); c != len(lambda) {
			return errors.NotValidf("factor %d with %d columns for rank %d", n, c, len(lambda))
		}
	}
	k.Lambda, k.Factors = lambda, factors
	return nil
}
