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

package nnls

import (
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

const muEpsilon = 1e-16

// MU is the multiplicative update rule H ← H ⊙ WᵀV ⊘ (WᵀW·H). The iterate stays
// nonnegative as long as the inputs are.
type MU struct{}

func (MU) Name() string {
	return "mu"
}

func (MU) Solve(wtv, wtw, h *mat.Dense, state *State, opts Options) (*mat.Dense, *State, int, error) {
	if err := checkDims(wtv, wtw, h); err != nil {
		return nil, nil, 0, errors.Trace(err)
	}
	out := mat.DenseCopyOf(h)
	if opts.MaxIters <= 0 {
		return out, state, 0, nil
	}
	numerator := mat.DenseCopyOf(wtv)
	numerator.Apply(func(_, _ int, v float64) float64 {
		return v + muEpsilon
	}, numerator)
	guard := muEpsilon
	if opts.Sparsity > 0 {
		guard = opts.Sparsity
	}

	rank, cols := out.Dims()
	var (
		prev  = mat.NewDense(rank, cols, nil)
		denom = mat.NewDense(rank, cols, nil)
		iters = 0
	)
	for iters < opts.MaxIters {
		iters++
		prev.Copy(out)
		denom.Mul(wtw, out)
		if opts.Ridge > 0 {
			denom.Apply(func(i, j int, v float64) float64 {
				return v + opts.Ridge*out.At(i, j)
			}, denom)
		}
		out.Apply(func(i, j int, v float64) float64 {
			return v * numerator.At(i, j) / (denom.At(i, j) + guard)
		}, out)
		if relativeChange(prev, out) < opts.Tol {
			break
		}
	}
	return out, state, iters, nil
}
