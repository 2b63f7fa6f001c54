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
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

const minRho = 1e-12

// ADMM is the scaled alternating direction method of multipliers. H is split into an
// unconstrained copy solved through a cached Cholesky factorization of WᵀW + ρI and a
// nonnegative copy obtained by projection. The scaled dual variable persists across
// calls through State.
type ADMM struct{}

func (ADMM) Name() string {
	return "admm"
}

func (ADMM) Solve(wtv, wtw, h *mat.Dense, state *State, opts Options) (*mat.Dense, *State, int, error) {
	if err := checkDims(wtv, wtw, h); err != nil {
		return nil, nil, 0, errors.Trace(err)
	}
	rank, cols := h.Dims()
	dual := mat.NewDense(rank, cols, nil)
	if state != nil && state.Dual != nil {
		if r, c := state.Dual.Dims(); r != rank || c != cols {
			return nil, nil, 0, errors.NotValidf("dual of size %dx%d for H of size %dx%d", r, c, rank, cols)
		}
		dual.Copy(state.Dual)
	}
	hHat := mat.DenseCopyOf(h)
	if opts.MaxIters <= 0 {
		return hHat, &State{Dual: dual}, 0, nil
	}

	rho := math.Max(mat.Trace(wtw)/float64(rank), minRho)
	sym := mat.NewSymDense(rank, nil)
	for i := 0; i < rank; i++ {
		for j := i; j < rank; j++ {
			sym.SetSym(i, j, 0.5*(wtw.At(i, j)+wtw.At(j, i)))
		}
		sym.SetSym(i, i, sym.At(i, i)+rho+opts.Ridge)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, nil, 0, errors.Annotatef(ErrNotPositiveDefinite, "rho = %v", rho)
	}

	var (
		hNew    = mat.NewDense(rank, cols, nil)
		rhs     = mat.NewDense(rank, cols, nil)
		prevHat = mat.NewDense(rank, cols, nil)
		diff    mat.Dense
		shift   = opts.Sparsity / rho
		iters   = 0
	)
	for iters < opts.MaxIters {
		iters++
		prevHat.Copy(hHat)
		// H = (WtW + ρI)⁻¹(WtV + ρ(Ĥ − Ψ))
		rhs.Sub(hHat, dual)
		rhs.Scale(rho, rhs)
		rhs.Add(rhs, wtv)
		if err := chol.SolveTo(hNew, rhs); err != nil {
			return nil, nil, 0, errors.Trace(err)
		}
		// Ĥ = max(0, H + Ψ − sparsity/ρ)
		hHat.Apply(func(i, j int, _ float64) float64 {
			return math.Max(0, hNew.At(i, j)+dual.At(i, j)-shift)
		}, hHat)
		// Ψ += H − Ĥ
		dual.Add(dual, hNew)
		dual.Sub(dual, hHat)

		diff.Sub(hNew, hHat)
		primal := ratio(mat.Norm(&diff, 2), mat.Norm(hHat, 2))
		diff.Sub(prevHat, hHat)
		dualResidual := ratio(mat.Norm(&diff, 2), mat.Norm(dual, 2))
		if primal < opts.Tol && dualResidual < opts.Tol {
			break
		}
	}
	return hHat, &State{Dual: dual}, iters, nil
}
