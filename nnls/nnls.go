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

// Package nnls solves the nonnegative least squares subproblem
//
//	minimize 0.5||V - W H||² + 0.5·ridge·||H||² + sparsity·Σ|H|  s.t. H ≥ 0
//
// given only the Gram matrix WᵀW and the cross term WᵀV. H is stored with the
// R components along its rows. Solvers stop early once the inner tolerance is
// met, callers are expected to tolerate inexact solutions.
package nnls

import (
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is returned when the ADMM system matrix cannot be factorized.
var ErrNotPositiveDefinite = errors.New("matrix is not positive definite")

// Options configures a single subsolver call.
type Options struct {
	MaxIters int
	Tol      float64
	Ridge    float64
	Sparsity float64
	// OuterIteration is the 1-based iteration index of the enclosing driver.
	OuterIteration int
}

// State is auxiliary solver state owned by the caller and threaded through calls.
type State struct {
	// Dual is the scaled dual variable of ADMM, same shape as H.
	Dual *mat.Dense
}

// Solver is a nonnegative least squares subsolver. Solve never modifies its inputs:
// the returned matrix and state are newly allocated. The returned int is the number
// of inner iterations actually performed.
type Solver interface {
	Name() string
	Solve(wtv, wtw, h *mat.Dense, state *State, opts Options) (*mat.Dense, *State, int, error)
}

// New creates a subsolver by name.
func New(name string) (Solver, error) {
	switch name {
	case "hals":
		return HALS{}, nil
	case "admm":
		return ADMM{}, nil
	case "mu":
		return MU{}, nil
	default:
		return nil, errors.NotSupportedf("subsolver %q", name)
	}
}

// Names lists the supported subsolvers.
func Names() []string {
	return []string{"hals", "admm", "mu"}
}

func checkDims(wtv, wtw, h *mat.Dense) error {
	rank, cols := h.Dims()
	if r, c := wtw.Dims(); r != rank || c != rank {
		return errors.NotValidf("WtW of size %dx%d for rank %d", r, c, rank)
	}
	if r, c := wtv.Dims(); r != rank || c != cols {
		return errors.NotValidf("WtV of size %dx%d for H of size %dx%d", r, c, rank, cols)
	}
	return nil
}

// ratio returns a/b, treating 0/0 as 0 and x/0 as +Inf.
func ratio(a, b float64) float64 {
	if b == 0 {
		if a == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return a / b
}

// relativeChange returns ||cur - prev|| / ||prev|| in Frobenius norm.
func relativeChange(prev, cur *mat.Dense) float64 {
	var diff mat.Dense
	diff.Sub(cur, prev)
	return ratio(mat.Norm(&diff, 2), mat.Norm(prev, 2))
}

// Objective evaluates 0.5·tr(HᵀWᵀWH) − tr(HᵀWᵀV) + 0.5·ridge·||H||² + sparsity·Σ|H|,
// which equals the subproblem objective up to the constant 0.5||V||².
func Objective(wtv, wtw, h *mat.Dense, ridge, sparsity float64) float64 {
	var wh mat.Dense
	wh.Mul(wtw, h)
	quad, cross, sq, abs := 0.0, 0.0, 0.0, 0.0
	rows, cols := h.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := h.At(i, j)
			quad += v * wh.At(i, j)
			cross += v * wtv.At(i, j)
			sq += v * v
			abs += math.Abs(v)
		}
	}
	return 0.5*quad - cross + 0.5*ridge*sq + sparsity*abs
}
