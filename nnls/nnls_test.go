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
	"testing"

	"github.com/gorse-io/ncp/base"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// newProblem builds WᵀV and WᵀW from random nonnegative W (rows × rank) and V (rows × cols).
func newProblem(seed int64, rows, rank, cols int) (wtv, wtw *mat.Dense) {
	rng := base.NewRandomGenerator(seed)
	w := rng.UniformMatrix(rows, rank, 0, 1)
	v := rng.UniformMatrix(rows, cols, 0, 1)
	wtv, wtw = &mat.Dense{}, &mat.Dense{}
	wtv.Mul(w.T(), v)
	wtw.Mul(w.T(), w)
	return
}

func newSolvers(t *testing.T) []Solver {
	var solvers []Solver
	for _, name := range Names() {
		solver, err := New(name)
		assert.NoError(t, err)
		assert.Equal(t, name, solver.Name())
		solvers = append(solvers, solver)
	}
	return solvers
}

func assertNonnegative(t *testing.T, m mat.Matrix) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !assert.GreaterOrEqual(t, m.At(i, j), 0.0) {
				return
			}
		}
	}
}

func TestNew(t *testing.T) {
	_, err := New("cg")
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestNonnegative(t *testing.T) {
	wtv, wtw := newProblem(0, 20, 4, 8)
	h0 := base.NewRandomGenerator(1).UniformMatrix(4, 8, 0, 1)
	for _, solver := range newSolvers(t) {
		for _, opts := range []Options{
			{MaxIters: 1, Tol: 1e-2, OuterIteration: 1},
			{MaxIters: 50, Tol: 1e-6, OuterIteration: 10},
			{MaxIters: 10, Tol: 1e-2, Ridge: 0.5, Sparsity: 0.1, OuterIteration: 10},
		} {
			h, _, iters, err := solver.Solve(wtv, wtw, h0, nil, opts)
			assert.NoError(t, err, solver.Name())
			assert.LessOrEqual(t, iters, opts.MaxIters)
			assert.GreaterOrEqual(t, iters, 1)
			assertNonnegative(t, h)
		}
	}
}

func TestMaxItersZero(t *testing.T) {
	wtv, wtw := newProblem(0, 10, 3, 5)
	h0 := base.NewRandomGenerator(1).UniformMatrix(3, 5, 0, 1)
	for _, solver := range newSolvers(t) {
		h, _, iters, err := solver.Solve(wtv, wtw, h0, nil, Options{MaxIters: 0, Tol: 1e-2})
		assert.NoError(t, err)
		assert.Zero(t, iters)
		assert.True(t, mat.Equal(h0, h), solver.Name())
		assert.NotSame(t, h0, h)
	}
}

func TestMonotoneObjective(t *testing.T) {
	wtv, wtw := newProblem(2, 30, 5, 10)
	h0 := base.NewRandomGenerator(3).UniformMatrix(5, 10, 0.1, 1)
	for _, solver := range []Solver{HALS{}, MU{}} {
		prev := Objective(wtv, wtw, h0, 0, 0)
		for k := 1; k <= 30; k++ {
			h, _, iters, err := solver.Solve(wtv, wtw, h0, nil, Options{MaxIters: k, OuterIteration: 10})
			assert.NoError(t, err)
			assert.Equal(t, k, iters)
			cur := Objective(wtv, wtw, h, 0, 0)
			assert.LessOrEqual(t, cur, prev+1e-10, "%s at iteration %d", solver.Name(), k)
			prev = cur
		}
	}
}

func TestConvergeToOptimum(t *testing.T) {
	wtv, wtw := newProblem(4, 30, 4, 6)
	h0 := base.NewRandomGenerator(5).UniformMatrix(4, 6, 0, 1)
	expected, _, _, err := HALS{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 5000, OuterIteration: 10})
	assert.NoError(t, err)
	h, state, _, err := ADMM{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 5000, Tol: 1e-12})
	assert.NoError(t, err)
	assert.NotNil(t, state.Dual)
	assert.True(t, mat.EqualApprox(expected, h, 1e-4))
}

func TestRidgeOptimum(t *testing.T) {
	wtv, wtw := newProblem(4, 30, 4, 6)
	h0 := base.NewRandomGenerator(5).UniformMatrix(4, 6, 0, 1)
	plain, _, _, err := HALS{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 5000, OuterIteration: 10})
	assert.NoError(t, err)
	opts := Options{MaxIters: 20000, Ridge: 20, OuterIteration: 10}
	expected, _, _, err := ADMM{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 5000, Tol: 1e-12, Ridge: opts.Ridge})
	assert.NoError(t, err)
	for _, solver := range []Solver{HALS{}, MU{}} {
		h, _, _, err := solver.Solve(wtv, wtw, h0, nil, opts)
		assert.NoError(t, err)
		assert.True(t, mat.EqualApprox(expected, h, 1e-4), solver.Name())
		assert.InDelta(t, Objective(wtv, wtw, expected, opts.Ridge, 0), Objective(wtv, wtw, h, opts.Ridge, 0), 1e-6, solver.Name())
	}
	// ridge shrinks the solution
	assert.Less(t, mat.Norm(expected, 2), mat.Norm(plain, 2))
	assert.Less(t, Objective(wtv, wtw, expected, opts.Ridge, 0), Objective(wtv, wtw, plain, opts.Ridge, 0))
}

func TestADMMDual(t *testing.T) {
	wtv, wtw := newProblem(6, 20, 3, 7)
	h0 := base.NewRandomGenerator(7).UniformMatrix(3, 7, 0, 1)
	opts := Options{MaxIters: 3, Tol: 1e-2, Sparsity: 0.5}
	h1, state, _, err := ADMM{}.Solve(wtv, wtw, h0, nil, opts)
	assert.NoError(t, err)
	rows, cols := state.Dual.Dims()
	assert.Equal(t, []int{3, 7}, []int{rows, cols})

	// the caller state is read, not modified
	dual := mat.DenseCopyOf(state.Dual)
	h2, next, _, err := ADMM{}.Solve(wtv, wtw, h1, state, opts)
	assert.NoError(t, err)
	assert.True(t, mat.Equal(dual, state.Dual))
	assert.NotSame(t, state.Dual, next.Dual)
	// a cold start from the same iterate takes a different path
	cold, _, _, err := ADMM{}.Solve(wtv, wtw, h1, nil, opts)
	assert.NoError(t, err)
	assert.False(t, mat.Equal(h2, cold))

	// dual with the wrong shape
	_, _, _, err = ADMM{}.Solve(wtv, wtw, h1, &State{Dual: mat.NewDense(2, 2, nil)}, opts)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestADMMNotPositiveDefinite(t *testing.T) {
	wtw := mat.NewDense(2, 2, []float64{1, 0, 0, -5})
	wtv := mat.NewDense(2, 3, []float64{1, 1, 1, 1, 1, 1})
	h0 := mat.NewDense(2, 3, []float64{1, 1, 1, 1, 1, 1})
	_, _, _, err := ADMM{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 5})
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestSparsity(t *testing.T) {
	wtv, wtw := newProblem(8, 20, 3, 10)
	h0 := base.NewRandomGenerator(9).UniformMatrix(3, 10, 0, 1)
	for _, solver := range newSolvers(t) {
		h, _, _, err := solver.Solve(wtv, wtw, h0, nil, Options{MaxIters: 100, Sparsity: 1e6, OuterIteration: 10})
		assert.NoError(t, err)
		assert.Less(t, mat.Max(h), 1e-3, solver.Name())
	}
}

func TestHALSEarlyFloor(t *testing.T) {
	wtv, wtw := newProblem(10, 20, 3, 10)
	h0 := base.NewRandomGenerator(11).UniformMatrix(3, 10, 0, 1)
	early, _, _, err := HALS{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 20, Sparsity: 1e6, OuterIteration: 5})
	assert.NoError(t, err)
	assert.Equal(t, earlyFloor, mat.Min(early))
	late, _, _, err := HALS{}.Solve(wtv, wtw, h0, nil, Options{MaxIters: 20, Sparsity: 1e6, OuterIteration: 6})
	assert.NoError(t, err)
	assert.Zero(t, mat.Max(late))
}

func TestDims(t *testing.T) {
	wtv, wtw := newProblem(0, 10, 3, 5)
	for _, solver := range newSolvers(t) {
		_, _, _, err := solver.Solve(wtv, wtw, mat.NewDense(2, 5, nil), nil, Options{MaxIters: 1})
		assert.True(t, errors.Is(err, errors.NotValid))
		_, _, _, err = solver.Solve(wtv, wtw, mat.NewDense(3, 4, nil), nil, Options{MaxIters: 1})
		assert.True(t, errors.Is(err, errors.NotValid))
	}
}

func TestRatio(t *testing.T) {
	assert.Zero(t, ratio(0, 0))
	assert.Equal(t, 2.0, ratio(4, 2))
	assert.True(t, ratio(1, 0) > 1e300)
}
