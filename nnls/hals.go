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
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// earlyIterations is the number of outer iterations during which HALS keeps
	// components strictly positive.
	earlyIterations = 5
	earlyFloor      = 1e-16
)

// HALS is hierarchical alternating least squares: exact coordinate descent over the
// rows of H, updated in place so later rows see the new values of earlier rows.
type HALS struct{}

func (HALS) Name() string {
	return "hals"
}

func (HALS) Solve(wtv, wtw, h *mat.Dense, state *State, opts Options) (*mat.Dense, *State, int, error) {
	if err := checkDims(wtv, wtw, h); err != nil {
		return nil, nil, 0, errors.Trace(err)
	}
	out := mat.DenseCopyOf(h)
	if opts.MaxIters <= 0 {
		return out, state, 0, nil
	}
	floor := 0.0
	if opts.OuterIteration <= earlyIterations {
		floor = earlyFloor
	}
	rank, cols := out.Dims()
	prev := mat.NewDense(rank, cols, nil)
	grad := make([]float64, cols)
	iters := 0
	for iters < opts.MaxIters {
		iters++
		prev.Copy(out)
		for r := 0; r < rank; r++ {
			denom := wtw.At(r, r) + opts.Ridge
			if denom <= 0 {
				// dead component
				continue
			}
			// grad = WtV(r,:) - WtW(r,:)·H, the ridge term is applied per element below
			copy(grad, wtv.RawRowView(r))
			for k := 0; k < rank; k++ {
				if w := wtw.At(r, k); w != 0 {
					floats.AddScaled(grad, -w, out.RawRowView(k))
				}
			}
			row := out.RawRowView(r)
			for j := range row {
				row[j] = math.Max(floor, row[j]+(grad[j]-opts.Ridge*row[j]-opts.Sparsity)/denom)
			}
		}
		if relativeChange(prev, out) < opts.Tol {
			break
		}
	}
	return out, state, iters, nil
}
