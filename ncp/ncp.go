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

// Package ncp computes nonnegative CP decompositions by inexact block coordinate
// descent. Every outer iteration updates one factor matrix per mode by handing a
// nonnegative least squares subproblem to an nnls.Solver, which is allowed to stop
// after a few inner iterations.
package ncp

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/gorse-io/ncp/base"
	"github.com/gorse-io/ncp/common/log"
	"github.com/gorse-io/ncp/common/progress"
	"github.com/gorse-io/ncp/nnls"
	"github.com/gorse-io/ncp/tensor"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	ReasonConverged = "converged"
	ReasonMaxIters  = "max_iters"
	ReasonMaxTime   = "max_time"
)

// stallLimit is the number of consecutive small changes that count as convergence.
const stallLimit = 3

// Tensor is the tensor algebra consumed by Decompose. *tensor.Dense implements it.
type Tensor interface {
	Dims() []int
	Norm() float64
	// MTTKRP returns the I_mode × R product of the mode unfolding and the Khatri-Rao
	// product of every factor except factors[mode].
	MTTKRP(factors []*mat.Dense, mode int, jobs int) *mat.Dense
	// NVecs returns up to r leading eigenvectors of X_(mode)·X_(mode)ᵀ as columns.
	NVecs(mode, r int) (*mat.Dense, error)
}

// Diagnostics records one entry per outer iteration.
type Diagnostics struct {
	Iterations int
	Objective  []float64
	// RelErr[0] is the relative objective change, RelErr[1] the relative residual.
	RelErr [2][]float64
	// Time is the elapsed time since the start of the run.
	Time            []time.Duration
	Stall           int
	InnerIterations [][]int
	// InnerTol is the adaptive inner tolerance of every mode at termination.
	InnerTol []float64
	Reason   string
}

// Fit returns the fit of the final iteration.
func (d *Diagnostics) Fit() float64 {
	if len(d.RelErr[1]) == 0 {
		return 0
	}
	return 1 - d.RelErr[1][len(d.RelErr[1])-1]
}

type bcd struct {
	x      Tensor
	rank   int
	cfg    Config
	normX  float64
	tolU   []float64
	states []*nnls.State
	// factors[n] is replaced, never modified, by every update.
	factors []*mat.Dense
	grams   []*mat.Dense
}

// Decompose fits a rank-R nonnegative CP model to x. The returned Kruskal tensor has
// unit weights. Running out of budget is not an error, the final state is returned
// with Diagnostics.Reason set accordingly.
func Decompose(ctx context.Context, x Tensor, rank int, cfg Config) (*tensor.KTensor, *Diagnostics, error) {
	shape := x.Dims()
	if err := cfg.Validate(shape, rank); err != nil {
		return nil, nil, errors.Trace(err)
	}
	normX := x.Norm()
	if normX == 0 || math.IsNaN(normX) || math.IsInf(normX, 0) {
		return nil, nil, errors.NotValidf("tensor with norm %v", normX)
	}
	cfg = cfg.complete(len(shape))
	start := time.Now()
	log.Logger().Info("decompose",
		zap.Ints("shape", shape),
		zap.Int("rank", rank),
		zap.String("solver", cfg.Solver.Name()),
		zap.Stringer("init", cfg.Init),
		zap.Stringer("stop", cfg.Stop),
		zap.Float64("tol", cfg.Tol),
		zap.Int("max_iters", cfg.MaxIters),
		zap.Duration("max_time", cfg.MaxTime))

	factors, err := initialize(x, rank, cfg, normX)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	b := &bcd{
		x:       x,
		rank:    rank,
		cfg:     cfg,
		normX:   normX,
		tolU:    make([]float64, len(shape)),
		states:  make([]*nnls.State, len(shape)),
		factors: factors,
		grams:   make([]*mat.Dense, len(shape)),
	}
	for n := range shape {
		b.tolU[n] = cfg.InnerTol
		b.grams[n] = gram(factors[n])
	}
	diag := &Diagnostics{InnerTol: b.tolU}

	last := cfg.DimOrder[len(cfg.DimOrder)-1]
	fPrev, lsPrev := b.objective(last, x.MTTKRP(factors, last, cfg.Jobs), b.otherGrams(last))
	fitPrev := 1 - math.Sqrt(2*lsPrev)/normX
	log.Logger().Debug(fmt.Sprintf("decompose %v/%v", 0, cfg.MaxIters),
		zap.Float64("objective", fPrev),
		zap.Float64("fit", fitPrev))

	_, span := progress.Start(ctx, "NCP.Decompose", cfg.MaxIters)
	stall := 0
	for iter := 1; ; iter++ {
		if err = ctx.Err(); err != nil {
			span.Fail(err)
			return nil, diag, errors.Trace(err)
		}
		inner := make([]int, len(shape))
		var m, btb *mat.Dense
		for _, mode := range cfg.DimOrder {
			if m, btb, inner[mode], err = b.update(iter, mode); err != nil {
				span.Fail(err)
				return nil, diag, errors.Trace(err)
			}
			InnerIterationsTotal.WithLabelValues(cfg.Solver.Name(), strconv.Itoa(mode)).Add(float64(inner[mode]))
		}
		OuterIterationsTotal.Inc()

		f, ls := b.objective(last, m, btb)
		relErr1 := relative(math.Abs(f-fPrev), fPrev)
		relErr2 := math.Sqrt(2*ls) / normX
		fit := 1 - relErr2
		diag.Iterations = iter
		diag.Objective = append(diag.Objective, f)
		diag.RelErr[0] = append(diag.RelErr[0], relErr1)
		diag.RelErr[1] = append(diag.RelErr[1], relErr2)
		diag.Time = append(diag.Time, time.Since(start))
		diag.InnerIterations = append(diag.InnerIterations, inner)
		Fit.Set(fit)

		if cfg.PrintItn > 0 && iter%cfg.PrintItn == 0 {
			log.Logger().Info(fmt.Sprintf("decompose %v/%v", iter, cfg.MaxIters),
				zap.Float64("fit", fit),
				zap.Float64("fit_delta", fit-fitPrev),
				zap.Ints("inner_iterations", inner))
		}
		if cfg.OnIteration != nil {
			cfg.OnIteration(Iteration{
				Index:           iter,
				Objective:       f,
				Fit:             fit,
				FitDelta:        fit - fitPrev,
				InnerIterations: inner,
				InnerTol:        slices.Clone(b.tolU),
				Factors:         slices.Clone(b.factors),
			})
		}
		span.Add(1)

		converged := false
		switch cfg.Stop {
		case StopObjective:
			if relErr1 < cfg.Tol {
				stall++
			} else {
				stall = 0
			}
			converged = stall >= stallLimit || relErr2 < cfg.Tol
		case StopFit:
			if iter > 1 && math.Abs(fit-fitPrev) < cfg.Tol {
				stall++
			} else {
				stall = 0
			}
			converged = stall >= stallLimit
		}
		diag.Stall = stall
		if converged {
			diag.Reason = ReasonConverged
		} else if iter >= cfg.MaxIters {
			diag.Reason = ReasonMaxIters
		} else if time.Since(start) >= cfg.MaxTime {
			diag.Reason = ReasonMaxTime
		}
		if diag.Reason != "" {
			break
		}
		fPrev, fitPrev = f, fit
	}
	span.End()

	elapsed := time.Since(start)
	DecomposeTotal.WithLabelValues(cfg.Solver.Name(), diag.Reason).Inc()
	DecomposeSeconds.WithLabelValues(cfg.Solver.Name()).Observe(elapsed.Seconds())
	log.Logger().Info("decompose complete",
		zap.String("reason", diag.Reason),
		zap.Int("iterations", diag.Iterations),
		zap.Float64("fit", diag.Fit()),
		zap.Float64("objective", diag.Objective[len(diag.Objective)-1]),
		zap.Duration("elapsed", elapsed))
	kt, err := tensor.NewKTensor(b.factors)
	if err != nil {
		return nil, diag, errors.Trace(err)
	}
	return kt, diag, nil
}

// update solves the subproblem of one mode and returns the MTTKRP and Gram matrix
// it was built from.
func (b *bcd) update(iter, mode int) (m, btb *mat.Dense, iters int, err error) {
	btb = b.otherGrams(mode)
	m = b.x.MTTKRP(b.factors, mode, b.cfg.Jobs)
	reg := b.cfg.Regularization[mode]
	h, state, iters, err := b.cfg.Solver.Solve(
		mat.DenseCopyOf(m.T()), btb, mat.DenseCopyOf(b.factors[mode].T()), b.states[mode],
		nnls.Options{
			MaxIters:       b.cfg.InnerMaxIters,
			Tol:            b.tolU[mode],
			Ridge:          reg.Ridge,
			Sparsity:       reg.Sparsity,
			OuterIteration: iter,
		})
	if err != nil {
		return nil, nil, 0, errors.Annotatef(err, "mode %d", mode)
	}
	if iters == 1 {
		b.tolU[mode] /= 10
	}
	b.factors[mode] = mat.DenseCopyOf(h.T())
	b.states[mode] = state
	b.grams[mode] = gram(b.factors[mode])
	return m, btb, iters, nil
}

// otherGrams returns the Hadamard product of the Gram matrices of all modes but one.
func (b *bcd) otherGrams(mode int) *mat.Dense {
	btb := mat.NewDense(b.rank, b.rank, nil)
	btb.Apply(func(_, _ int, _ float64) float64 { return 1 }, btb)
	for n, g := range b.grams {
		if n != mode {
			btb.MulElem(btb, g)
		}
	}
	return btb
}

// objective evaluates the regularized objective and its least squares part from the
// subproblem quantities of the last updated mode,
//
//	0.5||X − P||² = 0.5(||X||² − 2Σ(U_n ⊙ M_n) + Σ(U_nᵀU_n ⊙ BtB_n)).
func (b *bcd) objective(mode int, m, btb *mat.Dense) (f, ls float64) {
	var um, gb mat.Dense
	um.MulElem(b.factors[mode], m)
	gb.MulElem(b.grams[mode], btb)
	ls = 0.5 * math.Max(0, b.normX*b.normX-2*mat.Sum(&um)+mat.Sum(&gb))
	f = ls
	for n, reg := range b.cfg.Regularization {
		if reg.Sparsity > 0 {
			// factors are nonnegative
			f += reg.Sparsity * mat.Sum(b.factors[n])
		}
		if reg.Ridge > 0 {
			f += 0.5 * reg.Ridge * mat.Trace(b.grams[n])
		}
	}
	return f, ls
}

// initialize creates nonnegative factors, each rescaled to Frobenius norm ||X||^(1/N).
func initialize(x Tensor, rank int, cfg Config, normX float64) ([]*mat.Dense, error) {
	shape := x.Dims()
	rng := base.NewRandomGenerator(cfg.Seed)
	factors := make([]*mat.Dense, len(shape))
	for n, size := range shape {
		switch cfg.Init.method {
		case initRandom:
			factors[n] = rng.UniformMatrix(size, rank, 0, 1)
		case initNVecs:
			vectors, err := x.NVecs(n, rank)
			if err != nil {
				return nil, errors.Annotatef(err, "mode %d", n)
			}
			u := rng.UniformMatrix(size, rank, 0, 1)
			_, k := vectors.Dims()
			if k < rank {
				log.Logger().Debug("pad eigenvectors with random columns",
					zap.Int("mode", n), zap.Int("eigenvectors", k), zap.Int("rank", rank))
			}
			for j := 0; j < min(k, rank); j++ {
				col := mat.Col(nil, j, vectors)
				for i := range col {
					col[i] = math.Abs(col[i])
				}
				u.SetCol(j, col)
			}
			factors[n] = u
		case initSupplied:
			factors[n] = mat.DenseCopyOf(cfg.Init.factors[n])
		default:
			return nil, errors.NotSupportedf("init method %v", cfg.Init)
		}
	}
	scale := math.Pow(normX, 1/float64(len(shape)))
	for _, u := range factors {
		if norm := mat.Norm(u, 2); norm > 0 {
			u.Scale(scale/norm, u)
		}
	}
	return factors, nil
}

func gram(u *mat.Dense) *mat.Dense {
	var g mat.Dense
	g.Mul(u.T(), u)
	return &g
}

// relative returns a/b, treating 0/0 as 0 and x/0 as +Inf.
func relative(a, b float64) float64 {
	if b == 0 {
		if a == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return a / b
}
