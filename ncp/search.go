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

package ncp

import (
	"context"
	"fmt"
	"sync"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/ncp/common/progress"
	"github.com/gorse-io/ncp/nnls"
	"github.com/juju/errors"
)

// Result is the best trial found by Search.
type Result struct {
	Algorithm     string
	InnerTol      float64
	InnerMaxIters int
	Fit           float64
	Iterations    int
}

// Search tunes the subsolver, the initial inner tolerance and the inner iteration
// budget of a decomposition to maximize fit. Every trial runs under its own progress
// span, a child of the span carried by ctx.
type Search struct {
	ctx    context.Context
	x      Tensor
	rank   int
	config Config

	mu     sync.Mutex
	trials int
	result Result
}

func NewSearch(ctx context.Context, x Tensor, rank int, config Config) *Search {
	return &Search{ctx: ctx, x: x, rank: rank, config: config}
}

func (s *Search) Objective(trial goptuna.Trial) (float64, error) {
	algorithm, err := trial.SuggestCategorical("algorithm", nnls.Names())
	if err != nil {
		return 0, errors.Trace(err)
	}
	innerTol, err := trial.SuggestLogFloat("inner_tol", 1e-6, 1e-1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	innerMaxIters, err := trial.SuggestInt("inner_max_iters", 1, 20)
	if err != nil {
		return 0, errors.Trace(err)
	}
	cfg := s.config
	if cfg.Solver, err = nnls.New(algorithm); err != nil {
		return 0, errors.Trace(err)
	}
	cfg.InnerTol = innerTol
	cfg.InnerMaxIters = innerMaxIters
	cfg.PrintItn = 0

	s.mu.Lock()
	s.trials++
	name := fmt.Sprintf("Trial %d (%s)", s.trials, algorithm)
	s.mu.Unlock()
	ctx, span := progress.Start(s.ctx, name, cfg.MaxIters)
	_, diag, err := Decompose(ctx, s.x, s.rank, cfg)
	if err != nil {
		span.Fail(err)
		return 0, errors.Trace(err)
	}
	span.Add(diag.Iterations)
	span.End()

	fit := diag.Fit()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result.Algorithm == "" || fit > s.result.Fit {
		s.result = Result{
			Algorithm:     algorithm,
			InnerTol:      innerTol,
			InnerMaxIters: innerMaxIters,
			Fit:           fit,
			Iterations:    diag.Iterations,
		}
	}
	return fit, nil
}

func (s *Search) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}
