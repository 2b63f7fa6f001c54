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
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/ncp/nnls"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// StopPolicy selects the convergence test of the outer loop. The iteration and time
// budgets apply under every policy.
type StopPolicy int

const (
	// StopBudget runs until the iteration or time budget is exhausted.
	StopBudget StopPolicy = iota
	// StopObjective stops when the relative objective change stays below the tolerance
	// for three consecutive iterations, or when the relative residual falls below it.
	StopObjective
	// StopFit stops when the change in fit stays below the tolerance for three
	// consecutive iterations.
	StopFit
)

var stopPolicyNames = []string{"budget", "objective", "fit"}

func (p StopPolicy) String() string {
	if p < 0 || int(p) >= len(stopPolicyNames) {
		return fmt.Sprintf("StopPolicy(%d)", int(p))
	}
	return stopPolicyNames[p]
}

func ParseStopPolicy(name string) (StopPolicy, error) {
	i := lo.IndexOf(stopPolicyNames, name)
	if i < 0 {
		return 0, errors.NotSupportedf("stop policy %q", name)
	}
	return StopPolicy(i), nil
}

type initMethod int

const (
	initRandom initMethod = iota
	initNVecs
	initSupplied
)

// Init selects how factor matrices are initialized. The zero value is InitRandom.
type Init struct {
	method  initMethod
	factors []*mat.Dense
}

var (
	// InitRandom draws factor entries uniformly from [0, 1).
	InitRandom = Init{method: initRandom}
	// InitNVecs uses the absolute values of the leading eigenvectors of X_(n)·X_(n)ᵀ,
	// padded with random columns when fewer than R are available.
	InitNVecs = Init{method: initNVecs}
)

// InitSupplied starts from caller provided factors, one I_n × R matrix per mode.
// The factors are copied before use.
func InitSupplied(factors []*mat.Dense) Init {
	return Init{method: initSupplied, factors: factors}
}

func (i Init) String() string {
	switch i.method {
	case initRandom:
		return "random"
	case initNVecs:
		return "nvecs"
	case initSupplied:
		return "supplied"
	default:
		return fmt.Sprintf("Init(%d)", int(i.method))
	}
}

// ParseInit parses "random" or "nvecs". Supplied factors are built with InitSupplied.
func ParseInit(name string) (Init, error) {
	switch name {
	case "random":
		return InitRandom, nil
	case "nvecs":
		return InitNVecs, nil
	default:
		return Init{}, errors.NotSupportedf("init method %q", name)
	}
}

// Regularization is the (ridge, sparsity) pair of one mode.
type Regularization struct {
	Ridge    float64
	Sparsity float64
}

// Iteration is passed to Config.OnIteration after every outer iteration. Factors
// belong to the running decomposition and must not be modified.
type Iteration struct {
	Index           int
	Objective       float64
	Fit             float64
	FitDelta        float64
	InnerIterations []int
	InnerTol        []float64
	Factors         []*mat.Dense
}

type Config struct {
	// Tol is the outer convergence threshold.
	Tol float64
	// MaxIters is the outer iteration budget.
	MaxIters int
	// MaxTime is the wall clock budget.
	MaxTime time.Duration
	// DimOrder is the order modes are updated in. Nil means natural order.
	DimOrder []int
	Init     Init
	// Regularization has one row per mode. Nil means no regularization.
	Regularization []Regularization
	Stop           StopPolicy
	// PrintItn is the progress report interval, 0 disables reports.
	PrintItn      int
	Solver        nnls.Solver
	InnerMaxIters int
	// InnerTol is the initial inner tolerance of every mode.
	InnerTol    float64
	Seed        int64
	Jobs        int
	OnIteration func(Iteration)
}

// NewConfig returns the default configuration.
func NewConfig() Config {
	return Config{
		Tol:           1e-4,
		MaxIters:      500,
		MaxTime:       1000 * time.Second,
		Init:          InitRandom,
		Stop:          StopFit,
		PrintItn:      1,
		Solver:        nnls.HALS{},
		InnerMaxIters: 5,
		InnerTol:      1e-2,
		Jobs:          1,
	}
}

// Validate checks the configuration against a tensor shape and a target rank.
func (c *Config) Validate(shape []int, rank int) error {
	if rank <= 0 {
		return errors.NotValidf("rank %d", rank)
	}
	if c.MaxIters <= 0 {
		return errors.NotValidf("max iterations %d", c.MaxIters)
	}
	if c.MaxTime <= 0 {
		return errors.NotValidf("max time %v", c.MaxTime)
	}
	if c.Tol < 0 || c.InnerTol < 0 {
		return errors.NotValidf("tolerance %v and inner tolerance %v", c.Tol, c.InnerTol)
	}
	if c.InnerMaxIters <= 0 {
		return errors.NotValidf("inner max iterations %d", c.InnerMaxIters)
	}
	if c.PrintItn < 0 {
		return errors.NotValidf("print interval %d", c.PrintItn)
	}
	if c.Solver == nil {
		return errors.NotValidf("nil subsolver")
	}
	if c.Stop < StopBudget || c.Stop > StopFit {
		return errors.NotSupportedf("stop policy %v", c.Stop)
	}
	if c.DimOrder != nil {
		modes := mapset.NewSet(c.DimOrder...)
		if len(c.DimOrder) != len(shape) || modes.Cardinality() != len(shape) ||
			!modes.Equal(mapset.NewSet(lo.Range(len(shape))...)) {
			return errors.NotValidf("dimension order %v for %d modes", c.DimOrder, len(shape))
		}
	}
	if c.Regularization != nil {
		if len(c.Regularization) != len(shape) {
			return errors.NotValidf("%d regularization rows for %d modes", len(c.Regularization), len(shape))
		}
		for n, reg := range c.Regularization {
			if reg.Ridge < 0 || reg.Sparsity < 0 {
				return errors.NotValidf("regularization %+v of mode %d", reg, n)
			}
		}
	}
	switch c.Init.method {
	case initRandom, initNVecs:
	case initSupplied:
		if len(c.Init.factors) != len(shape) {
			return errors.NotValidf("%d supplied factors for %d modes", len(c.Init.factors), len(shape))
		}
		for n, u := range c.Init.factors {
			if u == nil {
				return errors.NotValidf("nil supplied factor of mode %d", n)
			}
			if rows, cols := u.Dims(); rows != shape[n] || cols != rank {
				return errors.NotValidf("supplied factor of mode %d has size %dx%d, expect %dx%d", n, rows, cols, shape[n], rank)
			}
			if mat.Min(u) < 0 {
				return errors.NotValidf("negative supplied factor of mode %d", n)
			}
		}
	default:
		return errors.NotSupportedf("init method %v", c.Init)
	}
	return nil
}

// complete fills optional fields with their defaults.
func (c Config) complete(modes int) Config {
	if c.DimOrder == nil {
		c.DimOrder = lo.Range(modes)
	}
	if c.Regularization == nil {
		c.Regularization = make([]Regularization, modes)
	}
	c.Jobs = max(c.Jobs, 1)
	return c
}
