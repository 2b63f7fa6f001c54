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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelSolver = "solver"
	LabelMode   = "mode"
	LabelReason = "reason"
)

var (
	DecomposeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ncp",
		Subsystem: "driver",
		Name:      "decompose_total",
	}, []string{LabelSolver, LabelReason})
	DecomposeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ncp",
		Subsystem: "driver",
		Name:      "decompose_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{LabelSolver})
	OuterIterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ncp",
		Subsystem: "driver",
		Name:      "outer_iterations_total",
	})
	InnerIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ncp",
		Subsystem: "driver",
		Name:      "inner_iterations_total",
	}, []string{LabelSolver, LabelMode})
	Fit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ncp",
		Subsystem: "driver",
		Name:      "fit",
	})
)
