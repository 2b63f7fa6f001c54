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

package main

import (
	"io"
	"math"
	"os"

	"github.com/gorse-io/ncp/base"
	"github.com/gorse-io/ncp/common/log"
	"github.com/gorse-io/ncp/tensor"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

var generateCommand = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic nonnegative low rank tensor in coordinate format.",
	Run: func(cmd *cobra.Command, args []string) {
		shape, _ := cmd.Flags().GetIntSlice("shape")
		rank, _ := cmd.Flags().GetInt("rank")
		seed, _ := cmd.Flags().GetInt64("seed")
		noise, _ := cmd.Flags().GetFloat64("noise")
		dist, _ := cmd.Flags().GetString("noise-dist")
		output, _ := cmd.Flags().GetString("output")
		x, err := generate(shape, rank, seed, noise, dist)
		if err != nil {
			log.Logger().Fatal("failed to generate tensor", zap.Error(err))
		}
		var w io.Writer = os.Stdout
		if output != "-" {
			file, err := os.Create(output)
			if err != nil {
				log.Logger().Fatal("failed to create output", zap.String("output", output), zap.Error(err))
			}
			defer file.Close()
			w = file
		}
		if err = tensor.WriteCSV(w, x, ','); err != nil {
			log.Logger().Fatal("failed to write tensor", zap.Error(err))
		}
	},
}

func init() {
	generateCommand.Flags().IntSlice("shape", []int{4, 4, 4}, "tensor shape")
	generateCommand.Flags().Int("rank", 2, "number of rank-one components")
	generateCommand.Flags().Int64("seed", 0, "random seed")
	generateCommand.Flags().Float64("noise", 0, "scale of nonnegative noise added to every element")
	generateCommand.Flags().String("noise-dist", "uniform", "noise distribution: uniform or normal")
	generateCommand.Flags().StringP("output", "o", "-", "output file, - for stdout")
}

// generate builds a rank-R tensor from uniform random factors plus nonnegative noise
// of scale noise: uniform in [0, noise) or the absolute value of N(0, noise²).
func generate(shape []int, rank int, seed int64, noise float64, dist string) (*tensor.Dense, error) {
	if rank <= 0 || noise < 0 {
		return nil, errors.NotValidf("rank %d and noise %v", rank, noise)
	}
	if len(shape) == 0 {
		return nil, errors.NotValidf("empty shape")
	}
	for _, n := range shape {
		if n <= 0 {
			return nil, errors.NotValidf("shape %v", shape)
		}
	}
	rng := base.NewRandomGenerator(seed)
	x, err := tensor.RandomKTensor(rng, shape, rank).Full()
	if err != nil {
		return nil, errors.Trace(err)
	}
	data := x.Data()
	switch dist {
	case "uniform":
		if noise > 0 {
			floats.Add(data, rng.UniformVector(len(data), 0, noise))
		}
	case "normal":
		if noise > 0 {
			perturb := rng.NormalMatrix(1, len(data), 0, noise).RawRowView(0)
			for i := range data {
				data[i] += math.Abs(perturb[i])
			}
		}
	default:
		return nil, errors.NotSupportedf("noise distribution %q", dist)
	}
	return x, nil
}
