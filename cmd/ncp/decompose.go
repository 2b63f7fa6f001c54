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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/gorse-io/ncp/common/log"
	"github.com/gorse-io/ncp/common/progress"
	"github.com/gorse-io/ncp/ncp"
	"github.com/gorse-io/ncp/storage/blob"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

var decomposeCommand = &cobra.Command{
	Use:   "decompose",
	Short: "Fit a nonnegative CP decomposition to a tensor.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		input, _ := cmd.Flags().GetString("input")
		sep, _ := cmd.Flags().GetString("sep")
		shape, _ := cmd.Flags().GetIntSlice("shape")
		output, _ := cmd.Flags().GetString("output")
		x, err := loadTensor(input, sep, shape)
		if err != nil {
			log.Logger().Fatal("failed to load tensor", zap.String("input", input), zap.Error(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		store, err := blob.New(ctx, conf.Storage)
		if err != nil {
			log.Logger().Fatal("failed to open storage", zap.Error(err))
		}
		var factors []*mat.Dense
		if conf.Solver.Init == "supplied" {
			k, err := blob.LoadKTensor(ctx, store, conf.Solver.InitPath)
			if err != nil {
				log.Logger().Fatal("failed to load initial factors", zap.String("init_path", conf.Solver.InitPath), zap.Error(err))
			}
			// weights are folded into the first factor
			factors = k.Factors
			for r, l := range k.Lambda {
				col := mat.Col(nil, r, factors[0])
				for i := range col {
					col[i] *= l
				}
				factors[0].SetCol(r, col)
			}
		}
		cfg, err := conf.Solver.ToNCP(factors)
		if err != nil {
			log.Logger().Fatal("invalid solver config", zap.Error(err))
		}

		bar := progressbar.NewOptions(cfg.MaxIters,
			progressbar.OptionSetDescription("decompose"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount())
		cfg.OnIteration = func(it ncp.Iteration) {
			bar.Describe(fmt.Sprintf("decompose (fit %.6f)", it.Fit))
			_ = bar.Add(1)
		}
		tracer := progress.NewTracer("ncp")
		spanCtx, span := tracer.Start(ctx, "decompose", 1)
		k, diag, err := ncp.Decompose(spanCtx, x, conf.Solver.Rank, cfg)
		_ = bar.Finish()
		if err != nil {
			span.Fail(err)
			printProgress(span.Children())
			log.Logger().Fatal("failed to decompose", zap.Error(err))
		}
		span.Add(1)
		span.End()
		pushMetrics(conf)
		printProgress(span.Children())
		printDiagnostics(diag)

		if output != "" {
			k.Normalize()
			if err = blob.SaveKTensor(ctx, store, output, k); err != nil {
				log.Logger().Fatal("failed to save decomposition", zap.String("output", output), zap.Error(err))
			}
			log.Logger().Info("save decomposition", zap.String("output", output))
		}
	},
}

func init() {
	decomposeCommand.Flags().StringP("input", "i", "-", "tensor in coordinate format, - for stdin")
	decomposeCommand.Flags().String("sep", ",", "field separator of the input")
	decomposeCommand.Flags().IntSlice("shape", nil, "tensor shape, inferred from indices when omitted")
	decomposeCommand.Flags().StringP("output", "o", "", "name of the decomposition in the blob store")
}

func printDiagnostics(diag *ncp.Diagnostics) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("diagnostic", "value")
	last := diag.Iterations - 1
	rows := [][]string{
		{"reason", diag.Reason},
		{"iterations", strconv.Itoa(diag.Iterations)},
		{"fit", strconv.FormatFloat(diag.Fit(), 'g', 8, 64)},
		{"objective", strconv.FormatFloat(diag.Objective[last], 'g', 8, 64)},
		{"relative objective change", strconv.FormatFloat(diag.RelErr[0][last], 'g', 4, 64)},
		{"elapsed", diag.Time[last].String()},
	}
	for mode, tol := range diag.InnerTol {
		rows = append(rows, []string{fmt.Sprintf("inner tolerance of mode %d", mode), strconv.FormatFloat(tol, 'g', 4, 64)})
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()
}
