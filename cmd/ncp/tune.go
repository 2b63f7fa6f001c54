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
	"os"
	"os/signal"
	"strconv"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/ncp/common/log"
	"github.com/gorse-io/ncp/common/progress"
	"github.com/gorse-io/ncp/ncp"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tuneCommand = &cobra.Command{
	Use:   "tune",
	Short: "Search the subsolver and inner iteration settings maximizing fit.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		input, _ := cmd.Flags().GetString("input")
		sep, _ := cmd.Flags().GetString("sep")
		shape, _ := cmd.Flags().GetIntSlice("shape")
		if cmd.Flags().Changed("trials") {
			conf.Tune.Trials, _ = cmd.Flags().GetInt("trials")
		}
		x, err := loadTensor(input, sep, shape)
		if err != nil {
			log.Logger().Fatal("failed to load tensor", zap.String("input", input), zap.Error(err))
		}
		if conf.Solver.Init == "supplied" {
			log.Logger().Fatal("supplied init is not supported by tune")
		}
		cfg, err := conf.Solver.ToNCP(nil)
		if err != nil {
			log.Logger().Fatal("invalid solver config", zap.Error(err))
		}
		cfg.MaxIters = conf.Tune.MaxIters

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		tracer := progress.NewTracer("ncp")
		ctx, span := tracer.Start(ctx, "tune", conf.Tune.Trials)
		search := ncp.NewSearch(ctx, x, conf.Solver.Rank, cfg)
		study, err := goptuna.CreateStudy("ncp",
			goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
			goptuna.StudyOptionSampler(tpe.NewSampler()))
		if err != nil {
			log.Logger().Fatal("failed to create study", zap.Error(err))
		}
		bar := progressbar.NewOptions(conf.Tune.Trials,
			progressbar.OptionSetDescription("tune"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount())
		err = study.Optimize(func(trial goptuna.Trial) (float64, error) {
			defer func() {
				span.Add(1)
				_ = bar.Set(span.Count())
			}()
			return search.Objective(trial)
		}, conf.Tune.Trials)
		_ = bar.Finish()
		if err != nil {
			span.Fail(err)
			printProgress(span.Children())
			log.Logger().Fatal("failed to optimize", zap.Error(err))
		}
		span.End()
		pushMetrics(conf)
		printProgress(span.Children())

		result := search.Result()
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("algorithm", "inner_tol", "inner_max_iters", "fit", "iterations")
		_ = table.Append([]string{
			result.Algorithm,
			strconv.FormatFloat(result.InnerTol, 'g', 4, 64),
			strconv.Itoa(result.InnerMaxIters),
			strconv.FormatFloat(result.Fit, 'g', 8, 64),
			strconv.Itoa(result.Iterations),
		})
		_ = table.Render()
	},
}

func init() {
	tuneCommand.Flags().StringP("input", "i", "-", "tensor in coordinate format, - for stdin")
	tuneCommand.Flags().String("sep", ",", "field separator of the input")
	tuneCommand.Flags().IntSlice("shape", nil, "tensor shape, inferred from indices when omitted")
	tuneCommand.Flags().Int("trials", 20, "number of trials, overrides the configuration")
}
