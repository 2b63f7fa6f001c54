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
	"time"
	"unicode/utf8"

	"github.com/gorse-io/ncp/cmd/version"
	"github.com/gorse-io/ncp/common/log"
	"github.com/gorse-io/ncp/common/progress"
	"github.com/gorse-io/ncp/config"
	"github.com/gorse-io/ncp/tensor"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "ncp",
	Short: "Nonnegative CP decomposition of multi-way data.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().String("push-gateway", "", "prometheus push gateway, overrides the configuration")
	rootCommand.AddCommand(decomposeCommand, tuneCommand, generateCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	if gateway, _ := cmd.Flags().GetString("push-gateway"); gateway != "" {
		conf.Metrics.PushGateway = gateway
	}
	return conf
}

// loadTensor reads a coordinate format tensor from a file, "-" reads stdin.
func loadTensor(path, sep string, shape []int) (*tensor.Dense, error) {
	r, runeSize := utf8.DecodeRuneInString(sep)
	if runeSize == 0 || runeSize != len(sep) {
		return nil, errors.NotValidf("separator %q", sep)
	}
	if len(shape) == 0 {
		shape = nil
	}
	if path == "-" {
		return tensor.LoadCSV(os.Stdin, r, shape)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return tensor.LoadCSV(file, r, shape)
}

func pushMetrics(conf *config.Config) {
	if conf.Metrics.PushGateway == "" {
		return
	}
	err := push.New(conf.Metrics.PushGateway, conf.Metrics.Job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(context.Background())
	if err != nil {
		log.Logger().Error("failed to push metrics", zap.String("push_gateway", conf.Metrics.PushGateway), zap.Error(err))
	}
}

// printProgress reports the spans collected by a tracer, one row per span.
func printProgress(spans []progress.Progress) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("task", "status", "iterations", "elapsed", "error")
	for _, span := range spans {
		finish := span.FinishTime
		if finish.IsZero() {
			finish = time.Now()
		}
		_ = table.Append([]string{
			span.Name,
			string(span.Status),
			fmt.Sprintf("%d/%d", span.Count, span.Total),
			finish.Sub(span.StartTime).Round(time.Millisecond).String(),
			span.Error,
		})
	}
	_ = table.Render()
}
