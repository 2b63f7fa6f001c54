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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorse-io/ncp/ncp"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestUnmarshal(t *testing.T) {
	config, err := LoadConfig("config.toml.template")
	assert.NoError(t, err)

	// [solver]
	assert.Equal(t, 2, config.Solver.Rank)
	assert.Equal(t, "hals", config.Solver.Algorithm)
	assert.Equal(t, 1e-4, config.Solver.Tol)
	assert.Equal(t, 500, config.Solver.MaxIters)
	assert.Equal(t, 1000*time.Second, config.Solver.MaxTime)
	assert.Equal(t, []int{2, 1, 0}, config.Solver.DimOrder)
	assert.Equal(t, "nvecs", config.Solver.Init)
	assert.Equal(t, "fit", config.Solver.Stop)
	assert.Equal(t, 10, config.Solver.PrintItn)
	assert.Equal(t, int64(1), config.Solver.Seed)
	assert.Equal(t, 4, config.Solver.Jobs)
	assert.Equal(t, 5, config.Solver.InnerMaxIters)
	assert.Equal(t, 1e-2, config.Solver.InnerTol)
	assert.Equal(t, []RegParam{{}, {Ridge: 0.1}, {Sparsity: 0.5}}, config.Solver.RegParams)
	// [storage]
	assert.Equal(t, "posix", config.Storage.Type)
	assert.Equal(t, "/var/lib/ncp", config.Storage.Dir)
	assert.Equal(t, "localhost:9000", config.Storage.S3.Endpoint)
	assert.Equal(t, "ncp", config.Storage.S3.Bucket)
	assert.Equal(t, "factors", config.Storage.GCS.Prefix)
	assert.Equal(t, "ncp", config.Storage.Azure.Container)
	// [tune]
	assert.Equal(t, 30, config.Tune.Trials)
	assert.Equal(t, 100, config.Tune.MaxIters)
	// [metrics]
	assert.Equal(t, "http://localhost:9091", config.Metrics.PushGateway)
	assert.Equal(t, "ncp", config.Metrics.Job)
}

func TestSetDefault(t *testing.T) {
	viper.Reset()
	setDefault()
	viper.SetConfigType("toml")
	err := viper.ReadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)

	loaded, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
}

type environmentVariable struct {
	key   string
	value string
}

func TestBindEnv(t *testing.T) {
	variables := []environmentVariable{
		{"NCP_RANK", "3"},
		{"NCP_ALGORITHM", "admm"},
		{"NCP_MAX_ITERS", "42"},
		{"NCP_STORAGE_DIR", "<storage_dir>"},
		{"NCP_S3_ACCESS_KEY_ID", "<access_key_id>"},
		{"NCP_S3_SECRET_ACCESS_KEY", "<secret_access_key>"},
		{"NCP_PUSH_GATEWAY", "http://gateway:9091"},
	}
	for _, variable := range variables {
		t.Setenv(variable.key, variable.value)
	}

	config, err := LoadConfig("config.toml.template")
	assert.NoError(t, err)
	assert.Equal(t, 3, config.Solver.Rank)
	assert.Equal(t, "admm", config.Solver.Algorithm)
	assert.Equal(t, 42, config.Solver.MaxIters)
	assert.Equal(t, "<storage_dir>", config.Storage.Dir)
	assert.Equal(t, "<access_key_id>", config.Storage.S3.AccessKeyID)
	assert.Equal(t, "<secret_access_key>", config.Storage.S3.SecretAccessKey)
	assert.Equal(t, "http://gateway:9091", config.Metrics.PushGateway)

	// check default values
	assert.Equal(t, 1e-2, config.Solver.InnerTol)
}

func TestValidate(t *testing.T) {
	for name, modify := range map[string]func(*Config){
		"rank":      func(c *Config) { c.Solver.Rank = 0 },
		"algorithm": func(c *Config) { c.Solver.Algorithm = "sgd" },
		"init":      func(c *Config) { c.Solver.Init = "zeros" },
		"init path": func(c *Config) { c.Solver.Init = "supplied" },
		"stop":      func(c *Config) { c.Solver.Stop = "never" },
		"reg":       func(c *Config) { c.Solver.RegParams = []RegParam{{Ridge: -1}} },
		"storage":   func(c *Config) { c.Storage.Type = "ftp" },
		"trials":    func(c *Config) { c.Tune.Trials = 0 },
		"gateway":   func(c *Config) { c.Metrics.PushGateway = "not a url" },
	} {
		config := GetDefaultConfig()
		modify(config)
		assert.True(t, errors.Is(config.Validate(), errors.NotValid), name)
	}
	assert.NoError(t, GetDefaultConfig().Validate())

	// invalid file
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte("[solver]\nrank = -1\n"), 0644))
	_, err := LoadConfig(path)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestToNCP(t *testing.T) {
	config := GetDefaultConfig()
	config.Solver.Algorithm = "mu"
	config.Solver.Stop = "objective"
	config.Solver.Init = "nvecs"
	config.Solver.DimOrder = []int{1, 0}
	config.Solver.RegParams = []RegParam{{Ridge: 1}, {Sparsity: 2}}
	cfg, err := config.Solver.ToNCP(nil)
	assert.NoError(t, err)
	assert.Equal(t, "mu", cfg.Solver.Name())
	assert.Equal(t, ncp.StopObjective, cfg.Stop)
	assert.Equal(t, ncp.InitNVecs, cfg.Init)
	assert.Equal(t, []int{1, 0}, cfg.DimOrder)
	assert.Equal(t, []ncp.Regularization{{Ridge: 1}, {Sparsity: 2}}, cfg.Regularization)
	assert.Equal(t, 500, cfg.MaxIters)
	assert.Equal(t, 1000*time.Second, cfg.MaxTime)

	config.Solver.Init = "supplied"
	_, err = config.Solver.ToNCP(nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	factors := []*mat.Dense{mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(3, 1, []float64{1, 2, 3})}
	cfg, err = config.Solver.ToNCP(factors)
	assert.NoError(t, err)
	assert.NoError(t, cfg.Validate([]int{2, 3}, 1))
	assert.Equal(t, "supplied", cfg.Init.String())
}
