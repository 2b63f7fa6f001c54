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
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/ncp/ncp"
	"github.com/gorse-io/ncp/nnls"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

// Config is the configuration of the ncp command line.
type Config struct {
	Solver  SolverConfig  `mapstructure:"solver"`
	Storage StorageConfig `mapstructure:"storage"`
	Tune    TuneConfig    `mapstructure:"tune"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SolverConfig is the configuration of a decomposition.
type SolverConfig struct {
	Rank          int           `mapstructure:"rank" validate:"gt=0"`
	Algorithm     string        `mapstructure:"algorithm" validate:"oneof=hals admm mu"`
	Tol           float64       `mapstructure:"tol" validate:"gte=0"`
	MaxIters      int           `mapstructure:"max_iters" validate:"gt=0"`
	MaxTime       time.Duration `mapstructure:"max_time" validate:"gt=0"`
	DimOrder      []int         `mapstructure:"dim_order" validate:"dive,gte=0"`
	Init          string        `mapstructure:"init" validate:"oneof=random nvecs supplied"`
	InitPath      string        `mapstructure:"init_path" validate:"required_if=Init supplied"`
	Stop          string        `mapstructure:"stop" validate:"oneof=budget objective fit"`
	PrintItn      int           `mapstructure:"print_itn" validate:"gte=0"`
	Seed          int64         `mapstructure:"seed"`
	Jobs          int           `mapstructure:"jobs" validate:"gt=0"`
	InnerMaxIters int           `mapstructure:"inner_max_iters" validate:"gt=0"`
	InnerTol      float64       `mapstructure:"inner_tol" validate:"gte=0"`
	RegParams     []RegParam    `mapstructure:"reg_params" validate:"dive"`
}

type RegParam struct {
	Ridge    float64 `mapstructure:"ridge" validate:"gte=0"`
	Sparsity float64 `mapstructure:"sparsity" validate:"gte=0"`
}

// StorageConfig is the configuration of the blob store that keeps decomposed tensors.
type StorageConfig struct {
	Type  string      `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	Dir   string      `mapstructure:"dir" validate:"required_if=Type posix"`
	S3    S3Config    `mapstructure:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// TuneConfig is the configuration of hyper-parameter search.
type TuneConfig struct {
	Trials   int `mapstructure:"trials" validate:"gt=0"`
	MaxIters int `mapstructure:"max_iters" validate:"gt=0"`
}

type MetricsConfig struct {
	PushGateway string `mapstructure:"push_gateway" validate:"omitempty,url"`
	Job         string `mapstructure:"job" validate:"required"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Rank:          1,
			Algorithm:     "hals",
			Tol:           1e-4,
			MaxIters:      500,
			MaxTime:       1000 * time.Second,
			Init:          "random",
			Stop:          "fit",
			PrintItn:      1,
			Jobs:          1,
			InnerMaxIters: 5,
			InnerTol:      1e-2,
		},
		Storage: StorageConfig{
			Type: "posix",
			Dir:  "ncp",
		},
		Tune: TuneConfig{
			Trials:   20,
			MaxIters: 100,
		},
		Metrics: MetricsConfig{
			Job: "ncp",
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [solver]
	viper.SetDefault("solver.rank", defaultConfig.Solver.Rank)
	viper.SetDefault("solver.algorithm", defaultConfig.Solver.Algorithm)
	viper.SetDefault("solver.tol", defaultConfig.Solver.Tol)
	viper.SetDefault("solver.max_iters", defaultConfig.Solver.MaxIters)
	viper.SetDefault("solver.max_time", defaultConfig.Solver.MaxTime)
	viper.SetDefault("solver.init", defaultConfig.Solver.Init)
	viper.SetDefault("solver.stop", defaultConfig.Solver.Stop)
	viper.SetDefault("solver.print_itn", defaultConfig.Solver.PrintItn)
	viper.SetDefault("solver.jobs", defaultConfig.Solver.Jobs)
	viper.SetDefault("solver.inner_max_iters", defaultConfig.Solver.InnerMaxIters)
	viper.SetDefault("solver.inner_tol", defaultConfig.Solver.InnerTol)
	// [storage]
	viper.SetDefault("storage.type", defaultConfig.Storage.Type)
	viper.SetDefault("storage.dir", defaultConfig.Storage.Dir)
	// [tune]
	viper.SetDefault("tune.trials", defaultConfig.Tune.Trials)
	viper.SetDefault("tune.max_iters", defaultConfig.Tune.MaxIters)
	// [metrics]
	viper.SetDefault("metrics.job", defaultConfig.Metrics.Job)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"solver.rank", "NCP_RANK"},
	{"solver.algorithm", "NCP_ALGORITHM"},
	{"solver.max_iters", "NCP_MAX_ITERS"},
	{"storage.dir", "NCP_STORAGE_DIR"},
	{"storage.s3.access_key_id", "NCP_S3_ACCESS_KEY_ID"},
	{"storage.s3.secret_access_key", "NCP_S3_SECRET_ACCESS_KEY"},
	{"metrics.push_gateway", "NCP_PUSH_GATEWAY"},
}

// LoadConfig loads configuration from a TOML file. Environment variables override
// values from the file. An empty path loads the defaults.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	viper.SetConfigType("toml")
	setDefault()
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	return nil
}

// ToNCP converts the solver section into a decomposition configuration. Factors are
// used as the starting point when init is "supplied".
func (c *SolverConfig) ToNCP(factors []*mat.Dense) (ncp.Config, error) {
	cfg := ncp.NewConfig()
	cfg.Tol = c.Tol
	cfg.MaxIters = c.MaxIters
	cfg.MaxTime = c.MaxTime
	cfg.DimOrder = c.DimOrder
	cfg.PrintItn = c.PrintItn
	cfg.Seed = c.Seed
	cfg.Jobs = c.Jobs
	cfg.InnerMaxIters = c.InnerMaxIters
	cfg.InnerTol = c.InnerTol
	var err error
	if cfg.Solver, err = nnls.New(c.Algorithm); err != nil {
		return cfg, errors.Trace(err)
	}
	if cfg.Stop, err = ncp.ParseStopPolicy(c.Stop); err != nil {
		return cfg, errors.Trace(err)
	}
	if c.Init == "supplied" {
		if factors == nil {
			return cfg, errors.NotValidf("supplied init without factors")
		}
		cfg.Init = ncp.InitSupplied(factors)
	} else if cfg.Init, err = ncp.ParseInit(c.Init); err != nil {
		return cfg, errors.Trace(err)
	}
	if len(c.RegParams) > 0 {
		cfg.Regularization = lo.Map(c.RegParams, func(p RegParam, _ int) ncp.Regularization {
			return ncp.Regularization{Ridge: p.Ridge, Sparsity: p.Sparsity}
		})
	}
	return cfg, nil
}
