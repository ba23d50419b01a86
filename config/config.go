// Copyright 2022 gorse Project Authors
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
	"strings"
	"time"

	"github.com/cortexeng/cortex/base/log"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
	MetricPearson   = "pearson"

	EngineAuto  = "auto"
	EngineDense = "dense"
	EngineIndex = "index"
)

// Config is the configuration for the recommender.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Model     ModelConfig     `mapstructure:"model"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig is the configuration for the data store.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// ModelConfig is the configuration for the neighborhood model.
type ModelConfig struct {
	Metric         string  `mapstructure:"metric" validate:"oneof=cosine euclidean pearson"`
	Engine         string  `mapstructure:"engine" validate:"oneof=auto dense index"`
	K              int     `mapstructure:"k" validate:"gt=0"`
	SimThreshold   float64 `mapstructure:"sim_threshold" validate:"gte=-1,lte=1"`
	MinRating      float64 `mapstructure:"min_rating" validate:"gt=0"`
	MaxRating      float64 `mapstructure:"max_rating" validate:"gtfield=MinRating"`
	NeutralRating  float64 `mapstructure:"neutral_rating"`
	FallbackJitter float64 `mapstructure:"fallback_jitter" validate:"gte=0"`
	DenseMaxUsers  int     `mapstructure:"dense_max_users" validate:"gt=0"`
	FitJobs        int     `mapstructure:"fit_jobs" validate:"gt=0"`
	Seed           int64   `mapstructure:"seed"`

	// HNSW parameters of the index engine
	IndexMaxConnection  int `mapstructure:"index_max_connection" validate:"gt=1"`
	IndexEFConstruction int `mapstructure:"index_ef_construction" validate:"gt=0"`
	IndexEF             int `mapstructure:"index_ef" validate:"gte=0"`
}

// RecommendConfig is the configuration for recommendation lists.
type RecommendConfig struct {
	DefaultN      int    `mapstructure:"default_n" validate:"gt=0"`
	RecencyWindow int    `mapstructure:"recency_window" validate:"gte=0"`
	Score         string `mapstructure:"score"`
	Filter        string `mapstructure:"filter"`
}

// ServerConfig is the configuration for the REST server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore: "sqlite://cortex.db",
		},
		Model: ModelConfig{
			Metric:         MetricCosine,
			Engine:         EngineAuto,
			K:              30,
			SimThreshold:   0.2,
			MinRating:      1,
			MaxRating:      5,
			NeutralRating:  3,
			FallbackJitter: 0.5,
			DenseMaxUsers:  20000,
			FitJobs:        1,

			IndexMaxConnection:  48,
			IndexEFConstruction: 100,
		},
		Recommend: RecommendConfig{
			DefaultN:      10,
			RecencyWindow: 10,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8087,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [database]
	v.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	v.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [model]
	v.SetDefault("model.metric", defaultConfig.Model.Metric)
	v.SetDefault("model.engine", defaultConfig.Model.Engine)
	v.SetDefault("model.k", defaultConfig.Model.K)
	v.SetDefault("model.sim_threshold", defaultConfig.Model.SimThreshold)
	v.SetDefault("model.min_rating", defaultConfig.Model.MinRating)
	v.SetDefault("model.max_rating", defaultConfig.Model.MaxRating)
	v.SetDefault("model.neutral_rating", defaultConfig.Model.NeutralRating)
	v.SetDefault("model.fallback_jitter", defaultConfig.Model.FallbackJitter)
	v.SetDefault("model.dense_max_users", defaultConfig.Model.DenseMaxUsers)
	v.SetDefault("model.fit_jobs", defaultConfig.Model.FitJobs)
	v.SetDefault("model.seed", defaultConfig.Model.Seed)
	v.SetDefault("model.index_max_connection", defaultConfig.Model.IndexMaxConnection)
	v.SetDefault("model.index_ef_construction", defaultConfig.Model.IndexEFConstruction)
	v.SetDefault("model.index_ef", defaultConfig.Model.IndexEF)
	// [recommend]
	v.SetDefault("recommend.default_n", defaultConfig.Recommend.DefaultN)
	v.SetDefault("recommend.recency_window", defaultConfig.Recommend.RecencyWindow)
	v.SetDefault("recommend.score", defaultConfig.Recommend.Score)
	v.SetDefault("recommend.filter", defaultConfig.Recommend.Filter)
	// [server]
	v.SetDefault("server.host", defaultConfig.Server.Host)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.api_key", defaultConfig.Server.APIKey)
	v.SetDefault("server.shutdown_timeout", defaultConfig.Server.ShutdownTimeout)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"database.data_store", "CORTEX_DATA_STORE"},
	{"database.table_prefix", "CORTEX_TABLE_PREFIX"},
	{"model.metric", "CORTEX_MODEL_METRIC"},
	{"model.engine", "CORTEX_MODEL_ENGINE"},
	{"model.k", "CORTEX_MODEL_K"},
	{"model.fit_jobs", "CORTEX_MODEL_FIT_JOBS"},
	{"server.host", "CORTEX_SERVER_HOST"},
	{"server.port", "CORTEX_SERVER_PORT"},
	{"server.api_key", "CORTEX_SERVER_API_KEY"},
}

// LoadConfig loads configuration from a TOML file. Missing keys take default
// values and CORTEX_* environment variables override the file. An empty path
// loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			log.Logger().Fatal("failed to bind a Viper key to a ENV variable", zap.Error(err))
		}
	}
	if path != "" {
		v.SetConfigType("toml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

var dataStorePrefixes = []string{
	"sqlite://", "mysql://", "postgres://", "postgresql://",
	"mongodb://", "mongodb+srv://", "redis://", "rediss://",
	"clickhouse://", "chhttp://", "chhttps://",
}

// Validate checks the configuration. The returned error lists every invalid
// field with an English message.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		for _, prefix := range dataStorePrefixes {
			if strings.HasPrefix(fl.Field().String(), prefix) {
				return true
			}
		}
		return false
	}); err != nil {
		return errors.Trace(err)
	}
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterTranslation("data_store", trans, func(ut ut.Translator) error {
		return ut.Add("data_store", "{0} must start with one of "+strings.Join(dataStorePrefixes, ", "), true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("data_store", fe.Field())
		return t
	}); err != nil {
		return errors.Trace(err)
	}
	err := validate.Struct(config)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := make([]string, 0, len(validationErrors))
			for _, fieldError := range validationErrors {
				messages = append(messages, fieldError.Translate(trans))
			}
			return errors.NotValidf("%s", strings.Join(messages, "; "))
		}
		return errors.Trace(err)
	}
	if config.Model.NeutralRating < config.Model.MinRating || config.Model.NeutralRating > config.Model.MaxRating {
		return errors.NotValidf("neutral_rating %v out of [%v, %v]",
			config.Model.NeutralRating, config.Model.MinRating, config.Model.MaxRating)
	}
	return nil
}
