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
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config is the configuration for canteen.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Model     ModelConfig     `mapstructure:"model"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig is the configuration for the data source.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
	// Aggregation merges repeated orders of the same item by a user: "sum" or "mean".
	Aggregation string `mapstructure:"aggregation" validate:"oneof=sum mean"`
}

// BlobConfig is the configuration for the model store.
type BlobConfig struct {
	Dir string   `mapstructure:"dir"`
	S3  S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket" validate:"required_with=Endpoint"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// ModelConfig is the configuration for the hybrid model.
type ModelConfig struct {
	Name        string  `mapstructure:"name" validate:"required"`
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gte=0"`
	Lr          float32 `mapstructure:"lr" validate:"gt=0"`
	Reg         float32 `mapstructure:"reg" validate:"gte=0"`
	InitStdDev  float32 `mapstructure:"init_std" validate:"gt=0"`
	MaxSampled  int     `mapstructure:"max_sampled" validate:"gt=0"`
	Margin      float32 `mapstructure:"margin" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
	NumJobs     int     `mapstructure:"num_jobs" validate:"gt=0"`
	Verbose     int     `mapstructure:"verbose" validate:"gte=0"`
	TopK        int     `mapstructure:"top_k" validate:"gt=0"`
	TestRatio   float32 `mapstructure:"test_ratio" validate:"gte=0,lt=1"`
}

type RecommendConfig struct {
	TopN int `mapstructure:"top_n" validate:"gt=0"`
}

// ServerConfig is the configuration for the RESTful API server.
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey string `mapstructure:"api_key"`
	// MaxN caps the n query parameter of list APIs.
	MaxN int `mapstructure:"max_n" validate:"gt=0"`
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Aggregation: "sum",
		},
		Blob: BlobConfig{
			Dir: "models",
		},
		Model: ModelConfig{
			Name:        "hybrid.bin",
			NFactors:    32,
			NEpochs:     25,
			Lr:          0.05,
			Reg:         1e-4,
			InitStdDev:  0.01,
			MaxSampled:  10,
			Margin:      1,
			RandomState: 42,
			NumJobs:     4,
			Verbose:     5,
			TopK:        10,
			TestRatio:   0,
		},
		Recommend: RecommendConfig{
			TopN: 5,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8087,
			MaxN: 50,
		},
	}
}

// DataStorePrefixes lists URL schemes accepted by database.data_store.
var DataStorePrefixes = []string{
	"mysql://",
	"postgres://",
	"postgresql://",
	"sqlite://",
	"mongodb://",
	"mongodb+srv://",
	"csv://",
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.aggregation", defaultConfig.Database.Aggregation)
	// [blob]
	viper.SetDefault("blob.dir", defaultConfig.Blob.Dir)
	// [model]
	viper.SetDefault("model.name", defaultConfig.Model.Name)
	viper.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	viper.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	viper.SetDefault("model.lr", defaultConfig.Model.Lr)
	viper.SetDefault("model.reg", defaultConfig.Model.Reg)
	viper.SetDefault("model.init_std", defaultConfig.Model.InitStdDev)
	viper.SetDefault("model.max_sampled", defaultConfig.Model.MaxSampled)
	viper.SetDefault("model.margin", defaultConfig.Model.Margin)
	viper.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	viper.SetDefault("model.num_jobs", defaultConfig.Model.NumJobs)
	viper.SetDefault("model.verbose", defaultConfig.Model.Verbose)
	viper.SetDefault("model.top_k", defaultConfig.Model.TopK)
	viper.SetDefault("model.test_ratio", defaultConfig.Model.TestRatio)
	// [recommend]
	viper.SetDefault("recommend.top_n", defaultConfig.Recommend.TopN)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.max_n", defaultConfig.Server.MaxN)
}

type environmentVariable struct {
	key string
	env string
}

var environmentVariables = []environmentVariable{
	{"database.data_store", "CANTEEN_DATA_STORE"},
	{"database.table_prefix", "CANTEEN_TABLE_PREFIX"},
	{"blob.dir", "CANTEEN_BLOB_DIR"},
	{"blob.s3.endpoint", "S3_ENDPOINT"},
	{"blob.s3.access_key_id", "S3_ACCESS_KEY_ID"},
	{"blob.s3.secret_access_key", "S3_SECRET_ACCESS_KEY"},
	{"blob.s3.bucket", "S3_BUCKET"},
	{"blob.s3.prefix", "S3_PREFIX"},
	{"model.num_jobs", "CANTEEN_NUM_JOBS"},
	{"server.api_key", "CANTEEN_SERVER_API_KEY"},
}

// LoadConfig loads configuration from a TOML file. Missing values fall back to defaults and
// environment variables take precedence over the file. An empty path loads defaults and the
// environment only.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	for _, v := range environmentVariables {
		if err := viper.BindEnv(v.key, v.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
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

// Validate checks the configuration and reports every violated rule.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return lo.SomeBy(DataStorePrefixes, func(prefix string) bool {
			return strings.HasPrefix(fl.Field().String(), prefix)
		})
	}); err != nil {
		return errors.Trace(err)
	}
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("mapstructure")
	})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterTranslation("data_store", trans, func(ut ut.Translator) error {
		return ut.Add("data_store", "{0} must start with one of "+strings.Join(DataStorePrefixes, ", "), true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("data_store", fe.Field())
		return t
	}); err != nil {
		return errors.Trace(err)
	}
	if err := validate.Struct(config); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			messages := lo.Map(validationErrs, func(fe validator.FieldError, _ int) string {
				return fe.Translate(trans)
			})
			return errors.NotValidf("%s", strings.Join(messages, "; "))
		}
		return errors.Trace(err)
	}
	return nil
}
