package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Aggregation AggregationConfig `yaml:"aggregation" mapstructure:"aggregation"`
	Seed        SeedConfig        `yaml:"seed" mapstructure:"seed"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the AI report seeder.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// AggregationConfig configures the aggregation job.
type AggregationConfig struct {
	// Fields maps tracked field names to their shape: "value", "array", or
	// "boolean". Unlisted report fields are ignored.
	Fields map[string]string `yaml:"fields" mapstructure:"fields"`
	// RulesFile optionally extends the built-in dedup rule table.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
	// MaxConcurrentPairings bounds batch fan-out.
	MaxConcurrentPairings int `yaml:"max_concurrent_pairings" mapstructure:"max_concurrent_pairings"`
}

// SeedConfig configures AI sample generation.
type SeedConfig struct {
	Count int `yaml:"count" mapstructure:"count"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultFields is the tracked field set aggregated for every pairing when
// the config file does not override it.
var DefaultFields = map[string]string{
	"cost":            "value",
	"startup_cost":    "value",
	"ongoing_cost":    "value",
	"frequency":       "value",
	"time_commitment": "value",
	"difficulty":      "value",
	"time_of_day":     "array",
	"side_effects":    "array",
	"still_following": "boolean",
	"would_recommend": "boolean",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WWFM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("aggregation.max_concurrent_pairings", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 1.0)
	v.SetDefault("anthropic.rps", 2)
	v.SetDefault("seed.count", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Aggregation.Fields) == 0 {
		cfg.Aggregation.Fields = DefaultFields
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
