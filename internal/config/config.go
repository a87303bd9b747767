// Package config loads application configuration from file and
// environment and initializes the global logger.
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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Docstore DocstoreConfig `yaml:"docstore" mapstructure:"docstore"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the relational store and ledger backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DocstoreConfig configures the document store backend.
type DocstoreConfig struct {
	// Driver selects the backend: "sqlite" or "mongo".
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Path is the SQLite database file (sqlite driver).
	Path string `yaml:"path" mapstructure:"path"`
	// URI and Database select the MongoDB deployment (mongo driver).
	URI      string `yaml:"uri" mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	// Concurrency bounds parallel record loads.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// TemplateDir holds the per-source validation templates.
	TemplateDir string `yaml:"template_dir" mapstructure:"template_dir"`
	// RetryMaxAttempts bounds store write retries per record.
	RetryMaxAttempts int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	// RetryInitialBackoffMs is the base delay before the first retry.
	RetryInitialBackoffMs int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	// BreakerFailureThreshold opens a store's circuit after this many
	// consecutive transient failures.
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	// BreakerResetSecs is how long an open circuit waits before probing.
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// FetchConfig configures archive downloads.
type FetchConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OMICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("docstore.driver", "sqlite")
	v.SetDefault("docstore.path", "omics-docs.db")
	v.SetDefault("docstore.database", "omics")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.template_dir", "templates")
	v.SetDefault("pipeline.retry_max_attempts", 3)
	v.SetDefault("pipeline.retry_initial_backoff_ms", 500)
	v.SetDefault("pipeline.breaker_failure_threshold", 5)
	v.SetDefault("pipeline.breaker_reset_secs", 30)
	v.SetDefault("fetch.temp_dir", "/tmp/omics-cli")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.user_agent", "omics-cli/1.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
