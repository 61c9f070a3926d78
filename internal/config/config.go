// Package config loads the fhir-avro CLI settings from defaults, an optional
// config file and FHIRAVRO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/gofhir/fhiravro/pkg/logger"
)

// EnvPrefix prefixes every environment variable, e.g. FHIRAVRO_LOG_LEVEL.
const EnvPrefix = "FHIRAVRO"

// Setting keys.
const (
	KeyLogLevel  = "log_level"
	KeyLogFormat = "log_format"
	KeyWorkers   = "workers"
	KeyOutput    = "output"
	KeySchemaDir = "schema_dir"
	KeyCacheSize = "cache_size"
)

// Output formats.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Log formats.
const (
	LogConsole = "console"
	LogJSON    = "json"
)

// Config holds the CLI settings.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Workers   int    `mapstructure:"workers"`
	Output    string `mapstructure:"output"`

	// SchemaDir holds <ResourceType>.avsc files. Empty uses the embedded
	// schemas.
	SchemaDir string `mapstructure:"schema_dir"`

	// CacheSize bounds the number of parsed schemas kept in memory.
	CacheSize int `mapstructure:"cache_size"`
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, LogConsole)
	v.SetDefault(KeyWorkers, runtime.NumCPU())
	v.SetDefault(KeyOutput, OutputJSON)
	v.SetDefault(KeySchemaDir, "")
	v.SetDefault(KeyCacheSize, 64)
	return v
}

// Load reads the optional config file into v and returns the validated
// settings. The file type follows its extension (yaml, json, toml).
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Output = strings.ToLower(cfg.Output)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	switch c.LogFormat {
	case LogConsole, LogJSON:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown format %q", KeyLogFormat, c.LogFormat))
	}
	switch c.Output {
	case OutputJSON, OutputYAML:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown format %q", KeyOutput, c.Output))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%s: must be positive, got %d", KeyWorkers, c.Workers))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%s: must be positive, got %d", KeyCacheSize, c.CacheSize))
	}
	return errors.Join(errs...)
}

// Logger builds the logger described by the settings, writing to w.
func (c *Config) Logger(w io.Writer) *logger.Logger {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		level = logger.LevelInfo
	}
	if c.LogFormat == LogJSON {
		return logger.New(w, level)
	}
	return logger.NewConsole(w, level)
}
