// Package config loads witl settings from defaults, an optional YAML file
// and WITL_* environment variables, in increasing order of precedence.
// Command-line flags are bound on top by the cli package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/pranshuparmar/witl/internal/engine"
	"github.com/pranshuparmar/witl/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// WITL_DELETE_MAX_ATTEMPTS for delete.max_attempts.
const EnvPrefix = "WITL"

// Config is the complete witl configuration.
type Config struct {
	Scan        ScanConfig        `mapstructure:"scan"`
	Match       MatchConfig       `mapstructure:"match"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Delete      DeleteConfig      `mapstructure:"delete"`
	Log         LogConfig         `mapstructure:"log"`
	Output      OutputConfig      `mapstructure:"output"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ScanConfig struct {
	// Deadline bounds one scan; 0 disables it
	Deadline time.Duration `mapstructure:"deadline" validate:"gte=0"`
	// Ancestry adds the parent chain and source of every holder
	Ancestry bool `mapstructure:"ancestry"`
	// IncludeMmap also reports memory-mapped files (Linux and macOS)
	IncludeMmap bool `mapstructure:"include_mmap"`
	// Concurrency caps how many targets are scanned at once
	Concurrency int `mapstructure:"concurrency" validate:"gte=1,lte=64"`
}

type MatchConfig struct {
	CaseSensitive bool `mapstructure:"case_sensitive"`
}

type RemediationConfig struct {
	// Grace is how long a closed process gets to exit
	Grace time.Duration `mapstructure:"grace" validate:"gt=0"`
}

type DeleteConfig struct {
	MaxAttempts int                  `mapstructure:"max_attempts" validate:"gte=1,lte=100"`
	Backoff     engine.BackoffPolicy `mapstructure:"backoff"`
	KillHolders bool                 `mapstructure:"kill_holders"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"loglevel"`
	// File receives the JSON log; empty means stderr
	File string `mapstructure:"file"`
}

type OutputConfig struct {
	Format string `mapstructure:"format" validate:"oneof=text json yaml"`
	// Color is auto, always or never
	Color string `mapstructure:"color" validate:"oneof=auto always never"`
}

type MetricsConfig struct {
	// File is a node_exporter textfile written after each command
	File string `mapstructure:"file"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Deadline:    5 * time.Second,
			Concurrency: 4,
		},
		Remediation: RemediationConfig{
			Grace: 2 * time.Second,
		},
		Delete: DeleteConfig{
			MaxAttempts: 3,
			Backoff:     engine.DefaultBackoff(),
		},
		Log: LogConfig{
			Level: logging.LevelWarn,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("scan.deadline", d.Scan.Deadline)
	v.SetDefault("scan.ancestry", d.Scan.Ancestry)
	v.SetDefault("scan.include_mmap", d.Scan.IncludeMmap)
	v.SetDefault("scan.concurrency", d.Scan.Concurrency)

	v.SetDefault("match.case_sensitive", d.Match.CaseSensitive)

	v.SetDefault("remediation.grace", d.Remediation.Grace)

	v.SetDefault("delete.max_attempts", d.Delete.MaxAttempts)
	v.SetDefault("delete.backoff.initial", d.Delete.Backoff.Initial)
	v.SetDefault("delete.backoff.multiplier", d.Delete.Backoff.Multiplier)
	v.SetDefault("delete.backoff.max", d.Delete.Backoff.Max)
	v.SetDefault("delete.kill_holders", d.Delete.KillHolders)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.color", d.Output.Color)

	v.SetDefault("metrics.file", d.Metrics.File)
}

// New returns a viper instance with defaults and environment overrides in
// place. When file is set it must exist; otherwise config.yaml is looked up
// in ConfigDir and the working directory, and a missing one is fine.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and reports all problems at once, named by
// their configuration keys.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	if err := validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		return logging.IsValidLevel(fl.Field().String())
	}); err != nil {
		return err
	}

	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		// Namespace is "Config.delete.backoff.max"
		_, key, _ := strings.Cut(e.Namespace(), ".")
		msgs = append(msgs, fmt.Sprintf("%s: failed %q check (got: %v)", key, e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "witl")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".witl"
	}
	return filepath.Join(dir, "witl")
}

// ConfigFile returns the path to the default config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
