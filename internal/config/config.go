// Package config loads launcha settings from defaults, an optional config
// file, a .env file and LAUNCHA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "LAUNCHA"

// Config is the resolved client configuration.
type Config struct {
	APIBaseURL           string        `mapstructure:"api_base_url"`
	DeployAPIBaseURL     string        `mapstructure:"deploy_api_base_url"`
	PredictionAPIBaseURL string        `mapstructure:"prediction_api_base_url"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	DataDir              string        `mapstructure:"data_dir"`

	Log      LogConfig      `mapstructure:"log"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkflowConfig tunes the create workflow.
type WorkflowConfig struct {
	SubmitPlan bool   `mapstructure:"submit_plan"`
	MetricName string `mapstructure:"metric_name"`
}

// ReplayConfig paces retries of retained work.
type ReplayConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// CredentialsPath returns where the session is persisted.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.DataDir, "credentials.json")
}

// StorePath returns the SQLite database path.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "launcha.db")
}

// DefaultDataDir returns ~/.launcha, or .launcha when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".launcha"
	}
	return filepath.Join(home, ".launcha")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", "http://localhost:8000")
	v.SetDefault("deploy_api_base_url", "http://localhost:8001")
	v.SetDefault("prediction_api_base_url", "http://localhost:8001")
	v.SetDefault("request_timeout", "15s")
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("workflow.submit_plan", true)
	v.SetDefault("workflow.metric_name", "cpu_usage")
	v.SetDefault("replay.rate_per_second", 2.0)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, then the optional config file, then decodes v.
// configFile may be empty, in which case <data_dir>/config.yaml is tried.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(expandHome(v.GetString("data_dir")))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make every call fail.
func (c *Config) Validate() error {
	for key, raw := range map[string]string{
		"api_base_url":            c.APIBaseURL,
		"deploy_api_base_url":     c.DeployAPIBaseURL,
		"prediction_api_base_url": c.PredictionAPIBaseURL,
	} {
		if err := validateBaseURL(raw); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config request_timeout: must be positive, got %s", c.RequestTimeout)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config data_dir: must not be empty")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config log.format: unknown format %q", c.Log.Format)
	}
	if c.Replay.RatePerSecond <= 0 {
		return fmt.Errorf("config replay.rate_per_second: must be positive, got %v", c.Replay.RatePerSecond)
	}
	if strings.TrimSpace(c.Workflow.MetricName) == "" {
		return errors.New("config workflow.metric_name: must not be empty")
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
