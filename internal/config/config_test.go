package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LAUNCHA_DATA_DIR", dir)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, "http://localhost:8001", cfg.DeployAPIBaseURL)
	assert.Equal(t, "http://localhost:8001", cfg.PredictionAPIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Workflow.SubmitPlan)
	assert.Equal(t, "cpu_usage", cfg.Workflow.MetricName)
	assert.InDelta(t, 2.0, cfg.Replay.RatePerSecond, 1e-9)
	assert.Equal(t, filepath.Join(dir, "credentials.json"), cfg.CredentialsPath())
	assert.Equal(t, filepath.Join(dir, "launcha.db"), cfg.StorePath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LAUNCHA_DATA_DIR", t.TempDir())
	t.Setenv("LAUNCHA_API_BASE_URL", "https://api.example.com")
	t.Setenv("LAUNCHA_REQUEST_TIMEOUT", "3s")
	t.Setenv("LAUNCHA_LOG_LEVEL", "debug")
	t.Setenv("LAUNCHA_WORKFLOW_SUBMIT_PLAN", "false")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Workflow.SubmitPlan)
}

func TestLoad_ConfigFileInDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LAUNCHA_DATA_DIR", dir)
	content := "deploy_api_base_url: https://deploy.example.com\nlog:\n  format: json\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "https://deploy.example.com", cfg.DeployAPIBaseURL)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	t.Setenv("LAUNCHA_DATA_DIR", t.TempDir())

	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			APIBaseURL:           "http://localhost:8000",
			DeployAPIBaseURL:     "http://localhost:8001",
			PredictionAPIBaseURL: "https://predict.example.com",
			RequestTimeout:       time.Second,
			DataDir:              "/tmp/launcha",
			Log:                  LogConfig{Level: "info", Format: "console"},
			Workflow:             WorkflowConfig{SubmitPlan: true, MetricName: "cpu_usage"},
			Replay:               ReplayConfig{RatePerSecond: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "ftp scheme", mutate: func(c *Config) { c.APIBaseURL = "ftp://host" }, wantErr: true},
		{name: "missing host", mutate: func(c *Config) { c.DeployAPIBaseURL = "http://" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: true},
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = " " }, wantErr: true},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "zero replay rate", mutate: func(c *Config) { c.Replay.RatePerSecond = 0 }, wantErr: true},
		{name: "empty metric", mutate: func(c *Config) { c.Workflow.MetricName = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
