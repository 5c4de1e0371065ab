package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.AutoReply.MaxRepliesPerRule)
	assert.Equal(t, 15*time.Minute, cfg.Notify.DedupWindow)
	assert.Equal(t, 10*time.Minute, cfg.Notify.PreAlertLead)
	assert.Equal(t, 50, cfg.Notify.QueueCapacity)
	assert.Equal(t, 5*time.Second, cfg.Notify.FlushInterval)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	content := `
store:
  driver: sqlite
  data_dir: /tmp/cadence
executor:
  interval: 45s
  platforms: [instagram]
retry:
  transient:
    max_retries: 4
    base_delay: 2m
    backoff: linear
notify:
  queue_capacity: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/cadence/cadence.sqlite", cfg.Store.SQLitePath())
	assert.Equal(t, 45*time.Second, cfg.Executor.Interval)
	assert.Equal(t, []string{"instagram"}, cfg.Executor.Platforms)
	assert.Equal(t, 10, cfg.Notify.QueueCapacity)

	// Untouched fields keep defaults
	assert.Equal(t, 60*time.Second, cfg.AutoReply.Interval)

	rules := cfg.Retry.Rules()
	assert.Equal(t, 4, rules[retry.ClassTransient].MaxRetries)
	assert.Equal(t, 2*time.Minute, rules[retry.ClassTransient].BaseDelay)
	assert.Equal(t, 5, rules[retry.ClassResolveTransient].MaxRetries)
	assert.True(t, rules[retry.ClassMedia].ClearMedia)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CADENCE_DATA_DIR", "/var/lib/cadence")
	t.Setenv("CADENCE_GENAI_API_KEY", "sk-test")
	t.Setenv("CADENCE_LOG_JSON", "true")
	t.Setenv("CADENCE_ENCRYPTION_KEY", "passphrase")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/cadence", cfg.Store.DataDir)
	assert.Equal(t, "passphrase", cfg.Store.EncryptionKey)
	assert.Equal(t, "sk-test", cfg.GenAI.APIKey)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"zero interval", func(c *Config) { c.Executor.Interval = 0 }},
		{"carousel bounds", func(c *Config) { c.Executor.CarouselMin = 4; c.Executor.CarouselMax = 3 }},
		{"queue capacity", func(c *Config) { c.Notify.QueueCapacity = 0 }},
		{"reply budget", func(c *Config) { c.AutoReply.MaxRepliesPerRule = 0 }},
		{"negative probe interval", func(c *Config) { c.Probe.Interval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	// Missing file is fine
	require.NoError(t, LoadDotEnv(filepath.Join(dir, ".env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CADENCE_TEST_DOTENV=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CADENCE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CADENCE_TEST_DOTENV"))
}
