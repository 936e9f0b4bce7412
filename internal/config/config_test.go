package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Valid(t *testing.T) {
	content := `{
		"workers": 5,
		"request_delay_seconds": 0.5,
		"timeout_seconds": 30,
		"max_retries": 4,
		"output_dir": "results"
	}`
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 0.5, cfg.RequestDelaySeconds)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, "results", cfg.OutputDir)
}

func TestLoadConfig_MalformedJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte("{ not json"), 0644)
	require.NoError(t, err)

	_, err = LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())

	cfg.Workers = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Workers")

	cfg = Defaults()
	cfg.MaxRetries = 99
	assert.Error(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{Workers: 8, OutputDir: "custom"}
	merged := cfg.MergeWithDefaults(Defaults())

	assert.Equal(t, 8, merged.Workers, "explicit value wins")
	assert.Equal(t, "custom", merged.OutputDir)
	assert.Equal(t, DefaultTimeoutSeconds, merged.TimeoutSeconds)
	assert.Equal(t, DefaultMaxRetries, merged.MaxRetries)
	assert.Equal(t, DefaultRequestDelaySeconds, merged.RequestDelaySeconds)
	assert.Equal(t, DefaultCooldownMinutes, merged.CooldownMinutes)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{
		RequestDelaySeconds: 1.5,
		TimeoutSeconds:      20,
		CooldownMinutes:     45,
	}

	assert.Equal(t, 1500*time.Millisecond, cfg.RequestDelay())
	assert.Equal(t, 20*time.Second, cfg.Timeout())
	assert.Equal(t, 45*time.Minute, cfg.Cooldown())
}
