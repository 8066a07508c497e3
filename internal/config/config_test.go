package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.Memory.MaxIterationsBeforeReset)
	assert.Equal(t, 10, cfg.Confidence.WindowSize)
	assert.Equal(t, 2, cfg.Reflection.MaxFailuresBeforeReflect)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
memory:
  window_size: 6
reflection:
  stop_after_iteration: 30
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Memory.WindowSize)
	assert.Equal(t, 30, cfg.Reflection.StopAfterIteration)
	// untouched sections keep defaults
	assert.Equal(t, DefaultMilestoneCapacity, cfg.Memory.MilestoneCapacity)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWindowSize, cfg.Memory.WindowSize)
}

func TestParse_ProfileThenExplicitValues(t *testing.T) {
	cfg := DefaultConfig()
	err := Parse(cfg, []byte("profile: strict\nconfidence:\n  escalate_threshold: 0.35\n"))
	require.NoError(t, err)

	assert.Equal(t, "strict", cfg.Profile)
	assert.Equal(t, 0.35, cfg.Confidence.EscalateThreshold)
	assert.Equal(t, Profiles["strict"].FastPathThreshold, cfg.Confidence.FastPathThreshold)
}

func TestParse_UnknownProfile(t *testing.T) {
	err := Parse(DefaultConfig(), []byte("profile: reckless\n"))
	var cfgErr ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"reserve fraction of one", func(c *Config) { c.Memory.ReserveFraction = 1 }},
		{"zero window", func(c *Config) { c.Memory.WindowSize = 0 }},
		{"verify below escalate", func(c *Config) { c.Confidence.VerifyThreshold = 0.1 }},
		{"zero escalate threshold", func(c *Config) { c.Confidence.EscalateThreshold = 0 }},
		{"zero fast track confidence", func(c *Config) { c.Orchestrator.FastTrackConfidence = 0 }},
		{"unknown provider", func(c *Config) { c.Summarizer.Provider = "openai" }},
		{"positive cautious adjustment", func(c *Config) { c.Orchestrator.CautiousAdjustment = 0.1 }},
		{"gemini without key", func(c *Config) { c.Summarizer.Provider = "gemini"; c.Summarizer.APIKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestListProfiles(t *testing.T) {
	assert.Equal(t, []string{"balanced", "permissive", "strict"}, ListProfiles())
}
