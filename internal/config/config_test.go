package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Study.PreWindowDays)
	assert.Equal(t, 5, cfg.Study.MinEvents)
	assert.InDelta(t, 0.05, cfg.Study.SignificanceLevel, 1e-12)
	assert.InDelta(t, 1.0, cfg.Signals.AbsoluteShockThreshold, 1e-12)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TREMOR_SERVER_PORT", "9191")
	t.Setenv("TREMOR_STUDY_MIN_EVENTS", "7")
	t.Setenv("TREMOR_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Study.MinEvents)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadYAMLOverlayWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9000
study:
  gap_days: 2
  confound_event_types:
    - fomc_decision
    - cpi_release
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("TREMOR_CONFIG", path)
	t.Setenv("TREMOR_SERVER_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	// Env beats file, file beats default.
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Study.GapDays)
	assert.Equal(t, []string{"fomc_decision", "cpi_release"}, cfg.Study.ConfoundEventTypes)
	// Untouched values keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative gap", func(c *Config) { c.Study.GapDays = -1 }},
		{"min events below floor", func(c *Config) { c.Study.MinEvents = 2 }},
		{"significance out of range", func(c *Config) { c.Study.SignificanceLevel = 1.5 }},
		{"zero absolute threshold", func(c *Config) { c.Signals.AbsoluteShockThreshold = 0 }},
		{"no origins", func(c *Config) { c.Security.AllowedOrigins = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestValidateCoercesUnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
}
