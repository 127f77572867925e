package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/anomalyvision/internal/analyzer"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VISION_ENDPOINT", "http://localhost:8080/analyze")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, analyzer.BackendHTTP, cfg.Backend)
	assert.Equal(t, 16, cfg.Frames)
	assert.Equal(t, 512, cfg.MaxDimension)
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 2, cfg.TickStep)
	assert.Equal(t, 90, cfg.TickCap)
	assert.Equal(t, 11434, cfg.OllamaPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("VISION_BACKEND", "ollama")
	t.Setenv("VISION_FRAMES", "8")
	t.Setenv("VISION_TIMEOUT", "30s")
	t.Setenv("VISION_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, analyzer.BackendOllama, cfg.Backend)
	assert.Equal(t, 8, cfg.Frames)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFileOverridesEnvironment(t *testing.T) {
	t.Setenv("VISION_FRAMES", "8")

	path := filepath.Join(t.TempDir(), "vision.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: gemini\nframes: 24\ntick_interval: 250ms\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, analyzer.BackendGemini, cfg.Backend)
	assert.Equal(t, 24, cfg.Frames)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	// Untouched keys keep their environment defaults
	assert.Equal(t, 512, cfg.MaxDimension)

	assert.Equal(t, 24, cfg.Extractor().Frames)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline().TickInterval)
	assert.Equal(t, analyzer.BackendGemini, cfg.Analyzer().Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Backend:      analyzer.BackendHTTP,
			Endpoint:     "http://localhost/analyze",
			Frames:       16,
			MaxDimension: 512,
			TickStep:     2,
			TickCap:      90,
			LogLevel:     "info",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"zero frames", func(c *Config) { c.Frames = 0 }, false},
		{"frames at cap", func(c *Config) { c.Frames = MaxFrames }, true},
		{"frames over cap", func(c *Config) { c.Frames = 100000 }, false},
		{"tiny dimension", func(c *Config) { c.MaxDimension = 8 }, false},
		{"unknown backend", func(c *Config) { c.Backend = "carrier-pigeon" }, false},
		{"http without endpoint", func(c *Config) { c.Endpoint = " " }, false},
		{"ollama without endpoint", func(c *Config) { c.Backend = analyzer.BackendOllama; c.Endpoint = "" }, true},
		{"zero tick step", func(c *Config) { c.TickStep = 0 }, false},
		{"tick cap 100", func(c *Config) { c.TickCap = 100 }, false},
		{"tick cap 99", func(c *Config) { c.TickCap = 99 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := &Config{Backend: analyzer.BackendHTTP, LogLevel: "info"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, analyzer.ErrEmptyEndpoint)
	assert.Contains(t, err.Error(), "frames must be between 1 and 256")
	assert.Contains(t, err.Error(), "tick cap")
}
