package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bdougie/anomalyvision/internal/analyzer"
	"github.com/bdougie/anomalyvision/internal/extractor"
	"github.com/bdougie/anomalyvision/internal/pipeline"
)

// MaxFrames bounds the sample count. Each sample is one decoder run and one
// image in the inference request.
const MaxFrames = 256

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Backend       string        `env:"VISION_BACKEND"         envDefault:"http"  yaml:"backend"`
	Endpoint      string        `env:"VISION_ENDPOINT"                           yaml:"endpoint"`
	APIKey        string        `env:"VISION_API_KEY"                            yaml:"api_key"`
	Model         string        `env:"VISION_MODEL"                              yaml:"model"`
	Timeout       time.Duration `env:"VISION_TIMEOUT"         envDefault:"120s"  yaml:"timeout"`
	RatePerMinute float64       `env:"VISION_RATE_PER_MINUTE" envDefault:"0"     yaml:"rate_per_minute"`

	Frames       int `env:"VISION_FRAMES"        envDefault:"16"  yaml:"frames"`
	MaxDimension int `env:"VISION_MAX_DIMENSION" envDefault:"512" yaml:"max_dimension"`
	Workers      int `env:"VISION_WORKERS"       envDefault:"4"   yaml:"workers"`

	TickInterval time.Duration `env:"VISION_TICK_INTERVAL" envDefault:"500ms" yaml:"tick_interval"`
	TickStep     int           `env:"VISION_TICK_STEP"     envDefault:"2"     yaml:"tick_step"`
	TickCap      int           `env:"VISION_TICK_CAP"      envDefault:"90"    yaml:"tick_cap"`

	OutputDir   string `env:"VISION_OUTPUT_DIR"   envDefault:"output" yaml:"output_dir"`
	DatabaseURL string `env:"VISION_DATABASE_URL"                     yaml:"database_url"`
	MetricsAddr string `env:"VISION_METRICS_ADDR"                     yaml:"metrics_addr"`
	LogLevel    string `env:"VISION_LOG_LEVEL"    envDefault:"info"   yaml:"log_level"`

	OllamaHost string `env:"OLLAMA_HOST" envDefault:"http://localhost" yaml:"ollama_host"`
	OllamaPort int    `env:"OLLAMA_PORT" envDefault:"11434"            yaml:"ollama_port"`
}

// Load reads the environment and then overlays the YAML file at path, if any.
// Keys present in the file win over the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.Frames < 1 || c.Frames > MaxFrames {
		errs = append(errs, fmt.Errorf("frames must be between 1 and %d, got %d", MaxFrames, c.Frames))
	}
	if c.MaxDimension < 16 {
		errs = append(errs, fmt.Errorf("max dimension must be at least 16, got %d", c.MaxDimension))
	}
	switch c.Backend {
	case analyzer.BackendHTTP:
		if strings.TrimSpace(c.Endpoint) == "" {
			errs = append(errs, analyzer.ErrEmptyEndpoint)
		}
	case analyzer.BackendGemini, analyzer.BackendOllama:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", analyzer.ErrUnknownBackend, c.Backend))
	}
	if c.TickStep < 1 {
		errs = append(errs, fmt.Errorf("tick step must be at least 1, got %d", c.TickStep))
	}
	if c.TickCap < 1 || c.TickCap > 99 {
		errs = append(errs, fmt.Errorf("tick cap must be between 1 and 99, got %d", c.TickCap))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Level parses LogLevel
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}

func (c *Config) Analyzer() analyzer.Config {
	return analyzer.Config{
		Backend:       c.Backend,
		Endpoint:      c.Endpoint,
		APIKey:        c.APIKey,
		Model:         c.Model,
		Timeout:       c.Timeout,
		RatePerMinute: c.RatePerMinute,
		OllamaHost:    c.OllamaHost,
		OllamaPort:    c.OllamaPort,
	}
}

func (c *Config) Extractor() extractor.Options {
	return extractor.Options{
		Frames:       c.Frames,
		MaxDimension: c.MaxDimension,
		Workers:      c.Workers,
	}
}

func (c *Config) Pipeline() pipeline.Options {
	return pipeline.Options{
		TickInterval: c.TickInterval,
		TickStep:     c.TickStep,
		TickCap:      c.TickCap,
	}
}
