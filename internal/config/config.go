package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/parnlp/internal/adapter"
	"github.com/copyleftdev/parnlp/internal/derivcheck"
	"github.com/copyleftdev/parnlp/internal/logging"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Adapter struct {
		Mode           string `env:"PARNLP_MODE" envDefault:"partitioned"`
		CheckStructure bool   `env:"PARNLP_CHECK_STRUCTURE" envDefault:"true"`
	}
	Problems struct {
		Default     string  `env:"PARNLP_DEFAULT_PROBLEM" envDefault:"chain"`
		DefaultSize int     `env:"PARNLP_DEFAULT_SIZE" envDefault:"16"`
		MaxSize     int     `env:"PARNLP_MAX_SIZE" envDefault:"2048"`
		MaxProcs    int     `env:"PARNLP_MAX_PROCS" envDefault:"64"`
		FDTolerance float64 `env:"PARNLP_FD_TOLERANCE" envDefault:"1e-4"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch adapter.Mode(c.Adapter.Mode) {
	case adapter.ModePartitioned, adapter.ModeFull:
	default:
		return fmt.Errorf("PARNLP_MODE: unknown mode %q", c.Adapter.Mode)
	}
	if c.Problems.MaxSize < 1 {
		return fmt.Errorf("PARNLP_MAX_SIZE must be positive, got %d", c.Problems.MaxSize)
	}
	if c.Problems.DefaultSize > c.Problems.MaxSize {
		return fmt.Errorf("PARNLP_DEFAULT_SIZE %d exceeds PARNLP_MAX_SIZE %d", c.Problems.DefaultSize, c.Problems.MaxSize)
	}
	if c.Problems.MaxProcs < 1 {
		return fmt.Errorf("PARNLP_MAX_PROCS must be positive, got %d", c.Problems.MaxProcs)
	}
	if c.Problems.FDTolerance <= 0 {
		return fmt.Errorf("PARNLP_FD_TOLERANCE must be positive, got %g", c.Problems.FDTolerance)
	}
	return nil
}

// AdapterConfig returns the adapter settings.
func (c *Config) AdapterConfig() adapter.Config {
	return adapter.Config{
		Mode:           adapter.Mode(c.Adapter.Mode),
		CheckStructure: c.Adapter.CheckStructure,
	}
}

// CheckConfig returns the derivative checker settings.
func (c *Config) CheckConfig() derivcheck.Config {
	cc := derivcheck.DefaultConfig()
	cc.Tolerance = c.Problems.FDTolerance
	return cc
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() *logging.Config {
	return &logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
