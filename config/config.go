// Package config reads the shadowmem settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sarchlab/shadowmem/shadow"
)

// Config holds the settings shared by the shadowmem tools.
type Config struct {
	RangeScan   string `env:"SHADOW_RANGE_SCAN" envDefault:"full"`
	LogLevel    string `env:"SHADOW_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"SHADOW_LOG_FORMAT" envDefault:"console"`
	MonitorPort int    `env:"SHADOW_MONITOR_PORT" envDefault:"0"`
	RecordDB    string `env:"SHADOW_RECORD_DB"`
}

// Load reads the given .env files, if they exist, and then parses the
// environment. Variables already set in the environment win over the files.
// Without file names, ".env" in the working directory is tried.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}

	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RangeScanMode returns the parsed SHADOW_RANGE_SCAN value.
func (c Config) RangeScanMode() (shadow.RangeScanMode, error) {
	return shadow.ParseRangeScanMode(c.RangeScan)
}

func (c Config) validate() error {
	if _, err := c.RangeScanMode(); err != nil {
		return err
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("monitor port %d out of range", c.MonitorPort)
	}

	return nil
}
