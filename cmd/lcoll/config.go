package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/andreyvit/lcoll"
)

const (
	backendBolt   = "bolt"
	backendBadger = "badger"
)

type Config struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Verbose bool   `yaml:"verbose"`
}

func defaultConfig() Config {
	return Config{
		Backend: backendBolt,
		Path:    "lcoll.db",
	}
}

// loadConfig reads the YAML config file and then applies LCOLL_* overrides
// from the environment, falling back to the .env file. Missing files are
// fine; malformed ones are not.
func loadConfig(configPath, envPath string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
		if err == nil {
			err = yaml.Unmarshal(data, &cfg)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", configPath, err)
			}
		}
	}

	dotenv := map[string]string{}
	if envPath != "" {
		m, err := godotenv.Read(envPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%s: %w", envPath, err)
		}
		if err == nil {
			dotenv = m
		}
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	if v := lookup("LCOLL_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := lookup("LCOLL_PATH"); v != "" {
		cfg.Path = v
	}
	if v := lookup("LCOLL_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("LCOLL_VERBOSE: %w", err)
		}
		cfg.Verbose = b
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.Backend {
	case backendBolt, backendBadger:
	default:
		return fmt.Errorf("unknown backend %q (expected %s or %s)", cfg.Backend, backendBolt, backendBadger)
	}
	if cfg.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// openStore opens the configured store read-only.
func (cfg Config) openStore(logger *slog.Logger) (lcoll.Store, error) {
	switch cfg.Backend {
	case backendBadger:
		return lcoll.OpenBadger(lcoll.BadgerOptions{Path: cfg.Path, ReadOnly: true, Logger: logger})
	default:
		return lcoll.OpenBolt(cfg.Path, lcoll.BoltOptions{ReadOnly: true})
	}
}
