package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a build needs.
type Config struct {
	Inputs    []string `yaml:"inputs"`
	DB        string   `yaml:"db"`
	Workers   int      `yaml:"workers"`
	BatchSize int      `yaml:"batch_size"`
	Annotate  bool     `yaml:"annotate"`
	Output    Output   `yaml:"output"`
	Engine    Engine   `yaml:"engine"`
}

// Output names optional export files. Empty means not written.
type Output struct {
	CatalogJSON string `yaml:"catalog_json"`
	TreeJSON    string `yaml:"tree_json"`
}

// Engine configures optional position evaluation. An empty Path disables it.
type Engine struct {
	Path    string        `yaml:"path"`
	Depth   int           `yaml:"depth"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		DB:        "openings.db",
		Workers:   4,
		BatchSize: 50,
		Engine: Engine{
			Depth:   12,
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("no input files configured")
	}
	if c.DB == "" {
		return errors.New("db path is empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Engine.Path != "" {
		if !c.Annotate {
			return errors.New("engine evaluation requires annotate")
		}
		if c.Engine.Depth <= 0 {
			return fmt.Errorf("engine depth must be positive, got %d", c.Engine.Depth)
		}
		if c.Engine.Timeout < 0 {
			return fmt.Errorf("engine timeout must not be negative, got %s", c.Engine.Timeout)
		}
	}
	return nil
}
