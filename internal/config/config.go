package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
)

var validate = validator.New()

type Config struct {
	Log          logger.Config       `yaml:"log"`
	Server       ServerConfig        `yaml:"server"`
	Postgres     PostgresConfig      `yaml:"postgres"`
	Simulation   SimulationConfig    `yaml:"simulation"`
	Competitions []CompetitionConfig `yaml:"competitions" validate:"dive"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"2m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" validate:"required"`
}

type SimulationConfig struct {
	Runs          int    `yaml:"runs" default:"250" validate:"min=1"`
	Workers       int    `yaml:"workers" default:"4" validate:"min=1"`
	Seed          uint64 `yaml:"seed"`
	Predictor     string `yaml:"predictor" default:"strength" validate:"oneof=strength frequency"`
	RetentionDays int    `yaml:"retention_days" default:"3653" validate:"min=1"`
}

// CompetitionConfig adds or overrides the format of a competition.
type CompetitionConfig struct {
	Region  string `yaml:"region" validate:"required"`
	Name    string `yaml:"name" validate:"required"`
	Teams   int    `yaml:"teams" validate:"min=2"`
	Matches int    `yaml:"matches" validate:"min=1"`
	Cup     bool   `yaml:"cup"`
}

// Load reads and parses a YAML configuration file, filling defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set config defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FORECAST_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("FORECAST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	seen := make(map[league.Competition]bool, len(c.Competitions))
	for _, cc := range c.Competitions {
		comp := league.Competition{Region: cc.Region, Name: cc.Name}
		if seen[comp] {
			return fmt.Errorf("competition %s configured twice", comp)
		}
		seen[comp] = true
	}
	return nil
}

// Formats returns the built-in competition formats with the configured
// ones applied on top.
func (c *Config) Formats() league.Formats {
	formats := league.DefaultFormats()
	for _, cc := range c.Competitions {
		formats[league.Competition{Region: cc.Region, Name: cc.Name}] = league.Format{
			Teams:   cc.Teams,
			Matches: cc.Matches,
			Cup:     cc.Cup,
		}
	}
	return formats
}
