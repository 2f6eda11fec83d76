package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/cosched/internal/admission"
	"github.com/bft-labs/cosched/internal/app"
	"github.com/bft-labs/cosched/internal/domain"
	"github.com/bft-labs/cosched/internal/frame"
	"github.com/bft-labs/cosched/internal/listener"
)

// Config holds CLI configuration for the cosched server.
type Config struct {
	Host    string
	Port    int
	Backlog int

	Capacity  int
	Cooldown  time.Duration
	ChunkSize int

	BuildCommand  string
	ArtifactBase  string
	SourcePath    string
	CompanionPath string
	WorkDir       string

	Watch    bool
	Digest   bool
	LogLevel string
	LogJSON  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Port:          listener.DefaultPort,
		Backlog:       listener.DefaultBacklog,
		Capacity:      admission.DefaultCapacity,
		Cooldown:      app.DefaultCooldown,
		ChunkSize:     frame.DefaultChunkSize,
		BuildCommand:  "gcc sample_task.c -o {out}",
		ArtifactBase:  "sample_task",
		SourcePath:    "sample_task.c",
		CompanionPath: "data.txt",
		Watch:         true,
		LogLevel:      "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", domain.ErrInvalidConfig, c.Port)
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("%w: backlog must be positive", domain.ErrInvalidConfig)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", domain.ErrInvalidConfig)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must not be negative", domain.ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", domain.ErrInvalidConfig)
	}
	if c.BuildCommand == "" {
		return fmt.Errorf("%w: build command is required", domain.ErrInvalidConfig)
	}
	if c.ArtifactBase == "" {
		return fmt.Errorf("%w: artifact path is required", domain.ErrInvalidConfig)
	}
	if c.CompanionPath == "" {
		return fmt.Errorf("%w: companion path is required", domain.ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

// Level parses LogLevel; an empty level means info.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Listener returns the listening socket configuration.
func (c *Config) Listener() listener.Config {
	return listener.Config{Host: c.Host, Port: c.Port, Backlog: c.Backlog}
}

// configSetter applies configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if non-zero and flag not changed. Zero means the
// key was absent; negative values are kept so that Validate rejects them.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination.
// Values below floor are rejected rather than ignored.
func (s *configSetter) setIntFromString(flag, value string, floor int, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, flag, err)
	}
	if i < floor {
		return fmt.Errorf("%w: %s must be at least %d, got %d", domain.ErrInvalidConfig, flag, floor, i)
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
