package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Backlog       int    `toml:"backlog"`
	Capacity      int    `toml:"capacity"`
	Cooldown      string `toml:"cooldown"`
	ChunkSize     int    `toml:"chunk_size"`
	BuildCommand  string `toml:"build_command"`
	ArtifactBase  string `toml:"artifact"`
	SourcePath    string `toml:"source"`
	CompanionPath string `toml:"companion"`
	WorkDir       string `toml:"workdir"`
	Watch         *bool  `toml:"watch"`
	Digest        *bool  `toml:"digest"`
	LogLevel      string `toml:"log_level"`
	LogJSON       *bool  `toml:"log_json"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.cosched/config.toml, or "" without a home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".cosched", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", fc.Host, &cfg.Host)
	s.setString("build-command", fc.BuildCommand, &cfg.BuildCommand)
	s.setString("artifact", fc.ArtifactBase, &cfg.ArtifactBase)
	s.setString("source", fc.SourcePath, &cfg.SourcePath)
	s.setString("companion", fc.CompanionPath, &cfg.CompanionPath)
	s.setString("workdir", fc.WorkDir, &cfg.WorkDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("backlog", fc.Backlog, &cfg.Backlog)
	s.setInt("capacity", fc.Capacity, &cfg.Capacity)
	s.setInt("chunk-size", fc.ChunkSize, &cfg.ChunkSize)

	if err := s.setDuration("cooldown", fc.Cooldown, &cfg.Cooldown); err != nil {
		return err
	}

	s.setBool("watch", fc.Watch, &cfg.Watch)
	s.setBool("digest", fc.Digest, &cfg.Digest)
	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
