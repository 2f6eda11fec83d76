package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "COSCHED_"

// ApplyEnvConfig applies configuration from environment variables (COSCHED_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", os.Getenv(EnvPrefix+"HOST"), &cfg.Host)
	s.setString("build-command", os.Getenv(EnvPrefix+"BUILD_COMMAND"), &cfg.BuildCommand)
	s.setString("artifact", os.Getenv(EnvPrefix+"ARTIFACT_BASE"), &cfg.ArtifactBase)
	s.setString("source", os.Getenv(EnvPrefix+"SOURCE"), &cfg.SourcePath)
	s.setString("companion", os.Getenv(EnvPrefix+"COMPANION"), &cfg.CompanionPath)
	s.setString("workdir", os.Getenv(EnvPrefix+"WORKDIR"), &cfg.WorkDir)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("port", os.Getenv(EnvPrefix+"PORT"), 0, &cfg.Port); err != nil {
		return err
	}
	if err := s.setIntFromString("backlog", os.Getenv(EnvPrefix+"BACKLOG"), 1, &cfg.Backlog); err != nil {
		return err
	}
	if err := s.setIntFromString("capacity", os.Getenv(EnvPrefix+"CAPACITY"), 1, &cfg.Capacity); err != nil {
		return err
	}
	if err := s.setIntFromString("chunk-size", os.Getenv(EnvPrefix+"CHUNK_SIZE"), 1, &cfg.ChunkSize); err != nil {
		return err
	}

	if err := s.setDuration("cooldown", os.Getenv(EnvPrefix+"COOLDOWN"), &cfg.Cooldown); err != nil {
		return err
	}

	s.setBoolFromString("watch", os.Getenv(EnvPrefix+"WATCH"), &cfg.Watch)
	s.setBoolFromString("digest", os.Getenv(EnvPrefix+"DIGEST"), &cfg.Digest)
	s.setBoolFromString("log-json", os.Getenv(EnvPrefix+"LOG_JSON"), &cfg.LogJSON)

	return nil
}
