// Package cosched serves a freshly built artifact and a companion file to
// every TCP peer, with at most a fixed number of handlers waiting to accept.
//
// Example usage:
//
//	cfg := cosched.DefaultConfig()
//	cfg.Port = 2048
//	cfg.BuildCommand = "cc task.c -o {out}"
//	if err := cosched.Run(context.Background(), cfg, nil); err != nil {
//	    log.Fatal(err)
//	}
package cosched

import (
	"context"
	"path/filepath"

	"github.com/bft-labs/cosched/internal/app"
	"github.com/bft-labs/cosched/internal/artifact"
	"github.com/bft-labs/cosched/internal/cliconfig"
	"github.com/bft-labs/cosched/internal/domain"
	"github.com/bft-labs/cosched/internal/listener"
	"github.com/bft-labs/cosched/internal/watch"
	"github.com/bft-labs/cosched/pkg/log"
)

// Config holds the server configuration.
// Use DefaultConfig() to get a Config with the stock defaults.
type Config = cliconfig.Config

// ErrFatal is wrapped by every error that stops a running server.
var ErrFatal = domain.ErrFatal

// DefaultConfig returns a Config with default values: port 1024, backlog 10,
// capacity 3, a 250s cooldown and gcc building sample_task.c.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Run validates cfg, binds the listener and serves until ctx is canceled or a
// fatal error occurs. A nil logger discards all output.
func Run(ctx context.Context, cfg Config, logger log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	ln, err := listener.Listen(cfg.Listener())
	if err != nil {
		return err
	}

	producer := &artifact.CommandProducer{
		Command: cfg.BuildCommand,
		Base:    cfg.ArtifactBase,
		Dir:     cfg.WorkDir,
		Logger:  logger,
	}
	companion := inDir(cfg.WorkDir, cfg.CompanionPath)

	srv := app.NewServer(app.Config{
		Capacity:      cfg.Capacity,
		Cooldown:      cfg.Cooldown,
		CompanionPath: companion,
		ChunkSize:     cfg.ChunkSize,
		Digest:        cfg.Digest,
	}, ln, producer, app.WithLogger(logger))

	if cfg.Watch {
		w, err := watch.New(watch.Config{
			Paths: []string{companion, inDir(cfg.WorkDir, cfg.SourcePath)},
		}, logger, nil)
		if err != nil {
			ln.Close()
			return err
		}
		if err := w.Start(ctx); err != nil {
			// the server does not depend on the watcher
			logger.Warn("input watcher disabled", log.Err(err))
		} else {
			defer w.Close()
		}
	}

	return srv.Run(ctx)
}

func inDir(dir, p string) string {
	if dir == "" || p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
