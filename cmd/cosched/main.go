package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/cosched"
	"github.com/bft-labs/cosched/internal/cliconfig"
	"github.com/bft-labs/cosched/pkg/log"
)

const longHelp = `Serve a freshly built artifact and a companion file to every TCP peer.

Each connection receives two length-prefixed frames: the artifact produced by
the build command for that connection, then the companion file. At most
--capacity handlers wait for connections at a time; a handler that has served
its peer lingers for --cooldown before exiting.

Frame format: 4-byte big-endian payload length followed by the payload.`

var exampleUsage = strings.TrimSpace(`
  cosched
  cosched --port 2048 --capacity 5 --cooldown 30s
  cosched --build-command 'cc -O2 task.c -o {out}' --companion payload.bin
  cosched --config $HOME/.cosched/config.toml --log-level debug
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the root command and maps a failure to exit status 1.
func run(args []string, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		l := log.NewConsoleLogger(stderr, zerolog.InfoLevel)
		l.Error().Err(err).Msg("cosched")
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "cosched",
		Short:         "Serve a freshly built artifact and a companion file over TCP",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := loadConfig(&cfg, cfgPath, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			zl, err := newLogger(cmd.ErrOrStderr(), &cfg)
			if err != nil {
				return err
			}
			zl.Info().Interface("config", cfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cosched.Run(ctx, cfg, log.NewZerologAdapterWithLogger(zl))
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.cosched/config.toml)")
	f.StringVar(&cfg.Host, "host", cfg.Host, "IPv4 address to bind (default: all interfaces)")
	f.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	f.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listen backlog")
	f.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "maximum handlers waiting for a connection")
	f.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "idle period after each served connection")
	f.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "maximum bytes per payload write")
	f.StringVar(&cfg.BuildCommand, "build-command", cfg.BuildCommand, "shell command producing the artifact; {out} is replaced by the output path")
	f.StringVar(&cfg.ArtifactBase, "artifact", cfg.ArtifactBase, "artifact path prefix; the connection id is appended")
	f.StringVar(&cfg.SourcePath, "source", cfg.SourcePath, "build source watched for changes")
	f.StringVar(&cfg.CompanionPath, "companion", cfg.CompanionPath, "file sent as the second frame")
	f.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "directory for the build and relative paths")
	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "log changes to the companion file and build source")
	f.BoolVar(&cfg.Digest, "digest", cfg.Digest, "log a BLAKE3 digest of every frame")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON logs instead of console output")

	return root
}

// loadConfig layers the config file and COSCHED_* variables under the flags.
func loadConfig(cfg *cliconfig.Config, cfgPath string, changed map[string]bool) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgPath != "" && !cliconfig.FileExists(cfgPath) {
		return fmt.Errorf("config file %s not found", cfgPath)
	}

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

func newLogger(out io.Writer, cfg *cliconfig.Config) (zerolog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.LogJSON {
		return log.NewLogger(out, lvl), nil
	}
	return log.NewConsoleLogger(out, lvl), nil
}
