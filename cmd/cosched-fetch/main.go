package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"github.com/bft-labs/cosched/internal/frame"
	"github.com/bft-labs/cosched/pkg/log"
)

type fetchOptions struct {
	addr      string
	outDir    string
	artifact  string
	companion string
	timeout   time.Duration
}

// received describes one frame written to disk.
type received struct {
	Path   string
	Size   int64
	Digest string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		l := log.NewConsoleLogger(stderr, zerolog.InfoLevel)
		l.Error().Err(err).Msg("cosched-fetch")
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	opts := fetchOptions{
		addr:      "127.0.0.1:1024",
		artifact:  "sample_task",
		companion: "data.txt",
		timeout:   time.Minute,
	}

	root := &cobra.Command{
		Use:           "cosched-fetch",
		Short:         "Receive the artifact and companion file from a cosched server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			files, err := fetch(ctx, opts)
			for i, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "frame %d: %s %d bytes blake3:%s\n", i+1, f.Path, f.Size, f.Digest)
			}
			return err
		},
	}

	f := root.Flags()
	f.StringVar(&opts.addr, "addr", opts.addr, "server address")
	f.StringVar(&opts.outDir, "out-dir", opts.outDir, "directory for received files (default: current directory)")
	f.StringVar(&opts.artifact, "artifact", opts.artifact, "file name for the first frame")
	f.StringVar(&opts.companion, "companion", opts.companion, "file name for the second frame")
	f.DurationVar(&opts.timeout, "timeout", opts.timeout, "overall deadline for the transfer")

	return root
}

// fetch reads both frames of one connection into files under opts.outDir.
func fetch(ctx context.Context, opts fetchOptions) ([]received, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	fr := frame.NewReader(conn)
	targets := []struct {
		name string
		mode os.FileMode
	}{
		{opts.artifact, 0o755},
		{opts.companion, 0o644},
	}

	var out []received
	for _, t := range targets {
		path := filepath.Join(opts.outDir, t.name)
		r, err := receive(fr, path, t.mode)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, fmt.Errorf("connection closed after %d of %d frames", fr.Count(), len(targets))
			}
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func receive(fr *frame.Reader, path string, mode os.FileMode) (received, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return received{}, err
	}

	h := blake3.New()
	n, err := fr.Next(io.MultiWriter(f, h))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return received{}, err
	}
	return received{Path: path, Size: n, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}
