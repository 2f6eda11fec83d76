// Package artifact builds the per-connection file sent as the first frame.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bft-labs/cosched/pkg/log"
)

// OutputPlaceholder is replaced by the artifact path in build commands.
const OutputPlaceholder = "{out}"

// EnvArtifact carries the artifact path into the build command's environment.
const EnvArtifact = "COSCHED_ARTIFACT"

// Producer builds an artifact for one connection. The caller supplies an
// id that is unique among concurrently running builds; the returned path is
// derived from it so that concurrent builds never share an output file.
type Producer interface {
	Produce(ctx context.Context, id uint64) (path string, err error)
}

// PathFor returns the artifact path for connection id.
func PathFor(base string, id uint64) string {
	return base + "." + strconv.FormatUint(id, 10)
}

// CommandProducer runs a shell command that writes the artifact.
type CommandProducer struct {
	// Command is run with /bin/sh -c after OutputPlaceholder substitution.
	Command string
	// Base is the artifact path prefix; the connection id is appended.
	Base string
	// Dir is the working directory of the command; empty means the current one.
	// A relative Base is resolved against it.
	Dir string

	Logger log.Logger
}

// Produce runs the build. A non-zero exit status is returned as an error
// together with the path the artifact would have been written to.
func (p *CommandProducer) Produce(ctx context.Context, id uint64) (string, error) {
	out := PathFor(p.Base, id)
	if p.Dir != "" && !filepath.IsAbs(out) {
		abs, err := filepath.Abs(filepath.Join(p.Dir, out))
		if err != nil {
			return out, fmt.Errorf("resolve artifact path: %w", err)
		}
		out = abs
	}
	script := strings.ReplaceAll(p.Command, OutputPlaceholder, shellQuote(out))

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), EnvArtifact+"="+out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger := p.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	logger.Debug("building artifact", log.String("command", script), log.String("artifact", out))

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return out, fmt.Errorf("build %s: %w: %s", out, err, msg)
		}
		return out, fmt.Errorf("build %s: %w", out, err)
	}
	return out, nil
}

// FuncProducer adapts a function to Producer.
type FuncProducer func(ctx context.Context, id uint64) (string, error)

// Produce calls f.
func (f FuncProducer) Produce(ctx context.Context, id uint64) (string, error) {
	return f(ctx, id)
}

// Remove deletes the artifact at path. A missing file is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
