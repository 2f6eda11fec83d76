package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/bft-labs/cosched/pkg/log"
)

// FileError reports a failure reading the local file being framed. Nothing
// has been written for the frame when the failure happens during open or stat.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("frame: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// WriteError reports a failure writing to the peer.
type WriteError struct {
	Path    string
	Written int64
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("frame: write %s after %d bytes: %v", e.Path, e.Written, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Stats describes one sent frame.
type Stats struct {
	Path   string
	Size   int64
	Chunks int
	// Digest is the hex BLAKE3-256 of the payload, empty unless WithDigest was set.
	Digest string
}

// Sender writes files as single frames in bounded chunks.
type Sender struct {
	chunkSize int
	digest    bool
	logger    log.Logger
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithDigest makes the sender hash every payload it writes.
func WithDigest() SenderOption {
	return func(s *Sender) { s.digest = true }
}

// WithLogger sets the logger used for per-chunk traces.
func WithLogger(l log.Logger) SenderOption {
	return func(s *Sender) { s.logger = l }
}

// NewSender creates a Sender writing at most chunkSize payload bytes per write.
func NewSender(chunkSize int, opts ...SenderOption) *Sender {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	s := &Sender{chunkSize: chunkSize, logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkSize returns the maximum payload bytes per write.
func (s *Sender) ChunkSize() int {
	return s.chunkSize
}

// SendFile writes the file at path to w as one frame.
func (s *Sender) SendFile(w io.Writer, path string) (Stats, error) {
	st := Stats{Path: path}

	f, err := os.Open(path)
	if err != nil {
		return st, &FileError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return st, &FileError{Path: path, Op: "stat", Err: err}
	}
	if info.IsDir() {
		return st, &FileError{Path: path, Op: "stat", Err: errors.New("is a directory")}
	}
	if info.Size() > MaxPayload {
		return st, &FileError{Path: path, Op: "stat", Err: ErrTooLarge}
	}
	size := info.Size()
	s.logger.Debug("frame size", log.String("path", path), log.Int64("size", size))

	header := EncodeHeader(uint32(size))
	if _, err := w.Write(header[:]); err != nil {
		return st, &WriteError{Path: path, Err: err}
	}

	var h hash.Hash
	if s.digest {
		h = blake3.New()
	}

	buf := make([]byte, s.chunkSize)
	var sent int64
	for sent < size {
		want := int64(len(buf))
		if rem := size - sent; rem < want {
			want = rem
		}
		n, rerr := io.ReadFull(f, buf[:want])
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return st, &WriteError{Path: path, Written: sent, Err: err}
			}
			if h != nil {
				h.Write(buf[:n])
			}
			sent += int64(n)
			st.Chunks++
			s.logger.Debug("chunk sent",
				log.String("path", path),
				log.Int("part", st.Chunks-1),
				log.Int("bytes", n),
				log.Int64("pos", sent),
			)
		}
		if rerr != nil {
			// the header already promised size bytes; a shrinking file cannot be framed
			return st, &FileError{Path: path, Op: "read", Err: fmt.Errorf("short read at %d of %d bytes: %w", sent, size, rerr)}
		}
	}

	st.Size = sent
	if h != nil {
		st.Digest = hex.EncodeToString(h.Sum(nil))
	}
	return st, nil
}

// Digest returns the hex BLAKE3-256 of payload, as reported in Stats.Digest.
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
