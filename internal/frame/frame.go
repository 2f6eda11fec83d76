// Package frame implements the length-prefixed framing used on the wire.
//
// A frame is a 4-byte big-endian unsigned length followed by exactly that
// many payload bytes. There is no magic number, version or checksum.
// Receivers must read by byte count: a payload may arrive split across any
// number of writes.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the length of the frame header in bytes.
	HeaderSize = 4

	// MaxPayload is the largest payload a header can describe.
	MaxPayload = math.MaxUint32

	// DefaultChunkSize bounds the size of each payload write.
	DefaultChunkSize = 1024
)

// ErrTooLarge is returned for payloads that do not fit in a header.
var ErrTooLarge = errors.New("frame: payload exceeds 4 GiB")

// EncodeHeader returns the header announcing a payload of n bytes.
func EncodeHeader(n uint32) [HeaderSize]byte {
	var h [HeaderSize]byte
	binary.BigEndian.PutUint32(h[:], n)
	return h
}

// ReadHeader reads exactly HeaderSize bytes from r and decodes them.
// io.EOF is returned only if r was at EOF before the first byte.
func ReadHeader(r io.Reader) (uint32, error) {
	var h [HeaderSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(h[:]), nil
}

// ReadFrame reads one whole frame into memory.
func ReadFrame(r io.Reader) ([]byte, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame body (%d bytes): %w", n, err)
	}
	return buf, nil
}

// Reader decodes consecutive frames from a stream without buffering payloads.
type Reader struct {
	r     io.Reader
	count int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next copies the payload of the next frame into w and returns its length.
// It returns io.EOF when the stream ends cleanly between frames.
func (fr *Reader) Next(w io.Writer) (int64, error) {
	n, err := ReadHeader(fr.r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("frame %d: truncated header: %w", fr.count, err)
		}
		return 0, err
	}
	copied, err := io.CopyN(w, fr.r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return copied, fmt.Errorf("frame %d: read body (%d of %d bytes): %w", fr.count, copied, n, err)
	}
	fr.count++
	return copied, nil
}

// Count returns the number of complete frames read so far.
func (fr *Reader) Count() int {
	return fr.count
}
