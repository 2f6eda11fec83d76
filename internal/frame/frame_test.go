package frame

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// recordingWriter keeps every Write call separately.
type recordingWriter struct {
	bytes.Buffer
	writes []int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, len(p))
	return w.Buffer.Write(p)
}

type failingWriter struct {
	allow int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n >= w.allow {
		return 0, errors.New("connection reset by peer")
	}
	w.n++
	return len(p), nil
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestEncodeHeader(t *testing.T) {
	tests := []struct {
		n    uint32
		want [HeaderSize]byte
	}{
		{0, [4]byte{0, 0, 0, 0}},
		{5, [4]byte{0, 0, 0, 5}},
		{1024, [4]byte{0, 0, 4, 0}},
		{0xDEADBEEF, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}
	for _, tt := range tests {
		if got := EncodeHeader(tt.n); got != tt.want {
			t.Errorf("EncodeHeader(%d) = %x, want %x", tt.n, got, tt.want)
		}
	}
}

func TestSendFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	sizes := []int{0, 1, 5, 1023, 1024, 1025, 4096, 10000}

	for _, size := range sizes {
		payload := pattern(size)
		path := writeFile(t, dir, "payload", payload)

		var w recordingWriter
		st, err := NewSender(1024).SendFile(&w, path)
		if err != nil {
			t.Fatalf("size %d: SendFile: %v", size, err)
		}
		if st.Size != int64(size) {
			t.Errorf("size %d: Stats.Size = %d", size, st.Size)
		}
		if w.Len() != HeaderSize+size {
			t.Errorf("size %d: wrote %d bytes, want %d", size, w.Len(), HeaderSize+size)
		}

		if w.writes[0] != HeaderSize {
			t.Errorf("size %d: first write = %d bytes, want header only", size, w.writes[0])
		}
		for i, n := range w.writes[1:] {
			if n > 1024 || n == 0 {
				t.Errorf("size %d: chunk %d has %d bytes", size, i, n)
			}
		}
		if st.Chunks != len(w.writes)-1 {
			t.Errorf("size %d: Stats.Chunks = %d, writes = %d", size, st.Chunks, len(w.writes)-1)
		}

		got, err := ReadFrame(&w.Buffer)
		if err != nil {
			t.Fatalf("size %d: ReadFrame: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
	}
}

func TestSendFile_TwoFramesInOrder(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, "sample_task", []byte("HELLO"))
	companion := writeFile(t, dir, "data.txt", []byte("HI\n"))

	var buf bytes.Buffer
	s := NewSender(0)
	if _, err := s.SendFile(&buf, artifact); err != nil {
		t.Fatalf("send artifact: %v", err)
	}
	if _, err := s.SendFile(&buf, companion); err != nil {
		t.Fatalf("send companion: %v", err)
	}

	want := []byte{0, 0, 0, 5, 'H', 'E', 'L', 'L', 'O', 0, 0, 0, 3, 'H', 'I', '\n'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wire = % x, want % x", buf.Bytes(), want)
	}

	r := NewReader(&buf)
	var first, second bytes.Buffer
	if _, err := r.Next(&first); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := r.Next(&second); err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if first.String() != "HELLO" || second.String() != "HI\n" {
		t.Errorf("frames = %q, %q", first.String(), second.String())
	}
	if _, err := r.Next(io.Discard); err != io.EOF {
		t.Errorf("third Next = %v, want io.EOF", err)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestSendFile_ChunkSize(t *testing.T) {
	path := writeFile(t, t.TempDir(), "f", pattern(10))

	var w recordingWriter
	st, err := NewSender(3).SendFile(&w, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	want := []int{4, 3, 3, 3, 1}
	if len(w.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", w.writes, want)
	}
	for i := range want {
		if w.writes[i] != want[i] {
			t.Errorf("writes[%d] = %d, want %d", i, w.writes[i], want[i])
		}
	}
	if st.Chunks != 4 {
		t.Errorf("Chunks = %d, want 4", st.Chunks)
	}
}

func TestSendFile_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewSender(0).SendFile(&buf, filepath.Join(t.TempDir(), "absent"))

	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FileError", err)
	}
	if fe.Op != "open" {
		t.Errorf("Op = %s, want open", fe.Op)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for a missing file", buf.Len())
	}
}

func TestSendFile_Directory(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewSender(0).SendFile(&buf, t.TempDir())

	var fe *FileError
	if !errors.As(err, &fe) || fe.Op != "stat" {
		t.Fatalf("err = %v, want stat *FileError", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for a directory", buf.Len())
	}
}

func TestSendFile_WriteError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "f", pattern(3000))

	tests := []struct {
		name        string
		allow       int
		wantWritten int64
	}{
		{"header fails", 0, 0},
		{"second chunk fails", 2, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSender(1024).SendFile(&failingWriter{allow: tt.allow}, path)
			var we *WriteError
			if !errors.As(err, &we) {
				t.Fatalf("err = %v, want *WriteError", err)
			}
			if we.Written != tt.wantWritten {
				t.Errorf("Written = %d, want %d", we.Written, tt.wantWritten)
			}
		})
	}
}

func TestSendFile_Digest(t *testing.T) {
	payload := pattern(2500)
	path := writeFile(t, t.TempDir(), "f", payload)

	st, err := NewSender(1024, WithDigest()).SendFile(io.Discard, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if st.Digest != Digest(payload) {
		t.Errorf("Digest = %s, want %s", st.Digest, Digest(payload))
	}

	plain, err := NewSender(1024).SendFile(io.Discard, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if plain.Digest != "" {
		t.Errorf("Digest = %q without WithDigest", plain.Digest)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want error
	}{
		{"empty stream", nil, io.EOF},
		{"short header", []byte{0, 0}, io.ErrUnexpectedEOF},
		{"short body", []byte{0, 0, 0, 5, 'H', 'E'}, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.wire))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReader_TruncatedBody(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0, 0, 4, 'a', 'b'}))
	n, err := r.Next(io.Discard)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Next() error = %v, want io.ErrUnexpectedEOF", err)
	}
	if n != 2 {
		t.Errorf("copied = %d, want 2", n)
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}
