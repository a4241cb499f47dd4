// Package checksum provides a streaming xxh3-backed checksum wrapper for
// the manifest wire format: every byte passed through is folded into a
// running 64-bit checksum, which is written (on the write side) or
// verified (on the read side) as a trailing big-endian value.
//
// The teacher (core/segment.go) computes xxh3.Hash over a whole in-memory
// record in one shot because each KV record is small and fully buffered
// before being written. A segments_N manifest is framed incrementally and
// its total length isn't known up front, so here we use xxh3's streaming
// Hasher instead of the one-shot Hash function — same algorithm, same
// trailing-checksum idea, generalized to an open-ended stream.
package checksum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// ErrMismatch is returned by Reader.ReadChecksum when the trailing checksum
// does not match the bytes actually read.
var ErrMismatch = errors.New("checksum: mismatch")

const Len = 8 // bytes occupied by the trailing checksum field

// Writer wraps an io.Writer, folding every written byte into a running
// xxh3 checksum. Finish writes the trailing checksum and does not close
// the underlying writer.
type Writer struct {
	w    io.Writer
	hash *xxh3.Hasher
	n    int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, hash: xxh3.New()}
}

func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		// Hasher.Write never fails; feed it only the bytes actually
		// accepted by the underlying writer.
		_, _ = cw.hash.Write(p[:n])
		cw.n += int64(n)
	}
	return n, err
}

// Written returns the number of payload bytes written so far (excluding
// the trailing checksum itself).
func (cw *Writer) Written() int64 { return cw.n }

// Finish emits the running checksum as a trailing 8-byte big-endian
// value. Callers should flush/close the underlying writer afterward.
func (cw *Writer) Finish() error {
	var buf [Len]byte
	binary.BigEndian.PutUint64(buf[:], cw.hash.Sum64())
	_, err := cw.w.Write(buf[:])
	return err
}

// Reader wraps an io.Reader, folding every byte read into a running xxh3
// checksum. After the caller has read the full payload, ReadChecksum
// reads the trailing 8-byte value and compares it against the running
// checksum.
type Reader struct {
	r    io.Reader
	hash *xxh3.Hasher
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, hash: xxh3.New()}
}

func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		_, _ = cr.hash.Write(p[:n])
	}
	return n, err
}

// ReadChecksum reads the trailing checksum field from the underlying
// reader and compares it against everything read so far via Read.
// A mismatch returns ErrMismatch.
func (cr *Reader) ReadChecksum() error {
	var buf [Len]byte
	if _, err := io.ReadFull(cr.r, buf[:]); err != nil {
		return fmt.Errorf("read trailing checksum: %w", err)
	}
	want := binary.BigEndian.Uint64(buf[:])
	got := cr.hash.Sum64()
	if want != got {
		return fmt.Errorf("%w: expected %x, got %x", ErrMismatch, want, got)
	}
	return nil
}
