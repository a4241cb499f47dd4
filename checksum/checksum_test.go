package checksum

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(&buf)

	payload := []byte("segments_1 manifest body, framed like any other record")
	if _, err := cw.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := cw.Written(); got != int64(len(payload)) {
		t.Fatalf("Written() = %d, want %d", got, len(payload))
	}
	if err := cw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	cr := NewReader(&buf)
	got := make([]byte, len(payload))
	if _, err := cr.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Read = %q, want %q", got, payload)
	}
	if err := cr.ReadChecksum(); err != nil {
		t.Fatalf("ReadChecksum: %v", err)
	}
}

func TestReaderDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(&buf)
	if _, err := cw.Write([]byte("intact payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	corrupted := buf.Bytes()
	corrupted[0] ^= 0xFF // flip a payload bit without touching the trailer

	cr := NewReader(bytes.NewReader(corrupted))
	got := make([]byte, len("intact payload"))
	if _, err := cr.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := cr.ReadChecksum(); !errors.Is(err, ErrMismatch) {
		t.Fatalf("ReadChecksum = %v, want %v", err, ErrMismatch)
	}
}

func TestReaderDetectsTruncation(t *testing.T) {
	var buf bytes.Buffer
	cw := NewWriter(&buf)
	_, _ = cw.Write([]byte("payload"))
	_ = cw.Finish()

	truncated := buf.Bytes()[:buf.Len()-3]
	cr := NewReader(bytes.NewReader(truncated))
	got := make([]byte, len("payload"))
	_, _ = cr.Read(got)
	if err := cr.ReadChecksum(); err == nil {
		t.Fatal("expected an error reading a truncated checksum trailer")
	}
}
