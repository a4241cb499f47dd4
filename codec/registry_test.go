package codec

import (
	"bytes"
	"errors"
	"testing"
)

type fakeDir struct {
	buf *bytes.Buffer
}

func (d fakeDir) CreateOutput(name string) (Output, error) {
	return fakeOutput{d.buf}, nil
}

type fakeOutput struct {
	buf *bytes.Buffer
}

func (o fakeOutput) Write(p []byte) (int, error) { return o.buf.Write(p) }
func (o fakeOutput) Close() error                { return nil }
func (o fakeOutput) Sync() error                 { return nil }

func TestLookupUnregisteredNameFails(t *testing.T) {
	if _, err := Lookup("NoSuchCodec"); err == nil {
		t.Fatal("expected Lookup of an unregistered name to fail")
	}
}

func TestRegisterAndLookupRoundTrip(t *testing.T) {
	Register("FakeCodec", func() SidecarWriter { return legacyCodec{} })
	w, err := Lookup("FakeCodec")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if w == nil {
		t.Fatal("Lookup returned a nil writer")
	}
}

func TestNamesIncludesLegacy(t *testing.T) {
	found := false
	for _, name := range Names() {
		if name == LegacyName {
			found = true
		}
	}
	if !found {
		t.Fatalf("Names() = %v, want it to include %q (registered at init)", Names(), LegacyName)
	}
}

func TestLegacyCodecWritesExpectedFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	w, err := Lookup(LegacyName)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	info := SegmentInfo{
		Name:     "_a",
		DocCount: 10,
		DelGen:   -1,
		DelCount: 0,
	}
	if err := w.WriteSidecar(fakeDir{&buf}, info); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected WriteSidecar to produce a non-empty payload")
	}

	name, err := readStr(&buf)
	if err != nil {
		t.Fatalf("readStr: %v", err)
	}
	if name != "_a" {
		t.Fatalf("first field = %q, want segment name _a", name)
	}
}

func readStr(buf *bytes.Buffer) (string, error) {
	lenBuf := make([]byte, 4)
	if _, err := buf.Read(lenBuf); err != nil {
		return "", err
	}
	n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	if n < 0 || n > buf.Len() {
		return "", errors.New("bad string length")
	}
	strBuf := make([]byte, n)
	if _, err := buf.Read(strBuf); err != nil {
		return "", err
	}
	return string(strBuf), nil
}
