package codec

import (
	"encoding/binary"
	"fmt"
)

// LegacyName is the codec name stamped on every descriptor parsed by the
// legacy manifest reader, and the name looked up for the one-time
// upgrade write path.
const LegacyName = "Legacy3x"

func init() {
	Register(LegacyName, func() SidecarWriter { return &legacyCodec{} })
}

// legacyCodec writes the one-time-upgrade ".si" sidecar layout named in
// spec.md §6: segment name, doc count, del gen, optional doc-store
// triple, norms descriptor, compound-file flag, del count, diagnostics
// map, has-prox flag, has-vectors flag. This is intentionally lossy —
// per spec.md §9, legacy descriptors are never round-tripped back
// through the current format; the upgrade is one-way.
type legacyCodec struct{}

func (legacyCodec) WriteSidecar(dir Directory, info SegmentInfo) error {
	out, err := dir.CreateOutput(info.Name + ".si")
	if err != nil {
		return fmt.Errorf("codec: create legacy sidecar: %w", err)
	}

	if err := writeLegacyPayload(out, info); err != nil {
		_ = out.Close()
		return err
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("codec: sync legacy sidecar: %w", err)
	}
	return out.Close()
}

func writeLegacyPayload(out Output, info SegmentInfo) error {
	if err := writeStr(out, info.Name); err != nil {
		return err
	}
	if err := writeI32(out, int32(info.DocCount)); err != nil {
		return err
	}
	if err := writeI64(out, info.DelGen); err != nil {
		return err
	}

	hasDocStore := info.DocStoreSegment != ""
	if err := writeBool(out, hasDocStore); err != nil {
		return err
	}
	if hasDocStore {
		if err := writeStr(out, info.DocStoreSegment); err != nil {
			return err
		}
		if err := writeBool(out, info.DocStoreIsCompoundFile); err != nil {
			return err
		}
		if err := writeI32(out, int32(info.DocStoreOffset)); err != nil {
			return err
		}
	}

	if err := writeNormGen(out, info.NormGen); err != nil {
		return err
	}

	// compound-file flag: legacy segments upgraded by this path are
	// never repacked into a compound file.
	if err := writeBool(out, false); err != nil {
		return err
	}

	if err := writeI32(out, int32(info.DelCount)); err != nil {
		return err
	}

	if err := writeDiagnostics(out, info.Diagnostics); err != nil {
		return err
	}

	if err := writeBool(out, info.HasProx); err != nil {
		return err
	}
	if err := writeBool(out, info.HasVectors); err != nil {
		return err
	}

	return nil
}

func writeI32(w Output, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func writeI64(w Output, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func writeStr(w Output, s string) error {
	if err := writeI32(w, int32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeBool(w Output, b bool) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func writeNormGen(w Output, normGen map[int]int64) error {
	if err := writeI32(w, int32(len(normGen))); err != nil {
		return err
	}
	for field, gen := range normGen {
		if err := writeI32(w, int32(field)); err != nil {
			return err
		}
		if err := writeI64(w, gen); err != nil {
			return err
		}
	}
	return nil
}

func writeDiagnostics(w Output, diag map[string]string) error {
	if err := writeI32(w, int32(len(diag))); err != nil {
		return err
	}
	for k, v := range diag {
		if err := writeStr(w, k); err != nil {
			return err
		}
		if err := writeStr(w, v); err != nil {
			return err
		}
	}
	return nil
}
