package commit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/epokhe/segidx/fsdir"
)

const genSidecarName = "segments.gen"

// genFormatCurrent is the only format marker this reader/writer
// understands: the generation written twice, for torn-write detection.
const genFormatCurrent int32 = -2

const genSidecarLen = 4 + 8 + 8

// ErrGenFormatTooNew is returned by ReadGenSidecar when the sidecar's
// format marker is anything other than genFormatCurrent.
var ErrGenFormatTooNew = errors.New("commit: segments.gen format too new")

// writeGenSidecar best-effort refreshes the segments.gen hint to point
// at gen. Per spec.md §4.4's finish step, any failure here is swallowed
// rather than failing the commit: the sidecar is only a fallback hint,
// the directory listing is what's authoritative. A partial write is
// cleaned up so a later reader never parses a half-written hint as a
// disagreeing-generations torn write.
func writeGenSidecar(dir fsdir.Directory, gen int64) {
	out, err := dir.OverwriteOutput(genSidecarName)
	if err != nil {
		return
	}

	var buf [genSidecarLen]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(genFormatCurrent))
	binary.BigEndian.PutUint64(buf[4:12], uint64(gen))
	binary.BigEndian.PutUint64(buf[12:20], uint64(gen))

	if _, err := out.Write(buf[:]); err != nil {
		_ = out.Close()
		_ = dir.DeleteFile(genSidecarName)
		return
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = dir.DeleteFile(genSidecarName)
		return
	}
	_ = out.Close()
}

// ReadGenSidecar reads and parses segments.gen. ok is false whenever the
// hint must be treated as absent: the file is missing, short, or its two
// generation fields disagree (a torn write caught in the act). Callers
// such as discover.Finder treat a non-nil err the same as ok == false —
// the hint is advisory and its own consumers never fail just because it
// is unreadable — but a format marker other than genFormatCurrent is
// still reported distinctly, since silently ignoring it could mask a
// newer, incompatible writer sharing this directory.
func ReadGenSidecar(dir fsdir.Directory) (gen int64, ok bool, err error) {
	in, err := dir.OpenInput(genSidecarName)
	if err != nil {
		return 0, false, nil
	}
	defer in.Close() // nolint:errcheck

	var buf [genSidecarLen]byte
	if _, err := io.ReadFull(in, buf[:]); err != nil {
		return 0, false, nil
	}

	format := int32(binary.BigEndian.Uint32(buf[0:4]))
	if format != genFormatCurrent {
		return 0, false, fmt.Errorf("%w: marker %d", ErrGenFormatTooNew, format)
	}

	g1 := int64(binary.BigEndian.Uint64(buf[4:12]))
	g2 := int64(binary.BigEndian.Uint64(buf[12:20]))
	if g1 != g2 {
		return 0, false, nil
	}
	return g1, true, nil
}
