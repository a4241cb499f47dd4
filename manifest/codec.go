// Package manifest implements the segments_N wire format: encoding and
// decoding a segset.Set to/from its on-disk binary representation,
// including the legacy-format read path and the one-time legacy .si
// sidecar upgrade performed on write.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/epokhe/segidx/checksum"
	"github.com/epokhe/segidx/codec"
	"github.com/epokhe/segidx/fsdir"
	"github.com/epokhe/segidx/segset"
)

// CodecMagic identifies the current-format manifest framing. A file
// whose leading 4 bytes differ from this is parsed by the legacy reader
// instead.
const CodecMagic uint32 = 0x3fd76c17

// Version40 is the only format version this codec writes.
const Version40 int32 = 0

// currentFormatVersion is stamped on every descriptor decoded from a
// current-format manifest, since the wire format carries no per-segment
// version string. It is safe to treat these as non-legacy: the one-time
// upgrade pass writes a legacy segment's .si sidecar before the first
// current-format manifest that references it is encoded, and a descriptor
// read by the legacy reader carries CodecName == codec.LegacyName, which
// IsLegacy honours regardless of Version.
const currentFormatVersion = "unknown"

// ErrCorruptManifest is returned for a checksum mismatch or any
// unexpected framing while reading a segments_N file.
var ErrCorruptManifest = errors.New("manifest: corrupt")

// ErrFormatTooNew is returned when a recognized file uses a newer format
// version than this codec understands.
var ErrFormatTooNew = errors.New("manifest: format too new")

// Codec reads and writes the segments_N manifest format for one
// directory.
type Codec struct {
	Dir fsdir.Directory
}

func New(dir fsdir.Directory) *Codec {
	return &Codec{Dir: dir}
}

// WriteResult reports the side effects of a successful Write, so that a
// caller orchestrating a two-phase commit (commit.Engine) can undo them
// on a later failure.
type WriteResult struct {
	// SidecarsWritten lists the .si files created by the legacy upgrade
	// pass during this write.
	SidecarsWritten []string
}

// Write serializes set to name via the Directory, performing the
// legacy-upgrade pass first. On any failure it deletes every sidecar it
// created during this attempt before returning the error; it does not
// delete name itself — that is the caller's responsibility (see
// commit.Engine.Prepare), since the caller owns the output stream's
// lifetime.
func (c *Codec) Write(out fsdir.Output, set *segset.Set) (*WriteResult, error) {
	result, err := c.runLegacyPass(set)
	if err != nil {
		return nil, err
	}

	if err := encode(out, set); err != nil {
		c.rollbackSidecars(result.SidecarsWritten)
		return nil, err
	}

	return result, nil
}

// EncodeBuffered performs the same legacy-upgrade pass as Write, then
// serializes set entirely in memory rather than against a Directory
// output stream. This is what commit.Engine.Prepare uses: the returned
// bytes are the exact content finish later writes and fsyncs, so the
// checksum is already finalized the moment Prepare returns, but nothing
// has reached the manifest file itself yet — until finish writes this
// payload, the file a concurrent reader would open is empty, which
// naturally fails the "pending commits look corrupt, not valid" rule
// spec.md §4.4 requires, with no separate checksum-patching step needed.
func (c *Codec) EncodeBuffered(set *segset.Set) ([]byte, *WriteResult, error) {
	result, err := c.runLegacyPass(set)
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := encode(&buf, set); err != nil {
		c.rollbackSidecars(result.SidecarsWritten)
		return nil, nil, err
	}

	return buf.Bytes(), result, nil
}

func (c *Codec) runLegacyPass(set *segset.Set) (*WriteResult, error) {
	result := &WriteResult{}

	for _, d := range set.Segments() {
		if !d.IsLegacy() {
			continue
		}
		sidecar := d.Name + ".si"
		exists, err := c.Dir.FileExists(sidecar)
		if err != nil {
			c.rollbackSidecars(result.SidecarsWritten)
			return nil, fmt.Errorf("check legacy sidecar %q: %w", sidecar, err)
		}
		if exists {
			continue
		}
		if err := writeLegacySidecar(c.Dir, d); err != nil {
			c.rollbackSidecars(result.SidecarsWritten)
			return nil, fmt.Errorf("write legacy sidecar %q: %w", sidecar, err)
		}
		result.SidecarsWritten = append(result.SidecarsWritten, sidecar)
	}

	return result, nil
}

func (c *Codec) rollbackSidecars(names []string) {
	for _, name := range names {
		_ = c.Dir.DeleteFile(name)
	}
}

// encode writes the framed current-format payload (magic, header,
// commit-version, counter, num_segments, per-segment entries, user
// data) followed by the trailing checksum, via checksum.Writer exactly
// as spec.md §4.2 frames it. w is a Directory output stream when called
// from Write, or an in-memory buffer when called from EncodeBuffered.
func encode(w io.Writer, set *segset.Set) error {
	bw := bufio.NewWriter(w)
	cw := checksum.NewWriter(bw)

	var hdr [4 + 4]byte
	binary.BigEndian.PutUint32(hdr[0:4], CodecMagic)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(Version40))
	if _, err := cw.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeInt64(cw, set.VersionNum); err != nil {
		return fmt.Errorf("write commit version: %w", err)
	}
	if err := writeInt32(cw, int32(set.Counter)); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}

	segs := set.Segments()
	if err := writeInt32(cw, int32(len(segs))); err != nil {
		return fmt.Errorf("write num_segments: %w", err)
	}
	for _, d := range segs {
		if err := d.Validate(); err != nil {
			return err
		}
		if err := writeString(cw, d.Name); err != nil {
			return fmt.Errorf("write segment name: %w", err)
		}
		if err := writeString(cw, d.CodecName); err != nil {
			return fmt.Errorf("write codec name: %w", err)
		}
		if err := writeInt64(cw, d.DelGen); err != nil {
			return fmt.Errorf("write del_gen: %w", err)
		}
		if err := writeInt32(cw, int32(d.DelCount)); err != nil {
			return fmt.Errorf("write del_count: %w", err)
		}
	}

	if err := writeStringMap(cw, set.UserData); err != nil {
		return fmt.Errorf("write user_data: %w", err)
	}

	if err := cw.Finish(); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}

	return bw.Flush()
}

// Read parses name via the Directory, dispatching to the legacy reader
// when the leading magic doesn't match CodecMagic. The set returned by
// either path has Generation and LastGeneration stamped from the
// generation the name itself encodes, per spec.md §3's "last_generation
// = generation of last successfully read/written manifest" — this is
// the only place that generation number is known, since neither wire
// format re-carries it in the payload.
func (c *Codec) Read(name string) (*segset.Set, error) {
	gen, err := segset.ParseGeneration(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}

	in, err := c.Dir.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close() // nolint:errcheck

	br := bufio.NewReader(in)
	cr := checksum.NewReader(br)

	var magicBuf [4]byte
	if _, err := io.ReadFull(cr, magicBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", ErrCorruptManifest, err)
	}
	magic := binary.BigEndian.Uint32(magicBuf[:])

	var set *segset.Set
	if magic != CodecMagic {
		set, err = readLegacy(magic, br, c.Dir, name)
	} else {
		set, err = decode(cr, c.Dir)
	}
	if err != nil {
		return nil, err
	}

	set.Generation = gen
	set.LastGeneration = gen
	return set, nil
}

func decode(cr *checksum.Reader, dir fsdir.Directory) (*segset.Set, error) {
	var verBuf [4]byte
	if _, err := io.ReadFull(cr, verBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read format version: %v", ErrCorruptManifest, err)
	}
	version := int32(binary.BigEndian.Uint32(verBuf[:]))
	if version > Version40 {
		return nil, fmt.Errorf("%w: version %d", ErrFormatTooNew, version)
	}

	set := segset.New()
	set.Format = version

	commitVersion, err := readInt64(cr)
	if err != nil {
		return nil, fmt.Errorf("%w: read commit version: %v", ErrCorruptManifest, err)
	}
	set.VersionNum = commitVersion

	counter, err := readInt32(cr)
	if err != nil {
		return nil, fmt.Errorf("%w: read counter: %v", ErrCorruptManifest, err)
	}
	set.Counter = int64(counter)

	numSegments, err := readInt32(cr)
	if err != nil {
		return nil, fmt.Errorf("%w: read num_segments: %v", ErrCorruptManifest, err)
	}
	if numSegments < 0 {
		return nil, fmt.Errorf("%w: negative num_segments %d", ErrCorruptManifest, numSegments)
	}

	for i := int32(0); i < numSegments; i++ {
		name, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("%w: read segment name: %v", ErrCorruptManifest, err)
		}
		codecName, err := readString(cr)
		if err != nil {
			return nil, fmt.Errorf("%w: read codec name: %v", ErrCorruptManifest, err)
		}
		delGen, err := readInt64(cr)
		if err != nil {
			return nil, fmt.Errorf("%w: read del_gen: %v", ErrCorruptManifest, err)
		}
		delCount, err := readInt32(cr)
		if err != nil {
			return nil, fmt.Errorf("%w: read del_count: %v", ErrCorruptManifest, err)
		}

		// doc_count is not carried by this format, so only the lower bound
		// of the del_count invariant can be checked here.
		if delCount < 0 {
			return nil, fmt.Errorf("%w: negative del_count %d for segment %q", ErrCorruptManifest, delCount, name)
		}
		d := segset.NewDescriptor(dirIdentity(dir), name, codecName, 0, delGen, int(delCount), currentFormatVersion)
		if err := set.Add(d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
	}

	userData, err := readStringMap(cr)
	if err != nil {
		return nil, fmt.Errorf("%w: read user_data: %v", ErrCorruptManifest, err)
	}
	set.UserData = userData

	if err := cr.ReadChecksum(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}

	return set, nil
}

// dirIdentity derives a stable per-directory identity string used only
// for the cross-directory-mix guard in segset.Set.Add, never for I/O.
func dirIdentity(dir fsdir.Directory) string {
	return fmt.Sprintf("%p", dir)
}
