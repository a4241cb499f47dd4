package manifest

import (
	"bufio"
	"fmt"

	"github.com/epokhe/segidx/codec"
	"github.com/epokhe/segidx/fsdir"
	"github.com/epokhe/segidx/segset"
)

// Legacy format markers. Unlike the current format, legacy manifests
// were never checksummed, so readLegacy does not wrap its reads in a
// checksum.Reader.
const (
	legacyFormatWithDelGen int32 = -1
	legacyFormatBasic      int32 = -2
)

// readLegacy parses a pre-4.0 manifest. magic is actually the format
// marker in this layout (a negative int32); br is already positioned
// just past those 4 bytes.
func readLegacy(magic uint32, br *bufio.Reader, dir fsdir.Directory, name string) (*segset.Set, error) {
	format := int32(magic)
	if format != legacyFormatWithDelGen && format != legacyFormatBasic {
		return nil, fmt.Errorf("%w: unrecognized format marker %d in %q", ErrCorruptManifest, format, name)
	}

	set := segset.New()
	set.Format = format

	version, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("%w: read legacy version: %v", ErrCorruptManifest, err)
	}

	counter, err := readInt32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: read legacy counter: %v", ErrCorruptManifest, err)
	}
	set.Counter = int64(counter)

	numSegments, err := readInt32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: read legacy num_segments: %v", ErrCorruptManifest, err)
	}
	if numSegments < 0 {
		return nil, fmt.Errorf("%w: negative legacy num_segments %d", ErrCorruptManifest, numSegments)
	}

	dirID := dirIdentity(dir)
	for i := int32(0); i < numSegments; i++ {
		segName, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: read legacy segment name: %v", ErrCorruptManifest, err)
		}
		docCount, err := readInt32(br)
		if err != nil {
			return nil, fmt.Errorf("%w: read legacy doc_count: %v", ErrCorruptManifest, err)
		}

		delGen := int64(-1)
		delCount := int32(0)
		if format == legacyFormatWithDelGen {
			delGen, err = readInt64(br)
			if err != nil {
				return nil, fmt.Errorf("%w: read legacy del_gen: %v", ErrCorruptManifest, err)
			}
			delCount, err = readInt32(br)
			if err != nil {
				return nil, fmt.Errorf("%w: read legacy del_count: %v", ErrCorruptManifest, err)
			}
		}

		d := segset.NewDescriptor(dirID, segName, codec.LegacyName, int(docCount), delGen, int(delCount), version)
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
		if err := set.Add(d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
		}
	}

	return set, nil
}

// writeLegacySidecar dispatches to the registered legacy codec to
// persist the one-time-upgrade ".si" sidecar for d.
func writeLegacySidecar(dir fsdir.Directory, d *segset.Descriptor) error {
	writer, err := codec.Lookup(codec.LegacyName)
	if err != nil {
		return err
	}

	info := codec.SegmentInfo{
		Name:                   d.Name,
		DocCount:               d.DocCount,
		DelGen:                 d.DelGen,
		DelCount:               d.DelCount,
		Diagnostics:            d.Diagnostics,
		NormGen:                d.NormGen,
		DocStoreSegment:        d.DocStoreSegment,
		DocStoreIsCompoundFile: d.DocStoreIsCompoundFile,
		DocStoreOffset:         d.DocStoreOffset,
	}

	return writer.WriteSidecar(codecDir{dir}, info)
}

// codecDir adapts fsdir.Directory to the narrow codec.Directory
// interface, so the codec package never needs to import fsdir.
type codecDir struct {
	fsdir.Directory
}

func (d codecDir) CreateOutput(name string) (codec.Output, error) {
	return d.Directory.CreateOutput(name)
}
