// Package segset implements the in-memory segment-set model: the ordered,
// unique collection of segment descriptors that a manifest generation
// commits, and the descriptor type itself.
package segset

import (
	"fmt"
	"maps"
	"strings"

	"github.com/epokhe/segidx/codec"
)

// legacyVersionPrefix marks a segment as written by a pre-4.0 writer: its
// version is either empty or begins with this major-version marker.
const legacyVersionPrefix = "3."

// Descriptor is an (almost) immutable record of one indexed segment.
// Its attributes are exported as plain fields; only the owning
// directory's identity is unexported and set once at construction.
type Descriptor struct {
	// Name is the segment's stable identifier, unique within its owning
	// Set.
	Name string
	// CodecName dispatches to the per-segment codec reader/writer.
	CodecName string
	// DocCount is the number of documents in the segment, including
	// deleted ones.
	DocCount int
	// DelGen is the deletion generation; -1 means no deletions yet.
	DelGen int64
	// DelCount is the number of deleted documents. Invariant:
	// 0 <= DelCount <= DocCount.
	DelCount int
	// Version is the opaque writer version string. A segment is legacy
	// if Version is empty or starts with "3.".
	Version string

	// Diagnostics, NormGen and the doc-store fields are opaque,
	// relevant only to legacy re-serialization.
	Diagnostics map[string]string
	NormGen     map[int]int64

	DocStoreSegment        string
	DocStoreIsCompoundFile bool
	DocStoreOffset         int

	// dir is the owning directory's identity. Two descriptors from
	// different directories must never be mixed into the same Set.
	dir string
}

// NewDescriptor constructs a Descriptor bound to the directory identified
// by dir (an identity string; the manifest reader uses the directory
// handle's pointer — used only for the cross-directory-mix guard in
// Set.Add, never for I/O).
func NewDescriptor(dir, name, codecName string, docCount int, delGen int64, delCount int, version string) *Descriptor {
	return &Descriptor{
		Name:      name,
		CodecName: codecName,
		DocCount:  docCount,
		DelGen:    delGen,
		DelCount:  delCount,
		Version:   version,
		dir:       dir,
	}
}

// Dir returns the identity of the directory this descriptor belongs to.
func (d *Descriptor) Dir() string { return d.dir }

// IsLegacy reports whether this segment was written by a pre-4.0 writer
// and therefore needs the one-time .si upgrade on next write. A
// descriptor already stamped with the legacy codec (by the legacy
// manifest reader) is always legacy regardless of its Version string;
// otherwise legacy-ness falls back to the Version heuristic, which only
// matters for descriptors constructed directly (not yet round-tripped
// through a manifest read).
func (d *Descriptor) IsLegacy() bool {
	if d.CodecName == codec.LegacyName {
		return true
	}
	return d.Version == "" || strings.HasPrefix(d.Version, legacyVersionPrefix)
}

// HasDeletions reports whether any documents have been deleted from this
// segment at this commit.
func (d *Descriptor) HasDeletions() bool { return d.DelGen != -1 }

// Validate checks the del-count invariant, returning an error rather
// than silently accepting a corrupt descriptor.
func (d *Descriptor) Validate() error {
	if d.DelCount < 0 || d.DelCount > d.DocCount {
		return fmt.Errorf("segset: invalid del_count=%d (doc_count=%d) for segment %q", d.DelCount, d.DocCount, d.Name)
	}
	return nil
}

// Clone returns a deep copy of d, including its maps. The clone shares
// no mutable state with d.
func (d *Descriptor) Clone() *Descriptor {
	clone := *d
	if d.Diagnostics != nil {
		clone.Diagnostics = maps.Clone(d.Diagnostics)
	}
	if d.NormGen != nil {
		clone.NormGen = maps.Clone(d.NormGen)
	}
	return &clone
}

func (d *Descriptor) String() string {
	s := fmt.Sprintf("%s(docs=%d)", d.Name, d.DocCount)
	if d.DelGen != -1 {
		s = fmt.Sprintf("%s:delGen=%d", s, d.DelGen)
	}
	return s
}
