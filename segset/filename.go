package segset

import (
	"fmt"
	"strings"
)

// SegmentsFileName returns the segments_N file name for generation gen,
// or the bare "segments" name for generation 0, per spec.md §6.
func SegmentsFileName(gen int64) string {
	if gen == 0 {
		return "segments"
	}
	return "segments_" + Base36(gen)
}

// ParseGeneration is the inverse of SegmentsFileName: it recovers the
// generation number a segments_N (or bare "segments") file name encodes.
func ParseGeneration(name string) (int64, error) {
	if name == "segments" {
		return 0, nil
	}
	suffix := strings.TrimPrefix(name, "segments_")
	if suffix == name {
		return 0, fmt.Errorf("segset: %q is not a segments file name", name)
	}
	return ParseBase36(suffix)
}

// SegmentsFileName returns the current manifest's file name, derived
// from LastGeneration. Calling it before any generation has been
// read or written (LastGeneration == -1) is a precondition violation,
// not a silently-tolerated null name — spec.md §9 explicitly calls out
// the original's permissiveness here as a bug, not a feature to carry
// forward.
func (s *Set) SegmentsFileName() string {
	if s.LastGeneration == -1 {
		panic("segset: SegmentsFileName called before any generation was committed or read")
	}
	return SegmentsFileName(s.LastGeneration)
}

// Files lists every file this set's current commit depends on: the
// per-segment ".si" sidecars for every member, plus (when
// includeSegmentsFile is true) the segments_N manifest itself.
//
// Calling Files(true) before any generation has been committed or read
// is, like SegmentsFileName, a precondition violation rather than a
// silently-tolerated null entry — the original allowed
// includeSegmentsFile=true with lastGeneration == -1 to slip a null
// name into the result; spec.md §9 calls this out explicitly as a bug
// not to carry forward, so this implementation panics instead.
func (s *Set) Files(includeSegmentsFile bool) []string {
	files := make([]string, 0, len(s.seq)+1)
	for _, d := range s.seq {
		files = append(files, d.Name+".si")
	}
	if includeSegmentsFile {
		files = append(files, s.SegmentsFileName())
	}
	return files
}
