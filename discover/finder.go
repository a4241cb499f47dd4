// Package discover implements the reader-side generation-discovery
// algorithm: locating the current segments_N manifest under a possibly
// stale directory listing and a possibly stale segments.gen hint,
// retrying through three progressively more aggressive strategies.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/epokhe/segidx/commit"
	"github.com/epokhe/segidx/fsdir"
	"github.com/epokhe/segidx/manifest"
	"github.com/epokhe/segidx/segset"
)

// ErrIndexNotFound is returned when neither the directory listing nor
// the segments.gen sidecar yields any candidate generation.
var ErrIndexNotFound = errors.New("discover: index not found")

// FinderConfig is explicit, passed-in configuration — no process-wide
// singleton, per spec.md §9.
type FinderConfig struct {
	// DefaultGenLookaheadCount bounds Method C's synthetic look-ahead.
	// Zero means "use the default of 10".
	DefaultGenLookaheadCount int
	// InfoStream, if non-nil, receives trace lines for an unreadable
	// segments.gen, each second-failure retry and each look-ahead attempt
	// and its failure, mirroring the teacher's info_stream
	// comment turned into a real optional diagnostic sink.
	InfoStream io.Writer
}

const defaultLookahead = 10

func (c FinderConfig) lookahead() int {
	if c.DefaultGenLookaheadCount > 0 {
		return c.DefaultGenLookaheadCount
	}
	return defaultLookahead
}

func (c FinderConfig) logf(format string, args ...any) {
	if c.InfoStream == nil {
		return
	}
	fmt.Fprintf(c.InfoStream, format+"\n", args...)
}

// Finder locates and operates on the current segments_N manifest.
type Finder struct {
	cfg FinderConfig
}

// New returns a Finder configured by cfg.
func New(cfg FinderConfig) *Finder {
	return &Finder{cfg: cfg}
}

// DoBody is the caller-supplied operation run against a candidate
// manifest file name. It must return an error for any I/O or corruption
// problem — the Finder treats any such error as "possibly stale, try a
// different generation", not as a fatal failure.
type DoBody func(name string) (any, error)

// Find resolves the current manifest and invokes body against it,
// retrying across generations as described in spec.md §4.6.
//
// If anchor is non-empty, it is trusted outright: body is invoked once
// against anchor's file name with no retry, mirroring "the primary
// path" in spec.md.
func (f *Finder) Find(ctx context.Context, dir fsdir.Directory, anchor string, body DoBody) (any, error) {
	if anchor != "" {
		return body(anchor)
	}

	var savedErr error
	var lastGen int64 = -1
	retryCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		genA, okA, err := f.methodA(dir)
		if err != nil {
			return nil, err
		}
		genB, okB, errB := commit.ReadGenSidecar(dir)
		if errB != nil {
			f.cfg.logf("discover: segments.gen unreadable: %v", errB)
		}

		gen, ok := combineGenerations(genA, okA, genB, okB)
		if !ok {
			return nil, ErrIndexNotFound
		}

		if gen != lastGen {
			retryCount = 0
			lastGen = gen
		}

		result, err := body(segset.SegmentsFileName(gen))
		if err == nil {
			return result, nil
		}
		if errors.Is(err, manifest.ErrFormatTooNew) {
			// A recognized-but-too-new format is a fatal, non-transient
			// condition, unlike CorruptManifest/IOFailure — per spec.md
			// §7 it must surface immediately, not be treated as "possibly
			// stale, try again".
			return nil, err
		}
		if savedErr == nil {
			savedErr = err
		}

		if retryCount == 1 && gen > 1 {
			f.cfg.logf("discover: second failure at gen %d, trying gen %d", gen, gen-1)
			result, err2 := body(segset.SegmentsFileName(gen - 1))
			if err2 == nil {
				return result, nil
			}
			if errors.Is(err2, manifest.ErrFormatTooNew) {
				return nil, err2
			}
			f.cfg.logf("discover: fallback to gen %d also failed: %v", gen-1, err2)
		}

		retryCount++
		if retryCount >= 2 {
			return f.lookaheadFrom(ctx, gen, savedErr, body)
		}
	}
}

// methodA lists dir, scans for names starting with "segments" other
// than the segments.gen sidecar, and returns the maximum base-36
// generation suffix found.
func (f *Finder) methodA(dir fsdir.Directory) (gen int64, ok bool, err error) {
	names, err := dir.ListAll()
	if err != nil {
		return 0, false, err
	}

	ignore := mapset.NewSet[string]()
	ignore.Add("segments.gen")

	best := int64(-1)
	found := false
	for _, name := range names {
		if ignore.Contains(name) {
			continue
		}
		if !strings.HasPrefix(name, "segments") {
			continue
		}

		var g int64
		if name == "segments" {
			g = 0
		} else {
			suffix := strings.TrimPrefix(name, "segments_")
			if suffix == name {
				continue // "segments"-prefixed but not a recognized generation form
			}
			parsed, err := segset.ParseBase36(suffix)
			if err != nil {
				continue // not a generation suffix we recognize; ignore
			}
			g = parsed
		}
		if !found || g > best {
			best, found = g, true
		}
	}
	return best, found, nil
}

func combineGenerations(genA int64, okA bool, genB int64, okB bool) (int64, bool) {
	switch {
	case okA && okB:
		return max(genA, genB), true
	case okA:
		return genA, true
	case okB:
		return genB, true
	default:
		return 0, false
	}
}

// lookaheadFrom implements Method C: probing gen+1, gen+2, ... up to the
// configured look-ahead bound, attempting each. Exhausting the
// look-ahead rethrows savedErr.
func (f *Finder) lookaheadFrom(ctx context.Context, gen int64, savedErr error, body DoBody) (any, error) {
	limit := f.cfg.lookahead()
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate := gen + int64(i)
		f.cfg.logf("discover: look-ahead attempt %d, gen %d", i, candidate)
		result, err := body(segset.SegmentsFileName(candidate))
		if err == nil {
			return result, nil
		}
		if errors.Is(err, manifest.ErrFormatTooNew) {
			return nil, err
		}
		f.cfg.logf("discover: look-ahead gen %d failed: %v", candidate, err)
	}
	if savedErr != nil {
		return nil, savedErr
	}
	return nil, ErrIndexNotFound
}
