// Package commit implements the two-phase manifest commit protocol: the
// CommitEngine state machine (prepare/finish/rollback) and the
// segments.gen advisory sidecar it maintains on finish.
//
// Modeled on core/db.go's addSegment/ensureManifest write lifecycle and
// core/merge.go's abortMerge cleanup-suppresses-errors idiom, but
// rename-free throughout: unlike core/file.go's writeFileAtomic (temp
// file + rename) this engine never renames anything. A commit advances
// by creating a brand new, never-reused file name; a rolled-back attempt
// simply deletes its partial file and moves on to the next generation.
package commit

import (
	"errors"
	"fmt"

	"github.com/epokhe/segidx/fsdir"
	"github.com/epokhe/segidx/manifest"
	"github.com/epokhe/segidx/segset"
)

type state int

const (
	idle state = iota
	pendingState
)

// ErrIllegalState is returned when Prepare, Finish or Rollback is called
// from a state that doesn't permit it.
var ErrIllegalState = errors.New("commit: illegal engine state")

// Option configures an Engine at construction, matching the
// functional-options shape core/db.go uses for DB.
type Option func(*Engine)

// Engine drives the prepare/finish/rollback state machine for one
// SegmentSet against one Directory. At most one Engine should be
// preparing commits against a given directory at a time — this is a
// single-writer primitive, enforced by the caller, not by the Engine
// itself.
type Engine struct {
	dir   fsdir.Directory
	set   *segset.Set
	codec *manifest.Codec

	state state
	pend  *pendingCommit
}

type pendingCommit struct {
	name     string
	gen      int64
	out      fsdir.Output
	payload  []byte
	sidecars []string
}

// New returns an Engine bound to set and dir. set is mutated in place by
// Prepare/Finish/Rollback; callers that need to observe a stable
// snapshot while a commit is in flight should clone it first (see
// segset.Set.Clone).
func New(dir fsdir.Directory, set *segset.Set, opts ...Option) *Engine {
	e := &Engine{
		dir:   dir,
		set:   set,
		codec: manifest.New(dir),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pending reports whether a commit is currently in flight.
func (e *Engine) Pending() bool { return e.state == pendingState }

// Prepare begins a new commit: computes the next generation's file name,
// performs the legacy .si upgrade pass, serializes the manifest body
// (checksum included) entirely in memory, and creates the empty output
// file — but does not yet write the payload into it. Until Finish
// writes and fsyncs that payload, the file any concurrent reader opens
// is zero bytes long, which correctly fails as a corrupt/incomplete
// manifest rather than appearing valid.
//
// Precondition: the engine must be idle. On any failure, Prepare leaves
// the engine idle and the generation counter untouched.
func (e *Engine) Prepare() error {
	if e.state != idle {
		return fmt.Errorf("%w: prepare requires idle state", ErrIllegalState)
	}

	nextGen := e.set.Generation + 1
	if e.set.Generation == -1 {
		nextGen = 1
	}
	name := segset.SegmentsFileName(nextGen)

	payload, result, err := e.codec.EncodeBuffered(e.set)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}

	out, err := e.dir.CreateOutput(name)
	if err != nil {
		// The legacy upgrade pass above may already have written .si
		// sidecars before CreateOutput failed; spec.md §4.4/§7 require
		// those to be undone along with the rest of this attempt.
		e.deleteSidecars(result.SidecarsWritten)
		return fmt.Errorf("create %q: %w", name, err)
	}

	// The generation bump is deferred until exactly this point, so a
	// failed encode or CreateOutput above never makes a generation
	// advance observable.
	e.set.Generation = nextGen
	e.pend = &pendingCommit{name: name, gen: nextGen, out: out, payload: payload, sidecars: result.SidecarsWritten}
	e.state = pendingState
	return nil
}

// deleteSidecars best-effort deletes every .si sidecar written by a
// legacy upgrade pass that this attempt is abandoning, suppressing
// individual failures the same way Rollback suppresses its own cleanup
// errors.
func (e *Engine) deleteSidecars(names []string) {
	for _, name := range names {
		_ = e.dir.DeleteFile(name)
	}
}

// Finish completes a prepared commit: writes the already-checksummed
// payload, fsyncs the manifest file, closes it, then best-effort
// refreshes segments.gen. Precondition: the engine must be pending. On
// success the engine returns to idle with LastGeneration advanced; on
// failure the engine remains pending so the caller can retry Finish or
// call Rollback.
func (e *Engine) Finish() error {
	if e.state != pendingState {
		return fmt.Errorf("%w: finish requires pending state", ErrIllegalState)
	}
	p := e.pend

	if _, err := p.out.Write(p.payload); err != nil {
		return fmt.Errorf("write manifest %q: %w", p.name, err)
	}
	if err := p.out.Sync(); err != nil {
		return fmt.Errorf("sync manifest %q: %w", p.name, err)
	}
	if err := p.out.Close(); err != nil {
		return fmt.Errorf("close manifest %q: %w", p.name, err)
	}

	// segments.gen is only ever refreshed after the manifest itself is
	// durable, per spec.md §4.4's ordering requirement #2; its own
	// failure is swallowed inside writeGenSidecar.
	writeGenSidecar(e.dir, p.gen)

	e.set.LastGeneration = p.gen
	e.state = idle
	e.pend = nil
	return nil
}

// Rollback abandons a prepared commit: closes and deletes the partial
// manifest file and any .si sidecars the legacy upgrade pass wrote
// during this attempt, suppressing any error doing so (mirroring
// core/merge.go's abortMerge). The generation counter is deliberately
// not decremented — write-once semantics mean this generation's name is
// now burned and the next Prepare moves on to generation+1.
func (e *Engine) Rollback() error {
	if e.state != pendingState {
		return fmt.Errorf("%w: rollback requires pending state", ErrIllegalState)
	}
	p := e.pend

	_ = p.out.Close()
	_ = e.dir.DeleteFile(p.name)
	e.deleteSidecars(p.sidecars)

	e.state = idle
	e.pend = nil
	return nil
}
