package commit

import (
	"errors"
	"testing"

	"github.com/epokhe/segidx/manifest"
	"github.com/epokhe/segidx/segset"
)

func TestPrepareFinishAdvancesGeneration(t *testing.T) {
	dir := openTestDir(t)
	set := segset.New()
	set.UserData = map[string]string{}

	e := New(dir, set)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !e.Pending() {
		t.Fatal("expected engine to be pending after Prepare")
	}
	if set.Generation != 1 {
		t.Fatalf("Generation after Prepare = %d, want 1", set.Generation)
	}

	if err := e.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if e.Pending() {
		t.Fatal("expected engine to be idle after Finish")
	}
	if set.LastGeneration != 1 {
		t.Fatalf("LastGeneration after Finish = %d, want 1", set.LastGeneration)
	}

	c := manifest.New(dir)
	got, err := c.Read("segments_1")
	if err != nil {
		t.Fatalf("Read committed manifest: %v", err)
	}
	if got.VersionNum != set.VersionNum {
		t.Errorf("round-tripped VersionNum = %d, want %d", got.VersionNum, set.VersionNum)
	}

	gen, ok, err := ReadGenSidecar(dir)
	if err != nil || !ok || gen != 1 {
		t.Fatalf("ReadGenSidecar after Finish = (%d, %v, %v), want (1, true, nil)", gen, ok, err)
	}
}

func TestPendingManifestLooksCorruptToAConcurrentReader(t *testing.T) {
	dir := openTestDir(t)
	set := segset.New()
	set.UserData = map[string]string{}

	e := New(dir, set)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	c := manifest.New(dir)
	if _, err := c.Read("segments_1"); err == nil {
		t.Fatal("expected a concurrent read of a pending manifest to fail")
	}

	if err := e.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := c.Read("segments_1"); err != nil {
		t.Fatalf("Read after Finish: %v", err)
	}
}

func TestRollbackBurnsTheGeneration(t *testing.T) {
	dir := openTestDir(t)
	set := segset.New()
	set.UserData = map[string]string{}

	e := New(dir, set)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := e.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if e.Pending() {
		t.Fatal("expected engine to be idle after Rollback")
	}

	if exists, err := dir.FileExists("segments_1"); err != nil || exists {
		t.Fatalf("segments_1 should be gone after rollback, FileExists = (%v, %v)", exists, err)
	}

	// The next commit must not reuse generation 1.
	if err := e.Prepare(); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if set.Generation != 2 {
		t.Fatalf("Generation after rollback+Prepare = %d, want 2 (write-once, never reused)", set.Generation)
	}
	if err := e.Finish(); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if exists, _ := dir.FileExists("segments_1"); exists {
		t.Fatal("segments_1 must never reappear once its generation is burned")
	}
}

func TestRollbackDeletesLegacySidecarsWrittenDuringThisAttempt(t *testing.T) {
	dir := openTestDir(t)
	set := segset.New()
	set.UserData = map[string]string{}
	if err := set.Add(segset.NewDescriptor("ignored", "_a", "SomeCodec", 10, -1, 0, "3.6.0")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := New(dir, set)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if exists, err := dir.FileExists("_a.si"); err != nil || !exists {
		t.Fatalf("legacy upgrade pass should have written _a.si during Prepare, FileExists = (%v, %v)", exists, err)
	}

	if err := e.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if exists, err := dir.FileExists("_a.si"); err != nil || exists {
		t.Fatalf("_a.si should be gone after Rollback, FileExists = (%v, %v)", exists, err)
	}
}

func TestPrepareRequiresIdle(t *testing.T) {
	dir := openTestDir(t)
	set := segset.New()
	set.UserData = map[string]string{}

	e := New(dir, set)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := e.Prepare(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("second Prepare = %v, want %v", err, ErrIllegalState)
	}
}

func TestFinishAndRollbackRequirePending(t *testing.T) {
	dir := openTestDir(t)
	set := segset.New()
	set.UserData = map[string]string{}
	e := New(dir, set)

	if err := e.Finish(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("Finish on idle engine = %v, want %v", err, ErrIllegalState)
	}
	if err := e.Rollback(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("Rollback on idle engine = %v, want %v", err, ErrIllegalState)
	}
}
