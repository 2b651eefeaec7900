package sessionstore

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	return New(dir, zerolog.Nop())
}

// S1 from spec.md §8: create "a"; create "b"; active == "b"; switch to
// "a"; delete "a"; active == "b".
func TestSessionLifecycle(t *testing.T) {
	r := newTestRegistry(t)

	if _, ok := r.Create("a", "/tmp"); !ok {
		t.Fatal("expected create a to succeed")
	}
	if _, ok := r.Create("b", "/tmp"); !ok {
		t.Fatal("expected create b to succeed")
	}
	if got := r.ActiveName(); got != "b" {
		t.Fatalf("active = %q, want b", got)
	}

	if s := r.Switch("a"); s == nil {
		t.Fatal("expected switch to a to succeed")
	}
	if !r.Delete("a") {
		t.Fatal("expected delete a to succeed")
	}
	if got := r.ActiveName(); got != "b" {
		t.Fatalf("active after delete = %q, want b", got)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	r := newTestRegistry(t)
	if _, ok := r.Create("a", "/tmp"); !ok {
		t.Fatal("first create should succeed")
	}
	if _, ok := r.Create("a", "/tmp"); ok {
		t.Fatal("duplicate create should fail")
	}
}

func TestRenameMissingSourceFails(t *testing.T) {
	r := newTestRegistry(t)
	if msg := r.Rename("nope", "also-nope"); msg == "" {
		t.Fatal("expected error message for missing source")
	}
}

func TestRenameExistingTargetFails(t *testing.T) {
	r := newTestRegistry(t)
	r.Create("a", "/tmp")
	r.Create("b", "/tmp")
	if msg := r.Rename("a", "b"); msg == "" {
		t.Fatal("expected error message for existing target")
	}
}

func TestRenamePreservesActive(t *testing.T) {
	r := newTestRegistry(t)
	r.Create("a", "/tmp")
	if msg := r.Rename("a", "z"); msg != "" {
		t.Fatalf("rename failed: %s", msg)
	}
	if got := r.ActiveName(); got != "z" {
		t.Fatalf("active = %q, want z", got)
	}
	if r.Get("a") != nil {
		t.Fatal("old name should be gone")
	}
	if r.Get("z") == nil {
		t.Fatal("new name should exist")
	}
}

func TestDeleteUnknownReturnsFalse(t *testing.T) {
	r := newTestRegistry(t)
	if r.Delete("ghost") {
		t.Fatal("deleting unknown session should return false")
	}
}

// Invariant 1 from spec.md §8: reloading the registry from disk yields the
// same {active_session, sessions} content.
func TestReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	r1 := New(dir, zerolog.Nop())
	r1.Create("a", "/tmp/a")
	r1.Create("b", "/tmp/b")
	r1.Switch("a")

	r2 := New(dir, zerolog.Nop())
	if err := r2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := r2.ActiveName(); got != "a" {
		t.Fatalf("active = %q, want a", got)
	}
	if len(r2.ListAll()) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(r2.ListAll()))
	}
	if s := r2.Get("b"); s == nil || s.Cwd != "/tmp/b" {
		t.Fatalf("session b not restored correctly: %+v", s)
	}
}

func TestLoadMissingFileStaysEmpty(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Load(); err != nil {
		t.Fatalf("load on missing file should not error: %v", err)
	}
	if len(r.ListAll()) != 0 {
		t.Fatal("expected empty registry")
	}
}

func TestLoadCorruptFileStaysEmpty(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, zerolog.Nop())
	// Seed a corrupt sessions.json directly.
	path := dir + "/" + registryFileName
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if err := r.Load(); err != nil {
		t.Fatalf("load on corrupt file should not error: %v", err)
	}
	if len(r.ListAll()) != 0 {
		t.Fatal("expected empty registry after corrupt load")
	}
}
