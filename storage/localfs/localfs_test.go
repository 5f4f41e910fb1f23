package localfs

import (
	"os"
	"testing"

	"adbx.dev/adbx/storage"
	"adbx.dev/adbx/storage/castestkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	castestkit.RunConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		v, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return v
	})
}

func TestLocalFS_RequiresRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	v, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original artifact")
	id, err := v.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := v.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect the hash mismatch.
	if _, err := v.Get(id); err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not repair or overwrite the corrupted object.
	if _, err := v.Put(orig); err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}
}

func TestLocalFS_PutReaderLeavesNoSpoolFiles(t *testing.T) {
	dir := t.TempDir()
	v, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := v.Put([]byte("a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			t.Fatalf("unexpected stray file in vault root: %s", e.Name())
		}
	}
}
