package cidutil

import (
	"bytes"
	"testing"
)

func TestHasherMatchesSingleShot(t *testing.T) {
	data := bytes.Repeat([]byte("evidence bytes "), 4096)

	want, err := CIDv1RawSHA256CID(data)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}

	h := NewHasher()
	// Uneven chunk size exercises the incremental path.
	for off := 0; off < len(data); off += 17 {
		end := off + 17
		if end > len(data) {
			end = len(data)
		}
		if _, err := h.Write(data[off:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	got, err := h.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	if got != want {
		t.Fatalf("CID mismatch: got %s want %s", got, want)
	}
	if h.BytesWritten() != uint64(len(data)) {
		t.Fatalf("BytesWritten = %d, want %d", h.BytesWritten(), len(data))
	}
}

func TestCIDv1RawSHA256StringFormsAgree(t *testing.T) {
	data := []byte("hello evidence")
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	if s := CIDv1RawSHA256(data); s != id.String() {
		t.Fatalf("string form mismatch: %s vs %s", s, id.String())
	}
}
