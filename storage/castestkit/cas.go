// Package castestkit runs the vault conformance suite against a CAS
// implementation.
package castestkit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"

	"adbx.dev/adbx/cidutil"
	"adbx.dev/adbx/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// RunConformance exercises the storage.CAS contract: round trips,
// idempotence, streaming ingest, absence handling, and undefined-CID
// rejection.
func RunConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("decoded tar bytes")

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutReaderStreams", func(t *testing.T) {
		cas := newCAS(t)
		payload := strings.Repeat("artifact chunk ", 64*1024)

		id, n, err := cas.PutReader(strings.NewReader(payload))
		if err != nil {
			t.Fatalf("PutReader failed: %v", err)
		}
		if n != int64(len(payload)) {
			t.Fatalf("PutReader consumed %d bytes, want %d", n, len(payload))
		}
		wantID, err := cidutil.CIDv1RawSHA256CID([]byte(payload))
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("PutReader CID mismatch: got %s want %s", id, wantID)
		}

		rc, err := cas.Open(id)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer rc.Close()
		var sb strings.Builder
		buf := make([]byte, 8192)
		for {
			n, rerr := rc.Read(buf)
			sb.Write(buf[:n])
			if rerr != nil {
				break
			}
		}
		if sb.String() != payload {
			t.Fatalf("Open bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, _, err := cas.PutReader(bytes.NewReader(b))
		if err != nil {
			t.Fatalf("PutReader failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("ingest not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if _, err := cas.Open(id); !storage.IsNotFound(err) {
			t.Fatalf("Open missing: got err=%v want ErrNotFound", err)
		}

		if _, err := cas.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}
