// Package storage defines the content-addressable evidence vault interface.
//
// Decoded artifacts (tar streams recovered from backup containers) are kept
// immutably, keyed by CIDv1 (raw, sha2-256). Content addressing is what
// makes the vault usable for evidence handling: a CID recorded in a signed
// manifest can always be re-verified against the stored bytes.
package storage

import (
	"io"

	"github.com/ipfs/go-cid"
)

// CAS is the evidence vault interface.
//
// Contract:
// - Put and PutReader MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written.
// - Get and Open MUST return ErrNotFound when the CID is absent.
// - PutReader and Open are the streaming paths; implementations MUST NOT
//   buffer the whole object in memory to serve them.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	PutReader(r io.Reader) (cid.Cid, int64, error)
	Get(id cid.Cid) ([]byte, error)
	Open(id cid.Cid) (io.ReadCloser, error)
	Has(id cid.Cid) bool
}
