// Package cidutil derives evidence content identifiers: CIDv1 with the
// "raw" multicodec over a sha2-256 multihash.
package cidutil

import (
	"crypto/sha256"
	"hash"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns the CIDv1 string for data.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Hasher computes the same CID as CIDv1RawSHA256CID incrementally, so a
// large artifact can be identified while it is streamed to its sink.
type Hasher struct {
	h hash.Hash
	n uint64
}

// NewHasher returns a Hasher ready to consume bytes.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (s *Hasher) Write(p []byte) (int, error) {
	n, err := s.h.Write(p)
	s.n += uint64(n)
	return n, err
}

// BytesWritten reports how many bytes the Hasher has consumed.
func (s *Hasher) BytesWritten() uint64 { return s.n }

// CID returns the CIDv1 for the bytes written so far.
func (s *Hasher) CID() (cid.Cid, error) {
	sum, err := multihash.Encode(s.h.Sum(nil), multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
