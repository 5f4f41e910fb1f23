// Package keys manages examiner signing keys for evidence manifests.
//
// Keys are Ed25519 (with optional Dilithium3 for post-quantum manifests),
// stored as hex seeds on the local filesystem, with deterministic role
// subkeys derived from a root seed so a case can hand out scoped signing
// identities.
package keys
