// Package localfs is the filesystem evidence vault.
package localfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"adbx.dev/adbx/cidutil"
	"adbx.dev/adbx/storage"
)

// Vault is a local filesystem-backed content-addressable evidence store.
//
// Objects are stored immutably and keyed strictly by CID. The vault is
// offline and deterministic: it never uses the network and never depends on
// wall-clock time. Large artifacts go through PutReader, which spools to a
// temporary file while hashing and renames into place, so nothing is held
// in memory.
type Vault struct {
	root string
}

// New constructs a vault rooted at root. The directory is created if needed.
func New(root string) (*Vault, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Vault{root: root}, nil
}

func (v *Vault) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}

	path := v.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			return v.checkExisting(id, bytes)
		}
		return cid.Undef, err
	}

	if _, err := f.Write(bytes); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

// PutReader streams r into the vault: bytes are hashed while being spooled
// to a temporary file, which is then renamed to its CID path. Returns the
// CID and the number of bytes consumed.
func (v *Vault) PutReader(r io.Reader) (cid.Cid, int64, error) {
	tmp, err := os.CreateTemp(v.root, ".ingest-*")
	if err != nil {
		return cid.Undef, 0, err
	}
	tmpPath := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	hasher := cidutil.NewHasher()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		discard()
		return cid.Undef, n, err
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return cid.Undef, n, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return cid.Undef, n, err
	}

	id, err := hasher.CID()
	if err != nil {
		_ = os.Remove(tmpPath)
		return cid.Undef, n, err
	}

	path := v.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return cid.Undef, n, err
	}
	if v.Has(id) {
		// Idempotent: the object is already present under its CID.
		_ = os.Remove(tmpPath)
		return id, n, nil
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		_ = os.Remove(tmpPath)
		return cid.Undef, n, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return cid.Undef, n, err
	}
	return id, n, nil
}

func (v *Vault) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(v.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

// Open returns a streaming reader over the stored object. Unlike Get it does
// not re-verify the CID; callers that need verification on the streaming
// path should hash while reading.
func (v *Vault) Open(id cid.Cid) (io.ReadCloser, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	f, err := os.Open(v.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (v *Vault) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(v.pathFor(id))
	return err == nil
}

// checkExisting enforces immutability when a Put hits an existing object: if
// the stored bytes are unreadable or differ, the object has been tampered
// with.
func (v *Vault) checkExisting(id cid.Cid, want []byte) (cid.Cid, error) {
	existing, err := v.Get(id)
	if err != nil {
		return cid.Undef, storage.ErrImmutable
	}
	if string(existing) != string(want) {
		return cid.Undef, storage.ErrImmutable
	}
	return id, nil
}

func (v *Vault) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(v.root, s)
	}
	return filepath.Join(v.root, s[:2], s)
}
