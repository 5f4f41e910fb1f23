// Package memory is an in-process evidence vault, primarily for tests and
// ephemeral pipelines.
package memory

import (
	"bytes"
	"io"
	"sync"

	"github.com/ipfs/go-cid"

	"adbx.dev/adbx/cidutil"
	"adbx.dev/adbx/storage"
)

// Vault stores objects in a map guarded by a mutex. Safe for concurrent use.
type Vault struct {
	mu      sync.RWMutex
	objects map[cid.Cid][]byte
}

func New() *Vault {
	return &Vault{objects: make(map[cid.Cid][]byte)}
}

func (v *Vault) Put(b []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return cid.Undef, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.objects[id]; !ok {
		v.objects[id] = append([]byte(nil), b...)
	}
	return id, nil
}

func (v *Vault) PutReader(r io.Reader) (cid.Cid, int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return cid.Undef, int64(len(b)), err
	}
	id, err := v.Put(b)
	return id, int64(len(b)), err
}

func (v *Vault) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	v.mu.RLock()
	b, ok := v.objects[id]
	v.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (v *Vault) Open(id cid.Cid) (io.ReadCloser, error) {
	b, err := v.Get(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (v *Vault) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	v.mu.RLock()
	_, ok := v.objects[id]
	v.mu.RUnlock()
	return ok
}
