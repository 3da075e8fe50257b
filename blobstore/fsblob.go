package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
)

// FSStore is a filesystem-backed Store, sharded by the first two hex
// characters of the hash the way object-store clients shard bucket paths
// by content prefix to keep any one directory small. Reserved for local
// development and for cache_path-style disk layouts; production
// deployments are expected to configure a networked object-store
// endpoint instead.
type FSStore struct {
	Root string
}

// NewFSStore returns a Store rooted at dir. The directory is created on
// first Save if absent.
func NewFSStore(dir string) *FSStore {
	return &FSStore{Root: dir}
}

func (s *FSStore) pathFor(hash digest.Digest) string {
	hex := hash.Hex()
	return filepath.Join(s.Root, hex[:2], hex+".webp")
}

// Save writes data under hash, creating parent directories as needed. A
// second Save of the same hash is a no-op once the file already exists
// with the same size, satisfying the store's idempotence requirement
// without re-hashing on every write.
func (s *FSStore) Save(ctx context.Context, hash digest.Digest, data []byte, contentType string) error {
	path := s.pathFor(hash)
	if fi, err := os.Stat(path); err == nil && fi.Size() == int64(len(data)) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.WrapFmt(err, "blobstore: creating directory for %s", hash.Hex())
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.WrapFmt(err, "blobstore: writing %s", hash.Hex())
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.WrapFmt(err, "blobstore: committing %s", hash.Hex())
	}
	return nil
}

// Get opens the blob for hash.
func (s *FSStore) Get(ctx context.Context, hash digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(hash))
	if err != nil {
		return nil, errs.WrapFmt(err, "blobstore: opening %s", hash.Hex())
	}
	return f, nil
}
