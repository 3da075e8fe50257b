// Package blobstore defines the content-addressed blob store interface:
// save(hash, stream, content_type) / get(hash) -> stream, idempotent on
// repeated saves of the same hash.
package blobstore

import (
	"context"
	"io"

	"github.com/jimbomcb/wow-minimaps/digest"
)

// Store is the narrow blob-store interface every tile writer (C4, C5)
// depends on. Implementations MUST be idempotent: a second Save of the
// same hash is a no-op or an overwrite of identical bytes.
type Store interface {
	Save(ctx context.Context, hash digest.Digest, data []byte, contentType string) error
	Get(ctx context.Context, hash digest.Digest) (io.ReadCloser, error)
}
