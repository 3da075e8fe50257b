package tile

import (
	"bytes"
	"context"
	"io"

	"github.com/jimbomcb/wow-minimaps/blobstore"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/metrics"
	"github.com/jimbomcb/wow-minimaps/pipeline"
	"github.com/jimbomcb/wow-minimaps/ratelimit"
	"github.com/jimbomcb/wow-minimaps/resolver"
)

// Materialiser implements C4: given a tile file_id already
// known not to be in the dedup table, fetch its raw imagery through the
// rate limiter, decode, validate, re-encode to the canonical baseline
// WebP spec, persist to the blob store, and enqueue the tile row.
type Materialiser struct {
	limiter *ratelimit.Limiter
	blobs   blobstore.Store
	queue   *pipeline.Queue
	spec    CompressionSpec
}

// NewMaterialiser returns a Materialiser encoding every tile with spec,
// which must already satisfy ValidateBaselineSpec.
func NewMaterialiser(limiter *ratelimit.Limiter, blobs blobstore.Store, queue *pipeline.Queue, spec CompressionSpec) (*Materialiser, error) {
	if err := ValidateBaselineSpec(spec); err != nil {
		return nil, err
	}
	return &Materialiser{limiter: limiter, blobs: blobs, queue: queue, spec: spec}, nil
}

// Materialise fetches, decodes, re-encodes, and persists one tile's
// imagery, returning its content hash for the caller to fold into the
// map's composition.
// Fetch is retried under the rate limiter's backoff policy; a
// resolver.KeyRequiredError from fetch is returned unwrapped so callers
// can classify it step 2/3.
func (m *Materialiser) Materialise(ctx context.Context, fs resolver.Filesystem, desc resolver.FileDescriptor) (digest.Digest, error) {
	var raw []byte
	err := m.limiter.Do(ctx, func(ctx context.Context) error {
		stream, err := fs.OpenStream(ctx, desc, true)
		if err != nil {
			return err
		}
		defer stream.Close()
		b, err := io.ReadAll(stream)
		if err != nil {
			return errs.WrapFmt(err, "tile: reading stream for file id %d", desc.FileID)
		}
		raw = b
		return nil
	})
	if err != nil {
		if kr, ok := resolver.AsKeyRequired(err); ok {
			return digest.Digest{}, kr
		}
		return digest.Digest{}, errs.WrapFmt(err, "tile: fetching raw tile for file id %d", desc.FileID)
	}

	hash := digest.Sum(raw)

	if existing, err := m.blobs.Get(ctx, hash); err == nil {
		existing.Close()
		return hash, nil
	}

	img, side, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return digest.Digest{}, errs.WrapFmt(err, "tile: decoding file id %d", desc.FileID)
	}

	encoded, err := Encode(img, m.spec)
	if err != nil {
		return digest.Digest{}, errs.WrapFmt(err, "tile: encoding file id %d", desc.FileID)
	}

	if err := m.blobs.Save(ctx, hash, encoded, ContentType); err != nil {
		return digest.Digest{}, errs.WrapFmt(err, "tile: saving file id %d", desc.FileID)
	}

	if err := m.queue.Push(ctx, pipeline.TileWrite{Hash: hash, TileSize: int16(side)}); err != nil {
		return digest.Digest{}, errs.WrapFmt(err, "tile: enqueueing tile write for file id %d", desc.FileID)
	}
	metrics.TilesMaterialized.Inc()

	return hash, nil
}
