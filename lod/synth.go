package lod

import (
	"context"
	"image"
	"image/draw"

	"github.com/nfnt/resize"

	"github.com/jimbomcb/wow-minimaps/blobstore"
	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/metrics"
	"github.com/jimbomcb/wow-minimaps/pipeline"
	"github.com/jimbomcb/wow-minimaps/tile"
)

// minCanvasSize is the canvas floor used when a LOD tile has no present
// component to size itself from.
const minCanvasSize = 64

// resampleFilter is the resize kernel used for every LOD component blit.
// A sharp Robidoux-family filter (or equivalent high-quality resampler)
// is called for, and the choice, once fixed, must be documented and
// never silently changed — nfnt/resize does not implement Robidoux;
// Lanczos3 is its closest equivalent-sharpness kernel and is what this
// pipeline standardizes on (see DESIGN.md).
const resampleFilter = resize.Lanczos3

// ComponentSource resolves a component hash to its decoded image. Every
// component of a LOD tile, at any level, is a base (L0) tile hash; C3
// supplies this so the synthesiser does not depend on where those base
// tiles are stored.
type ComponentSource func(ctx context.Context, hash digest.Digest) (image.Image, error)

// Synthesiser implements C5: for each LOD tile whose
// components are all resident, composite, encode, persist, and enqueue.
type Synthesiser struct {
	blobs blobstore.Store
	queue *pipeline.Queue
	spec  tile.CompressionSpec
}

// NewSynthesiser returns a Synthesiser that persists composites to blobs
// and pushes resulting tile writes onto queue for the shared tiles-table
// consumer.
func NewSynthesiser(blobs blobstore.Store, queue *pipeline.Queue, spec tile.CompressionSpec) *Synthesiser {
	return &Synthesiser{blobs: blobs, queue: queue, spec: spec}
}

// Synthesize composites one LOD tile from entry's component list: sizes the canvas to the larger of 64 and the largest known
// present component size, resamples each present component into its f×f sub-cell, and
// leaves absent components transparent. source resolves a component hash
// to its decoded image; componentSizes maps a component hash to its
// already-known pixel size, used to pick the canvas size without
// re-decoding every component up front.
func (s *Synthesiser) Synthesize(ctx context.Context, hash digest.Digest, entry TileEntry, componentSizes map[digest.Digest]int, source ComponentSource) error {
	f := 1 << uint(entry.Level)
	if f*f != len(entry.Components) {
		return errs.Fmt("lod: component list length %d does not match level %d (want %d)", len(entry.Components), entry.Level, f*f)
	}

	canvasSize := minCanvasSize
	for _, c := range entry.Components {
		if !c.Present {
			continue
		}
		if sz, ok := componentSizes[c.Hash]; ok && sz > canvasSize {
			canvasSize = sz
		}
	}
	cellSize := canvasSize / f
	if cellSize == 0 {
		cellSize = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, cellSize*f, cellSize*f))

	for i, c := range entry.Components {
		if !c.Present {
			continue
		}
		tx, ty := i%f, i/f

		img, err := source(ctx, c.Hash)
		if err != nil {
			return errs.WrapFmt(err, "lod: loading component %s for %s", c.Hash.Hex(), hash.Hex())
		}
		resized := resize.Resize(uint(cellSize), uint(cellSize), img, resampleFilter)

		origin := image.Pt(tx*cellSize, ty*cellSize)
		draw.Draw(canvas, image.Rect(origin.X, origin.Y, origin.X+cellSize, origin.Y+cellSize), resized, image.Point{}, draw.Src)
	}

	encoded, err := tile.Encode(canvas, s.spec)
	if err != nil {
		return errs.WrapFmt(err, "lod: encoding composite %s", hash.Hex())
	}

	if err := s.blobs.Save(ctx, hash, encoded, tile.ContentType); err != nil {
		return errs.WrapFmt(err, "lod: saving composite %s", hash.Hex())
	}

	if err := s.queue.Push(ctx, pipeline.TileWrite{Hash: hash, TileSize: int16(canvas.Bounds().Dx())}); err != nil {
		return err
	}
	metrics.LODTilesSynthesized.Inc()
	return nil
}
