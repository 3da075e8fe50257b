// Package tile implements C4, the Tile Materialiser: it
// fetches raw tile imagery via the content resolver, decodes it, and
// re-encodes it as the canonical on-disk WebP format.
package tile

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gen2brain/webp"

	"github.com/jimbomcb/wow-minimaps/errs"
)

// Format names the configured compression family for a compression tier.
// Lossless is the only value permitted for the baseline tier.
type Format string

const (
	FormatLossless Format = "lossless"
	FormatLossy    Format = "lossy"
)

// CompressionSpec configures one tier's WebP output.
type CompressionSpec struct {
	Type    Format
	Method  int // 0-6, libwebp compression effort
	Quality int // 0-100, ignored for lossless
}

// MaxTileDimension is the hard cap on decoded tile width/height.
const MaxTileDimension = 2048

// Decode reads a raw tile image: decodes the input
// pixel format, requires square dimensions, and enforces the size cap.
// Returns the decoded image and its (square) side length.
func Decode(r io.Reader) (image.Image, int, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, 0, errs.WrapFmt(err, "tile: decoding raw tile image")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w != h {
		return nil, 0, errs.Fmt("tile: tile image is not square (%dx%d)", w, h)
	}
	if w > MaxTileDimension {
		return nil, 0, errs.Fmt("tile: tile dimension %d exceeds maximum %d", w, MaxTileDimension)
	}
	return img, w, nil
}

// Encode re-encodes img as a WebP-family image per spec. Base-level tiles
// MUST use a lossless spec; this is enforced at startup by
// ValidateBaselineSpec, not here, so a caller with a validated spec can
// call Encode without re-checking on every tile.
func Encode(img image.Image, spec CompressionSpec) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Lossless: spec.Type == FormatLossless,
		Quality:  float32(spec.Quality),
		Method:   spec.Method,
	}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, errs.WrapFmt(err, "tile: encoding webp")
	}
	return buf.Bytes(), nil
}

// ValidateBaselineSpec enforces the startup invariant:
// "if the configured base-level format is anything other than lossless,
// refuse to start."
func ValidateBaselineSpec(spec CompressionSpec) error {
	if spec.Type != FormatLossless {
		return errs.Fmt("tile: baseline compression type must be %q, got %q", FormatLossless, spec.Type)
	}
	return nil
}

// ContentType is the blob-store content-type for every tile output.
const ContentType = "image/webp"
