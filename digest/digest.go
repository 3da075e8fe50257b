// Package digest implements the 128-bit content hash type used both for
// tile content keys and as the 16-byte unit of composition and LOD tile
// hashing elsewhere in this repository.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/jimbomcb/wow-minimaps/errs"
)

// Size is the fixed byte width of a Digest.
const Size = 16

// Digest is a 128-bit content-addressing hash. The zero value is not a
// valid digest; use Zero() when a null/absent placeholder of the right
// width is needed (e.g. a missing LOD component).
type Digest [Size]byte

// Zero is the all-zero-bytes placeholder used in LOD component lists for
// missing tiles.
func Zero() Digest { return Digest{} }

// IsZero reports whether d is the all-zero placeholder.
func (d Digest) IsZero() bool { return d == Digest{} }

// FromHex parses a 32-character hex string (any case) into a Digest.
func FromHex(s string) (Digest, error) {
	if len(s) != Size*2 {
		return Digest{}, errs.Fmt("digest: %q has length %d, want %d", s, len(s), Size*2)
	}
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return Digest{}, errs.WrapFmt(err, "digest: %q is not valid hex", s)
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// FromBytes copies a byte slice of length Size into a Digest.
func FromBytes(b []byte) (Digest, error) {
	if len(b) != Size {
		return Digest{}, errs.Fmt("digest: byte slice has length %d, want %d", len(b), Size)
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

// Sum computes the MD5 digest of data. MD5 is not used here for any
// security property; it is the fixed 128-bit content-addressing function
// this system standardizes on end-to-end (tile content keys, LOD tile
// hashes, and the composition hash all derive from it).
func Sum(data []byte) Digest {
	return Digest(md5.Sum(data))
}

// Hex renders the canonical lowercase 32-character hex form.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// String satisfies fmt.Stringer with the canonical hex form.
func (d Digest) String() string { return d.Hex() }

// Bytes returns the raw 16 bytes.
func (d Digest) Bytes() []byte { return d[:] }

// UppercaseHex renders the tile-row textual form: hash is uppercase-hex
// when rendered.
func (d Digest) UppercaseHex() string { return strings.ToUpper(d.Hex()) }

// Less gives a deterministic total order over Digests, used when a stable
// sort of digests is needed independent of insertion order.
func (d Digest) Less(other Digest) bool {
	for i := range d {
		if d[i] != other[i] {
			return d[i] < other[i]
		}
	}
	return false
}
