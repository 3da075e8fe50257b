// Package release implements the packed 64-bit release identifier (R): a
// non-negative integer encoding (e,a,b,c) as e<<52 | a<<42 | b<<32 | c,
// with e in 11 bits, a and b in 10 bits each, and c in the low 32 bits.
// The top (reserved) bit is always zero.
package release

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jimbomcb/wow-minimaps/errs"
)

const (
	eBits, aBits, bBits, cBits = 11, 10, 10, 32
	eMax                       = 1<<eBits - 1
	aMax                       = 1<<aBits - 1
	bMax                       = 1<<bBits - 1
	cMax                       = 1<<cBits - 1

	cShift = 0
	bShift = cBits
	aShift = cBits + bBits
	eShift = cBits + bBits + aBits
)

// R is a packed release identifier. Integer ordering of R matches
// semantic "newer-than" ordering of the (e,a,b,c) tuple it encodes.
type R uint64

// Pack builds an R from its four components. Returns an error if any
// component is out of its allotted bit range.
func Pack(e, a, b int, c uint32) (R, error) {
	if e < 0 || e > eMax {
		return 0, errs.Fmt("release: expansion component %d out of range [0,%d]", e, eMax)
	}
	if a < 0 || a > aMax {
		return 0, errs.Fmt("release: major component %d out of range [0,%d]", a, aMax)
	}
	if b < 0 || b > bMax {
		return 0, errs.Fmt("release: minor component %d out of range [0,%d]", b, bMax)
	}
	r := R(uint64(e)<<eShift | uint64(a)<<aShift | uint64(b)<<bShift | uint64(c)<<cShift)
	return r, nil
}

// MustPack panics on an invalid component; reserved for test fixtures and
// compile-time-known constants.
func MustPack(e, a, b int, c uint32) R {
	r, err := Pack(e, a, b, c)
	if err != nil {
		panic(err)
	}
	return r
}

// Decode splits R back into its four components.
func (r R) Decode() (e, a, b int, c uint32) {
	e = int((uint64(r) >> eShift) & eMax)
	a = int((uint64(r) >> aShift) & aMax)
	b = int((uint64(r) >> bShift) & bMax)
	c = uint32(uint64(r) & cMax)
	return
}

// String renders the canonical dotted form "e.a.b.c".
func (r R) String() string {
	e, a, b, c := r.Decode()
	return fmt.Sprintf("%d.%d.%d.%d", e, a, b, c)
}

// Parse parses the canonical dotted string "e.a.b.c" into an R. Out-of-range
// or malformed components fail deterministically.
func Parse(s string) (R, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, errs.Fmt("release: %q does not have 4 dot-separated components", s)
	}
	nums := make([]uint64, 4)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return 0, errs.WrapFmt(err, "release: component %d (%q) is not a non-negative integer", i, p)
		}
		nums[i] = n
	}
	if nums[3] > cMax {
		return 0, errs.Fmt("release: build component %d out of range [0,%d]", nums[3], cMax)
	}
	return Pack(int(nums[0]), int(nums[1]), int(nums[2]), uint32(nums[3]))
}

// Uint64 exposes the underlying packed integer, e.g. for SQL storage as a
// bigint (the database's encode_build_version stored function performs
// the same packing independently; the check constraint on the builds
// table enforces the two stay in agreement).
func (r R) Uint64() uint64 { return uint64(r) }

// FromUint64 wraps a raw packed integer as an R without re-validating it
// (used when reading a value already persisted by the database, which the
// builds table's check constraint has already validated on insert).
func FromUint64(v uint64) R { return R(v) }

// Less reports whether r is strictly older than other. Equivalent to plain
// integer comparison, exposed for readability at call sites.
func (r R) Less(other R) bool { return r < other }
