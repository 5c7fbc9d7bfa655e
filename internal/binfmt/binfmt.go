// Package binfmt implements the byte-level primitives the PKG reader
// is built on: big-endian field decoding and constant-time comparison
// of fixed-length byte ranges (content-id and digest checks).
package binfmt

import (
	"crypto/subtle"
	"encoding/binary"
)

// Get32BE decodes a big-endian uint32 starting at b[0].
func Get32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Get64BE decodes a big-endian uint64 starting at b[0].
func Get64BE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// ConstantTimeEqual reports whether a and b are equal, in time
// independent of their contents. It returns false immediately (not
// constant-time) if the lengths differ, since the PKG format always
// compares fixed-length ranges and a length mismatch is a caller bug,
// not a secret-dependent branch.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
