// Package pkgcrypto implements the AES-CTR-with-arbitrary-offset
// primitive the PKG pipeline uses for both the file-index and item
// bodies, the AES-128-ECB single-block encrypt the key ladder needs,
// and an incremental SHA-256 wrapper. All three are stdlib-backed:
// every repo in the reference corpus that touches AES or SHA reaches
// for crypto/aes, crypto/cipher and crypto/sha256 rather than a
// third-party implementation, and this module follows suit.
package pkgcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"hash"
)

var (
	// ErrInvalidKeyType is returned by DerivePackageKey for any value
	// outside {1,2,3,4}.
	ErrInvalidKeyType = errors.New("pkgcrypto: invalid key type")
)

// CTR XORs dst/src with the AES-CTR keystream for the given key and
// 16-byte IV, starting at an arbitrary byte offset into the stream
// (not necessarily block-aligned). It can be called repeatedly at
// non-contiguous offsets, which is required to decrypt the file-index
// (stream offsets 32*i) ahead of stepping through item bodies (stream
// offsets item_offset+k).
func CTR(block cipher.Block, iv [16]byte, streamOffset int64, dst, src []byte) {
	counter := streamOffset / 16
	within := int(streamOffset % 16)

	ctrIV := addCounter(iv, counter)
	stream := cipher.NewCTR(block, ctrIV[:])

	if within == 0 {
		stream.XORKeyStream(dst, src)
		return
	}

	// Advance the keystream to the requested sub-block byte offset by
	// discarding the leading `within` bytes of keystream output.
	discard := make([]byte, within)
	stream.XORKeyStream(discard, discard)
	stream.XORKeyStream(dst, src)
}

// NewBlock constructs an AES-128 cipher.Block from a 16-byte key.
func NewBlock(key []byte) (cipher.Block, error) {
	return aes.NewCipher(key)
}

// AESECBEncryptBlock encrypts exactly one 16-byte block of src under
// key into dst, used by the key ladder to turn the package IV into a
// per-package CTR key.
func AESECBEncryptBlock(dst, src, key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	block.Encrypt(dst, src)
	return nil
}

// addCounter adds value to the big-endian 128-bit integer formed by
// iv, treating iv as the initial CTR counter block. This mirrors the
// big-endian carry-propagating increment the source format expects
// (the IV's low bytes are the counter).
func addCounter(iv [16]byte, value int64) [16]byte {
	out := iv
	n := 16
	for {
		n--
		value += int64(out[n])
		out[n] = byte(value)
		value >>= 8
		if n == 0 {
			break
		}
	}
	return out
}

// NewSHA256 returns a fresh incremental SHA-256 hasher.
func NewSHA256() hash.Hash {
	return sha256.New()
}
