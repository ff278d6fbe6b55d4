// Package checksum renders the content hashes used by block descriptors.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"strings"
)

// HexLen is the length of a rendered digest.
const HexLen = md5.Size * 2

// New returns the digest used for block and file hashes.
func New() hash.Hash {
	return md5.New()
}

// Hex renders sum as fixed-width uppercase hexadecimal.
func Hex(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// IsHex reports whether s looks like a digest rendered by Hex.
func IsHex(s string) bool {
	if len(s) != HexLen {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}

	return true
}

// Sum hashes data and returns its uppercase hex digest.
func Sum(data []byte) string {
	sum := md5.Sum(data)
	return Hex(sum[:])
}
