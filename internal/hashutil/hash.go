// Package hashutil computes content hashes and derives the sharded
// storage paths used for derivatives. There is no third-party
// equivalent worth reaching for here: crypto/sha256 is the canonical Go
// idiom for content hashing, and the path shape is a one-line format
// string, not a library concern.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DerivativeStoragePath derives the sharded blob store key for a
// derivative: derivatives/<sha256[0:2]>/<sha256>/<variant>.webp.
func DerivativeStoragePath(sha256hex string, variant pipeline.Variant) string {
	shard := "00"
	if len(sha256hex) >= 2 {
		shard = sha256hex[0:2]
	}
	return fmt.Sprintf("derivatives/%s/%s/%s.webp", shard, sha256hex, variant)
}
