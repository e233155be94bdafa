package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is a fixed-size content digest over an asset's identity plus its
// bytes (§3): "a source's digest changes whenever either identity or
// content changes." Hashing the identity in is what makes two different
// assets with coincidentally identical bytes compare unequal.
type Digest [sha256.Size]byte

// Zero is the all-zero digest (not the hash of empty content); used as
// the sentinel "no digest yet" value (e.g. a generated node that failed before writing anything).
var Zero Digest

// Compute hashes id's string form together with content, the same
// fixed-length-key technique the teacher's cache package uses to turn an
// arbitrary string into a bounded map key (cache/cache.go).
func Compute(id ID, content []byte) Digest {
	h := sha256.New()
	_, _ = h.Write([]byte(id.String()))
	h.Write([]byte{0}) // separator: prevents ("ab","c") colliding with ("a","bc")
	_, _ = h.Write(content)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// String renders the digest as lowercase hex, the form persisted in
// asset_graph.json.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the sentinel empty digest.
func (d Digest) IsZero() bool {
	return d == Zero
}

// ParseDigest parses the hex form produced by String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != len(d) {
		return d, errShortDigest{len(b)}
	}
	copy(d[:], b)
	return d, nil
}

type errShortDigest struct{ n int }

func (e errShortDigest) Error() string {
	return fmt.Sprintf("asset: digest must be %d bytes, got %d", sha256.Size, e.n)
}
