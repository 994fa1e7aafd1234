// Package sha256 digests result documents for content-addressed blob paths.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

var _ enrichment.Hasher = (*Hasher)(nil)

// Hasher returns hex-encoded SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash never fails; the error satisfies enrichment.Hasher.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
