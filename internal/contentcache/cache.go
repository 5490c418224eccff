// Package contentcache memoizes expensive artifact generation by content
// digest. Unlike the similarity cache, lookups here are exact: identical
// content always maps to the same digest and therefore the same artifact.
package contentcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 digest of content. It is deterministic and
// content-only (no salt, no timestamp), which is what makes reuse possible.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Cache maps content digests to artifact references. Entries never expire.
type Cache interface {
	// Get returns the artifact reference for digest, and whether it was found.
	Get(ctx context.Context, digest string) (string, bool, error)
	// Put stores the artifact reference for digest.
	Put(ctx context.Context, digest, artifactRef string) error
	Close() error
}
