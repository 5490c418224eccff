package contentcache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// ProduceFunc generates the artifact for a content string and returns its
// reference. It is only called when the cache has no entry for the content.
type ProduceFunc func(ctx context.Context) (string, error)

// Memoizer guarantees at most one producer call per unique content string:
// concurrent requests for the same unseen content coalesce into a single
// generation, and all callers receive that one result.
type Memoizer struct {
	cache Cache
	group singleflight.Group
}

// NewMemoizer wraps cache with producer coalescing.
func NewMemoizer(cache Cache) *Memoizer {
	return &Memoizer{cache: cache}
}

// GetOrProduce returns the cached artifact reference for content, producing
// and caching it on first sight. Errors from produce are not cached, so a
// later call retries.
func (m *Memoizer) GetOrProduce(ctx context.Context, content string, produce ProduceFunc) (string, error) {
	digest := Digest(content)
	if ref, ok, err := m.cache.Get(ctx, digest); err != nil {
		return "", err
	} else if ok {
		return ref, nil
	}

	ref, err, _ := m.group.Do(digest, func() (interface{}, error) {
		// Re-check: another flight may have finished between our Get and Do.
		if ref, ok, err := m.cache.Get(ctx, digest); err != nil {
			return "", err
		} else if ok {
			return ref, nil
		}
		ref, err := produce(ctx)
		if err != nil {
			return "", err
		}
		if err := m.cache.Put(ctx, digest, ref); err != nil {
			return "", err
		}
		return ref, nil
	})
	if err != nil {
		return "", err
	}
	return ref.(string), nil
}

// Close closes the underlying cache.
func (m *Memoizer) Close() error {
	return m.cache.Close()
}
