package restrepo

import (
	"os"
	"path/filepath"
	"sync"
)

// sizeCache memoizes the on-disk size of a repository subtree. Quota
// enforcement is advisory: the cache may be stale under concurrent writes,
// which can only ever make it over-reject (recompute finds the tree bigger
// than cached) never under-reject by more than one in-flight write, per
// spec.md §4.2's "quota enforcement" requirement.
type sizeCache struct {
	mu    sync.Mutex
	sizes map[string]int64
}

func newSizeCache() *sizeCache {
	return &sizeCache{sizes: make(map[string]int64)}
}

// repoSize returns dir's total on-disk size, walking the subtree once and
// caching the result until the next invalidate for dir.
func (c *sizeCache) repoSize(dir string) (int64, error) {
	c.mu.Lock()
	if sz, ok := c.sizes[dir]; ok {
		c.mu.Unlock()
		return sz, nil
	}
	c.mu.Unlock()

	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.sizes[dir] = total
	c.mu.Unlock()
	return total, nil
}

// invalidate drops the cached size for dir so the next repoSize call
// recomputes it by walking the subtree.
func (c *sizeCache) invalidate(dir string) {
	c.mu.Lock()
	delete(c.sizes, dir)
	c.mu.Unlock()
}
