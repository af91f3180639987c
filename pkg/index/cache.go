package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Cache persists built indexes as gob files keyed by corpus content hash,
// so repeated invocations over an unchanged corpus skip re-embedding.
type Cache struct {
	Dir string
}

// NewCache returns a cache rooted at dir. An empty dir disables caching.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

// Enabled reports whether the cache has somewhere to read and write
func (c *Cache) Enabled() bool {
	return c != nil && c.Dir != ""
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, "index-"+key+".gob")
}

// Load returns the cached index for key, or nil when there is none
func (c *Cache) Load(key string) (*VectorIndex, error) {
	if !c.Enabled() {
		return nil, nil
	}

	file, err := os.Open(c.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var idx VectorIndex
	if err := gob.NewDecoder(file).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decoding cached index %s: %w", key, err)
	}
	if len(idx.Chunks) == 0 || len(idx.Chunks) != len(idx.Embeddings) {
		return nil, fmt.Errorf("cached index %s is corrupt: %d chunks, %d embeddings", key, len(idx.Chunks), len(idx.Embeddings))
	}

	return &idx, nil
}

// Save writes idx under key, replacing any previous entry atomically
func (c *Cache) Save(key string, idx *VectorIndex) error {
	if !c.Enabled() {
		return nil
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.Dir, "index-*.tmp")
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	// Atomic rename
	return os.Rename(tmp.Name(), c.path(key))
}
