// Package cache stores per-file diagnostic results keyed by content hash,
// so unchanged files skip re-analysis across runs.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/panbanda/vestige/pkg/models"
)

// Cache is a file-backed diagnostic cache.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// entry is the on-disk shape of one cached file result.
type entry struct {
	Hash        string              `json:"hash"`
	Timestamp   time.Time           `json:"timestamp"`
	Diagnostics []models.Diagnostic `json:"diagnostics"`
}

// New creates a cache rooted at dir. A disabled cache is a no-op on every
// operation.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// HashFile computes a BLAKE3 hash of a file's contents.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes computes a BLAKE3 hash of bytes as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Get returns the cached diagnostics for path when the content hash still
// matches and the entry has not expired.
func (c *Cache) Get(path, hash string) ([]models.Diagnostic, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := os.ReadFile(c.keyPath(path))
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}

	if e.Hash != hash {
		return nil, false
	}
	if time.Since(e.Timestamp) > c.ttl {
		os.Remove(c.keyPath(path))
		return nil, false
	}

	return e.Diagnostics, true
}

// Set stores the diagnostics for path under its content hash.
func (c *Cache) Set(path, hash string, diags []models.Diagnostic) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(entry{
		Hash:        hash,
		Timestamp:   time.Now(),
		Diagnostics: diags,
	})
	if err != nil {
		return err
	}

	return os.WriteFile(c.keyPath(path), data, 0o600)
}

// Invalidate removes the entry for path.
func (c *Cache) Invalidate(path string) error {
	if !c.enabled {
		return nil
	}
	return os.Remove(c.keyPath(path))
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// keyPath converts a file path to a cache file path. The key is hashed so
// arbitrary paths map to flat filenames.
func (c *Cache) keyPath(path string) string {
	hash := blake3.Sum256([]byte(path))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+".json")
}

// Stats describes cache occupancy.
type Stats struct {
	Entries   int   `json:"entries"`
	TotalSize int64 `json:"total_size"`
}

// GetStats walks the cache directory and reports occupancy.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.enabled {
		return &Stats{}, nil
	}

	stats := &Stats{}
	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		stats.Entries++
		stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
