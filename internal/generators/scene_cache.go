package generators

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheEntry describes one cached scene image on disk.
type CacheEntry struct {
	Key          string    `json:"key"`
	FilePath     string    `json:"file_path"`
	Prompt       string    `json:"prompt"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	FileSize     int64     `json:"file_size"`
}

// SceneCache is a disk-backed cache for rendered scene images, keyed by
// prompt hash. Entries expire after a TTL and the oldest are evicted once
// maxEntries is exceeded.
type SceneCache struct {
	entries    map[string]*CacheEntry
	directory  string
	maxEntries int
	ttl        time.Duration
	mu         sync.RWMutex
}

func NewSceneCache(directory string, maxEntries int, ttl time.Duration) *SceneCache {
	return &SceneCache{
		entries:    make(map[string]*CacheEntry),
		directory:  directory,
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// CacheKey derives the stable cache key for a prompt.
func CacheKey(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Initialize creates the cache directory and loads surviving entries.
func (c *SceneCache) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.directory, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	files, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".meta" {
			continue
		}
		metaData, err := os.ReadFile(filepath.Join(c.directory, f.Name()))
		if err != nil {
			continue
		}
		var entry CacheEntry
		if err := json.Unmarshal(metaData, &entry); err != nil {
			continue
		}
		if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
			_ = os.Remove(entry.FilePath)
			_ = os.Remove(entry.FilePath + ".meta")
			continue
		}
		c.entries[entry.Key] = &entry
	}
	return nil
}

// Get returns the image bytes for a key, or false on miss/expiry.
func (c *SceneCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		delete(c.entries, key)
		_ = os.Remove(entry.FilePath)
		_ = os.Remove(entry.FilePath + ".meta")
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		delete(c.entries, key)
		return nil, false
	}
	entry.LastAccessed = time.Now()
	return data, true
}

// Put stores image bytes under key and returns the entry.
func (c *SceneCache) Put(key string, data []byte, prompt string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := filepath.Join(c.directory, key+".png")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	now := time.Now()
	entry := &CacheEntry{
		Key:          key,
		FilePath:     filePath,
		Prompt:       prompt,
		CreatedAt:    now,
		LastAccessed: now,
		FileSize:     int64(len(data)),
	}
	c.entries[key] = entry

	if metaData, err := json.Marshal(entry); err == nil {
		_ = os.WriteFile(filePath+".meta", metaData, 0644)
	}

	c.evictLocked()
	return entry, nil
}

// Len returns the number of live entries.
func (c *SceneCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked removes the least recently accessed entries above maxEntries.
func (c *SceneCache) evictLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.LastAccessed.Before(oldest) {
				oldestKey = key
				oldest = entry.LastAccessed
			}
		}
		entry := c.entries[oldestKey]
		delete(c.entries, oldestKey)
		_ = os.Remove(entry.FilePath)
		_ = os.Remove(entry.FilePath + ".meta")
	}
}
