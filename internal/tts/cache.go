package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/solenne/livecast/internal/logger"
)

// Cache maps announcement text to a synthesized audio file on disk. The
// key is sha256(modelID + ":" + text), so switching the voice model
// invalidates everything until the model is switched back. An in-memory
// index sits in front of the directory scan, and files from previous
// runs are found on first lookup, giving a warm start.
type Cache struct {
	mu      sync.RWMutex
	paths   map[string]string // key -> absolute file path
	dir     string
	modelID int
	log     *logger.Logger
	hits    int64
	misses  int64
}

// NewCache creates a cache rooted at dir. The directory is created if
// missing; a failure there disables the disk layer.
func NewCache(dir string, modelID int, log *logger.Logger) *Cache {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("tts cache: creating %s: %v", dir, err)
			dir = ""
		}
	}
	return &Cache{
		paths:   make(map[string]string),
		dir:     dir,
		modelID: modelID,
		log:     log,
	}
}

// Get returns the cached audio path for text, if present in the index
// or on disk from an earlier run.
func (c *Cache) Get(text string) (string, bool) {
	key := c.hashKey(text)

	c.mu.RLock()
	path, ok := c.paths[key]
	c.mu.RUnlock()
	if ok {
		c.bump(&c.hits)
		return path, true
	}

	if c.dir != "" {
		if path, ok := c.findOnDisk(key); ok {
			c.mu.Lock()
			c.paths[key] = path
			c.hits++
			c.mu.Unlock()
			c.log.Debug("tts cache hit (disk): %s", truncate(text, 40))
			return path, true
		}
	}

	c.bump(&c.misses)
	return "", false
}

// Put writes the audio bytes under the text's key and returns the file
// path. ext must include the leading dot.
func (c *Cache) Put(text, ext string, audio []byte) (string, error) {
	if c.dir == "" {
		return "", fmt.Errorf("tts cache: no cache directory")
	}

	key := c.hashKey(text)
	path := filepath.Join(c.dir, key+ext)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("tts cache: writing %s: %w", path, err)
	}

	c.mu.Lock()
	c.paths[key] = path
	c.mu.Unlock()
	c.log.Debug("tts cache store: %s (%d bytes)", truncate(text, 40), len(audio))
	return path, nil
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *Cache) bump(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// hashKey returns a hex sha256 of modelID + ":" + text.
func (c *Cache) hashKey(text string) string {
	h := sha256.Sum256([]byte(strconv.Itoa(c.modelID) + ":" + text))
	return hex.EncodeToString(h[:])
}

// findOnDisk looks for key.* in the cache dir; the extension varies with
// what the voice service returned.
func (c *Cache) findOnDisk(key string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(c.dir, key+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
