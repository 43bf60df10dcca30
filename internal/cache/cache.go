// Package cache keeps directory search results on disk so the station list
// is available offline and without hitting the directory on every start.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/station"
)

const (
	// DefaultTTL is how long a cached result counts as fresh.
	DefaultTTL = time.Hour
	// DefaultMaxAge is how long a stale result is kept as an offline fallback.
	DefaultMaxAge = 7 * 24 * time.Hour
	// ResultSubdir is the subdirectory for cached search results.
	ResultSubdir = "directory"
	// AppName is used for the cache directory name.
	AppName = "rtap"
)

// Cache manages disk-based caching of directory search results.
type Cache struct {
	baseDir string
	ttl     time.Duration
	maxAge  time.Duration
}

type entry struct {
	Key      string            `json:"key"`
	SavedAt  time.Time         `json:"saved_at"`
	Stations []station.Station `json:"stations"`
}

// NewCache creates a Cache in the user cache directory. A non-positive ttl
// selects DefaultTTL.
func NewCache(ttl time.Duration) (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}
	return New(cacheDir, ttl), nil
}

// New creates a Cache rooted at dir.
func New(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		baseDir: dir,
		ttl:     ttl,
		maxAge:  max(DefaultMaxAge, ttl),
	}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	cacheDir := filepath.Join(userCacheDir, AppName)
	return cacheDir, nil
}

func hashKey(key string) string {
	hash := md5.Sum([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) dir() string {
	return filepath.Join(c.baseDir, ResultSubdir)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir(), hashKey(key)+".json")
}

// Get returns the cached stations for key if they are still fresh.
func (c *Cache) Get(key string) ([]station.Station, bool) {
	e, ok := c.load(key)
	if !ok || time.Since(e.SavedAt) > c.ttl {
		return nil, false
	}
	return e.Stations, true
}

// GetStale returns the cached stations for key regardless of age, along
// with the time they were saved.
func (c *Cache) GetStale(key string) ([]station.Station, time.Time, bool) {
	e, ok := c.load(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return e.Stations, e.SavedAt, true
}

func (c *Cache) load(key string) (entry, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to decode cached result")
		return entry{}, false
	}
	if e.Key != key {
		return entry{}, false
	}
	return e, true
}

// Save stores stations under key, replacing any previous result.
func (c *Cache) Save(key string, stations []station.Station) error {
	if err := os.MkdirAll(c.dir(), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(entry{Key: key, SavedAt: time.Now(), Stations: stations})
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tmpFile, err := os.CreateTemp(c.dir(), ".result-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// CleanExpired removes results older than the stale fallback window.
func (c *Cache) CleanExpired() error {
	entries, err := os.ReadDir(c.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.maxAge {
			filePath := filepath.Join(c.dir(), entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
