// package cache keeps provider search results on disk so repeated seed searches skip the network
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/upbeat/internal/models"
	"github.com/desertthunder/upbeat/internal/services"
	"github.com/desertthunder/upbeat/internal/shared"
	bolt "go.etcd.io/bbolt"
)

var searchBucket = []byte("search")

type entry struct {
	Tracks   []models.Track `json:"tracks"`
	StoredAt time.Time      `json:"stored_at"`
}

// SearchCache is a bbolt-backed TTL cache of search results keyed by provider and query.
type SearchCache struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the cache file at path.
func Open(path string, ttl time.Duration) (*SearchCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(searchBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &SearchCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the cache file.
func (c *SearchCache) Close() error {
	return c.db.Close()
}

func key(provider models.Provider, query string) []byte {
	return []byte(string(provider) + ":" + shared.NormalizeTerm(query))
}

// Get returns cached tracks for query. Expired entries are reported as misses.
func (c *SearchCache) Get(provider models.Provider, query string) ([]models.Track, bool, error) {
	var e *entry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(searchBucket).Get(key(provider, query))
		if data == nil {
			return nil
		}
		e = &entry{}
		return json.Unmarshal(data, e)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	if e == nil || c.expired(e) {
		return nil, false, nil
	}
	return e.Tracks, true, nil
}

// Put stores tracks for query.
func (c *SearchCache) Put(provider models.Provider, query string, tracks []models.Track) error {
	data, err := json.Marshal(entry{Tracks: tracks, StoredAt: c.now()})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(searchBucket).Put(key(provider, query), data)
	})
}

// Prune deletes expired entries and returns how many were removed.
func (c *SearchCache) Prune() (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(searchBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil || c.expired(&e) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Stats reports the number of stored entries.
func (c *SearchCache) Stats() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(searchBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *SearchCache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl
}

// CachedProvider wraps a [services.TrackProvider] with a [SearchCache] for Search.
// Recommendations always go to the provider.
type CachedProvider struct {
	services.TrackProvider
	cache  *SearchCache
	logger *log.Logger
}

// Wrap returns p with cached searches. Cache failures are logged and bypassed.
func Wrap(p services.TrackProvider, c *SearchCache, logger *log.Logger) *CachedProvider {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CachedProvider{TrackProvider: p, cache: c, logger: logger}
}

// Search returns cached results for query, or asks the wrapped provider and stores its answer.
func (p *CachedProvider) Search(ctx context.Context, query string) ([]models.Track, error) {
	name := p.Name()

	tracks, ok, err := p.cache.Get(name, query)
	if err != nil {
		p.logger.Warn("search cache read failed", "provider", name, "error", err)
	}
	if ok {
		p.logger.Debug("search cache hit", "provider", name, "query", query)
		return tracks, nil
	}

	tracks, err = p.TrackProvider.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Put(name, query, tracks); err != nil {
		p.logger.Warn("search cache write failed", "provider", name, "error", err)
	}
	return tracks, nil
}
