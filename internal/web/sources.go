package web

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// ErrSourceNotFound is returned for unknown or expired source IDs.
var ErrSourceNotFound = errors.New("source not found")

// cachedSource is a decoded upload kept for previews and exports.
type cachedSource struct {
	ID       string
	Filename string
	Format   string
	Size     int64
	Sheets   []string
	Table    *record.Table
	Created  time.Time

	lastUsed time.Time
}

// sourceCache holds decoded sources in memory. Entries expire ttl after
// their last use; when full, the least recently used entry is evicted.
type sourceCache struct {
	mu      sync.Mutex
	entries map[string]*cachedSource
	ttl     time.Duration
	max     int
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

func newSourceCache(ttl time.Duration, max int) *sourceCache {
	return &sourceCache{
		entries: make(map[string]*cachedSource),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// start runs the expiry sweep every interval until Close.
func (c *sourceCache) start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the sweeper.
func (c *sourceCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Put stores src under a new ID and returns the ID.
func (c *sourceCache) Put(src *cachedSource) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	src.ID = uuid.New().String()
	src.Created = now
	src.lastUsed = now

	for c.max > 0 && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[src.ID] = src
	return src.ID
}

// Get returns the source and refreshes its expiry.
func (c *sourceCache) Get(id string) (*cachedSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.entries[id]
	if !ok || c.expired(src) {
		delete(c.entries, id)
		return nil, ErrSourceNotFound
	}
	src.lastUsed = c.now()
	return src, nil
}

// Delete removes a source. Unknown IDs return ErrSourceNotFound.
func (c *sourceCache) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return ErrSourceNotFound
	}
	delete(c.entries, id)
	return nil
}

// Len returns the number of cached sources, expired ones included until
// the next sweep.
func (c *sourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *sourceCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, src := range c.entries {
		if c.expired(src) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *sourceCache) expired(src *cachedSource) bool {
	return c.ttl > 0 && c.now().Sub(src.lastUsed) > c.ttl
}

// evictOldest drops the least recently used entry. Callers hold the lock.
func (c *sourceCache) evictOldest() {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.entries[ids[i]].lastUsed.Before(c.entries[ids[j]].lastUsed)
	})
	if len(ids) > 0 {
		delete(c.entries, ids[0])
	}
}
