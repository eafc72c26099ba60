// Package memory provides an in-process TTL cache for job ids.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

type entry struct {
	jobID     int64
	expiresAt time.Time
}

// Cache maps keys to job ids until their TTL elapses.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   scrape.Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New builds a Cache. A nil clock uses wall time.
func New(clock scrape.Clock) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	return &Cache{entries: make(map[string]entry), clock: clock}
}

// Get returns the cached job id for key, dropping it once expired.
func (c *Cache) Get(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return 0, false, nil
	}
	return e.jobID, true, nil
}

// Set stores jobID under key. A non-positive ttl never expires.
func (c *Cache) Set(_ context.Context, key string, jobID int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{jobID: jobID}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}
