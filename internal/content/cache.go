package content

import (
	"sync"
	"time"
)

// Entry is one cached copy of a topic's content.
type Entry struct {
	Content    string
	RevisionID string
	StoredAt   time.Time
}

// Cache is the in-memory tier. Expiry is lazy: an entry older than the TTL
// is reported absent by Get but stays in the map until overwritten or Reset.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache creates an empty cache. A nil clock uses time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]Entry),
	}
}

func (c *Cache) Get(topicID string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[topicID]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) Set(topicID, content, revisionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[topicID] = Entry{
		Content:    content,
		RevisionID: revisionID,
		StoredAt:   c.now(),
	}
}

func (c *Cache) Delete(topicID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, topicID)
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Len counts stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
