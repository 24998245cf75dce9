package orchestrator

import (
	"sync"
	"time"

	"orchestrator/internal/domain"
)

// StatusSnapshot is the cached per-owner view of recent task activity.
type StatusSnapshot struct {
	OwnerID   string                    `json:"owner_id"`
	Counts    map[domain.TaskStatus]int `json:"counts"`
	Tasks     []domain.GenerationTask   `json:"tasks"`
	FetchedAt time.Time                 `json:"fetched_at"`
}

// StatusCache is an explicit TTL cache for owner status snapshots, owned by
// the orchestrator instead of living in process-global maps. Every mutating
// task operation invalidates the owner's entry write-through, so observers
// never read a stale snapshot past one mutation.
type StatusCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]statusEntry
}

type statusEntry struct {
	snapshot StatusSnapshot
	storedAt time.Time
}

func NewStatusCache(ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatusCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]statusEntry),
	}
}

// Get returns the owner's snapshot when present and fresh.
func (c *StatusCache) Get(ownerID string) (StatusSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[ownerID]
	if !ok {
		return StatusSnapshot{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, ownerID)
		return StatusSnapshot{}, false
	}
	return entry.snapshot, true
}

// Put stores the owner's snapshot.
func (c *StatusCache) Put(ownerID string, snapshot StatusSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ownerID] = statusEntry{snapshot: snapshot, storedAt: c.now()}
}

// Invalidate drops the owner's entry.
func (c *StatusCache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ownerID)
}
