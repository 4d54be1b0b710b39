package adapters

import (
	"bytes"
	"container/list"
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

// LRUCache holds reference image descriptions produced by the vision stage,
// keyed by image URL digest. It is bounded by entry count and every entry
// carries its own deadline, so a stale description is never served after the
// configured TTL even if it is still recent.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	byKey    map[string]*list.Element
	recency  *list.List // front is most recently used
	now      func() time.Time
}

type description struct {
	key      string
	text     []byte
	deadline time.Time
}

// NewLRUCache returns a cache keeping at most capacity descriptions.
// A capacity below one is raised to one.
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: max(capacity, 1),
		byKey:    make(map[string]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Get returns the description stored under key. An expired entry is dropped
// and reported as a miss.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	d := el.Value.(*description)
	if c.now().After(d.deadline) {
		c.drop(el)
		return nil, false
	}
	c.recency.MoveToFront(el)
	return bytes.Clone(d.text), true
}

// Set stores value under key for ttlSeconds, replacing any previous entry and
// evicting the least recently used one when full.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(time.Duration(ttlSeconds) * time.Second)
	if el, ok := c.byKey[key]; ok {
		d := el.Value.(*description)
		d.text = bytes.Clone(value)
		d.deadline = deadline
		c.recency.MoveToFront(el)
		return nil
	}

	c.byKey[key] = c.recency.PushFront(&description{key: key, text: bytes.Clone(value), deadline: deadline})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
	}
	return nil
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		c.drop(el)
	}
	return nil
}

// Len counts stored entries, including expired ones not yet looked up.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *LRUCache) drop(el *list.Element) {
	d := c.recency.Remove(el).(*description)
	delete(c.byKey, d.key)
}

var _ ports.Cache = (*LRUCache)(nil)
