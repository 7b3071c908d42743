// Package cache реализует потокобезопасный in-memory кеш с TTL на запись
// и собственной статистикой обращений.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/isp-mcp-gateway/internal/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats содержит снимок счётчиков кеша.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	Clears  int64   `json:"clears"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hitRate"`
}

// Cache хранит значения по строковому ключу до истечения TTL.
// Просроченная запись считается отсутствующей и удаляется при чтении или в Cleanup.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	clock   clock.Clock

	hits, misses, sets, deletes, clears int64
}

// Option настраивает кеш.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock подменяет источник времени.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// New создаёт пустой кеш.
func New[V any](opts ...Option) *Cache[V] {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		clock:   o.clock,
	}
}

// Set сохраняет значение безусловно, перезаписывая существующую запись.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}
	c.sets++
}

// Get возвращает значение, если оно есть и не просрочено.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	return e.value, true
}

// Delete удаляет запись и сообщает, была ли она.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.deletes++
	return true
}

// DeletePrefix удаляет все записи, ключ которых начинается с prefix.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.deletes += int64(removed)
	return removed
}

// Clear удаляет все записи.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
	c.clears++
}

// Cleanup удаляет все просроченные записи и возвращает их количество.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats возвращает текущие счётчики.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		Deletes: c.deletes,
		Clears:  c.clears,
		Size:    len(c.entries),
	}
	if reads := c.hits + c.misses; reads > 0 {
		s.HitRate = float64(c.hits) / float64(reads)
	}
	return s
}
