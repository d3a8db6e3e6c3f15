// Package cache provides an LRU cache of per-file analysis results with disk
// persistence.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/jsflow/pkg/types"
)

// formatVersion is bumped whenever the persisted layout or the meaning of
// cached results changes. Files written with another version are ignored.
const formatVersion = 1

// ErrVersionMismatch is returned by Load when the data was written by an
// incompatible version.
var ErrVersionMismatch = errors.New("cache format version mismatch")

// Key derives the cache key of a file from its content and the fingerprint
// of the configuration it is analyzed with.
func Key(content []byte, fingerprint uint64) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) + "-" + strconv.FormatUint(fingerprint, 16)
}

// Entry represents a cache entry with metadata.
type Entry struct {
	Key        string            `msgpack:"key"`
	Value      *types.FileResult `msgpack:"value"`
	AccessedAt time.Time         `msgpack:"accessed_at"`
	CreatedAt  time.Time         `msgpack:"created_at"`
	Size       int               `msgpack:"size"` // estimated size in bytes
}

// LRUCache is an in-memory LRU cache of file results. It is safe for
// concurrent use.
type LRUCache struct {
	mu           sync.Mutex
	items        map[string]*listItem
	lru          *list // doubly-linked list (most recent at front)
	maxSize      int
	maxBytes     int64
	currentBytes int64
	onEvict      func(key string, value *types.FileResult)
	stats        Stats
}

// listItem is an item in the doubly-linked list.
type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

// list represents a doubly-linked list.
type list struct {
	head *listItem // most recently accessed
	tail *listItem // least recently accessed
	len  int
}

func (l *list) remove(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

// moveToFront moves an item to the front (most recently used).
func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.remove(item)
	l.pushFront(item)
}

// removeBack removes and returns the least recently used item.
func (l *list) removeBack() *listItem {
	item := l.tail
	if item != nil {
		l.remove(item)
	}
	return item
}

// pushFront adds an item to the front of the list.
func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

// Options configures the LRU cache.
type Options struct {
	// MaxSize is the maximum number of entries.
	// 0 means unlimited.
	MaxSize int

	// MaxBytes is the approximate maximum size in bytes.
	// 0 means unlimited.
	MaxBytes int64

	// OnEvict is called when an entry is evicted.
	OnEvict func(key string, value *types.FileResult)
}

// Stats counts cache lookups.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns the share of lookups that hit, or 0 without lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates a new LRU cache with the given options.
func New(opts Options) *LRUCache {
	return &LRUCache{
		items:    make(map[string]*listItem),
		lru:      &list{},
		maxSize:  opts.MaxSize,
		maxBytes: opts.MaxBytes,
		onEvict:  opts.OnEvict,
	}
}

// Get retrieves a result from the cache.
func (c *LRUCache) Get(key string) (*types.FileResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Set stores a result in the cache.
func (c *LRUCache) Set(key string, value *types.FileResult) {
	size := estimateSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if item, exists := c.items[key]; exists {
		c.currentBytes -= int64(item.Size)
		item.Value = value
		item.Size = size
		item.AccessedAt = now
		c.currentBytes += int64(size)
		c.lru.moveToFront(item)
		c.evictIfNeeded()
		return
	}

	item := &listItem{Entry: Entry{Key: key, Value: value, AccessedAt: now, CreatedAt: now, Size: size}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.currentBytes += int64(size)
	c.evictIfNeeded()
}

// Delete removes a key from the cache.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.remove(item)
	delete(c.items, key)
	c.currentBytes -= int64(item.Size)
}

// Clear removes all entries from the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
	c.currentBytes = 0
}

// Len returns the number of entries in the cache.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CurrentBytes returns the approximate current size in bytes.
func (c *LRUCache) CurrentBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBytes
}

// Stats returns the lookup counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// evictIfNeeded evicts entries if the cache exceeds its limits.
func (c *LRUCache) evictIfNeeded() {
	for c.shouldEvict() {
		item := c.lru.removeBack()
		if item == nil {
			break
		}
		delete(c.items, item.Key)
		c.currentBytes -= int64(item.Size)
		c.stats.Evictions++

		if c.onEvict != nil {
			c.onEvict(item.Key, item.Value)
		}
	}
}

// shouldEvict returns true if the cache should evict entries. The most
// recent entry is never evicted.
func (c *LRUCache) shouldEvict() bool {
	if c.lru.len <= 1 {
		return false
	}
	if c.maxSize > 0 && c.lru.len > c.maxSize {
		return true
	}
	return c.maxBytes > 0 && c.currentBytes > c.maxBytes
}

// persisted is the on-disk layout. Entries are ordered from most to least
// recently used.
type persisted struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Save persists the cache to a writer using msgpack.
func (c *LRUCache) Save(w io.Writer) error {
	c.mu.Lock()
	data := persisted{Version: formatVersion, Entries: make([]Entry, 0, len(c.items))}
	for item := c.lru.head; item != nil; item = item.next {
		data.Entries = append(data.Entries, item.Entry)
	}
	c.mu.Unlock()

	if err := msgpack.NewEncoder(w).Encode(&data); err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	return nil
}

// Load restores the cache from a reader using msgpack. Existing entries are
// replaced.
func (c *LRUCache) Load(r io.Reader) error {
	var data persisted
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	if data.Version != formatVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, data.Version, formatVersion)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem)
	c.lru = &list{}
	c.currentBytes = 0
	for i := len(data.Entries) - 1; i >= 0; i-- {
		entry := data.Entries[i]
		if entry.Value == nil {
			continue
		}
		item := &listItem{Entry: entry}
		c.items[entry.Key] = item
		c.lru.pushFront(item)
		c.currentBytes += int64(entry.Size)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves the cache to a file, creating its directory. The file
// is replaced atomically.
func PersistToFile(c *LRUCache, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// LoadFromFile loads the cache from a file. A missing file leaves the cache
// empty.
func LoadFromFile(c *LRUCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}

// estimateSize estimates the size of a value in bytes from its encoding.
func estimateSize(value *types.FileResult) int {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return 0
	}
	return len(b)
}
