package cache

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/jsflow/pkg/types"
)

func result(path string, rules ...string) *types.FileResult {
	r := &types.FileResult{Path: path, Functions: 2}
	for i, rule := range rules {
		r.Issues = append(r.Issues, types.Issue{
			File:     path,
			Location: types.Location{Line: i + 1, Column: 3, EndLine: i + 1, EndColumn: 9},
			Message:  "Condition is always false.",
			Rule:     rule,
		})
	}
	return r
}

func TestKey(t *testing.T) {
	a := Key([]byte("function f() {}"), 1)
	assert.Equal(t, a, Key([]byte("function f() {}"), 1))
	assert.NotEqual(t, a, Key([]byte("function f() {}"), 2), "config changes invalidate")
	assert.NotEqual(t, a, Key([]byte("function g() {}"), 1), "content changes invalidate")
}

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", result("a.js"))
	c.Set("b", result("b.js"))
	c.Set("c", result("c.js"))

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "a.js", val.Path)

	_, found = c.Get("missing")
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ *types.FileResult) {
		evicted = append(evicted, key)
	}})

	c.Set("a", result("a.js"))
	c.Set("b", result("b.js"))
	c.Set("c", result("c.js"))

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", result("d.js"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, "%s should still be present", k)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("a", result("a.js"))
	c.Set("b", result("b.js"))

	c.Delete("a")
	c.Delete("a")
	assert.Equal(t, 1, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Zero(t, c.CurrentBytes())
}

func TestLRUCache_Update(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", result("a.js"))
	c.Set("a", result("a.js", "S2583"))

	val, found := c.Get("a")
	require.True(t, found)
	assert.Len(t, val.Issues, 1)
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_MaxBytes(t *testing.T) {
	one, err := msgpack.Marshal(result("a.js", "S2583"))
	require.NoError(t, err)

	c := New(Options{MaxBytes: int64(2*len(one) + 1)})
	c.Set("a", result("a.js", "S2583"))
	c.Set("b", result("b.js", "S2583"))
	c.Set("c", result("c.js", "S2583"))

	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.CurrentBytes(), int64(2*len(one)+1))
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestLRUCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("key1", result("a.js", "S2583", "S2259"))
	c.Set("key2", result("b.js"))
	c.Get("key1")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options{MaxSize: 10})
	require.NoError(t, c2.Load(&buf))
	assert.Equal(t, 2, c2.Len())

	val, found := c2.Get("key1")
	require.True(t, found)
	if diff := cmp.Diff(result("a.js", "S2583", "S2259"), val); diff != "" {
		t.Errorf("restored result mismatch (-want +got):\n%s", diff)
	}

	// Recency survives the round trip: key2 is the oldest.
	c3 := New(Options{MaxSize: 1})
	buf.Reset()
	require.NoError(t, c.Save(&buf))
	require.NoError(t, c3.Load(&buf))
	_, found = c3.Get("key1")
	assert.True(t, found)
}

func TestLRUCache_LoadRejectsOtherVersions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&buf).Encode(&persisted{Version: formatVersion + 1}))

	err := New(Options{}).Load(&buf)
	assert.True(t, errors.Is(err, ErrVersionMismatch))

	err = New(Options{}).Load(bytes.NewReader([]byte{0xc1}))
	assert.Error(t, err)
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.cache")

	c := New(Options{})
	c.Set("k", result("a.js", "S1763"))
	require.NoError(t, PersistToFile(c, path))

	c2 := New(Options{})
	require.NoError(t, LoadFromFile(c2, path))
	val, found := c2.Get("k")
	require.True(t, found)
	assert.Equal(t, "S1763", val.Issues[0].Rule)

	missing := New(Options{})
	require.NoError(t, LoadFromFile(missing, filepath.Join(t.TempDir(), "none")))
	assert.Equal(t, 0, missing.Len())
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := New(Options{MaxSize: 50})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n*100+j)%70)
				c.Set(key, result(key))
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
