package cmap

import (
	"strconv"
	"sync"
	"testing"
)

func TestMap_SetGetDelete(t *testing.T) {
	m := New[int]()

	m.Set("a", 1)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v, want 1, true", v, ok)
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("Get(a) found a deleted key")
	}
}

func TestMap_GetOrSet(t *testing.T) {
	m := New[string]()

	v, loaded := m.GetOrSet("k", "first")
	if loaded || v != "first" {
		t.Fatalf("GetOrSet = %q, loaded=%v, want first insert", v, loaded)
	}

	v, loaded = m.GetOrSet("k", "second")
	if !loaded || v != "first" {
		t.Fatalf("GetOrSet = %q, loaded=%v, want existing value kept", v, loaded)
	}
}

func TestMap_CountAndClear(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.Set(strconv.Itoa(i), i)
	}
	if got := m.Count(); got != 100 {
		t.Fatalf("Count() = %d, want 100", got)
	}

	m.Clear()
	if got := m.Count(); got != 0 {
		t.Fatalf("Count() after Clear = %d, want 0", got)
	}
}

func TestMap_Range(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	if sum != 3 {
		t.Fatalf("Range sum = %d, want 3", sum)
	}
}

func TestMap_RangeEarlyStop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(strconv.Itoa(i), i)
	}

	visited := 0
	m.Range(func(string, int) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Fatalf("Range visited %d entries, want stop at 5", visited)
	}
}

func TestMap_Keys(t *testing.T) {
	m := New[int]()
	m.Set("x", 1)
	m.Set("y", 2)

	keys := m.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want 2 keys", keys)
	}
}

func TestMap_BadShardCountFallsBack(t *testing.T) {
	m := NewWithShards[int](7)
	if len(m.shards) != DefaultShardCount {
		t.Fatalf("shards = %d, want fallback to %d", len(m.shards), DefaultShardCount)
	}
}

func TestMap_ConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa(i % 20)
				m.Set(key, g)
				m.Get(key)
				m.GetOrSet(key, g)
			}
		}(g)
	}
	wg.Wait()

	if got := m.Count(); got != 20 {
		t.Fatalf("Count() = %d, want 20", got)
	}
}
