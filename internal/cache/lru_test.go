// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newWithClock[K comparable, V any](capacity int, ttl time.Duration) (*LRU[K, V], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[K, V](capacity, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRU_BasicOperations(t *testing.T) {
	c := New[string, int](3, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		got, ok := c.Get(key)
		if !ok || got != want {
			t.Errorf("Get(%q) = %d, %v; want %d, true", key, got, ok, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	c.Add("a", 10)
	if got, _ := c.Get("a"); got != 10 {
		t.Errorf("Get(a) after update = %d, want 10", got)
	}
	if !c.Remove("a") || c.Remove("a") {
		t.Error("Remove should report presence exactly once")
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := New[string, int](3, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	c.Get("a")    // a becomes most recently used
	c.Add("d", 4) // evicts b

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %q to be present", key)
		}
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	c, clock := newWithClock[string, string](10, time.Minute)
	c.Add("job", "01J")

	if _, ok := c.Get("job"); !ok {
		t.Fatal("expected entry before expiry")
	}
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("job"); ok {
		t.Error("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy expiry", c.Len())
	}
}

func TestLRU_GetOrAdd(t *testing.T) {
	c, clock := newWithClock[string, string](10, time.Minute)

	got, loaded := c.GetOrAdd("payload", "job-1")
	if loaded || got != "job-1" {
		t.Fatalf("first GetOrAdd = %q, %v; want job-1, false", got, loaded)
	}
	got, loaded = c.GetOrAdd("payload", "job-2")
	if !loaded || got != "job-1" {
		t.Fatalf("second GetOrAdd = %q, %v; want job-1, true", got, loaded)
	}

	clock.Advance(time.Minute + time.Second)
	got, loaded = c.GetOrAdd("payload", "job-3")
	if loaded || got != "job-3" {
		t.Errorf("GetOrAdd after expiry = %q, %v; want job-3, false", got, loaded)
	}

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 2 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d; want 1, 2, 1", hits, misses, size)
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	c, clock := newWithClock[int, bool](10, time.Minute)
	c.Add(1, true)
	c.Add(2, true)
	clock.Advance(30 * time.Second)
	c.Add(3, true)
	clock.Advance(45 * time.Second)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", removed)
	}
	if _, ok := c.Get(3); !ok {
		t.Error("entry 3 should still be live")
	}
}

func TestLRU_Defaults(t *testing.T) {
	c := New[string, int](0, 0)
	if c.capacity != 1024 || c.ttl != 5*time.Minute {
		t.Errorf("defaults = %d, %s; want 1024, 5m", c.capacity, c.ttl)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[string, int](100, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				c.GetOrAdd(key, g)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Len() = %d, want 50", c.Len())
	}
}
