package cache

import (
	"testing"
	"time"
)

func TestLRURoundTrip(t *testing.T) {
	c := NewLRU(10, time.Minute)
	c.Set("a", []byte("1"))
	v, ok := c.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("expected hit with value 1, got %q ok=%v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRU(3, time.Minute)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))
	c.Set("d", []byte("4"))

	if _, ok := c.Get("a"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %q to survive", k)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
}

func TestLRUReadBumpsAccessOrder(t *testing.T) {
	c := NewLRU(3, time.Minute)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))

	// Touching a makes b the eviction victim.
	c.Get("a")
	c.Set("d", []byte("4"))

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted after a was bumped")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should survive after being bumped")
	}
}

func TestLRUTTLExpiry(t *testing.T) {
	now := time.Now()
	c := NewLRU(10, 5*time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", []byte("1"))
	now = now.Add(4 * time.Minute)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry should be live before TTL")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should expire after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be swept on read, len = %d", c.Len())
	}
}

func TestLRUSetRefreshesTTL(t *testing.T) {
	now := time.Now()
	c := NewLRU(10, 5*time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", []byte("1"))
	now = now.Add(4 * time.Minute)
	c.Set("a", []byte("2"))
	now = now.Add(4 * time.Minute)

	v, ok := c.Get("a")
	if !ok || string(v) != "2" {
		t.Fatalf("rewrite should refresh TTL and value, got %q ok=%v", v, ok)
	}
}
