package store

import (
	"fmt"
	"testing"
)

func TestLRUCapacityBound(t *testing.T) {
	c := NewLRU[int](5)
	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	if c.Len() != 5 {
		t.Fatalf("len %d, want exactly capacity (5)", c.Len())
	}
	if c.Contains("k0") {
		t.Fatal("least-recently-used entry k0 should have been evicted")
	}
	if !c.Contains("k5") {
		t.Fatal("newest entry missing")
	}
}

func TestLRUGetPromotes(t *testing.T) {
	c := NewLRU[int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch "a" so "b" becomes coldest.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Put("d", 4)

	if c.Contains("b") {
		t.Fatal("b should have been evicted as least recently accessed")
	}
	if !c.Contains("a") {
		t.Fatal("recently read entry must survive")
	}
}

func TestLRUPutUpdatesInPlace(t *testing.T) {
	c := NewLRU[int](2)
	c.Put("a", 1)
	c.Put("a", 2)
	if c.Len() != 1 {
		t.Fatalf("len %d after duplicate put", c.Len())
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("got %d, want updated value 2", v)
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRU[string](4)
	c.Put("x", "1")
	c.Delete("x")
	c.Delete("missing")
	if c.Contains("x") || c.Len() != 0 {
		t.Fatal("delete left residue")
	}
}

func TestLRUDeletePrefix(t *testing.T) {
	c := NewLRU[int](10)
	c.Put("world_a:1:2:3", 1)
	c.Put("world_a:4:5:6", 2)
	c.Put("world_b:1:2:3", 3)

	if n := c.DeletePrefix("world_a:"); n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	if c.Contains("world_a:1:2:3") || !c.Contains("world_b:1:2:3") {
		t.Fatal("wrong entries removed")
	}
}

func TestLRUClear(t *testing.T) {
	c := NewLRU[int](4)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len %d after clear", c.Len())
	}
	c.Put("a", 3)
	if v, _ := c.Get("a"); v != 3 {
		t.Fatal("cache unusable after clear")
	}
}
