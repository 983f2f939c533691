package store

import (
	"sync"
	"testing"
)

func TestInstrumentCache(t *testing.T) {
	c := NewInstrumentCache()

	if _, ok := c.Get("AAPL"); ok {
		t.Error("empty cache should miss")
	}

	c.Put("AAPL", 1)
	c.Put("MSFT", 2)
	if id, ok := c.Get("AAPL"); !ok || id != 1 {
		t.Errorf("Get(AAPL) = %d, %v; want 1, true", id, ok)
	}

	c.Evict(1)
	if _, ok := c.Get("AAPL"); ok {
		t.Error("evicted ticker should miss")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	// Evicting an unknown id is a no-op.
	c.Evict(42)
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestInstrumentCache_Concurrent(t *testing.T) {
	c := NewInstrumentCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			c.Put("T", id)
		}(int64(i))
		go func() {
			defer wg.Done()
			c.Get("T")
		}()
	}
	wg.Wait()

	if _, ok := c.Get("T"); !ok {
		t.Error("ticker should be cached")
	}
}
