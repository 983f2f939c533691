package store

import "sync"

// InstrumentCache is a thread-safe ticker to id cache in front of the
// registry. Tickers are immutable, so entries only leave on delete.
type InstrumentCache struct {
	mu sync.RWMutex

	ids     map[string]int64
	tickers map[int64]string
}

// NewInstrumentCache creates an empty cache.
func NewInstrumentCache() *InstrumentCache {
	return &InstrumentCache{
		ids:     make(map[string]int64),
		tickers: make(map[int64]string),
	}
}

// Get returns the cached id for ticker (read-locked).
func (c *InstrumentCache) Get(ticker string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.ids[ticker]
	return id, ok
}

// Put records a ticker/id pair (write-locked).
func (c *InstrumentCache) Put(ticker string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ids[ticker] = id
	c.tickers[id] = ticker
}

// Evict drops the entry for id, if any.
func (c *InstrumentCache) Evict(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticker, ok := c.tickers[id]; ok {
		delete(c.ids, ticker)
		delete(c.tickers, id)
	}
}

// Len returns the number of cached instruments.
func (c *InstrumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
