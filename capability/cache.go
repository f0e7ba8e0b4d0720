// Package capability tracks, per host, whether HTTP/3 is known to work.
// Entries start Unknown, get seeded by an async DNS probe, and are updated
// from Alt-Svc advertisements observed on responses. Entries never expire;
// a server that drops h3 support mid-flight is only noticed when a QUIC
// attempt fails and the transport falls back.
package capability

import (
	"context"
	"sync"
)

// Record is the cached verdict for one host.
type Record int

const (
	Unknown Record = iota
	Supported
	Unsupported
)

func (r Record) String() string {
	switch r {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Prober answers whether a host advertises HTTP/3, typically via an HTTPS
// DNS record lookup.
type Prober interface {
	Probe(ctx context.Context, host string) (bool, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, host string) (bool, error)

func (f ProberFunc) Probe(ctx context.Context, host string) (bool, error) {
	return f(ctx, host)
}

// Cache holds per-host records. Each engine instance owns its own Cache;
// there is no process-wide shared state.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
	pending map[string]chan struct{}
	prober  Prober
}

// NewCache returns an empty cache. prober may be nil, in which case
// Resolve never seeds and hosts stay Unknown until Set is called.
func NewCache(prober Prober) *Cache {
	return &Cache{
		records: make(map[string]Record),
		pending: make(map[string]chan struct{}),
		prober:  prober,
	}
}

// Lookup returns the current record without blocking.
func (c *Cache) Lookup(host string) Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[host]
}

// Set records a definitive verdict for host, overwriting any prior state.
func (c *Cache) Set(host string, supported bool) {
	rec := Unsupported
	if supported {
		rec = Supported
	}
	c.mu.Lock()
	c.records[host] = rec
	c.mu.Unlock()
}

// Resolve returns the record for host, probing once if it is Unknown.
// Concurrent callers for the same host share a single probe; a probe
// failure leaves the host Unknown so a later call can retry.
func (c *Cache) Resolve(ctx context.Context, host string) Record {
	c.mu.Lock()
	if rec, ok := c.records[host]; ok {
		c.mu.Unlock()
		return rec
	}
	if c.prober == nil {
		c.mu.Unlock()
		return Unknown
	}
	if done, inFlight := c.pending[host]; inFlight {
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return Unknown
		}
		return c.Lookup(host)
	}
	done := make(chan struct{})
	c.pending[host] = done
	c.mu.Unlock()

	supported, err := c.prober.Probe(ctx, host)

	c.mu.Lock()
	delete(c.pending, host)
	if err == nil {
		if supported {
			c.records[host] = Supported
		} else {
			c.records[host] = Unsupported
		}
	}
	rec := c.records[host]
	c.mu.Unlock()
	close(done)
	return rec
}

// Seed starts a background probe for host if its record is Unknown. It
// returns immediately; the verdict lands in the cache when the probe
// completes.
func (c *Cache) Seed(ctx context.Context, host string) {
	if c.prober == nil || c.Lookup(host) != Unknown {
		return
	}
	go c.Resolve(ctx, host)
}

// Len reports the number of hosts with a cached verdict.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
