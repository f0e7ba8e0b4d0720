// Package dns provides the resolver layer shared by every transport: a
// TTL-bound address cache plus an HTTPS-record prober that detects HTTP/3
// support before any connection is made.
package dns

import (
	"context"
	"net"
	"sync"
	"time"
)

type record struct {
	ips       []net.IP
	expiresAt time.Time
}

func (r *record) expired() bool {
	return time.Now().After(r.expiresAt)
}

// resolver is what the cache needs from net.Resolver; tests substitute
// their own.
type resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Cache memoizes address lookups so repeated requests to the same host
// skip the resolver. Stale entries are served when a refresh lookup fails.
type Cache struct {
	mu       sync.RWMutex
	records  map[string]*record
	resolver resolver
	ttl      time.Duration
}

// NewCache creates an address cache backed by the system resolver.
func NewCache() *Cache {
	return &Cache{
		records:  make(map[string]*record),
		resolver: net.DefaultResolver,
		ttl:      5 * time.Minute,
	}
}

// Resolve returns the addresses for host, from cache when fresh.
func (c *Cache) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	c.mu.RLock()
	rec, ok := c.records[host]
	c.mu.RUnlock()

	if ok && !rec.expired() {
		return rec.ips, nil
	}

	ips, err := c.lookup(ctx, host)
	if err != nil {
		if ok {
			// Stale beats failing.
			return rec.ips, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.records[host] = &record{ips: ips, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return ips, nil
}

func (c *Cache) lookup(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, addr := range addrs {
		ips[i] = addr.IP
	}
	return ips, nil
}

// ResolveOne returns a single address for host, preferring IPv6 the way
// browsers do.
func (c *Cache) ResolveOne(ctx context.Context, host string) (net.IP, error) {
	ips, err := c.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no addresses found", Name: host}
	}
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// ResolveAllSorted returns the addresses interleaved IPv6-first for
// Happy Eyeballs dialing (RFC 8305).
func (c *Cache) ResolveAllSorted(ctx context.Context, host string) ([]net.IP, error) {
	ips, err := c.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no addresses found", Name: host}
	}

	var ipv4, ipv6 []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			ipv4 = append(ipv4, ip)
		} else {
			ipv6 = append(ipv6, ip)
		}
	}

	result := make([]net.IP, 0, len(ips))
	i, j := 0, 0
	for i < len(ipv6) || j < len(ipv4) {
		if i < len(ipv6) {
			result = append(result, ipv6[i])
			i++
		}
		if j < len(ipv4) {
			result = append(result, ipv4[j])
			j++
		}
	}
	return result, nil
}

// Invalidate drops a host from the cache so the next Resolve hits the
// resolver again. Dialers call it when every cached address fails.
func (c *Cache) Invalidate(host string) {
	c.mu.Lock()
	delete(c.records, host)
	c.mu.Unlock()
}
