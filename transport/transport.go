// Package transport holds the connection-level machinery: uTLS dialing
// with browser ClientHello presentation, an ALPN-driven TCP client for
// HTTP/1.1 and HTTP/2, and a QUIC client for HTTP/3. The protocol ceiling
// configured on the engine decides which of these a request may use; the
// clients themselves never negotiate above what their ALPN advertised.
package transport

import (
	"context"

	http "github.com/sardanioss/http"
)

// Version identifies an HTTP protocol version on the wire.
type Version int

const (
	HTTP1 Version = iota + 1
	HTTP2
	HTTP3
)

func (v Version) String() string {
	switch v {
	case HTTP1:
		return "h1"
	case HTTP2:
		return "h2"
	case HTTP3:
		return "h3"
	default:
		return "unknown"
	}
}

// ALPN returns the protocol identifiers to offer when v is the ceiling.
// Servers pick the highest mutually supported entry, so a ceiling of
// HTTP/2 still allows an HTTP/1.1-only server to negotiate down.
func (v Version) ALPN() []string {
	switch v {
	case HTTP1:
		return []string{"http/1.1"}
	default:
		return []string{"h2", "http/1.1"}
	}
}

// Client executes a single prepared request over one protocol family.
// Redirect following and protocol selection live above this interface.
type Client interface {
	Execute(ctx context.Context, req *http.Request) (*http.Response, error)
	Close() error
}
