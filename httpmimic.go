// Package httpmimic is an HTTP and WebSocket client that reproduces a real
// browser's wire fingerprint: TLS ClientHello, header set and order, HTTP/2
// pseudo-header order, and opportunistic HTTP/3 upgrade behavior.
//
// Basic usage:
//
//	c, err := httpmimic.New(httpmimic.WithBrowser("chrome"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	resp, err := c.Get(ctx, "https://example.com", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer resp.Close()
//	body, _ := resp.Text()
//
// With per-request headers that keep browser ordering:
//
//	opts := &httpmimic.RequestOptions{
//	    Headers: httpmimic.NewHeaders().
//	        Set("Accept", "application/json").
//	        Set("X-Request-Id", id),
//	}
//	resp, err := c.Get(ctx, url, opts)
//
// Without a browser profile the client sends exactly the caller's headers
// over a stock TLS handshake.
package httpmimic

import (
	"github.com/sardanioss/httpmimic/client"
	"github.com/sardanioss/httpmimic/fingerprint"
	"github.com/sardanioss/httpmimic/headers"
	"github.com/sardanioss/httpmimic/transport"
)

// Client dispatches fingerprinted requests. See the client package for the
// full API surface.
type Client = client.Client

// Response is a dispatched request's outcome with a transparently decoded
// body stream.
type Response = client.Response

// RequestOptions carries per-call header overrides, a timeout override, and
// the force-HTTP/3 flag.
type RequestOptions = client.RequestOptions

// Socket is an open WebSocket connection.
type Socket = client.Socket

// Option configures a Client at construction time.
type Option = client.Option

// Construction options, re-exported from the client package.
var (
	WithBrowser         = client.WithBrowser
	WithIgnoreTLSErrors = client.WithIgnoreTLSErrors
	WithVanillaFallback = client.WithVanillaFallback
	WithProxy           = client.WithProxy
	WithTimeout         = client.WithTimeout
	WithMaxVersion      = client.WithMaxVersion
	WithHTTP3           = client.WithHTTP3
	WithRedirects       = client.WithRedirects
	WithoutRedirects    = client.WithoutRedirects
	WithLogger          = client.WithLogger
)

// Typed errors returned by the dispatcher.
var (
	ErrInvalidURL        = client.ErrInvalidURL
	ErrMissingHost       = client.ErrMissingHost
	ErrUnsupportedScheme = client.ErrUnsupportedScheme
	ErrUpgradeDisabled   = client.ErrUpgradeDisabled
	ErrTimeout           = client.ErrTimeout
	ErrHandshake         = client.ErrHandshake
)

// Protocol versions for WithMaxVersion.
const (
	HTTP1 = transport.HTTP1
	HTTP2 = transport.HTTP2
	HTTP3 = transport.HTTP3
)

// New constructs a client. With no options it impersonates nothing, caps at
// HTTP/2, follows up to 10 redirects, and times out after 30 seconds.
func New(opts ...Option) (*Client, error) {
	return client.New(opts...)
}

// NewHeaders returns an empty ordered header override set.
func NewHeaders() *headers.Overrides {
	return headers.NewOverrides()
}

// Browsers lists the available impersonation profile names.
func Browsers() []string {
	return fingerprint.Available()
}
