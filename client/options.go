// Package client is the request dispatcher: it validates URLs, assembles
// browser-faithful ordered headers, selects between a ceiling-limited TCP
// transport and an HTTP/3 transport using a per-host capability cache, and
// applies the fallback and error policy.
//
// The client uses the functional options pattern for configuration. All
// options have defaults, so the zero-argument form works:
//
//	c, err := client.New()
//
// Or customized:
//
//	c, err := client.New(
//	    client.WithBrowser("chrome"),
//	    client.WithTimeout(60*time.Second),
//	    client.WithProxy("http://proxy:8080"),
//	    client.WithMaxVersion(transport.HTTP3),
//	)
package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sardanioss/httpmimic/headers"
	"github.com/sardanioss/httpmimic/transport"
)

// Config holds all construction-time options for the client.
// It is fixed once New returns; per-call knobs live on RequestOptions.
type Config struct {
	// Browser is the impersonation profile name (e.g. "chrome-143",
	// "firefox-133", or the "chrome"/"firefox" aliases). Empty means no
	// impersonation: no injected headers, stock Go TLS fingerprint.
	Browser string

	// IgnoreTLSErrors disables certificate and hostname verification.
	// Default: false.
	IgnoreTLSErrors bool

	// VanillaFallback retries a failed impersonated request once without
	// impersonation and returns that outcome instead.
	// Default: true.
	VanillaFallback bool

	// Proxy is the outbound proxy URL. Supports http://, https://,
	// socks5:// and socks5h:// schemes. Empty means direct.
	Proxy string

	// Timeout bounds each request unless overridden per call.
	// Default: 30 seconds.
	Timeout time.Duration

	// MaxVersion is the highest protocol version the client may use.
	// HTTP/3 is only attempted when this is transport.HTTP3.
	// Default: transport.HTTP2.
	MaxVersion transport.Version

	// FollowRedirects controls whether 3xx responses are followed.
	// Default: true.
	FollowRedirects bool

	// MaxRedirects caps the number of followed redirects.
	// Default: 10.
	MaxRedirects int

	// Logger receives debug events for transport selection, capability
	// cache updates, and the fallback path. Default: disabled.
	Logger zerolog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser:         "",
		IgnoreTLSErrors: false,
		VanillaFallback: true,
		Proxy:           "",
		Timeout:         30 * time.Second,
		MaxVersion:      transport.HTTP2,
		FollowRedirects: true,
		MaxRedirects:    10,
		Logger:          zerolog.Nop(),
	}
}

// Option mutates a Config during New.
type Option func(*Config)

// WithBrowser selects the impersonation profile.
func WithBrowser(name string) Option {
	return func(c *Config) {
		c.Browser = name
	}
}

// WithIgnoreTLSErrors disables TLS certificate verification.
// WARNING: only use against hosts you control.
func WithIgnoreTLSErrors() Option {
	return func(c *Config) {
		c.IgnoreTLSErrors = true
	}
}

// WithVanillaFallback controls the retry-without-impersonation behavior.
func WithVanillaFallback(enabled bool) Option {
	return func(c *Config) {
		c.VanillaFallback = enabled
	}
}

// WithProxy routes all requests through the given proxy URL.
func WithProxy(proxyURL string) Option {
	return func(c *Config) {
		c.Proxy = proxyURL
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxVersion sets the protocol ceiling.
func WithMaxVersion(v transport.Version) Option {
	return func(c *Config) {
		c.MaxVersion = v
	}
}

// WithHTTP3 raises the protocol ceiling to HTTP/3, enabling opportunistic
// upgrade for hosts the capability cache knows support it.
func WithHTTP3() Option {
	return func(c *Config) {
		c.MaxVersion = transport.HTTP3
	}
}

// WithRedirects configures redirect following.
func WithRedirects(follow bool, maxRedirects int) Option {
	return func(c *Config) {
		c.FollowRedirects = follow
		if maxRedirects > 0 {
			c.MaxRedirects = maxRedirects
		}
	}
}

// WithoutRedirects disables automatic redirect following.
func WithoutRedirects() Option {
	return func(c *Config) {
		c.FollowRedirects = false
	}
}

// WithLogger sets the logger for dispatcher debug events.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// RequestOptions carries per-call overrides. The zero value is valid.
type RequestOptions struct {
	// Headers adds to or overrides the profile defaults. Overrides of a
	// default header keep the default's position; new names are appended
	// in insertion order.
	Headers *headers.Overrides

	// Timeout overrides the client default for this call when positive.
	Timeout time.Duration

	// ForceHTTP3 demands the upgraded transport regardless of cache state.
	// Fails with ErrUpgradeDisabled when the ceiling is below HTTP/3.
	ForceHTTP3 bool
}
