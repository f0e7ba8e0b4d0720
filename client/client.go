package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	http "github.com/sardanioss/http"

	"github.com/sardanioss/httpmimic/capability"
	"github.com/sardanioss/httpmimic/dns"
	"github.com/sardanioss/httpmimic/fingerprint"
	"github.com/sardanioss/httpmimic/headers"
	"github.com/sardanioss/httpmimic/transport"
)

// Client dispatches requests over one of two pre-built transports: a
// ceiling-limited TCP client (HTTP/1.1 or /2 over uTLS) and, when the
// ceiling allows it, an HTTP/3 client. The per-host capability cache
// decides which one a given request uses. Safe for concurrent use.
type Client struct {
	config  *Config
	profile *fingerprint.Profile
	log     zerolog.Logger

	dnsCache *dns.Cache
	tcp      *transport.TCPClient
	caps     *capability.Cache

	// ceilingExec and h3Exec are the two execution paths. h3Exec is nil
	// when the ceiling is below HTTP/3 or the proxy cannot tunnel UDP.
	ceilingExec transport.Client
	h3Exec      transport.Client

	vanillaOnce sync.Once
	vanilla     *Client
	vanillaErr  error
}

// New constructs a client from the given options.
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newFromConfig(cfg)
}

func newFromConfig(cfg *Config) (*Client, error) {
	var profile *fingerprint.Profile
	if cfg.Browser != "" {
		p, ok := fingerprint.Get(cfg.Browser)
		if !ok {
			return nil, fmt.Errorf("unknown browser profile %q (available: %s)",
				cfg.Browser, strings.Join(fingerprint.Available(), ", "))
		}
		profile = p
	}

	dnsCache := dns.NewCache()
	dialer, err := transport.NewDialer(dnsCache, cfg.Proxy)
	if err != nil {
		return nil, err
	}

	tcpCeiling := cfg.MaxVersion
	if tcpCeiling > transport.HTTP2 {
		tcpCeiling = transport.HTTP2
	}
	tcp := transport.NewTCPClient(profile, dialer, tcpCeiling, cfg.IgnoreTLSErrors)

	c := &Client{
		config:      cfg,
		profile:     profile,
		log:         cfg.Logger,
		dnsCache:    dnsCache,
		tcp:         tcp,
		ceilingExec: tcp,
	}

	// QUIC cannot ride a TCP-only proxy, so the upgraded path is direct
	// connections only.
	if cfg.MaxVersion >= transport.HTTP3 && !dialer.Proxied() {
		c.h3Exec = transport.NewH3Client(profile, dnsCache, cfg.IgnoreTLSErrors)
		c.caps = capability.NewCache(dns.NewHTTPSProber())
	} else {
		c.caps = capability.NewCache(nil)
	}
	return c, nil
}

// Close releases both transports. In-flight requests should be awaited
// before calling Close.
func (c *Client) Close() error {
	err := c.tcp.Close()
	if c.h3Exec != nil {
		if h3err := c.h3Exec.Close(); err == nil {
			err = h3err
		}
	}
	if c.vanilla != nil {
		c.vanilla.Close()
	}
	return err
}

// Capabilities exposes the per-host HTTP/3 capability cache, mainly for
// inspection. The cache is owned by this instance and never shared.
func (c *Client) Capabilities() *capability.Cache { return c.caps }

// Do executes method against rawURL with an optional body. opts may be nil.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	u, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, method, u, body, opts)
	if err == nil {
		return resp, nil
	}

	// Vanilla fallback: retry the same logical request without
	// impersonation and return that outcome. The retry runs on a client
	// with fallback disabled, so it cannot recurse.
	var terr *TransportError
	if c.profile != nil && c.config.VanillaFallback && errors.As(err, &terr) {
		vc, verr := c.vanillaClient()
		if verr != nil {
			return nil, err
		}
		c.log.Warn().
			Str("url", rawURL).
			Str("profile", c.profile.Name).
			Err(terr.Err).
			Msg("impersonated request failed, retrying without impersonation")
		return vc.do(ctx, method, u, body, opts)
	}
	return nil, err
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, opts)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodHead, url, nil, opts)
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodOptions, url, nil, opts)
}

// Trace issues a TRACE request.
func (c *Client) Trace(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodTrace, url, nil, opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, url, nil, opts)
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, opts)
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodPut, url, body, opts)
}

// Patch issues a PATCH request with the given body.
func (c *Client) Patch(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, url, body, opts)
}

// parseTarget validates the request URL before any network activity.
func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		if u.Scheme == "" {
			return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, rawURL)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingHost, rawURL)
	}
	return u, nil
}

// do runs the dispatch state machine: upgrade policy, header assembly,
// transport selection, execution, Alt-Svc inspection, redirect following.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body []byte, opts *RequestOptions) (*Response, error) {
	timeout := c.config.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	useH3, err := c.resolveUpgrade(ctx, u, opts)
	if err != nil {
		return nil, err
	}

	hset := headers.ForRequest(c.profile, opts.Headers)

	redirects := 0
	for {
		req, err := c.buildRequest(ctx, method, u, body, hset, useH3)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}

		exec := c.ceilingExec
		if useH3 {
			exec = c.h3Exec
		}
		c.log.Debug().
			Str("method", method).
			Str("url", u.String()).
			Bool("h3", useH3).
			Msg("dispatching request")

		resp, err := exec.Execute(ctx, req)
		if err != nil {
			return nil, classifyExecErr(err)
		}

		if !useH3 && u.Scheme == "https" && c.h3Exec != nil {
			c.observeAltSvc(u.Hostname(), resp.Header)
		}

		if !c.config.FollowRedirects || !isRedirect(resp.StatusCode) {
			return newResponse(resp, u, useH3), nil
		}

		redirects++
		if redirects > c.config.MaxRedirects {
			resp.Body.Close()
			return nil, &TransportError{Err: fmt.Errorf("stopped after %d redirects", c.config.MaxRedirects)}
		}
		location := resp.Header.Get("Location")
		if location == "" {
			return newResponse(resp, u, useH3), nil
		}
		next, err := u.Parse(location)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: redirect target %q", ErrInvalidURL, location)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 32*1024))
		resp.Body.Close()

		// 303, and 301/302 on POST, rewrite to a bodyless GET.
		// 307/308 re-send the original method and body.
		switch resp.StatusCode {
		case http.StatusSeeOther:
			method = http.MethodGet
			body = nil
		case http.StatusMovedPermanently, http.StatusFound:
			if method == http.MethodPost {
				method = http.MethodGet
				body = nil
			}
		}

		if next.Scheme != "http" && next.Scheme != "https" {
			return nil, fmt.Errorf("%w: redirect to %q", ErrUnsupportedScheme, next.Scheme)
		}
		if next.Hostname() != u.Hostname() || next.Scheme != u.Scheme {
			u = next
			useH3, err = c.resolveUpgrade(ctx, u, opts)
			if err != nil {
				return nil, err
			}
		} else {
			u = next
		}
		c.log.Debug().Int("status", resp.StatusCode).Str("location", u.String()).Msg("following redirect")
	}
}

// resolveUpgrade decides whether this request rides the HTTP/3 transport.
// A forced upgrade on a client without one fails before any network call.
func (c *Client) resolveUpgrade(ctx context.Context, u *url.URL, opts *RequestOptions) (bool, error) {
	if opts.ForceHTTP3 {
		if c.h3Exec == nil {
			return false, ErrUpgradeDisabled
		}
		return true, nil
	}
	if c.h3Exec == nil || u.Scheme != "https" {
		return false, nil
	}
	rec := c.caps.Resolve(ctx, u.Hostname())
	return rec == capability.Supported, nil
}

// buildRequest constructs the outbound request with the assembled header
// block attached and, on the upgraded path, the protocol version stamped
// explicitly.
func (c *Client) buildRequest(ctx context.Context, method string, u *url.URL, body []byte, hset *headers.Set, useH3 bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.ContentLength = int64(len(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	hset.Apply(req.Header)
	if useH3 {
		req.Proto = "HTTP/3.0"
		req.ProtoMajor = 3
		req.ProtoMinor = 0
	}
	return req, nil
}

// observeAltSvc updates the capability cache from a response served over
// the ceiling-limited transport: an Alt-Svc advertising h3 marks the host
// Supported, anything else marks it Unsupported.
func (c *Client) observeAltSvc(host string, h http.Header) {
	supported := advertisesH3(h.Get("Alt-Svc"))
	c.caps.Set(host, supported)
	c.log.Debug().Str("host", host).Bool("h3", supported).Msg("capability cache updated from alt-svc")
}

// advertisesH3 reports whether an Alt-Svc header value names an h3
// alternative, e.g. `h3=":443"; ma=86400, h3-29=":443"`.
func advertisesH3(altSvc string) bool {
	for _, entry := range strings.Split(altSvc, ",") {
		entry = strings.TrimSpace(entry)
		proto, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		proto = strings.TrimSpace(proto)
		if proto == "h3" || strings.HasPrefix(proto, "h3-") {
			return true
		}
	}
	return false
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// vanillaClient lazily builds the unimpersonated twin used by the fallback
// path: same proxy, timeout, ceiling and redirect policy, but no profile
// and fallback itself disabled.
func (c *Client) vanillaClient() (*Client, error) {
	c.vanillaOnce.Do(func() {
		cfg := *c.config
		cfg.Browser = ""
		cfg.VanillaFallback = false
		c.vanilla, c.vanillaErr = newFromConfig(&cfg)
	})
	return c.vanilla, c.vanillaErr
}

