package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	http "github.com/sardanioss/http"

	"github.com/sardanioss/httpmimic/capability"
	"github.com/sardanioss/httpmimic/transport"
)

// stubExec is a transport.Client that records calls and serves canned
// responses without touching the network.
type stubExec struct {
	calls    int
	lastReq  *http.Request
	response func(call int, req *http.Request) (*http.Response, error)
}

func (s *stubExec) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	s.calls++
	s.lastReq = req
	return s.response(s.calls, req)
}

func (s *stubExec) Close() error { return nil }

func okResponse(header http.Header) func(int, *http.Request) (*http.Response, error) {
	return func(int, *http.Request) (*http.Response, error) {
		if header == nil {
			header = make(http.Header)
		}
		return &http.Response{
			StatusCode: 200,
			ProtoMajor: 2,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader("ok")),
		}, nil
	}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *stubExec) {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	stub := &stubExec{response: okResponse(nil)}
	c.ceilingExec = stub
	return c, stub
}

func TestValidationFailsBeforeDispatch(t *testing.T) {
	c, stub := newTestClient(t)

	tests := []struct {
		name string
		url  string
		want error
	}{
		{"unparsable", "http://[::1", ErrInvalidURL},
		{"no scheme", "example.com/path", ErrInvalidURL},
		{"ftp scheme", "ftp://example.com/file", ErrUnsupportedScheme},
		{"missing host", "https:///path", ErrMissingHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Get(context.Background(), tt.url, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Get(%q) error = %v, want %v", tt.url, err, tt.want)
			}
		})
	}
	if stub.calls != 0 {
		t.Fatalf("transport was invoked %d times for invalid input", stub.calls)
	}
}

func TestForceHTTP3OnCappedClient(t *testing.T) {
	c, stub := newTestClient(t) // default ceiling is HTTP/2

	_, err := c.Get(context.Background(), "https://example.com", &RequestOptions{ForceHTTP3: true})
	if !errors.Is(err, ErrUpgradeDisabled) {
		t.Fatalf("error = %v, want ErrUpgradeDisabled", err)
	}
	if stub.calls != 0 {
		t.Fatalf("transport was invoked %d times, want 0", stub.calls)
	}
}

func TestAltSvcPromotesHostToHTTP3(t *testing.T) {
	c, ceiling := newTestClient(t)
	ceiling.response = okResponse(http.Header{"Alt-Svc": {`h3=":443"; ma=86400`}})
	h3 := &stubExec{response: func(int, *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			ProtoMajor: 3,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader("ok")),
		}, nil
	}}
	c.h3Exec = h3
	c.caps = capability.NewCache(nil)

	resp, err := c.Get(context.Background(), "https://example.com/a", nil)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	resp.Close()
	if got := c.caps.Lookup("example.com"); got != capability.Supported {
		t.Fatalf("record after alt-svc = %v, want supported", got)
	}

	resp, err = c.Get(context.Background(), "https://example.com/b", nil)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	defer resp.Close()
	if h3.calls != 1 {
		t.Fatalf("h3 transport calls = %d, want 1", h3.calls)
	}
	if resp.Protocol != "h3" {
		t.Fatalf("Protocol = %q, want h3", resp.Protocol)
	}
}

func TestMissingAltSvcMarksUnsupported(t *testing.T) {
	c, ceiling := newTestClient(t)
	h3 := &stubExec{response: okResponse(nil)}
	c.h3Exec = h3
	c.caps = capability.NewCache(nil)

	for i := 0; i < 2; i++ {
		resp, err := c.Get(context.Background(), "https://example.com", nil)
		if err != nil {
			t.Fatalf("Get #%d: %v", i+1, err)
		}
		resp.Close()
	}
	if got := c.caps.Lookup("example.com"); got != capability.Unsupported {
		t.Fatalf("record = %v, want unsupported", got)
	}
	if ceiling.calls != 2 || h3.calls != 0 {
		t.Fatalf("ceiling=%d h3=%d calls, want 2/0", ceiling.calls, h3.calls)
	}
}

func TestVanillaFallbackReturnsUnimpersonatedOutcome(t *testing.T) {
	c, impersonated := newTestClient(t, WithBrowser("chrome"))
	impersonated.response = func(int, *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection reset")
	}

	plain := &stubExec{response: okResponse(nil)}
	c.vanillaOnce.Do(func() {
		vc, err := New(WithVanillaFallback(false))
		if err != nil {
			t.Fatalf("vanilla New: %v", err)
		}
		vc.ceilingExec = plain
		c.vanilla = vc
	})

	resp, err := c.Get(context.Background(), "https://example.com", nil)
	if err != nil {
		t.Fatalf("Get with fallback: %v", err)
	}
	defer resp.Close()

	if impersonated.calls != 1 || plain.calls != 1 {
		t.Fatalf("impersonated=%d plain=%d calls, want 1/1", impersonated.calls, plain.calls)
	}
	if got := impersonated.lastReq.Header.Get("sec-ch-ua"); got == "" {
		t.Fatal("impersonated request is missing profile headers")
	}
	if got := plain.lastReq.Header.Get("sec-ch-ua"); got != "" {
		t.Fatalf("fallback request carries profile header sec-ch-ua=%q", got)
	}
}

func TestVanillaFallbackDisabled(t *testing.T) {
	c, stub := newTestClient(t, WithBrowser("chrome"), WithVanillaFallback(false))
	stub.response = func(int, *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection reset")
	}

	_, err := c.Get(context.Background(), "https://example.com", nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if stub.calls != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls)
	}
}

func TestRedirectFollowing(t *testing.T) {
	c, stub := newTestClient(t)
	stub.response = func(call int, req *http.Request) (*http.Response, error) {
		if call == 1 {
			if req.Method != http.MethodPost {
				t.Fatalf("first request method = %s, want POST", req.Method)
			}
			return &http.Response{
				StatusCode: http.StatusFound,
				ProtoMajor: 2,
				Header:     http.Header{"Location": {"/after"}},
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		}
		if req.Method != http.MethodGet {
			t.Fatalf("redirected method = %s, want GET", req.Method)
		}
		if req.Body != nil {
			t.Fatal("redirected GET still carries a body")
		}
		return okResponse(nil)(call, req)
	}

	resp, err := c.Post(context.Background(), "https://example.com/form", []byte("a=1"), nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Close()
	if stub.calls != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls)
	}
	if resp.FinalURL != "https://example.com/after" {
		t.Fatalf("FinalURL = %q", resp.FinalURL)
	}
}

func TestRedirectLimit(t *testing.T) {
	c, stub := newTestClient(t, WithRedirects(true, 3))
	stub.response = func(call int, req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusMovedPermanently,
			ProtoMajor: 2,
			Header:     http.Header{"Location": {fmt.Sprintf("/hop-%d", call)}},
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}

	_, err := c.Get(context.Background(), "https://example.com", nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if stub.calls != 4 { // initial request + 3 allowed hops
		t.Fatalf("calls = %d, want 4", stub.calls)
	}
}

func TestRedirectsDisabled(t *testing.T) {
	c, stub := newTestClient(t, WithoutRedirects())
	stub.response = func(call int, req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusFound,
			ProtoMajor: 2,
			Header:     http.Header{"Location": {"/elsewhere"}},
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}

	resp, err := c.Get(context.Background(), "https://example.com", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("StatusCode = %d, want 302", resp.StatusCode)
	}
	if stub.calls != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls)
	}
}

func TestAdvertisesH3(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{`h3=":443"; ma=86400`, true},
		{`h3-29=":443", h3=":443"`, true},
		{`h2=":443"`, false},
		{`hq=":443"; ma=60`, false},
		{"", false},
		{"clear", false},
	}
	for _, tt := range tests {
		if got := advertisesH3(tt.value); got != tt.want {
			t.Errorf("advertisesH3(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestHeaderOrderStableAcrossCalls(t *testing.T) {
	c, stub := newTestClient(t, WithBrowser("chrome"))

	var first []string
	for i := 0; i < 3; i++ {
		resp, err := c.Get(context.Background(), "https://example.com", nil)
		if err != nil {
			t.Fatalf("Get #%d: %v", i+1, err)
		}
		resp.Close()
		order := stub.lastReq.Header[http.HeaderOrderKey]
		if first == nil {
			first = append([]string(nil), order...)
			continue
		}
		if len(order) != len(first) {
			t.Fatalf("call %d order length %d, want %d", i+1, len(order), len(first))
		}
		for j := range order {
			if order[j] != first[j] {
				t.Fatalf("call %d order[%d] = %q, want %q", i+1, j, order[j], first[j])
			}
		}
	}
}

func TestUnknownBrowserProfile(t *testing.T) {
	_, err := New(WithBrowser("netscape-4"))
	if err == nil {
		t.Fatal("New accepted an unknown profile")
	}
}

func TestDefaultCeilingIsHTTP2(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxVersion != transport.HTTP2 {
		t.Fatalf("default ceiling = %v, want HTTP/2", cfg.MaxVersion)
	}
	if !cfg.VanillaFallback {
		t.Fatal("vanilla fallback should default to enabled")
	}
	if cfg.MaxRedirects != 10 {
		t.Fatalf("MaxRedirects = %d, want 10", cfg.MaxRedirects)
	}
}
