package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	http "github.com/sardanioss/http"
	"github.com/sardanioss/net/http2"
	utls "github.com/sardanioss/utls"

	"github.com/sardanioss/httpmimic/fingerprint"
)

// TCPClient serves http and https requests over TCP. For https it
// presents the profile's ClientHello and lets ALPN pick the protocol:
// a negotiated h2 runs through the HTTP/2 framer, anything else falls
// back to serialized HTTP/1.1 with the request's recorded header order.
// The ceiling caps what ALPN may offer, so a ceiling of HTTP/1.1 never
// advertises h2 at all.
type TCPClient struct {
	profile  *fingerprint.Profile
	dialer   *Dialer
	ceiling  Version
	insecure bool

	sessionCache utls.ClientSessionCache

	mu     sync.Mutex
	conns  map[string]*tcpConn
	closed bool
}

type tcpConn struct {
	raw net.Conn
	tls *utls.UConn
	h2  *http2.ClientConn
	br  *bufio.Reader
	bw  *bufio.Writer

	mu       sync.Mutex
	lastUse  time.Time
	refs     int  // checked-out requests, incl. unread response bodies
	detached bool // removed from the pool; close once refs drains
	closed   bool
}

func (c *tcpConn) healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.detached {
		return false
	}
	if c.h2 != nil {
		return c.h2.CanTakeNewRequest()
	}
	return time.Since(c.lastUse) < 90*time.Second
}

func (c *tcpConn) acquire() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// release undoes one acquire; a detached connection closes when the last
// holder lets go.
func (c *tcpConn) release() {
	c.mu.Lock()
	c.refs--
	closeNow := c.detached && c.refs <= 0 && !c.closed
	c.mu.Unlock()
	if closeNow {
		c.close()
	}
}

// detach removes the connection from circulation. It closes immediately
// when idle, otherwise when the in-flight requests release it, so a
// displaced connection never dies under a request still using it.
func (c *tcpConn) detach() {
	c.mu.Lock()
	c.detached = true
	idle := c.refs <= 0
	c.mu.Unlock()
	if idle {
		c.close()
	}
}

func (c *tcpConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.tls != nil {
		c.tls.Close()
	} else if c.raw != nil {
		c.raw.Close()
	}
}

// NewTCPClient builds a TCP client. ceiling must be HTTP1 or HTTP2.
func NewTCPClient(profile *fingerprint.Profile, dialer *Dialer, ceiling Version, insecure bool) *TCPClient {
	if ceiling > HTTP2 {
		ceiling = HTTP2
	}
	return &TCPClient{
		profile:      profile,
		dialer:       dialer,
		ceiling:      ceiling,
		insecure:     insecure,
		sessionCache: utls.NewLRUClientSessionCache(64),
		conns:        make(map[string]*tcpConn),
	}
}

// Execute sends one request and returns the raw response. A dead pooled
// connection is replaced and the request retried once.
func (t *TCPClient) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	host := req.URL.Hostname()
	port := req.URL.Port()
	secure := req.URL.Scheme == "https"
	if port == "" {
		if secure {
			port = "443"
		} else {
			port = "80"
		}
	}
	key := req.URL.Scheme + "://" + net.JoinHostPort(host, port)

	conn, fresh, err := t.getConn(ctx, key, host, port, secure)
	if err != nil {
		return nil, err
	}

	resp, err := t.roundTrip(ctx, conn, req)
	if err != nil && !fresh {
		// Pooled connection likely went stale; retry on a new one.
		t.dropConn(key, conn)
		conn.release()
		if req.GetBody != nil {
			if body, berr := req.GetBody(); berr == nil {
				req.Body = body
			}
		}
		conn, _, err = t.getConn(ctx, key, host, port, secure)
		if err != nil {
			return nil, err
		}
		resp, err = t.roundTrip(ctx, conn, req)
	}
	if err != nil {
		t.dropConn(key, conn)
		conn.release()
		return nil, err
	}

	conn.mu.Lock()
	conn.lastUse = time.Now()
	conn.mu.Unlock()

	if conn.h2 == nil && !shouldKeepAlive(req, resp) {
		t.dropConn(key, conn)
	}
	// The body streams off this connection; hold the checkout until the
	// caller closes it.
	resp.Body = &pooledBody{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

// pooledBody ties a response body to its connection checkout: closing the
// body is what returns the connection, so a displaced connection stays
// alive until its response has been consumed.
type pooledBody struct {
	io.ReadCloser
	conn *tcpConn
	once sync.Once
}

func (b *pooledBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.conn.release)
	return err
}

func (t *TCPClient) roundTrip(ctx context.Context, conn *tcpConn, req *http.Request) (*http.Response, error) {
	if conn.h2 != nil {
		return conn.h2.RoundTrip(req)
	}
	return t.doHTTP1(ctx, conn, req)
}

// getConn returns an acquired connection for key; the caller must release
// it (directly or through the response body) when done.
func (t *TCPClient) getConn(ctx context.Context, key, host, port string, secure bool) (conn *tcpConn, fresh bool, err error) {
	t.mu.Lock()
	if existing, ok := t.conns[key]; ok && existing.healthy() {
		existing.acquire()
		t.mu.Unlock()
		return existing, false, nil
	}
	t.mu.Unlock()

	conn, err = t.createConn(ctx, host, port, secure)
	if err != nil {
		return nil, false, err
	}
	conn.acquire()

	t.mu.Lock()
	if old, ok := t.conns[key]; ok && old != conn {
		if old.healthy() {
			// A concurrent cold start won the slot first; use that
			// connection and discard ours.
			old.acquire()
			t.mu.Unlock()
			conn.release()
			conn.detach()
			return old, false, nil
		}
		old.detach()
	}
	t.conns[key] = conn
	t.mu.Unlock()
	return conn, true, nil
}

func (t *TCPClient) dropConn(key string, conn *tcpConn) {
	t.mu.Lock()
	if t.conns[key] == conn {
		delete(t.conns, key)
	}
	t.mu.Unlock()
	conn.detach()
}

func (t *TCPClient) createConn(ctx context.Context, host, port string, secure bool) (*tcpConn, error) {
	rawConn, err := t.dialer.DialTCP(ctx, host, port)
	if err != nil {
		return nil, fmt.Errorf("tcp connect failed: %w", err)
	}
	if tcp, ok := rawConn.(*net.TCPConn); ok {
		tcp.SetKeepAlive(true)
		tcp.SetKeepAlivePeriod(30 * time.Second)
		tcp.SetNoDelay(true)
	}

	conn := &tcpConn{raw: rawConn, lastUse: time.Now()}

	if !secure {
		conn.br = bufio.NewReaderSize(rawConn, 4096)
		conn.bw = bufio.NewWriterSize(rawConn, 4096)
		return conn, nil
	}

	tlsConn := utls.UClient(rawConn, newTLSConfig(host, t.insecure, t.ceiling.ALPN(), t.sessionCache), helloID(t.profile))
	tlsConn.SetSessionCache(t.sessionCache)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("tls handshake failed: %w", err)
	}
	conn.tls = tlsConn

	if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Transport := &http2.Transport{}
		h2Conn, err := h2Transport.NewClientConn(tlsConn)
		if err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("http/2 setup failed: %w", err)
		}
		conn.h2 = h2Conn
		return conn, nil
	}

	conn.br = bufio.NewReaderSize(tlsConn, 4096)
	conn.bw = bufio.NewWriterSize(tlsConn, 4096)
	return conn, nil
}

// DialTLS hands out a standalone TLS connection with the profile's
// ClientHello, for callers that speak their own protocol on top of it
// (the WebSocket handshake does).
func (t *TCPClient) DialTLS(ctx context.Context, host, port string, alpn []string) (net.Conn, error) {
	rawConn, err := t.dialer.DialTCP(ctx, host, port)
	if err != nil {
		return nil, err
	}
	tlsConn := utls.UClient(rawConn, newTLSConfig(host, t.insecure, alpn, t.sessionCache), helloID(t.profile))
	tlsConn.SetSessionCache(t.sessionCache)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// DialPlain hands out a raw TCP connection (for ws:// handshakes).
func (t *TCPClient) DialPlain(ctx context.Context, host, port string) (net.Conn, error) {
	return t.dialer.DialTCP(ctx, host, port)
}

// doHTTP1 serializes the request by hand so the header order recorded on
// the request survives onto the wire, then reads the response off the
// same connection.
func (t *TCPClient) doHTTP1(ctx context.Context, conn *tcpConn, req *http.Request) (*http.Response, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return nil, fmt.Errorf("connection closed")
	}

	netConn := conn.raw
	if conn.tls != nil {
		netConn = conn.tls
	}
	if deadline, ok := ctx.Deadline(); ok {
		netConn.SetDeadline(deadline)
		defer netConn.SetDeadline(time.Time{})
	}

	if err := writeHTTP1Request(conn.bw, req); err != nil {
		return nil, err
	}
	resp, err := http.ReadResponse(conn.br, req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func writeHTTP1Request(bw *bufio.Writer, req *http.Request) error {
	uri := req.URL.RequestURI()
	if uri == "" {
		uri = "/"
	}
	fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, uri)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	fmt.Fprintf(bw, "Host: %s\r\n", host)

	writeHeadersInOrder(bw, req)
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return err
	}

	if req.Body != nil {
		if _, err := io.Copy(bw, req.Body); err != nil {
			return err
		}
		return bw.Flush()
	}
	return nil
}

// writeHeadersInOrder emits headers following the order key the header
// assembly recorded on the request, then any stragglers.
func writeHeadersInOrder(bw *bufio.Writer, req *http.Request) {
	written := map[string]bool{"host": true}

	writeField := func(name string) {
		canonical := http.CanonicalHeaderKey(name)
		values, ok := req.Header[canonical]
		if !ok {
			values, ok = req.Header[name]
		}
		if !ok {
			return
		}
		for _, v := range values {
			fmt.Fprintf(bw, "%s: %s\r\n", canonical, v)
		}
		written[strings.ToLower(name)] = true
	}

	for _, name := range req.Header[http.HeaderOrderKey] {
		writeField(name)
	}
	for name, values := range req.Header {
		if name == http.HeaderOrderKey || name == http.PHeaderOrderKey {
			continue
		}
		if written[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			fmt.Fprintf(bw, "%s: %s\r\n", name, v)
		}
	}

	if req.ContentLength > 0 && req.Header.Get("Content-Length") == "" {
		fmt.Fprintf(bw, "Content-Length: %d\r\n", req.ContentLength)
	} else if req.ContentLength == 0 && req.Body != nil && req.Header.Get("Content-Length") == "" {
		fmt.Fprint(bw, "Content-Length: 0\r\n")
	}
	if req.Header.Get("Connection") == "" {
		fmt.Fprint(bw, "Connection: keep-alive\r\n")
	}
}

func shouldKeepAlive(req *http.Request, resp *http.Response) bool {
	if strings.EqualFold(resp.Header.Get("Connection"), "close") {
		return false
	}
	if strings.EqualFold(req.Header.Get("Connection"), "close") {
		return false
	}
	return resp.ProtoMajor == 1 && resp.ProtoMinor >= 1
}

// Close tears down every pooled connection.
func (t *TCPClient) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, conn := range t.conns {
		go conn.detach()
	}
	t.conns = nil
	return nil
}
