package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	http "github.com/sardanioss/http"

	"github.com/sardanioss/httpmimic/fingerprint"
	"github.com/sardanioss/httpmimic/headers"
)

// wsProfileName is the fixed handshake identity: WebSocket upgrades always
// present Chrome's socket header table, whatever profile the client was
// configured with.
const wsProfileName = "chrome"

// Socket is an open WebSocket connection plus the handshake outcome.
type Socket struct {
	conn net.Conn
	rw   io.ReadWriter

	// Handshake is the negotiated subprotocol and extensions.
	Handshake ws.Handshake

	// Response holds the server's upgrade response headers.
	Response http.Header
}

// OpenSocket performs a WebSocket upgrade handshake against rawURL, which
// may use an http(s) or ws(s) scheme. The upgrade request carries the fixed
// browser socket header table merged with opts.Headers, written to the wire
// in exactly that order.
func (c *Client) OpenSocket(ctx context.Context, rawURL string, opts *RequestOptions) (*Socket, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	u, err := parseTarget(mapSocketScheme(rawURL))
	if err != nil {
		return nil, err
	}
	if opts.ForceHTTP3 {
		// The handshake runs over HTTP/1.1 only.
		return nil, ErrUpgradeDisabled
	}

	profile, _ := fingerprint.Get(wsProfileName)
	hset := headers.ForWebSocket(profile, opts.Headers)

	timeout := c.config.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := c.dialSocket(ctx, u)
	if err != nil {
		return nil, classifyExecErr(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	respHeader := make(http.Header)
	dialer := ws.Dialer{
		Header: hset,
		OnHeader: func(key, value []byte) error {
			respHeader.Add(string(key), string(value))
			return nil
		},
	}
	target := *u
	if target.Scheme == "https" {
		target.Scheme = "wss"
	} else {
		target.Scheme = "ws"
	}
	br, hs, err := dialer.Upgrade(conn, &target)
	if err != nil {
		conn.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	conn.SetDeadline(time.Time{})

	var reader io.Reader = conn
	if br != nil {
		reader = br
	}
	return &Socket{
		conn:      conn,
		rw:        &struct{ io.Reader; io.Writer }{reader, conn},
		Handshake: hs,
		Response:  respHeader,
	}, nil
}

// dialSocket establishes the underlying connection: uTLS with an http/1.1
// ALPN pin for wss targets, plain TCP otherwise.
func (c *Client) dialSocket(ctx context.Context, u *url.URL) (net.Conn, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	if u.Scheme == "https" {
		return c.tcp.DialTLS(ctx, host, port, []string{"http/1.1"})
	}
	return c.tcp.DialPlain(ctx, host, port)
}

// mapSocketScheme rewrites ws/wss schemes to their http equivalents so the
// shared URL validation applies.
func mapSocketScheme(rawURL string) string {
	switch {
	case strings.HasPrefix(rawURL, "wss://"):
		return "https://" + rawURL[len("wss://"):]
	case strings.HasPrefix(rawURL, "ws://"):
		return "http://" + rawURL[len("ws://"):]
	}
	return rawURL
}

// ReadMessage blocks for the next data message from the server. Control
// frames (ping, pong) are handled internally.
func (s *Socket) ReadMessage() ([]byte, ws.OpCode, error) {
	data, op, err := wsutil.ReadServerData(s.rw)
	if err != nil {
		return nil, 0, err
	}
	return data, op, nil
}

// SendText writes a masked text message.
func (s *Socket) SendText(msg string) error {
	return wsutil.WriteClientText(s.conn, []byte(msg))
}

// SendBinary writes a masked binary message.
func (s *Socket) SendBinary(data []byte) error {
	return wsutil.WriteClientBinary(s.conn, data)
}

// Close sends a close frame and tears down the connection.
func (s *Socket) Close() error {
	wsutil.WriteClientMessage(s.conn, ws.OpClose, nil)
	return s.conn.Close()
}
