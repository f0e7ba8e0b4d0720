package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"time"

	http "github.com/sardanioss/http"

	"github.com/sardanioss/httpmimic/dns"
)

// Dialer establishes raw TCP connections to origin servers, either
// directly with IPv6-first address racing or through an HTTP CONNECT or
// SOCKS5 proxy.
type Dialer struct {
	dnsCache       *dns.Cache
	proxy          *url.URL
	connectTimeout time.Duration
}

// NewDialer builds a dialer. proxyURL may be empty for direct
// connections; a URL without a scheme is treated as an HTTP proxy.
func NewDialer(dnsCache *dns.Cache, proxyURL string) (*Dialer, error) {
	d := &Dialer{
		dnsCache:       dnsCache,
		connectTimeout: 30 * time.Second,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Host == "" {
			// Bare host:port proxies come through without a scheme.
			u, err = url.Parse("http://" + proxyURL)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
		}
		d.proxy = u
	}
	return d, nil
}

// Proxied reports whether connections go through a proxy.
func (d *Dialer) Proxied() bool { return d.proxy != nil }

// DialTCP connects to host:port, honoring the proxy configuration.
func (d *Dialer) DialTCP(ctx context.Context, host, port string) (net.Conn, error) {
	if d.proxy != nil {
		switch d.proxy.Scheme {
		case "socks5", "socks5h":
			return d.dialSOCKS5(ctx, host, port)
		default:
			return d.dialConnect(ctx, host, port)
		}
	}

	ips, err := d.dnsCache.ResolveAllSorted(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns resolution failed: %w", err)
	}
	conn, err := d.dialRacing(ctx, ips, port)
	if err != nil {
		// Every cached address failed; force a fresh lookup next time.
		d.dnsCache.Invalidate(host)
		return nil, err
	}
	return conn, nil
}

// dialRacing tries every IPv6 address before any IPv4, matching browser
// address-selection behavior for already-sorted candidate lists.
func (d *Dialer) dialRacing(ctx context.Context, ips []net.IP, port string) (net.Conn, error) {
	var ipv6, ipv4 []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			ipv4 = append(ipv4, ip)
		} else {
			ipv6 = append(ipv6, ip)
		}
	}

	dialer := &net.Dialer{Timeout: d.connectTimeout, KeepAlive: 30 * time.Second}

	var lastErr error
	for _, ip := range ipv6 {
		conn, err := dialer.DialContext(ctx, "tcp6", net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	for _, ip := range ipv4 {
		conn, err := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no addresses to dial")
}

// proxyAddr returns the proxy endpoint with a scheme-appropriate default
// port filled in.
func (d *Dialer) proxyAddr() string {
	port := d.proxy.Port()
	if port == "" {
		switch d.proxy.Scheme {
		case "https":
			port = "443"
		case "socks5", "socks5h":
			port = "1080"
		default:
			port = "8080"
		}
	}
	return net.JoinHostPort(d.proxy.Hostname(), port)
}

// dialConnect tunnels through an HTTP proxy with a CONNECT request.
func (d *Dialer) dialConnect(ctx context.Context, host, port string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.connectTimeout, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", d.proxyAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}

	target := net.JoinHostPort(host, port)
	connectReq := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if auth := d.proxyAuth(); auth != "" {
		connectReq += "Proxy-Authorization: Basic " + auth + "\r\n"
	}
	connectReq += "Connection: keep-alive\r\n\r\n"

	if _, err := conn.Write([]byte(connectReq)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", resp.Status)
	}
	return conn, nil
}

func (d *Dialer) proxyAuth() string {
	if d.proxy.User == nil {
		return ""
	}
	username := d.proxy.User.Username()
	if username == "" {
		return ""
	}
	password, _ := d.proxy.User.Password()
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// dialSOCKS5 tunnels through a SOCKS5 proxy (RFC 1928), with optional
// username/password auth (RFC 1929).
func (d *Dialer) dialSOCKS5(ctx context.Context, host, port string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.proxyAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SOCKS5 proxy: %w", err)
	}

	username := ""
	password := ""
	if d.proxy.User != nil {
		username = d.proxy.User.Username()
		password, _ = d.proxy.User.Password()
	}

	greeting := []byte{0x05, 0x01, 0x00}
	if username != "" {
		greeting = []byte{0x05, 0x02, 0x00, 0x02}
	}
	if _, err := conn.Write(greeting); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks5 greeting failed: %w", err)
	}

	resp := make([]byte, 2)
	if _, err := conn.Read(resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks5 method response failed: %w", err)
	}
	if resp[0] != 0x05 {
		conn.Close()
		return nil, fmt.Errorf("socks5: invalid version: %d", resp[0])
	}
	switch resp[1] {
	case 0x00:
	case 0x02:
		if err := socks5Auth(conn, username, password); err != nil {
			conn.Close()
			return nil, err
		}
	default:
		conn.Close()
		return nil, fmt.Errorf("socks5: no acceptable auth method")
	}

	portNum, err := net.LookupPort("tcp", port)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}

	var req []byte
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			req = append([]byte{0x05, 0x01, 0x00, 0x01}, ip4...)
		} else {
			req = append([]byte{0x05, 0x01, 0x00, 0x04}, ip...)
		}
	} else {
		req = append([]byte{0x05, 0x01, 0x00, 0x03, byte(len(host))}, []byte(host)...)
	}
	req = append(req, byte(portNum>>8), byte(portNum))

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks5 connect request failed: %w", err)
	}

	reply := make([]byte, 10)
	if _, err := conn.Read(reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks5 connect response failed: %w", err)
	}
	if reply[0] != 0x05 || reply[1] != 0x00 {
		conn.Close()
		return nil, fmt.Errorf("socks5 connect failed with code: %d", reply[1])
	}
	return conn, nil
}

func socks5Auth(conn net.Conn, username, password string) error {
	req := []byte{0x01, byte(len(username))}
	req = append(req, []byte(username)...)
	req = append(req, byte(len(password)))
	req = append(req, []byte(password)...)

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("socks5 auth request failed: %w", err)
	}
	resp := make([]byte, 2)
	if _, err := conn.Read(resp); err != nil {
		return fmt.Errorf("socks5 auth response failed: %w", err)
	}
	if resp[1] != 0x00 {
		return fmt.Errorf("socks5 authentication rejected")
	}
	return nil
}
