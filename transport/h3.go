package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	http "github.com/sardanioss/http"
	"github.com/sardanioss/quic-go"
	"github.com/sardanioss/quic-go/http3"
	tls "github.com/sardanioss/utls"

	"github.com/sardanioss/httpmimic/dns"
	"github.com/sardanioss/httpmimic/fingerprint"
	"github.com/sardanioss/httpmimic/keylog"
)

// H3Client serves https requests over QUIC. The embedded http3 transport
// pools connections internally; this wrapper contributes cached DNS
// resolution and the profile's QUIC ClientHello.
type H3Client struct {
	transport    *http3.Transport
	dnsCache     *dns.Cache
	sessionCache tls.ClientSessionCache
}

// NewH3Client builds an HTTP/3 client for the given profile. A nil
// profile runs QUIC with the library's own ClientHello.
func NewH3Client(profile *fingerprint.Profile, dnsCache *dns.Cache, insecure bool) *H3Client {
	c := &H3Client{
		dnsCache:     dnsCache,
		sessionCache: tls.NewLRUClientSessionCache(64),
	}

	tlsConfig := &tls.Config{
		NextProtos:         []string{http3.NextProtoH3},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
		ClientSessionCache: c.sessionCache,
		KeyLogWriter:       keylog.GetWriter(),
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:                 30 * time.Second,
		KeepAlivePeriod:                30 * time.Second,
		Allow0RTT:                      true,
		EnableDatagrams:                true,
		InitialStreamReceiveWindow:     512 * 1024,
		MaxStreamReceiveWindow:         6 * 1024 * 1024,
		InitialConnectionReceiveWindow: 15 * 1024 * 1024 / 2,
		MaxConnectionReceiveWindow:     15 * 1024 * 1024,
		ClientHelloID:                  quicHelloID(profile),
	}

	c.transport = &http3.Transport{
		TLSClientConfig:        tlsConfig,
		QUICConfig:             quicConfig,
		Dial:                   c.dialQUIC,
		EnableDatagrams:        true,
		MaxResponseHeaderBytes: 262144,
	}
	return c
}

// dialQUIC resolves the host through the shared DNS cache before handing
// the address to quic-go.
func (c *H3Client) dialQUIC(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (*quic.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	ip, err := c.dnsCache.ResolveOne(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns resolution failed for %s: %w", host, err)
	}

	tlsCfgCopy := tlsCfg.Clone()
	tlsCfgCopy.ServerName = host
	// Clone drops the session cache; restore it for 0-RTT resumption.
	tlsCfgCopy.ClientSessionCache = c.sessionCache
	tlsCfgCopy.KeyLogWriter = tlsCfg.KeyLogWriter

	return quic.DialAddr(ctx, net.JoinHostPort(ip.String(), port), tlsCfgCopy, cfg)
}

// Execute sends one request over HTTP/3.
func (c *H3Client) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.transport.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Close shuts down the transport and its pooled QUIC connections.
func (c *H3Client) Close() error {
	return c.transport.Close()
}
