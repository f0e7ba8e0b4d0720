package transport

import (
	utls "github.com/sardanioss/utls"

	"github.com/sardanioss/httpmimic/fingerprint"
	"github.com/sardanioss/httpmimic/keylog"
)

// newTLSConfig builds the uTLS config shared by the TCP and QUIC paths.
// Session tickets stay enabled so resumed connections carry the
// pre_shared_key extension the way real browsers do.
func newTLSConfig(host string, insecure bool, alpn []string, cache utls.ClientSessionCache) *utls.Config {
	return &utls.Config{
		ServerName:             host,
		InsecureSkipVerify:     insecure,
		MinVersion:             utls.VersionTLS12,
		MaxVersion:             utls.VersionTLS13,
		NextProtos:             alpn,
		SessionTicketsDisabled: false,
		ClientSessionCache:     cache,
		KeyLogWriter:           keylog.GetWriter(),
	}
}

// helloID picks the ClientHello presentation for a TCP connection. Without
// a profile the connection uses Go's own hello; impersonation is opt-in.
func helloID(profile *fingerprint.Profile) utls.ClientHelloID {
	if profile == nil {
		return utls.HelloGolang
	}
	return profile.ClientHelloID
}

// quicHelloID picks the ClientHello for QUIC, preferring the
// QUIC-specific presentation when the profile carries one (HTTP/3
// ClientHellos differ from TCP in their extension set).
func quicHelloID(profile *fingerprint.Profile) *utls.ClientHelloID {
	if profile == nil {
		return nil
	}
	if profile.QUICClientHelloID.Client != "" {
		return &profile.QUICClientHelloID
	}
	if profile.ClientHelloID.Client != "" {
		return &profile.ClientHelloID
	}
	return nil
}
