package dns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const defaultResolvConf = "/etc/resolv.conf"

// HTTPSProber queries a host's HTTPS (type 65) record and reports whether
// its SVCB parameters advertise the h3 ALPN. Browsers use the same record
// to race QUIC without a prior TCP round trip.
type HTTPSProber struct {
	client  *dns.Client
	servers []string // "host:port"
}

// NewHTTPSProber builds a prober using the nameservers from resolv.conf,
// falling back to a public resolver when the file is unreadable.
func NewHTTPSProber() *HTTPSProber {
	p := &HTTPSProber{
		client: &dns.Client{Timeout: 3 * time.Second},
	}
	if conf, err := dns.ClientConfigFromFile(defaultResolvConf); err == nil && len(conf.Servers) > 0 {
		for _, s := range conf.Servers {
			p.servers = append(p.servers, net.JoinHostPort(s, conf.Port))
		}
	} else {
		p.servers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	return p
}

// Probe resolves the HTTPS record for host. It returns true when any
// answer lists h3 in its ALPN set; a clean NOERROR/NXDOMAIN with no h3
// returns false, and transport or RCODE failures return an error so the
// caller can keep the host's capability unknown.
func (p *HTTPSProber) Probe(ctx context.Context, host string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeHTTPS)

	var lastErr error
	for _, server := range p.servers {
		resp, _, err := p.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return answersAdvertiseH3(resp.Answer), nil
		default:
			lastErr = fmt.Errorf("https record query for %s: %s", host, dns.RcodeToString[resp.Rcode])
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("https record query for %s: no nameservers", host)
	}
	return false, lastErr
}

func answersAdvertiseH3(answers []dns.RR) bool {
	for _, rr := range answers {
		https, ok := rr.(*dns.HTTPS)
		if !ok {
			continue
		}
		for _, kv := range https.Value {
			alpn, ok := kv.(*dns.SVCBAlpn)
			if !ok {
				continue
			}
			for _, proto := range alpn.Alpn {
				if proto == "h3" {
					return true
				}
			}
		}
	}
	return false
}
