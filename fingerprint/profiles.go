package fingerprint

import (
	"runtime"

	tls "github.com/sardanioss/utls"
)

// PlatformInfo contains platform-specific header values
type PlatformInfo struct {
	UserAgentOS        string // e.g., "(Windows NT 10.0; Win64; x64)" or "(X11; Linux x86_64)"
	Platform           string // e.g., "Windows", "Linux", "macOS"
	FirefoxUserAgentOS string // Firefox has slightly different format
}

// GetPlatformInfo returns platform-specific info based on runtime OS
func GetPlatformInfo() PlatformInfo {
	switch runtime.GOOS {
	case "windows":
		return PlatformInfo{
			UserAgentOS:        "(Windows NT 10.0; Win64; x64)",
			Platform:           "Windows",
			FirefoxUserAgentOS: "(Windows NT 10.0; Win64; x64; rv:133.0)",
		}
	case "darwin":
		return PlatformInfo{
			UserAgentOS:        "(Macintosh; Intel Mac OS X 10_15_7)",
			Platform:           "macOS",
			FirefoxUserAgentOS: "(Macintosh; Intel Mac OS X 10.15; rv:133.0)",
		}
	default: // linux and others
		return PlatformInfo{
			UserAgentOS:        "(X11; Linux x86_64)",
			Platform:           "Linux",
			FirefoxUserAgentOS: "(X11; Linux x86_64; rv:133.0)",
		}
	}
}

// Header is a single name/value pair. Profile header tables are ordered
// slices rather than maps: the emission order on the wire is part of the
// fingerprint.
type Header struct {
	Name  string
	Value string
}

// Profile describes the wire identity of one browser build: the TLS
// ClientHello to present, the default request headers in the exact order
// the browser emits them, and the HTTP/2 pseudo-header order.
type Profile struct {
	Name              string
	ClientHelloID     tls.ClientHelloID // For TCP/TLS (HTTP/1.1, HTTP/2)
	QUICClientHelloID tls.ClientHelloID // For QUIC/HTTP/3 (different TLS extensions)
	UserAgent         string
	HeaderDefaults    []Header // navigation headers, in wire order
	PseudoHeaderOrder []string // HTTP/2+ pseudo-header order
	SupportHTTP3      bool
}

// Chrome sends :method, :authority, :scheme, :path. Firefox swaps
// :path and :authority.
var (
	chromePseudoOrder  = []string{":method", ":authority", ":scheme", ":path"}
	firefoxPseudoOrder = []string{":method", ":path", ":authority", ":scheme"}
)

// chromeDefaults builds the ordered navigation header table shared by all
// Chromium profiles. Only low-entropy Client Hints are included; the
// high-entropy ones (arch, bitness, full-version-list) are sent solely
// after a server opts in via Accept-CH, and sending them unprompted is
// itself a bot signal.
func chromeDefaults(secChUA, platform, userAgent string) []Header {
	return []Header{
		{"sec-ch-ua", secChUA},
		{"sec-ch-ua-mobile", "?0"},
		{"sec-ch-ua-platform", `"` + platform + `"`},
		{"Upgrade-Insecure-Requests", "1"},
		{"User-Agent", userAgent},
		{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
		{"Sec-Fetch-Site", "none"},
		{"Sec-Fetch-Mode", "navigate"},
		{"Sec-Fetch-User", "?1"},
		{"Sec-Fetch-Dest", "document"},
		{"Accept-Encoding", "gzip, deflate, br, zstd"},
		{"Accept-Language", "en-US,en;q=0.9"},
		{"Priority", "u=0, i"},
	}
}

// Chrome131 returns the Chrome 131 profile
func Chrome131() *Profile {
	p := GetPlatformInfo()
	ua := "Mozilla/5.0 " + p.UserAgentOS + " AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	return &Profile{
		Name:              "chrome-131",
		ClientHelloID:     tls.HelloChrome_131,
		UserAgent:         ua,
		HeaderDefaults:    chromeDefaults(`"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`, p.Platform, ua),
		PseudoHeaderOrder: chromePseudoOrder,
		SupportHTTP3:      true,
	}
}

// Chrome133 returns the Chrome 133 profile
func Chrome133() *Profile {
	p := GetPlatformInfo()
	ua := "Mozilla/5.0 " + p.UserAgentOS + " AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	return &Profile{
		Name:              "chrome-133",
		ClientHelloID:     tls.HelloChrome_133,
		UserAgent:         ua,
		HeaderDefaults:    chromeDefaults(`"Google Chrome";v="133", "Chromium";v="133", "Not_A Brand";v="24"`, p.Platform, ua),
		PseudoHeaderOrder: chromePseudoOrder,
		SupportHTTP3:      true,
	}
}

// Chrome143 returns the Chrome 143 profile with a platform-specific TLS
// fingerprint (extension order is fixed per platform from Chrome 143 on).
func Chrome143() *Profile {
	p := GetPlatformInfo()
	var clientHelloID tls.ClientHelloID
	switch p.Platform {
	case "Windows":
		clientHelloID = tls.HelloChrome_143_Windows
	case "macOS":
		clientHelloID = tls.HelloChrome_143_macOS
	default:
		clientHelloID = tls.HelloChrome_143_Linux
	}
	ua := "Mozilla/5.0 " + p.UserAgentOS + " AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
	return &Profile{
		Name:              "chrome-143",
		ClientHelloID:     clientHelloID,
		QUICClientHelloID: tls.HelloChrome_143_QUIC,
		UserAgent:         ua,
		HeaderDefaults:    chromeDefaults(`"Google Chrome";v="143", "Chromium";v="143", "Not A(Brand";v="24"`, p.Platform, ua),
		PseudoHeaderOrder: chromePseudoOrder,
		SupportHTTP3:      true,
	}
}

// Firefox133 returns the Firefox 133 profile
func Firefox133() *Profile {
	p := GetPlatformInfo()
	ua := "Mozilla/5.0 " + p.FirefoxUserAgentOS + " Gecko/20100101 Firefox/133.0"
	return &Profile{
		Name:          "firefox-133",
		ClientHelloID: tls.HelloFirefox_120,
		UserAgent:     ua,
		HeaderDefaults: []Header{
			{"User-Agent", ua},
			{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			{"Accept-Language", "en-US,en;q=0.5"},
			{"Accept-Encoding", "gzip, deflate, br, zstd"},
			{"Upgrade-Insecure-Requests", "1"},
			{"Sec-Fetch-Dest", "document"},
			{"Sec-Fetch-Mode", "navigate"},
			{"Sec-Fetch-Site", "none"},
			{"Sec-Fetch-User", "?1"},
			{"Priority", "u=0, i"},
		},
		PseudoHeaderOrder: firefoxPseudoOrder,
		SupportHTTP3:      true,
	}
}

// profiles is a map of all available profiles
var profiles = map[string]func() *Profile{
	"chrome-131":  Chrome131,
	"chrome-133":  Chrome133,
	"chrome-143":  Chrome143,
	"chrome":      Chrome143,
	"firefox-133": Firefox133,
	"firefox":     Firefox133,
}

// Get returns a profile by name. The second return is false when the name
// is unknown; callers decide whether that is an error or means "no
// impersonation".
func Get(name string) (*Profile, bool) {
	if fn, ok := profiles[name]; ok {
		return fn(), true
	}
	return nil, false
}

// Available returns a list of available profile names
func Available() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}

// WebSocketHeaders returns the ordered header table a Chromium browser
// sends on a WebSocket opening handshake. The Host, Connection, Upgrade,
// Sec-WebSocket-Key and Sec-WebSocket-Version fields are written by the
// handshake layer itself.
func (p *Profile) WebSocketHeaders() []Header {
	return []Header{
		{"User-Agent", p.UserAgent},
		{"Pragma", "no-cache"},
		{"Cache-Control", "no-cache"},
		{"Accept-Encoding", "gzip, deflate, br, zstd"},
		{"Accept-Language", "en-US,en;q=0.9"},
	}
}
