package fingerprint

import (
	"strings"
	"testing"
)

func TestGetKnownProfiles(t *testing.T) {
	for _, name := range Available() {
		p, ok := Get(name)
		if !ok {
			t.Fatalf("Get(%q) returned ok=false for a name from Available()", name)
		}
		if p.UserAgent == "" {
			t.Errorf("profile %q has empty UserAgent", name)
		}
		if len(p.HeaderDefaults) == 0 {
			t.Errorf("profile %q has no default headers", name)
		}
		if len(p.PseudoHeaderOrder) != 4 {
			t.Errorf("profile %q has %d pseudo-headers, expected 4", name, len(p.PseudoHeaderOrder))
		}
	}
}

func TestGetUnknownProfile(t *testing.T) {
	if p, ok := Get("netscape-4"); ok || p != nil {
		t.Fatalf("Get for unknown name returned %v, %v; want nil, false", p, ok)
	}
}

func TestPseudoHeaderOrders(t *testing.T) {
	chrome, _ := Get("chrome-143")
	firefox, _ := Get("firefox-133")

	wantChrome := []string{":method", ":authority", ":scheme", ":path"}
	wantFirefox := []string{":method", ":path", ":authority", ":scheme"}

	for i, h := range wantChrome {
		if chrome.PseudoHeaderOrder[i] != h {
			t.Errorf("chrome pseudo-header %d = %q, want %q", i, chrome.PseudoHeaderOrder[i], h)
		}
	}
	for i, h := range wantFirefox {
		if firefox.PseudoHeaderOrder[i] != h {
			t.Errorf("firefox pseudo-header %d = %q, want %q", i, firefox.PseudoHeaderOrder[i], h)
		}
	}
}

func TestChromeHeaderOrder(t *testing.T) {
	p, _ := Get("chrome-143")

	// Client hints lead, then the navigation block, encodings last.
	first := p.HeaderDefaults[0].Name
	if first != "sec-ch-ua" {
		t.Errorf("first default header = %q, want sec-ch-ua", first)
	}
	idx := func(name string) int {
		for i, h := range p.HeaderDefaults {
			if strings.EqualFold(h.Name, name) {
				return i
			}
		}
		t.Fatalf("header %q not in defaults", name)
		return -1
	}
	if idx("User-Agent") > idx("Accept") {
		t.Error("User-Agent should precede Accept")
	}
	if idx("Accept-Encoding") > idx("Accept-Language") {
		t.Error("Accept-Encoding should precede Accept-Language")
	}
	if !strings.Contains(p.HeaderDefaults[idx("Accept-Encoding")].Value, "zstd") {
		t.Error("chrome Accept-Encoding should advertise zstd")
	}
}

func TestWebSocketHeaders(t *testing.T) {
	p, _ := Get("chrome-143")
	hs := p.WebSocketHeaders()
	if hs[0].Name != "User-Agent" || hs[0].Value != p.UserAgent {
		t.Errorf("first socket header = %v, want profile User-Agent", hs[0])
	}
	for _, h := range hs {
		switch strings.ToLower(h.Name) {
		case "host", "connection", "upgrade", "sec-websocket-key", "sec-websocket-version":
			t.Errorf("socket header table must not carry handshake-owned field %q", h.Name)
		}
	}
}
