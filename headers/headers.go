// Package headers assembles the ordered header block a request carries on
// the wire. Header order is part of a browser fingerprint, so everything
// here preserves insertion order; the plain map[string][]string shape of
// net/http headers is only produced at the very end, alongside the order
// keys the transport honors.
package headers

import (
	"io"
	"strings"

	http "github.com/sardanioss/http"

	"github.com/sardanioss/httpmimic/fingerprint"
)

// Overrides is an ordered collection of caller-supplied headers. Lookups
// are case-insensitive; iteration yields entries in the order they were
// first set.
type Overrides struct {
	names  []string // canonical spelling as given by the caller
	values map[string]string
}

// NewOverrides returns an empty override set.
func NewOverrides() *Overrides {
	return &Overrides{values: make(map[string]string)}
}

// Set adds or replaces a header. Replacing keeps the original position
// and spelling.
func (o *Overrides) Set(name, value string) *Overrides {
	key := strings.ToLower(name)
	if _, ok := o.values[key]; !ok {
		o.names = append(o.names, name)
	}
	o.values[key] = value
	return o
}

// Get returns the value for name, matching case-insensitively.
func (o *Overrides) Get(name string) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o.values[strings.ToLower(name)]
	return v, ok
}

// Del removes a header if present.
func (o *Overrides) Del(name string) {
	key := strings.ToLower(name)
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, n := range o.names {
		if strings.ToLower(n) == key {
			o.names = append(o.names[:i], o.names[i+1:]...)
			break
		}
	}
}

// Len returns the number of headers set.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.names)
}

// Each calls fn for every header in insertion order.
func (o *Overrides) Each(fn func(name, value string)) {
	if o == nil {
		return
	}
	for _, n := range o.names {
		fn(n, o.values[strings.ToLower(n)])
	}
}

// Set is a fully assembled, ordered header block ready to be attached to
// a request or written verbatim into an HTTP/1.1 handshake.
type Set struct {
	entries     []fingerprint.Header
	pseudoOrder []string
}

// Merge layers caller overrides onto an ordered default table. A default
// whose name matches an override (case-insensitively) takes the override's
// value but keeps its slot; overrides with no matching default are
// appended after the defaults, in the order the caller set them.
func Merge(defaults []fingerprint.Header, overrides *Overrides, pseudoOrder []string) *Set {
	s := &Set{pseudoOrder: pseudoOrder}
	consumed := make(map[string]bool)
	for _, d := range defaults {
		value := d.Value
		if v, ok := overrides.Get(d.Name); ok {
			value = v
			consumed[strings.ToLower(d.Name)] = true
		}
		s.entries = append(s.entries, fingerprint.Header{Name: d.Name, Value: value})
	}
	overrides.Each(func(name, value string) {
		if !consumed[strings.ToLower(name)] {
			s.entries = append(s.entries, fingerprint.Header{Name: name, Value: value})
		}
	})
	return s
}

// ForRequest merges a profile's default navigation headers with caller
// overrides. A nil profile means no impersonation: the block carries only
// what the caller set, in the caller's order, and no pseudo-header order
// is pinned.
func ForRequest(profile *fingerprint.Profile, overrides *Overrides) *Set {
	if profile == nil {
		return Merge(nil, overrides, nil)
	}
	return Merge(profile.HeaderDefaults, overrides, profile.PseudoHeaderOrder)
}

// ForWebSocket merges a profile's fixed WebSocket handshake table with
// caller overrides. With a nil profile the caller's headers pass through
// untouched.
func ForWebSocket(profile *fingerprint.Profile, overrides *Overrides) *Set {
	if profile == nil {
		return Merge(nil, overrides, nil)
	}
	return Merge(profile.WebSocketHeaders(), overrides, profile.PseudoHeaderOrder)
}

// Get returns the current value for name in the set.
func (s *Set) Get(name string) (string, bool) {
	for _, e := range s.entries {
		if strings.EqualFold(e.Name, name) {
			return e.Value, true
		}
	}
	return "", false
}

// Names returns the lowercase header names in wire order.
func (s *Set) Names() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = strings.ToLower(e.Name)
	}
	return out
}

// Len returns the number of headers in the set.
func (s *Set) Len() int { return len(s.entries) }

// Apply writes the set into an http.Header and records the wire order
// under the transport's order keys, so both HTTP/1.1 serialization and
// HPACK/QPACK encoding emit the fields exactly as assembled.
func (s *Set) Apply(h http.Header) {
	order := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		h.Set(e.Name, e.Value)
		order = append(order, strings.ToLower(e.Name))
	}
	h[http.HeaderOrderKey] = order
	if len(s.pseudoOrder) > 0 {
		h[http.PHeaderOrderKey] = append([]string(nil), s.pseudoOrder...)
	}
}

// WriteTo serializes the set as HTTP/1.1 header lines. It satisfies
// io.WriterTo so a WebSocket dialer can splice the block into its opening
// handshake without reordering.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range s.entries {
		n, err := io.WriteString(w, e.Name+": "+e.Value+"\r\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
