package client

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	http "github.com/sardanioss/http"
)

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(s))
	zw.Close()
	return buf.Bytes()
}

func TestResponseDecoding(t *testing.T) {
	const payload = "hello, fingerprints"

	var brBuf bytes.Buffer
	bw := brotli.NewWriter(&brBuf)
	bw.Write([]byte(payload))
	bw.Close()

	var zstdBuf bytes.Buffer
	zw, _ := zstd.NewWriter(&zstdBuf)
	zw.Write([]byte(payload))
	zw.Close()

	var deflateBuf bytes.Buffer
	fw, _ := flate.NewWriter(&deflateBuf, flate.DefaultCompression)
	fw.Write([]byte(payload))
	fw.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"gzip", gzipped(t, payload)},
		{"br", brBuf.Bytes()},
		{"zstd", zstdBuf.Bytes()},
		{"deflate", deflateBuf.Bytes()},
		{"", []byte(payload)},
		{"identity", []byte(payload)},
	}
	for _, tt := range tests {
		name := tt.encoding
		if name == "" {
			name = "none"
		}
		t.Run(name, func(t *testing.T) {
			body := decodeBody(io.NopCloser(bytes.NewReader(tt.body)), tt.encoding)
			got, err := io.ReadAll(body)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			body.Close()
			if string(got) != payload {
				t.Fatalf("decoded %q, want %q", got, payload)
			}
		})
	}
}

// closeCountingBody counts Close calls so tests can verify a decoded
// body tears down the stream beneath it.
type closeCountingBody struct {
	io.Reader
	closes int
}

func (c *closeCountingBody) Close() error {
	c.closes++
	return nil
}

func TestDecodedBodyClosesUnderlyingStream(t *testing.T) {
	const payload = "drain and release"

	var brBuf bytes.Buffer
	bw := brotli.NewWriter(&brBuf)
	bw.Write([]byte(payload))
	bw.Close()

	var zstdBuf bytes.Buffer
	zw, _ := zstd.NewWriter(&zstdBuf)
	zw.Write([]byte(payload))
	zw.Close()

	var deflateBuf bytes.Buffer
	fw, _ := flate.NewWriter(&deflateBuf, flate.DefaultCompression)
	fw.Write([]byte(payload))
	fw.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"gzip", gzipped(t, payload)},
		{"br", brBuf.Bytes()},
		{"zstd", zstdBuf.Bytes()},
		{"deflate", deflateBuf.Bytes()},
		{"", []byte(payload)},
	}
	for _, tt := range tests {
		name := tt.encoding
		if name == "" {
			name = "none"
		}
		t.Run(name, func(t *testing.T) {
			underlying := &closeCountingBody{Reader: bytes.NewReader(tt.body)}
			body := decodeBody(underlying, tt.encoding)
			if _, err := io.ReadAll(body); err != nil {
				t.Fatalf("read: %v", err)
			}
			if err := body.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if underlying.closes == 0 {
				t.Fatal("underlying body never closed")
			}
		})
	}
}

func TestResponseBytesCaches(t *testing.T) {
	u, _ := url.Parse("https://example.com/x")
	resp := newResponse(&http.Response{
		StatusCode: 200,
		ProtoMajor: 2,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("body")),
	}, u, false)

	for i := 0; i < 2; i++ {
		data, err := resp.Bytes()
		if err != nil {
			t.Fatalf("Bytes #%d: %v", i+1, err)
		}
		if string(data) != "body" {
			t.Fatalf("Bytes #%d = %q", i+1, data)
		}
	}
	if resp.Protocol != "h2" {
		t.Fatalf("Protocol = %q, want h2", resp.Protocol)
	}
	if resp.FinalURL != "https://example.com/x" {
		t.Fatalf("FinalURL = %q", resp.FinalURL)
	}
}

func TestResponseJSON(t *testing.T) {
	u, _ := url.Parse("https://example.com")
	resp := newResponse(&http.Response{
		StatusCode: 200,
		ProtoMajor: 2,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{"ok":true,"n":3}`)),
	}, u, false)

	var out struct {
		OK bool `json:"ok"`
		N  int  `json:"n"`
	}
	if err := resp.JSON(&out); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !out.OK || out.N != 3 {
		t.Fatalf("decoded %+v", out)
	}
}

func TestStatusClassifiers(t *testing.T) {
	tests := []struct {
		status  int
		success bool
		client  bool
		server  bool
	}{
		{200, true, false, false},
		{204, true, false, false},
		{404, false, true, false},
		{503, false, false, true},
	}
	for _, tt := range tests {
		r := &Response{StatusCode: tt.status}
		if r.IsSuccess() != tt.success || r.IsClientError() != tt.client || r.IsServerError() != tt.server {
			t.Errorf("status %d classified wrong", tt.status)
		}
	}
}
