package client

import (
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	http "github.com/sardanioss/http"
)

// Response is the outcome of a dispatched request. The body stream is
// transparently decoded per Content-Encoding; call Close when done, or use
// Bytes/Text/JSON which drain and cache it.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       io.ReadCloser
	Protocol   string // "h1", "h2" or "h3"
	FinalURL   string

	bodyBytes []byte
	bodyRead  bool
}

func newResponse(resp *http.Response, u *url.URL, usedH3 bool) *Response {
	proto := "h1"
	switch {
	case usedH3 || resp.ProtoMajor == 3:
		proto = "h3"
	case resp.ProtoMajor == 2:
		proto = "h2"
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       decodeBody(resp.Body, resp.Header.Get("Content-Encoding")),
		Protocol:   proto,
		FinalURL:   u.String(),
	}
}

// Close closes the response body.
func (r *Response) Close() error {
	if r.Body != nil {
		return r.Body.Close()
	}
	return nil
}

// Bytes reads the entire body and caches it, so repeated calls are cheap.
func (r *Response) Bytes() ([]byte, error) {
	if r.bodyRead {
		return r.bodyBytes, nil
	}
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.bodyBytes = data
	r.bodyRead = true
	return data, nil
}

// Text returns the body as a string.
func (r *Response) Text() (string, error) {
	data, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// GetHeader returns the first value for key.
func (r *Response) GetHeader(key string) string {
	return r.Headers.Get(key)
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports whether the status code is 3xx.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsClientError reports whether the status code is 4xx.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError reports whether the status code is 5xx.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// decodedReader pairs a decoding reader with the underlying body so Close
// tears down both.
type decodedReader struct {
	io.Reader
	body io.Closer
	dec  io.Closer
}

func (d *decodedReader) Close() error {
	if d.dec != nil {
		d.dec.Close()
	}
	return d.body.Close()
}

// decodeBody wraps body in a decompression reader matching the
// Content-Encoding. Unknown or empty encodings pass through untouched;
// the decoder for gzip is created lazily on first read since its
// constructor consumes the stream header.
func decodeBody(body io.ReadCloser, encoding string) io.ReadCloser {
	switch strings.ToLower(encoding) {
	case "gzip":
		lr := &lazyGzipReader{src: body}
		return &decodedReader{Reader: lr, body: body, dec: lr}
	case "br":
		return &decodedReader{Reader: brotli.NewReader(body), body: body}
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return body
		}
		rc := dec.IOReadCloser()
		return &decodedReader{Reader: rc, body: body, dec: rc}
	case "deflate":
		fr := flate.NewReader(body)
		return &decodedReader{Reader: fr, body: body, dec: fr}
	default:
		return body
	}
}

// lazyGzipReader defers gzip header parsing to the first Read so responses
// with a lying Content-Encoding and an empty body do not fail at wrap time.
type lazyGzipReader struct {
	src io.Reader
	zr  *gzip.Reader
	err error
}

func (l *lazyGzipReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.zr == nil {
		l.zr, l.err = gzip.NewReader(l.src)
		if l.err != nil {
			return 0, l.err
		}
	}
	return l.zr.Read(p)
}

func (l *lazyGzipReader) Close() error {
	if l.zr != nil {
		return l.zr.Close()
	}
	return nil
}
