// Package keylog exposes an SSLKEYLOGFILE-format writer so captured traffic
// can be decrypted in Wireshark. Both the TCP and QUIC TLS configs consult
// it; when nothing is configured it stays nil and costs nothing.
package keylog

import (
	"io"
	"os"
	"sync"
)

var (
	mu     sync.RWMutex
	writer io.Writer
)

func init() {
	if path := os.Getenv("SSLKEYLOGFILE"); path != "" {
		// Errors are ignored: key logging is a debug aid.
		if f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600); err == nil {
			writer = f
		}
	}
}

// GetWriter returns the configured key log writer, or nil.
func GetWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return writer
}

// SetFile directs key material to the given path, overriding the
// SSLKEYLOGFILE environment variable. An empty path disables logging.
func SetFile(path string) error {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	writer = f
	return nil
}

// SetWriter directs key material to an arbitrary writer, e.g. a buffer in
// tests. nil disables logging.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	writer = w
}

// Close releases the writer if this package opened it.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

func closeLocked() error {
	var err error
	if c, ok := writer.(io.Closer); ok {
		err = c.Close()
	}
	writer = nil
	return err
}
