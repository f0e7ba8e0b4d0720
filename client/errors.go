package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors returned by the dispatcher before any network activity.
var (
	// ErrInvalidURL means the target URL could not be parsed.
	ErrInvalidURL = errors.New("invalid url")

	// ErrMissingHost means the target URL has no host component.
	ErrMissingHost = errors.New("url has no host")

	// ErrUnsupportedScheme means the URL scheme is neither http nor https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrUpgradeDisabled means the caller demanded HTTP/3 on a client whose
	// protocol ceiling does not allow it.
	ErrUpgradeDisabled = errors.New("http/3 disabled by protocol ceiling")

	// ErrTimeout means a request or handshake exceeded its time bound.
	ErrTimeout = errors.New("request timed out")

	// ErrHandshake means a WebSocket upgrade negotiation failed.
	ErrHandshake = errors.New("websocket handshake failed")
)

// TransportError wraps a failure from the underlying transport execution
// (connection refused, TLS failure, malformed response). The dispatcher does
// not retry these automatically outside the vanilla-fallback path.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classifyExecErr maps a transport execution failure onto the error taxonomy:
// deadline expiry becomes ErrTimeout, everything else a TransportError.
func classifyExecErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &TransportError{Err: err}
}
