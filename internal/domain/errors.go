package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRequestTooLarge         = errors.New("connect request too large")
	ErrShortWrite              = errors.New("short write")
	ErrPeerClosed              = errors.New("eof from proxy")
	ErrPeerClosedDuringHeaders = errors.New("eof from proxy while reading headers")
	ErrIO                      = errors.New("i/o error")
	ErrHeaderTooLarge          = errors.New("response headers too large")
)

// Phase errors wrap the failures above so the CLI can pick an exit code.
var (
	ErrPassword         = errors.New("get password failed")
	ErrHostLookup       = errors.New("hostname lookup failed")
	ErrProxyUnreachable = errors.New("proxy connect failed")
	ErrHandshake        = errors.New("http connect failed")
	ErrTunnel           = errors.New("tunnel failed")
	ErrEventLoop        = errors.New("event loop failed")
)

// RejectedError is returned when the proxy answers with anything other
// than a 200 status.
type RejectedError struct {
	StatusLine string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("proxy rejected connect: %s", e.StatusLine)
}

func ioError(err error) error {
	return fmt.Errorf("%w: %w", ErrIO, err)
}
