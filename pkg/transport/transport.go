// Package transport provides the datagram layer used by the sync engine.
// Implementations never block the caller: Send is fire-and-forget and
// TryReceive only returns what is already queued.
package transport

import (
	"errors"
	"fmt"
	"time"

	customlog "github.com/posync/posync/pkg/log"
)

// Common errors
var (
	ErrClosed          = errors.New("transport is closed")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum datagram size")
	ErrUnreachable     = errors.New("endpoint unreachable")
)

// Datagram is one inbound payload together with the endpoint it came from.
type Datagram struct {
	From    Endpoint
	Payload []byte
}

// Transport is a non-blocking datagram socket.
type Transport interface {
	// Send transmits payload to the endpoint. Failures are *TransportError.
	Send(to Endpoint, payload []byte) error

	// TryReceive returns every datagram queued at call time, or nil.
	TryReceive() []Datagram

	// LocalEndpoint returns the bound local address.
	LocalEndpoint() Endpoint

	// Close releases the socket. Safe to call more than once.
	Close() error
}

// TransportError describes a failed send, receive or bind.
type TransportError struct {
	Op       string
	Endpoint Endpoint
	Err      error
}

func (e *TransportError) Error() string {
	if e.Endpoint.IsValid() {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Options holds transport configuration.
type Options struct {
	// InboxSize bounds the number of datagrams buffered between ticks.
	InboxSize int
	// MaxDatagramSize is the largest payload accepted in either direction.
	MaxDatagramSize int
	// WriteTimeout bounds a single send.
	WriteTimeout time.Duration
	Logger       customlog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		InboxSize:       1024,
		MaxDatagramSize: 1400, // Safe for UDP over ethernet
		WriteTimeout:    50 * time.Millisecond,
		Logger:          customlog.NewNopLogger(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InboxSize <= 0 {
		o.InboxSize = d.InboxSize
	}
	if o.MaxDatagramSize <= 0 {
		o.MaxDatagramSize = d.MaxDatagramSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}
