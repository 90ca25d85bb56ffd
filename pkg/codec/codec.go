// Package codec serializes position messages for the wire.
package codec

import (
	"errors"
	"fmt"

	"github.com/posync/posync/pkg/position"
)

// Format names accepted by ForName.
const (
	FormatJSON        = "json"
	FormatFlatBuffers = "flatbuffers"
)

// Common errors
var (
	ErrEmptyPayload       = errors.New("empty payload")
	ErrTruncated          = errors.New("truncated payload")
	ErrUnrecognizedShape  = errors.New("unrecognized payload shape")
	ErrBadIdentifier      = errors.New("bad file identifier")
	ErrNonFinitePosition  = errors.New("position has non-finite component")
	ErrUnknownCodecFormat = errors.New("unknown codec format")
)

// Message is one position report as carried on the wire. PeerID is empty
// when the sender's identity is implied by its source endpoint.
type Message struct {
	PeerID   string
	Position position.Position
}

// Codec converts Messages to and from datagram payloads.
type Codec interface {
	Name() string
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// DecodeError reports a payload that could not be decoded. The datagram that
// produced it is dropped; nothing else is affected.
type DecodeError struct {
	Format string
	Size   int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload (%d bytes): %v", e.Format, e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodePosition encodes a bare position without a peer identifier.
func EncodePosition(c Codec, p position.Position) ([]byte, error) {
	return c.Encode(Message{Position: p})
}

// ForName returns the codec registered under name.
func ForName(name string) (Codec, error) {
	switch name {
	case FormatJSON, "":
		return NewJSONCodec(), nil
	case FormatFlatBuffers:
		return NewFlatBufferCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodecFormat, name)
	}
}
