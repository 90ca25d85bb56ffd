package codec

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/posync/posync/pkg/position"
)

// Ensure JSONCodec implements the Codec interface
var _ Codec = (*JSONCodec)(nil)

// JSONCodec is the default text format:
//
//	{"peerId":"10.0.0.2:5000","position":{"x":1,"y":2,"z":3}}
//
// Decoding also accepts the older shapes, a bare vector {"x":..,"y":..} and
// {"ipAddress":..,"port":..,"position":{..}}.
type JSONCodec struct{}

// NewJSONCodec creates a JSONCodec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// wirePayload is what this codec writes.
type wirePayload struct {
	PeerID   string            `json:"peerId,omitempty"`
	Position position.Position `json:"position"`
}

// looseVector is a vector whose z may be missing (2D senders).
type looseVector struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// loosePayload covers every wrapped shape seen on the wire.
type loosePayload struct {
	PeerID    string       `json:"peerId"`
	IPAddress string       `json:"ipAddress"`
	Port      int          `json:"port"`
	Position  *looseVector `json:"position"`
}

func (c *JSONCodec) Name() string {
	return FormatJSON
}

// Encode writes msg as JSON.
func (c *JSONCodec) Encode(msg Message) ([]byte, error) {
	if !msg.Position.IsFinite() {
		return nil, fmt.Errorf("encode json: %w: %v", ErrNonFinitePosition, msg.Position)
	}
	data, err := json.Marshal(wirePayload{PeerID: msg.PeerID, Position: msg.Position})
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

// Decode parses any accepted shape.
func (c *JSONCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, c.fail(data, ErrEmptyPayload)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, c.fail(data, err)
	}
	if raw == nil {
		return Message{}, c.fail(data, ErrUnrecognizedShape)
	}

	if _, wrapped := raw["position"]; wrapped {
		var p loosePayload
		if err := decodeMap(raw, &p); err != nil {
			return Message{}, c.fail(data, err)
		}
		pos, err := p.Position.toPosition()
		if err != nil {
			return Message{}, c.fail(data, err)
		}
		return Message{PeerID: p.PeerID, Position: pos}, nil
	}

	var v looseVector
	if err := decodeMap(raw, &v); err != nil {
		return Message{}, c.fail(data, err)
	}
	pos, err := v.toPosition()
	if err != nil {
		return Message{}, c.fail(data, err)
	}
	return Message{Position: pos}, nil
}

func (c *JSONCodec) fail(data []byte, err error) error {
	return &DecodeError{Format: FormatJSON, Size: len(data), Err: err}
}

func decodeMap(raw map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func (v *looseVector) toPosition() (position.Position, error) {
	if v == nil || v.X == nil || v.Y == nil {
		return position.Position{}, ErrUnrecognizedShape
	}
	p := position.Position{X: *v.X, Y: *v.Y}
	if v.Z != nil {
		p.Z = *v.Z
	}
	return p, nil
}
