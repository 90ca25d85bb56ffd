package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/posync/posync/pkg/flatbuffers/posync/wire"
	"github.com/posync/posync/pkg/position"
)

func allCodecs() []Codec {
	return []Codec{NewJSONCodec(), NewFlatBufferCodec()}
}

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		{Position: position.New(4.5, -1, 0)},
		{Position: position.New(1e-9, 1e9, -123.25)},
		{PeerID: "192.168.1.72:44445", Position: position.New(1, 2, 3)},
		{PeerID: "host", Position: position.Zero},
	}

	for _, c := range allCodecs() {
		for _, msg := range cases {
			data, err := c.Encode(msg)
			if err != nil {
				t.Fatalf("%s: Encode(%+v) failed: %v", c.Name(), msg, err)
			}
			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("%s: Decode failed: %v", c.Name(), err)
			}
			if got != msg {
				t.Errorf("%s: expected %+v, got %+v", c.Name(), msg, got)
			}
		}
	}
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	for _, c := range allCodecs() {
		for _, p := range []position.Position{
			position.New(math.NaN(), 0, 0),
			position.New(0, math.Inf(1), 0),
			position.New(0, 0, math.Inf(-1)),
		} {
			if _, err := EncodePosition(c, p); !errors.Is(err, ErrNonFinitePosition) {
				t.Errorf("%s: expected ErrNonFinitePosition for %v, got %v", c.Name(), p, err)
			}
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("garbage"),
		{0xff},
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09},
		[]byte(`{"x":1}`),
		[]byte(`[1,2,3]`),
		[]byte(`null`),
		[]byte(`{"x":"one","y":2}`),
	}

	for _, c := range allCodecs() {
		for _, in := range inputs {
			_, err := c.Decode(in)
			if err == nil {
				t.Errorf("%s: expected error decoding %q", c.Name(), in)
				continue
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("%s: expected *DecodeError, got %T", c.Name(), err)
			}
		}
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	for _, c := range allCodecs() {
		if _, err := c.Decode(nil); !errors.Is(err, ErrEmptyPayload) {
			t.Errorf("%s: expected ErrEmptyPayload, got %v", c.Name(), err)
		}
	}
}

func TestFlatBufferTruncated(t *testing.T) {
	c := NewFlatBufferCodec()
	data, err := EncodePosition(c, position.New(1, 2, 3))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for n := 1; n < len(data); n++ {
		if _, err := c.Decode(data[:n]); err == nil {
			t.Errorf("Expected error for %d of %d bytes", n, len(data))
		}
	}
}

func TestFlatBufferBadIdentifier(t *testing.T) {
	c := NewFlatBufferCodec()
	data, _ := EncodePosition(c, position.New(1, 2, 3))
	data[4] = 'X'
	if _, err := c.Decode(data); !errors.Is(err, ErrBadIdentifier) {
		t.Errorf("Expected ErrBadIdentifier, got %v", err)
	}
}

func TestFlatBufferRejectsJSON(t *testing.T) {
	payload, _ := EncodePosition(NewJSONCodec(), position.New(1, 2, 3))
	if _, err := NewFlatBufferCodec().Decode(payload); err == nil {
		t.Errorf("Expected flatbuffers codec to reject a JSON payload")
	}
}

func TestJSONLegacyShapes(t *testing.T) {
	c := NewJSONCodec()
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{"bare 3d", `{"x":4.5,"y":-1,"z":0}`, Message{Position: position.New(4.5, -1, 0)}},
		{"bare 2d", `{"x":4.5,"y":-1}`, Message{Position: position.New(4.5, -1, 0)}},
		{
			"wrapped with address",
			`{"ipAddress":"10.0.0.2","port":5000,"position":{"x":1,"y":2}}`,
			Message{Position: position.New(1, 2, 0)},
		},
		{
			"wrapped with peer id",
			`{"peerId":"10.0.0.2:5000","position":{"x":1,"y":2,"z":3}}`,
			Message{PeerID: "10.0.0.2:5000", Position: position.New(1, 2, 3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestJSONWrappedWithoutVector(t *testing.T) {
	_, err := NewJSONCodec().Decode([]byte(`{"peerId":"a","position":{"x":1}}`))
	if !errors.Is(err, ErrUnrecognizedShape) {
		t.Errorf("Expected ErrUnrecognizedShape, got %v", err)
	}
}

func TestForName(t *testing.T) {
	for name, want := range map[string]string{
		"":            FormatJSON,
		"json":        FormatJSON,
		"flatbuffers": FormatFlatBuffers,
	} {
		c, err := ForName(name)
		if err != nil {
			t.Fatalf("ForName(%q) failed: %v", name, err)
		}
		if c.Name() != want {
			t.Errorf("ForName(%q) = %s, want %s", name, c.Name(), want)
		}
	}

	if _, err := ForName("protobuf"); !errors.Is(err, ErrUnknownCodecFormat) {
		t.Errorf("Expected ErrUnknownCodecFormat, got %v", err)
	}
}

func TestFlatBufferDecodeRejectsNonFinite(t *testing.T) {
	c := NewFlatBufferCodec()
	data, _ := EncodePosition(c, position.New(1, 2, 3))

	// Patch x in place; the encoder itself refuses NaN.
	if !wire.GetRootAsPeerPosition(data, 0).MutateX(math.NaN()) {
		t.Fatalf("MutateX failed")
	}
	if _, err := c.Decode(data); !errors.Is(err, ErrNonFinitePosition) {
		t.Errorf("Expected ErrNonFinitePosition, got %v", err)
	}
}
