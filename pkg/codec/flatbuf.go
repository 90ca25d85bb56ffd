package codec

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/posync/posync/pkg/flatbuffers/posync/wire"
	"github.com/posync/posync/pkg/position"
)

const fileIdentifier = "PSYN"

// Byte size of each PeerPosition field in vtable order.
var peerPositionFieldSizes = [...]int{
	flatbuffers.SizeUOffsetT, // peer_id
	flatbuffers.SizeFloat64,  // x
	flatbuffers.SizeFloat64,  // y
	flatbuffers.SizeFloat64,  // z
}

// Ensure FlatBufferCodec implements the Codec interface
var _ Codec = (*FlatBufferCodec)(nil)

// FlatBufferCodec encodes messages as a PeerPosition FlatBuffer
// (schema/peer_position.fbs). Buffers are bounds-checked before any field
// is read, so truncated or foreign datagrams fail cleanly.
type FlatBufferCodec struct {
	initialSize int
}

// NewFlatBufferCodec creates a FlatBufferCodec.
func NewFlatBufferCodec() *FlatBufferCodec {
	return &FlatBufferCodec{initialSize: 64}
}

func (c *FlatBufferCodec) Name() string {
	return FormatFlatBuffers
}

// Encode builds a finished PeerPosition buffer.
func (c *FlatBufferCodec) Encode(msg Message) ([]byte, error) {
	if !msg.Position.IsFinite() {
		return nil, fmt.Errorf("encode flatbuffers: %w: %v", ErrNonFinitePosition, msg.Position)
	}

	builder := flatbuffers.NewBuilder(c.initialSize)
	var peerID flatbuffers.UOffsetT
	if msg.PeerID != "" {
		peerID = builder.CreateString(msg.PeerID)
	}

	wire.PeerPositionStart(builder)
	if msg.PeerID != "" {
		wire.PeerPositionAddPeerId(builder, peerID)
	}
	wire.PeerPositionAddX(builder, msg.Position.X)
	wire.PeerPositionAddY(builder, msg.Position.Y)
	wire.PeerPositionAddZ(builder, msg.Position.Z)
	root := wire.PeerPositionEnd(builder)
	wire.FinishPeerPositionBuffer(builder, root)

	return builder.FinishedBytes(), nil
}

// Decode validates and reads a PeerPosition buffer.
func (c *FlatBufferCodec) Decode(data []byte) (msg Message, err error) {
	if len(data) == 0 {
		return Message{}, c.fail(data, ErrEmptyPayload)
	}
	if err := validatePeerPosition(data); err != nil {
		return Message{}, c.fail(data, err)
	}

	// validatePeerPosition covers every offset read below; this only guards
	// against a gap in that check turning into a crashed tick.
	defer func() {
		if r := recover(); r != nil {
			msg = Message{}
			err = c.fail(data, fmt.Errorf("%w: %v", ErrTruncated, r))
		}
	}()

	pp := wire.GetRootAsPeerPosition(data, 0)
	pos := position.New(pp.X(), pp.Y(), pp.Z())
	if !pos.IsFinite() {
		return Message{}, c.fail(data, ErrNonFinitePosition)
	}
	return Message{PeerID: string(pp.PeerId()), Position: pos}, nil
}

func (c *FlatBufferCodec) fail(data []byte, err error) error {
	return &DecodeError{Format: FormatFlatBuffers, Size: len(data), Err: err}
}

// validatePeerPosition checks the identifier, root table, vtable and the
// peer_id string all lie inside buf.
func validatePeerPosition(buf []byte) error {
	size := len(buf)
	if size < flatbuffers.SizeUOffsetT+len(fileIdentifier) {
		return ErrTruncated
	}
	if string(buf[flatbuffers.SizeUOffsetT:flatbuffers.SizeUOffsetT+len(fileIdentifier)]) != fileIdentifier {
		return ErrBadIdentifier
	}

	root := int(flatbuffers.GetUOffsetT(buf))
	if root < 0 || root+flatbuffers.SizeSOffsetT > size {
		return fmt.Errorf("%w: root offset %d", ErrTruncated, root)
	}

	vtable := root - int(flatbuffers.GetSOffsetT(buf[root:]))
	if vtable < 0 || vtable+2*flatbuffers.SizeVOffsetT > size {
		return fmt.Errorf("%w: vtable offset %d", ErrTruncated, vtable)
	}
	vtableSize := int(flatbuffers.GetVOffsetT(buf[vtable:]))
	objectSize := int(flatbuffers.GetVOffsetT(buf[vtable+flatbuffers.SizeVOffsetT:]))
	if vtableSize < 2*flatbuffers.SizeVOffsetT || vtableSize%flatbuffers.SizeVOffsetT != 0 || vtable+vtableSize > size {
		return fmt.Errorf("%w: vtable size %d", ErrTruncated, vtableSize)
	}
	if root+objectSize > size {
		return fmt.Errorf("%w: object size %d", ErrTruncated, objectSize)
	}

	for i, fieldSize := range peerPositionFieldSizes {
		slot := 2*flatbuffers.SizeVOffsetT + i*flatbuffers.SizeVOffsetT
		if slot+flatbuffers.SizeVOffsetT > vtableSize {
			break
		}
		off := int(flatbuffers.GetVOffsetT(buf[vtable+slot:]))
		if off == 0 {
			continue
		}
		if off+fieldSize > objectSize {
			return fmt.Errorf("%w: field %d outside object", ErrTruncated, i)
		}
		if i == 0 {
			strPos := root + off + int(flatbuffers.GetUOffsetT(buf[root+off:]))
			if strPos+flatbuffers.SizeUOffsetT > size {
				return fmt.Errorf("%w: peer_id offset", ErrTruncated)
			}
			strLen := int(flatbuffers.GetUOffsetT(buf[strPos:]))
			if strPos+flatbuffers.SizeUOffsetT+strLen > size {
				return fmt.Errorf("%w: peer_id length %d", ErrTruncated, strLen)
			}
		}
	}
	return nil
}
