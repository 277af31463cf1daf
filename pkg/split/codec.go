package split

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/roba/pkg/input"
	"github.com/robotalks/roba/pkg/link"
)

// Link packet codes.
const (
	CodeEvent     byte = 0x01
	CodeAck       byte = 0x02
	CodeHeartbeat byte = 0x03
)

// Event kinds.
const (
	KindKey     uint32 = 1
	KindEncoder uint32 = 2
	KindPointer uint32 = 3
)

// Event is an input event carried from the peripheral to the central.
type Event struct {
	Boot      uint32 `protobuf:"varint,1,opt,name=boot,proto3" json:"boot,omitempty"`
	Seq       uint32 `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Kind      uint32 `protobuf:"varint,3,opt,name=kind,proto3" json:"kind,omitempty"`
	Row       uint32 `protobuf:"varint,4,opt,name=row,proto3" json:"row,omitempty"`
	Col       uint32 `protobuf:"varint,5,opt,name=col,proto3" json:"col,omitempty"`
	Pressed   bool   `protobuf:"varint,6,opt,name=pressed,proto3" json:"pressed,omitempty"`
	Dx        int32  `protobuf:"zigzag32,7,opt,name=dx,proto3" json:"dx,omitempty"`
	Dy        int32  `protobuf:"zigzag32,8,opt,name=dy,proto3" json:"dy,omitempty"`
	Direction int32  `protobuf:"zigzag32,9,opt,name=direction,proto3" json:"direction,omitempty"`
	Index     uint32 `protobuf:"varint,10,opt,name=index,proto3" json:"index,omitempty"`
	TimeUs    int64  `protobuf:"varint,11,opt,name=time_us,proto3" json:"time_us,omitempty"`
	// Base is the oldest sequence the peripheral still buffers when
	// sending. Anything below was either acknowledged or dropped on
	// overflow and will never be sent again.
	Base uint32 `protobuf:"varint,12,opt,name=base,proto3" json:"base,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Event) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// Ack acknowledges all events up to Seq of boot session Boot.
type Ack struct {
	Boot uint32 `protobuf:"varint,1,opt,name=boot,proto3" json:"boot,omitempty"`
	Seq  uint32 `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Ack) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Ack) Reset() { *m = Ack{} }

// String implements proto.Message.
func (m *Ack) String() string { return proto.CompactTextString(m) }

// Heartbeat keeps the central informed the peripheral is alive. Seq is
// the last assigned event sequence, Base as in Event.
type Heartbeat struct {
	Boot uint32 `protobuf:"varint,1,opt,name=boot,proto3" json:"boot,omitempty"`
	Seq  uint32 `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Base uint32 `protobuf:"varint,3,opt,name=base,proto3" json:"base,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Heartbeat) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Heartbeat) Reset() { *m = Heartbeat{} }

// String implements proto.Message.
func (m *Heartbeat) String() string { return proto.CompactTextString(m) }

// EventFrom converts a local input event.
func EventFrom(ev input.Event) (*Event, error) {
	e := &Event{TimeUs: ev.EventTime().UnixMicro()}
	switch in := ev.(type) {
	case *input.KeyEvent:
		if in.Row < 0 || in.Col < 0 {
			return nil, fmt.Errorf("invalid key position (%d,%d)", in.Row, in.Col)
		}
		e.Kind, e.Row, e.Col, e.Pressed = KindKey, uint32(in.Row), uint32(in.Col), in.Pressed
	case *input.EncoderEvent:
		e.Kind, e.Index, e.Direction = KindEncoder, uint32(in.Index), int32(in.Direction)
	case *input.PointerEvent:
		e.Kind, e.Dx, e.Dy = KindPointer, int32(in.DX), int32(in.DY)
	default:
		return nil, fmt.Errorf("unsupported input event %T", ev)
	}
	return e, nil
}

// Input converts the event into a central side input event, received
// at t and translated by the offsets of the peripheral half.
func (m *Event) Input(t time.Time, rowOffset, colOffset int) (input.Event, error) {
	switch m.Kind {
	case KindKey:
		return &input.KeyEvent{Row: int(m.Row) + rowOffset, Col: int(m.Col) + colOffset, Pressed: m.Pressed, Time: t}, nil
	case KindEncoder:
		return &input.EncoderEvent{Index: int(m.Index), Direction: input.Direction(m.Direction), Time: t}, nil
	case KindPointer:
		return &input.PointerEvent{DX: int(m.Dx), DY: int(m.Dy), Time: t}, nil
	}
	return nil, fmt.Errorf("unknown event kind %d", m.Kind)
}

// Encode builds a link packet from a message.
func Encode(code byte, msg proto.Message) (*link.Packet, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &link.Packet{Code: code, Data: data}, nil
}

// Decode parses the data of a link packet into msg.
func Decode(pkt *link.Packet, msg proto.Message) error {
	return proto.Unmarshal(pkt.Data, msg)
}
