package msgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/roba/pkg/framework"
)

// A type ID is laid out as kind(1) group(15) reply(1) id(15).
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
	TypeIDMaskReply uint32 = 0x00008000

	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

var (
	// ErrNotSerializable indicates the message has no wire form.
	ErrNotSerializable = errors.New("not serializable message")
	// ErrUnsupportedCommand is replied to commands nobody handles.
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// ErrUnknownType is returned decoding a type ID missing from MessageTypes.
type ErrUnknownType struct {
	TypeID uint32
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// SerializableMessage is a loop message with a wire form.
type SerializableMessage interface {
	fx.Message
	TypeID() uint32
	Serializable() proto.Message
}

// TypedMsgHandler receives decoded messages from a pipe.
type TypedMsgHandler interface {
	HandleTypedMsg(context.Context, fx.Message, *Typed) error
}

// HandleTypedMsgFunc is func form of TypedMsgHandler.
type HandleTypedMsgFunc func(context.Context, fx.Message, *Typed) error

// HandleTypedMsg implements TypedMsgHandler.
func (f HandleTypedMsgFunc) HandleTypedMsg(ctx context.Context, msg fx.Message, typed *Typed) error {
	return f(ctx, msg, typed)
}

// Typed is the envelope every editor message travels in.
type Typed struct {
	TypeId   uint32 `protobuf:"fixed32,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Sequence uint32 `protobuf:"varint,2,opt,name=sequence,proto3" json:"sequence,omitempty"`
	Message  []byte `protobuf:"bytes,3,opt,name=message,proto3" json:"message,omitempty"`
}

func (p *Typed) ProtoMessage()  {}
func (p *Typed) Reset()         { *p = Typed{} }
func (p *Typed) String() string { return proto.CompactTextString(p) }

// TypedFrom wraps msg into an envelope with a zero sequence.
func TypedFrom(msg fx.Message) (*Typed, error) {
	s, ok := msg.(SerializableMessage)
	if !ok {
		return nil, ErrNotSerializable
	}
	data, err := proto.Marshal(s.Serializable())
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return &Typed{TypeId: s.TypeID(), Message: data}, nil
}

// DecodeTyped parses an envelope.
func DecodeTyped(data []byte) (*Typed, error) {
	typed := &Typed{}
	if err := proto.Unmarshal(data, typed); err != nil {
		return nil, err
	}
	return typed, nil
}

// Encode serializes the envelope.
func (p *Typed) Encode() ([]byte, error) {
	return proto.Marshal(p)
}

// Decode unwraps the message registered for TypeId.
func (p *Typed) Decode() (fx.Message, error) {
	prototype, ok := MessageTypes[p.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: p.TypeId}
	}
	msg := prototype.NewMessage()
	if err := proto.Unmarshal(p.Message, msg.(SerializableMessage).Serializable()); err != nil {
		return nil, fmt.Errorf("decode %08x: %w", p.TypeId, err)
	}
	return msg, nil
}

// Kind is either TypeIDKindCommand or TypeIDKindEvent.
func (p *Typed) Kind() uint32 {
	return p.TypeId & TypeIDMaskKind
}

// IsCommand is true for commands and their replies.
func (p *Typed) IsCommand() bool {
	return p.Kind() == TypeIDKindCommand
}

// IsReply is true for replies only.
func (p *Typed) IsReply() bool {
	return p.IsCommand() && p.TypeId&TypeIDMaskReply != 0
}

func (p *Typed) IsEvent() bool {
	return p.Kind() == TypeIDKindEvent
}
