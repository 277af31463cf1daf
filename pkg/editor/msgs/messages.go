package msgs

import (
	"errors"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/roba/pkg/framework"
	"github.com/robotalks/roba/pkg/keymap"
)

// TypeID Groups
const (
	GroupCommand uint32 = 0x00000000
	GroupKeymap  uint32 = 0x00010000
	GroupLayer   uint32 = 0x00020000
	GroupStatus  uint32 = 0x00030000
	GroupCustom  uint32 = 0x7f000000 // base group id for custom messages.
)

// TypeIDs
const (
	CommandOKTypeID         uint32 = GroupCommand | TypeIDMaskReply | 0x0000
	CommandErrTypeID        uint32 = GroupCommand | TypeIDMaskReply | 0x0001
	KeymapInfoQueryTypeID   uint32 = GroupKeymap | 0x0000
	KeymapInfoTypeID        uint32 = KeymapInfoQueryTypeID | TypeIDMaskReply
	KeymapGetTypeID         uint32 = GroupKeymap | 0x0001
	KeymapEntryTypeID       uint32 = KeymapGetTypeID | TypeIDMaskReply
	KeymapSetTypeID         uint32 = GroupKeymap | 0x0002
	EncoderGetTypeID        uint32 = GroupKeymap | 0x0003
	EncoderEntryTypeID      uint32 = EncoderGetTypeID | TypeIDMaskReply
	EncoderSetTypeID        uint32 = GroupKeymap | 0x0004
	KeymapResetTypeID       uint32 = GroupKeymap | 0x0005
	KeymapChangedTypeID     uint32 = TypeIDKindEvent | GroupKeymap | 0x0000
	LayerStateQueryTypeID   uint32 = GroupLayer | 0x0000
	LayerStateTypeID        uint32 = LayerStateQueryTypeID | TypeIDMaskReply
	LayerStateChangedTypeID uint32 = TypeIDKindEvent | GroupLayer | 0x0000
	StatusQueryTypeID       uint32 = GroupStatus | 0x0000
	StatusReplyTypeID       uint32 = StatusQueryTypeID | TypeIDMaskReply
	StatusChangedTypeID     uint32 = TypeIDKindEvent | GroupStatus | 0x0000
)

// MessageTypes are predefined mapping of type ID to messages.
var MessageTypes = map[uint32]SerializableMessage{
	CommandOKTypeID:         (*CommandOK)(nil),
	CommandErrTypeID:        (*CommandErr)(nil),
	KeymapInfoQueryTypeID:   (*KeymapInfoQuery)(nil),
	KeymapInfoTypeID:        (*KeymapInfo)(nil),
	KeymapGetTypeID:         (*KeymapGet)(nil),
	KeymapEntryTypeID:       (*KeymapEntry)(nil),
	KeymapSetTypeID:         (*KeymapSet)(nil),
	EncoderGetTypeID:        (*EncoderGet)(nil),
	EncoderEntryTypeID:      (*EncoderEntry)(nil),
	EncoderSetTypeID:        (*EncoderSet)(nil),
	KeymapResetTypeID:       (*KeymapReset)(nil),
	KeymapChangedTypeID:     (*KeymapChanged)(nil),
	LayerStateQueryTypeID:   (*LayerStateQuery)(nil),
	LayerStateTypeID:        (*LayerState)(nil),
	LayerStateChangedTypeID: (*LayerStateChanged)(nil),
	StatusQueryTypeID:       (*StatusQuery)(nil),
	StatusReplyTypeID:       (*StatusReply)(nil),
	StatusChangedTypeID:     (*StatusChanged)(nil),
}

// Error codes carried by CommandErr.
const (
	ErrCodeGeneric uint32 = iota
	ErrCodeUnsupported
	ErrCodeIndexOutOfRange
	ErrCodeInvalidAction
)

// ErrInvalidAction indicates an action text which can't be parsed.
var ErrInvalidAction = errors.New("invalid action")

var codeErrors = map[uint32]error{
	ErrCodeUnsupported:     ErrUnsupportedCommand,
	ErrCodeIndexOutOfRange: keymap.ErrIndexOutOfRange,
	ErrCodeInvalidAction:   ErrInvalidAction,
}

// CommandOK is the generic reply indicating success for commands.
type CommandOK struct{}

// NewCommandOK creates a CommandOK.
func NewCommandOK() *CommandOK {
	return &CommandOK{}
}

// NewMessage implements Message.
func (m *CommandOK) NewMessage() fx.Message { return &CommandOK{} }

// TypeID implements SerializableMessage.
func (m *CommandOK) TypeID() uint32 { return CommandOKTypeID }

// Serializable implements SerializableMessage.
func (m *CommandOK) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandOK) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandOK) Reset() { *m = CommandOK{} }

// String implements proto.Message.
func (m *CommandOK) String() string { return proto.CompactTextString(m) }

// CommandErr is the generic message representing command error.
type CommandErr struct {
	Code    uint32 `protobuf:"varint,1,opt,name=code,proto3" json:"code,omitempty"`
	Message string `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

// NewCommandErr creates a CommandErr from an error. Known errors keep
// their identity across the wire through Code.
func NewCommandErr(err error) *CommandErr {
	m := NewCommandErrFromMsg(err.Error())
	for code, known := range codeErrors {
		if errors.Is(err, known) {
			m.Code = code
			break
		}
	}
	return m
}

// NewCommandErrFromMsg creates a CommandErr.
func NewCommandErrFromMsg(message string) *CommandErr {
	return &CommandErr{Message: message}
}

// NewMessage implements Message.
func (m *CommandErr) NewMessage() fx.Message { return &CommandErr{} }

// TypeID implements SerializableMessage.
func (m *CommandErr) TypeID() uint32 { return CommandErrTypeID }

// Serializable implements SerializableMessage.
func (m *CommandErr) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandErr) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandErr) Reset() { *m = CommandErr{} }

// String implements proto.Message.
func (m *CommandErr) String() string { return proto.CompactTextString(m) }

// Error implements error.
func (m *CommandErr) Error() string { return m.Message }

// Unwrap gets the known error for Code.
func (m *CommandErr) Unwrap() error { return codeErrors[m.Code] }

// KeymapInfoQuery asks for the geometry of the keymap.
type KeymapInfoQuery struct{}

// NewMessage implements Message.
func (m *KeymapInfoQuery) NewMessage() fx.Message { return &KeymapInfoQuery{} }

// TypeID implements SerializableMessage.
func (m *KeymapInfoQuery) TypeID() uint32 { return KeymapInfoQueryTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapInfoQuery) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapInfoQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapInfoQuery) Reset() { *m = KeymapInfoQuery{} }

// String implements proto.Message.
func (m *KeymapInfoQuery) String() string { return proto.CompactTextString(m) }

// KeymapInfo replies KeymapInfoQuery.
type KeymapInfo struct {
	Layers     uint32   `protobuf:"varint,1,opt,name=layers,proto3" json:"layers,omitempty"`
	Rows       uint32   `protobuf:"varint,2,opt,name=rows,proto3" json:"rows,omitempty"`
	Cols       uint32   `protobuf:"varint,3,opt,name=cols,proto3" json:"cols,omitempty"`
	Encoders   uint32   `protobuf:"varint,4,opt,name=encoders,proto3" json:"encoders,omitempty"`
	LayerNames []string `protobuf:"bytes,5,rep,name=layer_names,json=layerNames,proto3" json:"layer_names,omitempty"`
	Revision   uint64   `protobuf:"varint,6,opt,name=revision,proto3" json:"revision,omitempty"`
}

// NewMessage implements Message.
func (m *KeymapInfo) NewMessage() fx.Message { return &KeymapInfo{} }

// TypeID implements SerializableMessage.
func (m *KeymapInfo) TypeID() uint32 { return KeymapInfoTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapInfo) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapInfo) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapInfo) Reset() { *m = KeymapInfo{} }

// String implements proto.Message.
func (m *KeymapInfo) String() string { return proto.CompactTextString(m) }

// KeymapGet reads the action at a position.
type KeymapGet struct {
	Layer uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Row   uint32 `protobuf:"varint,2,opt,name=row,proto3" json:"row,omitempty"`
	Col   uint32 `protobuf:"varint,3,opt,name=col,proto3" json:"col,omitempty"`
}

// NewMessage implements Message.
func (m *KeymapGet) NewMessage() fx.Message { return &KeymapGet{} }

// TypeID implements SerializableMessage.
func (m *KeymapGet) TypeID() uint32 { return KeymapGetTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapGet) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapGet) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapGet) Reset() { *m = KeymapGet{} }

// String implements proto.Message.
func (m *KeymapGet) String() string { return proto.CompactTextString(m) }

// KeymapEntry replies KeymapGet with the text form of the action.
type KeymapEntry struct {
	Layer  uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Row    uint32 `protobuf:"varint,2,opt,name=row,proto3" json:"row,omitempty"`
	Col    uint32 `protobuf:"varint,3,opt,name=col,proto3" json:"col,omitempty"`
	Action string `protobuf:"bytes,4,opt,name=action,proto3" json:"action,omitempty"`
}

// NewMessage implements Message.
func (m *KeymapEntry) NewMessage() fx.Message { return &KeymapEntry{} }

// TypeID implements SerializableMessage.
func (m *KeymapEntry) TypeID() uint32 { return KeymapEntryTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapEntry) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapEntry) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapEntry) Reset() { *m = KeymapEntry{} }

// String implements proto.Message.
func (m *KeymapEntry) String() string { return proto.CompactTextString(m) }

// KeymapSet writes the action at a position. Replies CommandOK.
type KeymapSet struct {
	Layer  uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Row    uint32 `protobuf:"varint,2,opt,name=row,proto3" json:"row,omitempty"`
	Col    uint32 `protobuf:"varint,3,opt,name=col,proto3" json:"col,omitempty"`
	Action string `protobuf:"bytes,4,opt,name=action,proto3" json:"action,omitempty"`
}

// NewMessage implements Message.
func (m *KeymapSet) NewMessage() fx.Message { return &KeymapSet{} }

// TypeID implements SerializableMessage.
func (m *KeymapSet) TypeID() uint32 { return KeymapSetTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapSet) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapSet) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapSet) Reset() { *m = KeymapSet{} }

// String implements proto.Message.
func (m *KeymapSet) String() string { return proto.CompactTextString(m) }

// EncoderGet reads the actions of an encoder.
type EncoderGet struct {
	Layer uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Index uint32 `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
}

// NewMessage implements Message.
func (m *EncoderGet) NewMessage() fx.Message { return &EncoderGet{} }

// TypeID implements SerializableMessage.
func (m *EncoderGet) TypeID() uint32 { return EncoderGetTypeID }

// Serializable implements SerializableMessage.
func (m *EncoderGet) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *EncoderGet) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EncoderGet) Reset() { *m = EncoderGet{} }

// String implements proto.Message.
func (m *EncoderGet) String() string { return proto.CompactTextString(m) }

// EncoderEntry replies EncoderGet.
type EncoderEntry struct {
	Layer            uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Index            uint32 `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
	Clockwise        string `protobuf:"bytes,3,opt,name=clockwise,proto3" json:"clockwise,omitempty"`
	CounterClockwise string `protobuf:"bytes,4,opt,name=counter_clockwise,json=counterClockwise,proto3" json:"counter_clockwise,omitempty"`
}

// NewMessage implements Message.
func (m *EncoderEntry) NewMessage() fx.Message { return &EncoderEntry{} }

// TypeID implements SerializableMessage.
func (m *EncoderEntry) TypeID() uint32 { return EncoderEntryTypeID }

// Serializable implements SerializableMessage.
func (m *EncoderEntry) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *EncoderEntry) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EncoderEntry) Reset() { *m = EncoderEntry{} }

// String implements proto.Message.
func (m *EncoderEntry) String() string { return proto.CompactTextString(m) }

// EncoderSet writes the actions of an encoder. Replies CommandOK.
type EncoderSet struct {
	Layer            uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Index            uint32 `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
	Clockwise        string `protobuf:"bytes,3,opt,name=clockwise,proto3" json:"clockwise,omitempty"`
	CounterClockwise string `protobuf:"bytes,4,opt,name=counter_clockwise,json=counterClockwise,proto3" json:"counter_clockwise,omitempty"`
}

// NewMessage implements Message.
func (m *EncoderSet) NewMessage() fx.Message { return &EncoderSet{} }

// TypeID implements SerializableMessage.
func (m *EncoderSet) TypeID() uint32 { return EncoderSetTypeID }

// Serializable implements SerializableMessage.
func (m *EncoderSet) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *EncoderSet) ProtoMessage() {}

// Reset implements proto.Message.
func (m *EncoderSet) Reset() { *m = EncoderSet{} }

// String implements proto.Message.
func (m *EncoderSet) String() string { return proto.CompactTextString(m) }

// KeymapReset drops persisted edits and reloads the keymap file.
type KeymapReset struct{}

// NewMessage implements Message.
func (m *KeymapReset) NewMessage() fx.Message { return &KeymapReset{} }

// TypeID implements SerializableMessage.
func (m *KeymapReset) TypeID() uint32 { return KeymapResetTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapReset) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapReset) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapReset) Reset() { *m = KeymapReset{} }

// String implements proto.Message.
func (m *KeymapReset) String() string { return proto.CompactTextString(m) }

// KeymapChanged is the event sent after every accepted write.
// Encoder is -1 for key positions.
type KeymapChanged struct {
	Layer    uint32 `protobuf:"varint,1,opt,name=layer,proto3" json:"layer,omitempty"`
	Row      int32  `protobuf:"zigzag32,2,opt,name=row,proto3" json:"row,omitempty"`
	Col      int32  `protobuf:"zigzag32,3,opt,name=col,proto3" json:"col,omitempty"`
	Encoder  int32  `protobuf:"zigzag32,4,opt,name=encoder,proto3" json:"encoder,omitempty"`
	Action   string `protobuf:"bytes,5,opt,name=action,proto3" json:"action,omitempty"`
	Revision uint64 `protobuf:"varint,6,opt,name=revision,proto3" json:"revision,omitempty"`
}

// NewMessage implements Message.
func (m *KeymapChanged) NewMessage() fx.Message { return &KeymapChanged{} }

// TypeID implements SerializableMessage.
func (m *KeymapChanged) TypeID() uint32 { return KeymapChangedTypeID }

// Serializable implements SerializableMessage.
func (m *KeymapChanged) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *KeymapChanged) ProtoMessage() {}

// Reset implements proto.Message.
func (m *KeymapChanged) Reset() { *m = KeymapChanged{} }

// String implements proto.Message.
func (m *KeymapChanged) String() string { return proto.CompactTextString(m) }

// LayerStateQuery asks for the active layers.
type LayerStateQuery struct{}

// NewMessage implements Message.
func (m *LayerStateQuery) NewMessage() fx.Message { return &LayerStateQuery{} }

// TypeID implements SerializableMessage.
func (m *LayerStateQuery) TypeID() uint32 { return LayerStateQueryTypeID }

// Serializable implements SerializableMessage.
func (m *LayerStateQuery) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *LayerStateQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LayerStateQuery) Reset() { *m = LayerStateQuery{} }

// String implements proto.Message.
func (m *LayerStateQuery) String() string { return proto.CompactTextString(m) }

// LayerState replies LayerStateQuery. Active is ordered top first.
type LayerState struct {
	Active []uint32 `protobuf:"varint,1,rep,packed,name=active,proto3" json:"active,omitempty"`
	Cycle  uint64   `protobuf:"varint,2,opt,name=cycle,proto3" json:"cycle,omitempty"`
}

// NewMessage implements Message.
func (m *LayerState) NewMessage() fx.Message { return &LayerState{} }

// TypeID implements SerializableMessage.
func (m *LayerState) TypeID() uint32 { return LayerStateTypeID }

// Serializable implements SerializableMessage.
func (m *LayerState) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *LayerState) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LayerState) Reset() { *m = LayerState{} }

// String implements proto.Message.
func (m *LayerState) String() string { return proto.CompactTextString(m) }

// LayerStateChanged is the event sent when the active layers change.
type LayerStateChanged struct {
	Active []uint32 `protobuf:"varint,1,rep,packed,name=active,proto3" json:"active,omitempty"`
	Cycle  uint64   `protobuf:"varint,2,opt,name=cycle,proto3" json:"cycle,omitempty"`
}

// NewMessage implements Message.
func (m *LayerStateChanged) NewMessage() fx.Message { return &LayerStateChanged{} }

// TypeID implements SerializableMessage.
func (m *LayerStateChanged) TypeID() uint32 { return LayerStateChangedTypeID }

// Serializable implements SerializableMessage.
func (m *LayerStateChanged) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *LayerStateChanged) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LayerStateChanged) Reset() { *m = LayerStateChanged{} }

// String implements proto.Message.
func (m *LayerStateChanged) String() string { return proto.CompactTextString(m) }

// StatusQuery asks for the keyboard status.
type StatusQuery struct{}

// NewMessage implements Message.
func (m *StatusQuery) NewMessage() fx.Message { return &StatusQuery{} }

// TypeID implements SerializableMessage.
func (m *StatusQuery) TypeID() uint32 { return StatusQueryTypeID }

// Serializable implements SerializableMessage.
func (m *StatusQuery) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *StatusQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusQuery) Reset() { *m = StatusQuery{} }

// String implements proto.Message.
func (m *StatusQuery) String() string { return proto.CompactTextString(m) }

// StatusReply replies StatusQuery.
type StatusReply struct {
	Role     string            `protobuf:"bytes,1,opt,name=role,proto3" json:"role,omitempty"`
	Cycle    uint64            `protobuf:"varint,2,opt,name=cycle,proto3" json:"cycle,omitempty"`
	Flags    []string          `protobuf:"bytes,3,rep,name=flags,proto3" json:"flags,omitempty"`
	Layers   []uint32          `protobuf:"varint,4,rep,packed,name=layers,proto3" json:"layers,omitempty"`
	Counters map[string]uint64 `protobuf:"bytes,5,rep,name=counters,proto3" json:"counters,omitempty" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"varint,2,opt,name=value,proto3"`
}

// NewMessage implements Message.
func (m *StatusReply) NewMessage() fx.Message { return &StatusReply{} }

// TypeID implements SerializableMessage.
func (m *StatusReply) TypeID() uint32 { return StatusReplyTypeID }

// Serializable implements SerializableMessage.
func (m *StatusReply) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *StatusReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusReply) Reset() { *m = StatusReply{} }

// String implements proto.Message.
func (m *StatusReply) String() string { return proto.CompactTextString(m) }

// StatusChanged is the event sent when status flags change.
type StatusChanged struct {
	Role     string            `protobuf:"bytes,1,opt,name=role,proto3" json:"role,omitempty"`
	Cycle    uint64            `protobuf:"varint,2,opt,name=cycle,proto3" json:"cycle,omitempty"`
	Flags    []string          `protobuf:"bytes,3,rep,name=flags,proto3" json:"flags,omitempty"`
	Layers   []uint32          `protobuf:"varint,4,rep,packed,name=layers,proto3" json:"layers,omitempty"`
	Counters map[string]uint64 `protobuf:"bytes,5,rep,name=counters,proto3" json:"counters,omitempty" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"varint,2,opt,name=value,proto3"`
}

// NewMessage implements Message.
func (m *StatusChanged) NewMessage() fx.Message { return &StatusChanged{} }

// TypeID implements SerializableMessage.
func (m *StatusChanged) TypeID() uint32 { return StatusChangedTypeID }

// Serializable implements SerializableMessage.
func (m *StatusChanged) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *StatusChanged) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusChanged) Reset() { *m = StatusChanged{} }

// String implements proto.Message.
func (m *StatusChanged) String() string { return proto.CompactTextString(m) }
