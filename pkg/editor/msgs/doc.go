// Package msgs provides the editor protocol and all message schemas.
//
// The protocol is communicated between a keyboard and an editing tool.
// Every packet is a Typed envelope: a 32-bit type ID selecting the
// message, a sequence pairing command replies with commands, and the
// protobuf encoded message.
//
// Producer: keyboard (replies, events), editor (commands)
package msgs
