// Package comm carries editor messages over packet oriented carriers:
// length framed streams, WebSocket frames or MQTT messages.
package comm

// PacketReader blocks until a whole packet arrives. A packet is one
// encoded msgs.Typed envelope.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter sends one packet, safe to call while a read is blocked.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter is what a Pipe runs on.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}
