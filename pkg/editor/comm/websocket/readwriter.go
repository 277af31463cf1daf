// Package websocket carries editor packets as WebSocket binary messages.
package websocket

import (
	"io"

	"golang.org/x/net/websocket"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// FromCarrier uses message framing if the carrier is a WebSocket.
func FromCarrier(rwc io.ReadWriteCloser) (*ReadWriter, bool) {
	switch conn := rwc.(type) {
	case *websocket.Conn:
		return New(conn), true
	case interface{ WebSocket() *websocket.Conn }:
		return New(conn.WebSocket()), true
	}
	return nil, false
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}
