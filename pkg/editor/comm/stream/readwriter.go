// Package stream carries editor packets over byte streams.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPacketSize limits the size of a received packet.
const MaxPacketSize = 64 * 1024

const headerSize = 4

// ErrPacketTooLarge indicates a length prefix above MaxPacketSize.
var ErrPacketTooLarge = errors.New("packet too large")

// ReadWriter frames packets on a byte stream with a little-endian
// uint32 length header.
type ReadWriter struct {
	io.ReadWriter

	header [headerSize]byte
}

// New creates a ReadWriter on s.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s}
}

// ReadPacket implements PacketReader. It is not safe for concurrent use.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	if _, err := io.ReadFull(p.ReadWriter, p.header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(p.header[:])
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}
	pkt := make([]byte, size)
	if _, err := io.ReadFull(p.ReadWriter, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

// WritePacket implements PacketWriter. Header and payload go out in a
// single Write.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	frame := make([]byte, headerSize+len(pkt))
	binary.LittleEndian.PutUint32(frame, uint32(len(pkt)))
	copy(frame[headerSize:], pkt)
	_, err := p.ReadWriter.Write(frame)
	return err
}

// Close closes the stream if it's closable.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
