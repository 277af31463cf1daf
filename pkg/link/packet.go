package link

import (
	"hash/crc32"
	"io"
	"time"
)

// MaxDataLen is the maximum number of data bytes in a packet.
const MaxDataLen = 0x7f

// PacketSeq defines the type of packet sequence number.
type PacketSeq byte

// NewPacketSeq creates a random packet sequence number.
func NewPacketSeq() PacketSeq {
	return PacketSeq(byte(time.Now().UnixNano())).Next()
}

// Next calculates the next sequence number.
func (s PacketSeq) Next() PacketSeq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		n = 1
	}
	return PacketSeq(n)
}

// IsValid checks if it's a valid sequence number.
func (s PacketSeq) IsValid() bool {
	n := byte(s)
	return n > 0 && n < 0xf0
}

// Packet contains the information of a parsed packet.
// Code uses bits 0x8f only.
type Packet struct {
	Seq  PacketSeq
	Code byte
	Data []byte
}

func (p *Packet) header() []byte {
	head := []byte{byte(p.Seq), p.Code & 0x8f, byte(len(p.Data))}
	if head[2] < 7 {
		head[1] |= (head[2] << 4) & 0x70
		return head[:2]
	}
	head[1] |= 0x70
	return head
}

// Checksum calculates the trailing checksum byte.
func (p *Packet) Checksum() byte {
	return checksum(p.Code&0x8f, p.Data)
}

func checksum(code byte, data []byte) byte {
	crc := crc32.Update(0, crc32.IEEETable, []byte{code})
	return byte(crc32.Update(crc, crc32.IEEETable, data))
}

// Bytes returns encoded bytes for sending.
func (p *Packet) Bytes() []byte {
	head := p.header()
	b := make([]byte, 0, len(head)+len(p.Data)+1)
	b = append(b, head...)
	b = append(b, p.Data...)
	return append(b, p.Checksum())
}

// WriteTo writes encoded bytes in a single Write.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	if len(p.Data) > MaxDataLen {
		return 0, ErrPacketTooLarge
	}
	n, err := w.Write(p.Bytes())
	return int64(n), err
}
