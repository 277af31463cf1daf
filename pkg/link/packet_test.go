package link

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketSeq(t *testing.T) {
	for s := byte(0xff); s >= byte(0xf0); s-- {
		require.False(t, PacketSeq(s).IsValid())
		require.Equal(t, PacketSeq(1), PacketSeq(s).Next())
	}
	for s := byte(1); s < byte(0xf0); s++ {
		require.True(t, PacketSeq(s).IsValid())
		if s+1 < 0xf0 {
			require.Equal(t, PacketSeq(s+1), PacketSeq(s).Next())
		} else {
			require.Equal(t, PacketSeq(1), PacketSeq(s).Next())
		}
	}
	require.False(t, PacketSeq(0).IsValid())
	require.Equal(t, PacketSeq(1), PacketSeq(0).Next())
	require.True(t, NewPacketSeq().IsValid())
}

func TestPacket(t *testing.T) {
	testCases := []struct {
		name   string
		packet Packet
		head   []byte
	}{
		{"no data", Packet{Seq: PacketSeq(1), Code: 2}, []byte{1, 2}},
		{"small data", Packet{Seq: PacketSeq(1), Code: 2, Data: []byte{1}}, []byte{1, 0x12, 1}},
		{"large data", Packet{Seq: PacketSeq(1), Code: 2, Data: []byte{1, 2, 3, 4, 5, 6, 7}}, []byte{1, 0x72, 7, 1, 2, 3, 4, 5, 6, 7}},
		{"flagged no data", Packet{Seq: PacketSeq(1), Code: 0x82}, []byte{1, 0x82}},
		{"flagged small data", Packet{Seq: PacketSeq(1), Code: 0x82, Data: []byte{1}}, []byte{1, 0x92, 1}},
		{"code bits masked", Packet{Seq: PacketSeq(1), Code: 0xf2}, []byte{1, 0x82}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expect := append(append([]byte{}, tc.head...), tc.packet.Checksum())
			require.Equal(t, expect, tc.packet.Bytes())
			var buf bytes.Buffer
			n, err := tc.packet.WriteTo(&buf)
			require.NoError(t, err)
			require.Equal(t, expect, buf.Bytes())
			require.EqualValues(t, len(expect), n)
		})
	}
}

func TestPacketChecksum(t *testing.T) {
	a := Packet{Code: 1, Data: []byte{1, 2, 3}}
	b := Packet{Code: 1, Data: []byte{1, 2, 4}}
	c := Packet{Code: 2, Data: []byte{1, 2, 3}}
	require.NotEqual(t, a.Checksum(), b.Checksum())
	require.NotEqual(t, a.Checksum(), c.Checksum())
	a.Seq = 9
	require.Equal(t, checksum(1, []byte{1, 2, 3}), a.Checksum())
}

func TestPacketTooLarge(t *testing.T) {
	pkt := Packet{Seq: 1, Data: make([]byte, MaxDataLen+1)}
	var buf bytes.Buffer
	_, err := pkt.WriteTo(&buf)
	require.ErrorIs(t, err, ErrPacketTooLarge)
	require.Zero(t, buf.Len())
}
