package link

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	idle      = ParseResult{State: SyncStateReady}
	syncing   = ParseResult{State: SyncStateSyncing}
	resyncing = ParseResult{Sync: syncREQ, State: SyncStateSyncing}
	acked     = ParseResult{Sync: syncACK, State: SyncStateReady}
)

func received(seq, code byte, data ...byte) ParseResult {
	return ParseResult{State: SyncStateReady, Packet: &Packet{Seq: PacketSeq(seq), Code: code, Data: data}}
}

func wire(seq, code byte, data ...byte) []byte {
	pkt := Packet{Seq: PacketSeq(seq), Code: code, Data: data}
	return pkt.Bytes()
}

// step feeds in (or times out when in is empty) and expects want after
// the last byte. Bytes before the last must leave the parser in middle.
type step struct {
	in     []byte
	middle SyncState
	want   ParseResult
}

func feed(in ...byte) step { return step{in: in, middle: SyncStateSyncing | SyncStateReceiving} }

func (s step) mid(state SyncState) step { s.middle = state; return s }

func (s step) then(want ParseResult) step { s.want = want; return s }

func timeout(want ParseResult) step { return step{want: want} }

const receiving = SyncStateReady | SyncStateReceiving

func runSteps(t *testing.T, p *Parser, steps []step) {
	for n, s := range steps {
		if len(s.in) == 0 {
			require.Equal(t, s.want, p.Timeout(), "step %d timeout", n)
			continue
		}
		var pr ParseResult
		for i, b := range s.in {
			pr = p.Parse(b)
			if i+1 < len(s.in) {
				require.Equal(t, ParseResult{State: s.middle}, pr, "step %d byte %d", n, i)
			}
		}
		require.Equal(t, s.want, pr, "step %d", n)
	}
}

func TestParser(t *testing.T) {
	large := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	corrupted := wire(1, 0x12, 5)
	corrupted[len(corrupted)-1]++
	badChecksum := resyncing
	badChecksum.BadChecksum = true

	testCases := map[string][]step{
		"sync and receive": {
			feed(syncACK, 1).then(idle),
			feed(wire(1, 0x02)...).mid(receiving).then(received(1, 2)),
			feed(2, 0x72, 0, checksum(2, nil)).mid(receiving).then(received(2, 2)),
			feed(wire(3, 0x82, 3)...).mid(receiving).then(received(3, 0x82, 3)),
			feed(wire(4, 0x02, large...)...).mid(receiving).then(received(4, 2, large...)),
		},
		"sync timeout": {
			timeout(resyncing),
			feed(syncACK).then(ParseResult{State: SyncStateSyncing | SyncStateReceiving}),
			timeout(resyncing),
		},
		"timeout when ready": {
			feed(syncACK, 1).then(idle),
			timeout(idle),
		},
		"garbage before sync": {
			feed(1, 2, 3, 4, 0x80, 0x81, 0xf0, 0xf1).mid(SyncStateSyncing).then(syncing),
			feed(syncACK, 1).then(idle),
		},
		"req while syncing": {
			feed(syncREQ, 1).then(acked),
		},
		"req with invalid seq": {
			feed(syncREQ, syncREQ).then(resyncing),
			feed(syncACK, 1).then(idle),
		},
		"req after sync": {
			feed(syncACK, 1).then(idle),
			feed(syncREQ, 1).then(acked),
			feed(wire(1, 0x02)...).mid(receiving).then(received(1, 2)),
		},
		"ack after sync": {
			feed(syncACK, 1).then(idle),
			feed(syncACK, 1).mid(receiving).then(idle),
			feed(wire(1, 0x02)...).mid(receiving).then(received(1, 2)),
		},
		"ack with wrong seq": {
			feed(syncACK, 1).then(idle),
			feed(syncACK, 2).mid(receiving).then(resyncing),
			feed(syncACK, 2).then(idle),
			feed(wire(2, 0x02)...).mid(receiving).then(received(2, 2)),
		},
		"unexpected seq": {
			feed(syncACK, 1).then(idle),
			feed(wire(1, 0x02)...).mid(receiving).then(received(1, 2)),
			feed(1).then(resyncing),
			feed(0x92, 3).mid(SyncStateSyncing).then(syncing),
			feed(syncACK, 3).then(idle),
		},
		"data length out of range": {
			feed(syncACK, 1).then(idle),
			feed(1, 0x70, 0x80).mid(receiving).then(resyncing),
			feed(1, 2, 3, 4).mid(SyncStateSyncing).then(syncing),
			feed(syncACK, 1).then(idle),
		},
		"checksum mismatch": {
			feed(syncACK, 1).then(idle),
			feed(corrupted...).mid(receiving).then(badChecksum),
			feed(syncACK, 1).then(idle),
			feed(wire(1, 0x12, 5)...).mid(receiving).then(received(1, 2, 5)),
		},
	}

	for name, steps := range testCases {
		t.Run(name, func(t *testing.T) {
			runSteps(t, &Parser{}, steps)
		})
	}
}

func TestParserReset(t *testing.T) {
	var p Parser
	runSteps(t, &p, []step{
		feed(syncACK, 1).then(idle),
		feed(1, 0x12).mid(receiving).then(ParseResult{State: receiving}),
	})
	assert.Equal(t, resyncing, p.Reset())
}

func TestSyncState(t *testing.T) {
	testCases := []struct {
		state     SyncState
		ready     bool
		receiving bool
		str       string
	}{
		{SyncStateSyncing, false, false, "syncing"},
		{SyncStateReady, true, false, "ready"},
		{SyncStateReceiving, false, true, "syncing+receiving"},
		{SyncStateReady | SyncStateReceiving, true, true, "ready+receiving"},
		{0x10, false, false, "unknown"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.ready, tc.state.IsReady(), tc.str)
		assert.Equal(t, tc.receiving, tc.state.IsReceiving(), tc.str)
		assert.Equal(t, tc.str, tc.state.String())
	}
}

func TestWhatAboutTimer(t *testing.T) {
	testCases := []struct {
		state  SyncState
		cmd    byte
		action TimerAction
	}{
		{SyncStateSyncing, 0, TimerNoChange},
		{SyncStateSyncing, syncACK, TimerNoChange},
		{SyncStateSyncing, syncREQ, TimerRestart},
		{SyncStateReceiving, 0, TimerRestart},
		{SyncStateReady, 0, TimerStop},
		{SyncStateReady, syncACK, TimerStop},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%v/%x", tc.state, tc.cmd), func(t *testing.T) {
			assert.Equal(t, tc.action, ParseResult{Sync: tc.cmd, State: tc.state}.WhatAboutTimer())
		})
	}
}
