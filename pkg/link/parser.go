package link

// Parser is the receive side of the link protocol. It consumes one byte
// at a time and tells the caller what to send back.
//
// Synchronization: a side sends syncREQ followed by its next sequence;
// the peer adopts it and answers syncACK followed by the same sequence.
// Once synchronized every packet must carry the expected sequence and a
// valid checksum, anything else triggers a resync.
type Parser struct {
	peerSeq PacketSeq
	state   parseState
	packet  *Packet
	recvLen byte
	badSum  bool
}

// SyncState indicates the state of the link.
type SyncState int

const (
	// SyncStateSyncing means the link is not synchronized.
	SyncStateSyncing SyncState = 0
	// SyncStateReady means the link is synchronized and ready for packets.
	SyncStateReady SyncState = 0x01
	// SyncStateReceiving means a sync sequence or a packet is half received.
	SyncStateReceiving SyncState = 0x02
)

func (s SyncState) IsReady() bool {
	return s&SyncStateReady != 0
}

func (s SyncState) IsReceiving() bool {
	return s&SyncStateReceiving != 0
}

func (s SyncState) String() string {
	switch s {
	case SyncStateSyncing:
		return "syncing"
	case SyncStateReady:
		return "ready"
	case SyncStateReceiving:
		return "syncing+receiving"
	case SyncStateReady | SyncStateReceiving:
		return "ready+receiving"
	}
	return "unknown"
}

// TimerAction tells the link what to do with its sync timer.
type TimerAction int

const (
	TimerNoChange TimerAction = iota
	TimerRestart
	TimerStop
)

// ParseResult is the outcome of one parsing step. Sync, when non-zero,
// must be sent to the peer followed by the local sequence.
type ParseResult struct {
	Sync        byte
	State       SyncState
	Packet      *Packet
	BadChecksum bool
}

// WhatAboutTimer restarts the timer while anything is pending and stops
// it once the link is idle and ready.
func (r ParseResult) WhatAboutTimer() TimerAction {
	switch {
	case r.State.IsReceiving(), r.Sync == syncREQ:
		return TimerRestart
	case r.State.IsReady():
		return TimerStop
	default:
		return TimerNoChange
	}
}

const (
	syncREQ byte = 0xff
	syncACK byte = 0xfe
)

type parseState int

const (
	stateSyncAck    parseState = iota // syncREQ sent, waiting for syncREQ/syncACK
	stateSyncReqSeq                   // peer sequence after syncREQ
	stateSyncAckSeq                   // peer sequence after syncACK
	stateMsgSeq                       // idle, next packet sequence
	stateMsgAckSeq                    // sequence after a late syncACK
	stateMsgCode
	stateMsgLen
	stateMsgData
	stateMsgSum
)

type stepFunc func(p *Parser, b byte) (byte, *Packet)

var steps = [...]stepFunc{
	stateSyncAck:    (*Parser).onSyncCmd,
	stateSyncReqSeq: (*Parser).onSyncReqSeq,
	stateSyncAckSeq: (*Parser).onSyncAckSeq,
	stateMsgSeq:     (*Parser).onSeq,
	stateMsgAckSeq:  (*Parser).onAckSeq,
	stateMsgCode:    (*Parser).onCode,
	stateMsgLen:     (*Parser).onLen,
	stateMsgData:    (*Parser).onData,
	stateMsgSum:     (*Parser).onSum,
}

// State gets the current sync state.
func (p *Parser) State() SyncState {
	switch {
	case p.state == stateSyncAck:
		return SyncStateSyncing
	case p.state == stateMsgSeq:
		return SyncStateReady
	case p.state > stateMsgSeq:
		return SyncStateReady | SyncStateReceiving
	default:
		return SyncStateSyncing | SyncStateReceiving
	}
}

// Reset drops any partial packet and requests a resync.
func (p *Parser) Reset() ParseResult {
	p.packet = nil
	return p.result(p.resync())
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) ParseResult {
	p.badSum = false
	pr := p.result(steps[p.state](p, b))
	pr.BadChecksum = p.badSum
	return pr
}

// Timeout notifies the parser the sync timer expired. Unless idle and
// ready, the link resyncs.
func (p *Parser) Timeout() ParseResult {
	if p.state == stateMsgSeq {
		return p.result(0, nil)
	}
	return p.result(p.resync())
}

func (p *Parser) result(sync byte, pkt *Packet) ParseResult {
	return ParseResult{Sync: sync, State: p.State(), Packet: pkt}
}

func (p *Parser) onSyncCmd(b byte) (byte, *Packet) {
	switch b {
	case syncREQ:
		p.state = stateSyncReqSeq
	case syncACK:
		p.state = stateSyncAckSeq
	}
	return 0, nil
}

func (p *Parser) onSyncReqSeq(b byte) (byte, *Packet) {
	if !p.adoptSeq(b) {
		return p.resync()
	}
	return syncACK, nil
}

func (p *Parser) onSyncAckSeq(b byte) (byte, *Packet) {
	if !p.adoptSeq(b) {
		return p.resync()
	}
	return 0, nil
}

func (p *Parser) adoptSeq(b byte) bool {
	seq := PacketSeq(b)
	if !seq.IsValid() {
		return false
	}
	p.peerSeq, p.state = seq, stateMsgSeq
	return true
}

func (p *Parser) onSeq(b byte) (byte, *Packet) {
	switch b {
	case syncREQ:
		p.state = stateSyncReqSeq
	case syncACK:
		p.state = stateMsgAckSeq
	case byte(p.peerSeq):
		p.packet = &Packet{Seq: p.peerSeq}
		p.state = stateMsgCode
	default:
		return p.resync()
	}
	return 0, nil
}

func (p *Parser) onAckSeq(b byte) (byte, *Packet) {
	if b != byte(p.peerSeq) {
		return p.resync()
	}
	p.state = stateMsgSeq
	return 0, nil
}

// code byte: bit 7 and bits 0-3 are the code, bits 4-6 the inline data
// length where 7 means a length byte follows.
func (p *Parser) onCode(b byte) (byte, *Packet) {
	p.packet.Code = b & 0x8f
	switch n := (b >> 4) & 7; n {
	case 0:
		p.state = stateMsgSum
	case 7:
		p.state = stateMsgLen
	default:
		p.expectData(n)
	}
	return 0, nil
}

func (p *Parser) onLen(b byte) (byte, *Packet) {
	switch {
	case b > MaxDataLen:
		return p.resync()
	case b == 0:
		p.state = stateMsgSum
	default:
		p.expectData(b)
	}
	return 0, nil
}

func (p *Parser) expectData(n byte) {
	p.packet.Data, p.recvLen = make([]byte, n), 0
	p.state = stateMsgData
}

func (p *Parser) onData(b byte) (byte, *Packet) {
	p.packet.Data[p.recvLen] = b
	if p.recvLen++; int(p.recvLen) >= len(p.packet.Data) {
		p.state = stateMsgSum
	}
	return 0, nil
}

func (p *Parser) onSum(b byte) (byte, *Packet) {
	if b != p.packet.Checksum() {
		p.badSum, p.packet = true, nil
		return p.resync()
	}
	pkt := p.packet
	p.packet, p.state = nil, stateMsgSeq
	p.peerSeq = p.peerSeq.Next()
	return 0, pkt
}

func (p *Parser) resync() (byte, *Packet) {
	p.state = stateSyncAck
	return syncREQ, nil
}
