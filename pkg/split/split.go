// Package split carries input events from the peripheral half to the
// central half over a link, with acknowledgement and retransmission.
package split

import (
	"errors"
	"math/rand/v2"
	"time"
)

var (
	// ErrDisconnected indicates the link to the other half is down.
	ErrDisconnected = errors.New("split link disconnected")
	// ErrBufferOverflow indicates the oldest unacknowledged event was dropped.
	ErrBufferOverflow = errors.New("split buffer overflow")
)

// Defaults of Peripheral and Central.
const (
	DefaultCapacity          = 64
	DefaultAckTimeout        = 50 * time.Millisecond
	DefaultHeartbeatInterval = 200 * time.Millisecond
	DefaultOfflineAfter      = time.Second
)

func newBootID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}
