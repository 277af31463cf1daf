package link

import "errors"

var (
	// ErrNotReady indicates the link is not synchronized.
	ErrNotReady = errors.New("link not ready")
	// ErrPacketTooLarge indicates the packet data exceeds MaxDataLen.
	ErrPacketTooLarge = errors.New("packet too large")
)
