// Package link provides a sequence synchronized packet link between the
// two halves of a split keyboard.
package link

// The link runs over any reliable-ish byte stream (UART between the
// halves, or a TCP/WebSocket/in-memory carrier on the host) and focuses
// on being recoverable from errors: both sides exchange a sync request
// with their next packet sequence, and every packet must carry exactly
// the expected sequence number. Any violation triggers a resync.
//
// Each packet ends with a one byte checksum (low byte of CRC32 over
// code and data). A checksum mismatch is treated like a sequence error.
//
// Delivery guarantees above the link (acks, retransmission) belong to
// the split package.
