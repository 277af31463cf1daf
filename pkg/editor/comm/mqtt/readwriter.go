package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/roba/pkg/editor"
)

// Topic suffixes under the keyboard name.
const (
	TopicMeta = "meta"
	TopicCmd  = "cmd"
	TopicMsg  = "msg"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		closeCh:  make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForEditor sets topics using default convention for editors:
// SubTopic = type/id/msg
// PubTopic = type/id/cmd
func (p *ReadWriter) ForEditor(ref editor.KeyboardRef) *ReadWriter {
	prefix := ref.Name() + "/"
	return p.WithTopics(prefix+TopicMsg, prefix+TopicCmd)
}

// ForKeyboard sets topics using default convention for keyboards:
// SubTopic = type/id/cmd
// PubTopic = type/id/msg
func (p *ReadWriter) ForKeyboard(ref editor.KeyboardRef) *ReadWriter {
	prefix := ref.Name() + "/"
	return p.WithTopics(prefix+TopicCmd, prefix+TopicMsg)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer. Pending ReadPacket returns io.EOF.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer sub.Close()
	defer p.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closeCh:
		return nil
	}
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.closeCh:
	}
}
