package carrier

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

type pipeBuffer struct {
	lock   sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newPipeBuffer() *pipeBuffer {
	b := &pipeBuffer{}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *pipeBuffer) read(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for b.buf.Len() == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.buf.Len() == 0 {
		return 0, io.EOF
	}
	return b.buf.Read(p)
}

func (b *pipeBuffer) write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := b.buf.Write(p)
	b.cond.Broadcast()
	return n, nil
}

func (b *pipeBuffer) close() {
	b.lock.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.lock.Unlock()
}

type pipeEnd struct {
	r, w *pipeBuffer
}

func (e *pipeEnd) Read(p []byte) (int, error)  { return e.r.read(p) }
func (e *pipeEnd) Write(p []byte) (int, error) { return e.w.write(p) }

func (e *pipeEnd) Close() error {
	e.r.close()
	e.w.close()
	return nil
}

// Pipe creates a buffered in-memory duplex carrier. Unlike net.Pipe,
// writes never wait for the peer to read. Closing either end closes
// both directions.
func Pipe() (io.ReadWriteCloser, io.ReadWriteCloser) {
	a, b := newPipeBuffer(), newPipeBuffer()
	return &pipeEnd{r: a, w: b}, &pipeEnd{r: b, w: a}
}

var (
	pipeListeners     = make(map[string]*pipeListener)
	pipeListenersLock sync.Mutex
)

type pipeListener struct {
	acceptQueue
	name string
}

func listenPipe(name string) (Listener, error) {
	pipeListenersLock.Lock()
	defer pipeListenersLock.Unlock()
	if _, exists := pipeListeners[name]; exists {
		return nil, fmt.Errorf("pipe %q already listening", name)
	}
	l := &pipeListener{acceptQueue: newAcceptQueue(), name: name}
	pipeListeners[name] = l
	return l, nil
}

func dialPipe(name string) (io.ReadWriteCloser, error) {
	pipeListenersLock.Lock()
	l := pipeListeners[name]
	pipeListenersLock.Unlock()
	if l == nil {
		return nil, fmt.Errorf("pipe %q: %w", name, io.ErrClosedPipe)
	}
	local, remote := Pipe()
	go l.push(remote)
	return local, nil
}

func (l *pipeListener) Addr() string {
	return "pipe:" + l.name
}

func (l *pipeListener) Close() error {
	pipeListenersLock.Lock()
	if pipeListeners[l.name] == l {
		delete(pipeListeners, l.name)
	}
	pipeListenersLock.Unlock()
	l.shutdown()
	return nil
}
