// Package carrier opens byte streams the split link runs on.
//
// A carrier is addressed by URL:
//
//	tcp://host:port     plain TCP
//	ws://host:port/path WebSocket binary frames
//	pipe:name           in-process buffered pipe (simulation, tests)
package carrier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
)

var (
	// ErrUnsupportedScheme indicates the carrier URL scheme is unknown.
	ErrUnsupportedScheme = errors.New("unsupported carrier scheme")
	// ErrListenerClosed is returned by Accept after Close.
	ErrListenerClosed = errors.New("listener closed")
)

// Listener accepts incoming carriers.
type Listener interface {
	Accept(context.Context) (io.ReadWriteCloser, error)
	Addr() string
	Close() error
}

// Dial opens a carrier to the URL.
func Dial(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid carrier URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "tcp":
		return dialTCP(ctx, u.Host)
	case "ws", "wss":
		return dialWebSocket(ctx, u)
	case "pipe":
		return dialPipe(pipeName(u))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// Listen listens on the URL for incoming carriers.
func Listen(rawURL string) (Listener, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid carrier URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "tcp":
		return listenTCP(u.Host)
	case "ws":
		return listenWebSocket(u)
	case "pipe":
		return listenPipe(pipeName(u))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

func pipeName(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

// acceptQueue is the accept side shared by all listeners: the
// listener specific goroutine pushes carriers, Accept pops them.
type acceptQueue struct {
	connCh chan io.ReadWriteCloser
	doneCh chan struct{}
}

func newAcceptQueue() acceptQueue {
	return acceptQueue{
		connCh: make(chan io.ReadWriteCloser),
		doneCh: make(chan struct{}),
	}
}

func (q *acceptQueue) push(conn io.ReadWriteCloser) bool {
	select {
	case q.connCh <- conn:
		return true
	case <-q.doneCh:
		conn.Close()
		return false
	}
}

func (q *acceptQueue) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case conn := <-q.connCh:
		return conn, nil
	case <-q.doneCh:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *acceptQueue) shutdown() {
	select {
	case <-q.doneCh:
	default:
		close(q.doneCh)
	}
}
