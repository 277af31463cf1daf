package carrier

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/net/websocket"
)

func dialWebSocket(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	origin := "http://" + u.Host + "/"
	config, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	config.Dialer = &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		config.Dialer.Deadline = deadline
	}
	type dialed struct {
		conn *websocket.Conn
		err  error
	}
	resultCh := make(chan dialed, 1)
	go func() {
		conn, err := websocket.DialConfig(config)
		resultCh <- dialed{conn: conn, err: err}
	}()
	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, r.err
		}
		r.conn.PayloadType = websocket.BinaryFrame
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// wsConn keeps the websocket handler alive until the carrier is closed.
type wsConn struct {
	*websocket.Conn
	once   sync.Once
	doneCh chan struct{}
}

// WebSocket exposes the connection for message framed protocols.
func (c *wsConn) WebSocket() *websocket.Conn {
	return c.Conn
}

func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.doneCh) })
	return err
}

type wsListener struct {
	acceptQueue
	ln     net.Listener
	path   string
	server *http.Server
}

func listenWebSocket(u *url.URL) (Listener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	l := &wsListener{acceptQueue: newAcceptQueue(), ln: ln, path: u.Path}
	if l.path == "" {
		l.path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(l.path, websocket.Server{Handler: l.serve})
	l.server = &http.Server{Handler: mux}
	go func() {
		l.server.Serve(ln)
		l.shutdown()
	}()
	return l, nil
}

func (l *wsListener) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	c := &wsConn{Conn: conn, doneCh: make(chan struct{})}
	if !l.push(c) {
		return
	}
	select {
	case <-c.doneCh:
	case <-l.doneCh:
	}
}

func (l *wsListener) Addr() string {
	return "ws://" + l.ln.Addr().String() + l.path
}

func (l *wsListener) Close() error {
	l.shutdown()
	return l.server.Close()
}
