package carrier

import (
	"context"
	"io"
	"net"
)

func dialTCP(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

type tcpListener struct {
	acceptQueue
	ln net.Listener
}

func listenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &tcpListener{acceptQueue: newAcceptQueue(), ln: ln}
	go l.acceptLoop()
	return l, nil
}

func (l *tcpListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.shutdown()
			return
		}
		if !l.push(conn) {
			return
		}
	}
}

func (l *tcpListener) Addr() string {
	return "tcp://" + l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	l.shutdown()
	return l.ln.Close()
}
