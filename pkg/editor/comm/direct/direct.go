// Package direct connects editors to a keyboard over a carrier without
// a registry. The keyboard listens on a carrier URL and every accepted
// carrier becomes an editor session.
package direct

import (
	"context"
	"io"
	"net/url"

	"github.com/robotalks/roba/pkg/carrier"
	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/comm"
	"github.com/robotalks/roba/pkg/editor/comm/stream"
	"github.com/robotalks/roba/pkg/editor/comm/websocket"
)

// Framed picks the packet framing for a carrier: WebSocket messages
// or length prefixed stream.
func Framed(rwc io.ReadWriteCloser) comm.PacketReadWriter {
	if rw, ok := websocket.FromCarrier(rwc); ok {
		return rw
	}
	return stream.New(rwc)
}

// Session serves accepted carriers as editor sessions.
func Session(sessions *comm.Sessions) carrier.Session {
	return carrier.SessionFunc(func(ctx context.Context, rwc io.ReadWriteCloser) error {
		return sessions.Serve(ctx, Framed(rwc))
	})
}

// Connector implements editor.Connector for a single keyboard at URL.
type Connector struct {
	URL string
	Ref editor.KeyboardRef
}

// NewConnector creates a Connector. The keyboard is named after the
// carrier address.
func NewConnector(rawURL string) (*Connector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		URL: rawURL,
		Ref: editor.KeyboardRef{Type: u.Scheme, ID: u.Host + u.Path},
	}, nil
}

// Discover implements Connector.
func (c *Connector) Discover(ctx context.Context) ([]editor.KeyboardInfo, error) {
	return []editor.KeyboardInfo{{Ref: c.Ref}}, nil
}

// Connect implements Connector.
func (c *Connector) Connect(ctx context.Context, ref editor.KeyboardRef) (editor.Conn, error) {
	rwc, err := carrier.Dial(ctx, c.URL)
	if err != nil {
		return nil, err
	}
	return comm.NewConn(Framed(rwc)), nil
}
