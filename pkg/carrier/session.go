package carrier

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang/glog"
)

// Session runs on an established carrier until it ends.
// The carrier is closed after Session returns.
type Session interface {
	RunSession(context.Context, io.ReadWriteCloser) error
}

// SessionFunc is the func form of Session.
type SessionFunc func(context.Context, io.ReadWriteCloser) error

// RunSession implements Session.
func (f SessionFunc) RunSession(ctx context.Context, rwc io.ReadWriteCloser) error {
	return f(ctx, rwc)
}

// NewBackOff creates the default redial backoff.
func NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// Dialer keeps a carrier to URL open, redialing with backoff.
type Dialer struct {
	URL     string
	Session Session
	BackOff backoff.BackOff
}

// Name implements Named.
func (d *Dialer) Name() string {
	return "dial " + d.URL
}

// Run implements Runnable.
func (d *Dialer) Run(ctx context.Context) error {
	b := d.BackOff
	if b == nil {
		b = NewBackOff()
	}
	for {
		conn, err := Dial(ctx, d.URL)
		if err == nil {
			b.Reset()
			glog.Infof("carrier %s connected", d.URL)
			err = d.Session.RunSession(ctx, conn)
			conn.Close()
			glog.Warningf("carrier %s closed: %v", d.URL, err)
		} else {
			glog.V(2).Infof("dial %s: %v", d.URL, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Acceptor listens on URL and serves one carrier at a time.
type Acceptor struct {
	URL     string
	Session Session

	listener Listener
}

// Name implements Named.
func (a *Acceptor) Name() string {
	return "accept " + a.URL
}

// Listen starts listening so peers can dial before Run.
func (a *Acceptor) Listen() (err error) {
	if a.listener == nil {
		a.listener, err = Listen(a.URL)
	}
	return
}

// Addr returns the actual listening address after Listen.
func (a *Acceptor) Addr() string {
	if a.listener == nil {
		return a.URL
	}
	return a.listener.Addr()
}

// Run implements Runnable.
func (a *Acceptor) Run(ctx context.Context) error {
	if err := a.Listen(); err != nil {
		return err
	}
	defer a.listener.Close()
	for {
		conn, err := a.listener.Accept(ctx)
		if err != nil {
			return err
		}
		glog.Infof("carrier %s accepted", a.URL)
		err = a.Session.RunSession(ctx, conn)
		conn.Close()
		glog.Warningf("carrier %s closed: %v", a.URL, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
