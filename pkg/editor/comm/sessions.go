package comm

import (
	"context"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/roba/pkg/framework"
)

// Sessions is a Registrar serving editors connected directly to the
// keyboard, each over its own carrier.
type Sessions struct {
	lock       sync.Mutex
	registrars map[*Registrar]struct{}
}

// Serve runs a session on rw until the carrier ends. The context must
// be derived from the loop context.
func (s *Sessions) Serve(ctx context.Context, rw PacketReadWriter) error {
	reg := NewRegistrar(rw)
	s.lock.Lock()
	if s.registrars == nil {
		s.registrars = make(map[*Registrar]struct{})
	}
	s.registrars[reg] = struct{}{}
	count := len(s.registrars)
	s.lock.Unlock()
	glog.Infof("editor session started, %d active", count)
	defer func() {
		s.lock.Lock()
		delete(s.registrars, reg)
		s.lock.Unlock()
	}()
	return fx.RunWithContextCloser(ctx, &reg.pipe, func() error {
		return reg.Run(ctx)
	})
}

// Len gets the number of active sessions.
func (s *Sessions) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.registrars)
}

// SendEvent implements Registrar.
func (s *Sessions) SendEvent(ctx context.Context, msg fx.Message) error {
	s.lock.Lock()
	regs := make([]*Registrar, 0, len(s.registrars))
	for reg := range s.registrars {
		regs = append(regs, reg)
	}
	s.lock.Unlock()
	var errs fx.AggregatedError
	for _, reg := range regs {
		errs.Add(reg.SendEvent(ctx, msg))
	}
	return errs.Aggregate()
}
