// Package role decides whether a keyboard half is the central or the
// peripheral. The decision is made once at boot and never changes.
package role

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
)

// Role of a keyboard half.
type Role int

// Roles.
const (
	Unknown Role = iota
	Central
	Peripheral
)

// ErrRoleUndetermined indicates no source could determine the role.
var ErrRoleUndetermined = errors.New("role undetermined")

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case Central:
		return "central"
	case Peripheral:
		return "peripheral"
	}
	return "unknown"
}

// Parse parses a role name.
func Parse(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "central", "c", "left":
		return Central, nil
	case "peripheral", "p", "right":
		return Peripheral, nil
	}
	return Unknown, fmt.Errorf("invalid role %q", s)
}

// Source determines the role, or returns Unknown if it can't tell.
type Source interface {
	Role() (Role, error)
}

// SourceFunc is the func form of Source.
type SourceFunc func() (Role, error)

// Role implements Source.
func (f SourceFunc) Role() (Role, error) {
	return f()
}

// Static is a role fixed at build time or by configuration.
type Static Role

// Role implements Source.
func (s Static) Role() (Role, error) {
	return Role(s), nil
}

// Pin reads the level of the detection pin.
type Pin interface {
	Read() (bool, error)
}

// PinFunc is the func form of Pin.
type PinFunc func() (bool, error)

// Read implements Pin.
func (f PinFunc) Read() (bool, error) {
	return f()
}

// PinSource resolves the role from a wired detection pin.
type PinSource struct {
	Pin Pin
	// CentralLevel is the pin level which means central.
	CentralLevel bool
}

// Role implements Source.
func (s *PinSource) Role() (Role, error) {
	if s.Pin == nil {
		return Unknown, nil
	}
	level, err := s.Pin.Read()
	if err != nil {
		return Unknown, fmt.Errorf("read role pin: %w", err)
	}
	if level == s.CentralLevel {
		return Central, nil
	}
	return Peripheral, nil
}

// EnvVar is the environment variable read by EnvSource.
const EnvVar = "ROBA_ROLE"

// EnvSource resolves the role from the ROBA_ROLE environment variable.
var EnvSource Source = SourceFunc(func() (Role, error) {
	val := os.Getenv(EnvVar)
	if val == "" {
		return Unknown, nil
	}
	return Parse(val)
})

// Resolve asks sources in order, the first one that determines a role wins.
// A source error stops the resolution.
func Resolve(sources ...Source) (Role, error) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		r, err := src.Role()
		if err != nil {
			return Unknown, err
		}
		if r != Unknown {
			return r, nil
		}
	}
	return Unknown, ErrRoleUndetermined
}

// Session holds the role resolved for this boot.
type Session struct {
	role Role
}

// NewSession resolves the role and creates a Session.
func NewSession(sources ...Source) (*Session, error) {
	r, err := Resolve(sources...)
	if err != nil {
		return nil, err
	}
	return &Session{role: r}, nil
}

// MustResolve creates a Session or halts.
func MustResolve(sources ...Source) *Session {
	s, err := NewSession(sources...)
	if err != nil {
		glog.Fatalf("boot: %v", err)
	}
	glog.Infof("boot: role %s", s.role)
	return s
}

// Role gets the resolved role.
func (s *Session) Role() Role {
	return s.role
}

// IsCentral indicates the half talks to the host.
func (s *Session) IsCentral() bool {
	return s.role == Central
}
