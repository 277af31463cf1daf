// Package editor exposes the keymap accessor of a running keyboard to
// editing tools. A keyboard registers itself to a registry (MQTT) or
// accepts direct stream connections, and editors send it typed commands.
package editor

import (
	"context"
	"fmt"

	fx "github.com/robotalks/roba/pkg/framework"
)

// Registrar registers a keyboard to a registry and carries its events
// to connected editors.
type Registrar interface {
	// SendEvent sends an event to editors.
	SendEvent(context.Context, fx.Message) error
}

// Command represents a received command to be processed.
type Command interface {
	Msg() fx.Message
	Done(fx.Message) error
}

// CommandMsg wraps a Command as a Message.
type CommandMsg struct {
	Command Command
}

// NewMessage implements Message.
func (m *CommandMsg) NewMessage() fx.Message { return &CommandMsg{} }

// KeyboardRef is a reference to a keyboard.
type KeyboardRef struct {
	// Type is the keyboard model, e.g. "roba".
	Type string
	// ID is unique ID of the device.
	ID string
}

// Name retrieves the name from ref.
func (r KeyboardRef) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates KeyboardRef is valid.
func (r KeyboardRef) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// String implements fmt.Stringer.
func (r KeyboardRef) String() string {
	if !r.IsValid() {
		return fmt.Sprintf("invalid(%q)", r.Name())
	}
	return r.Name()
}

// KeyboardMeta provides metadata of a keyboard.
type KeyboardMeta struct {
	Description string            `json:"description,omitempty"`
	Role        string            `json:"role,omitempty"`
	Layers      int               `json:"layers,omitempty"`
	Rows        int               `json:"rows,omitempty"`
	Cols        int               `json:"cols,omitempty"`
	Encoders    int               `json:"encoders,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// KeyboardInfo provides information of a keyboard.
type KeyboardInfo struct {
	Ref  KeyboardRef
	Meta KeyboardMeta
}

// Connector is used by editors to connect to a keyboard.
type Connector interface {
	// Discover enumerates registered keyboards.
	Discover(context.Context) ([]KeyboardInfo, error)
	// Connect connects to the specified keyboard.
	Connect(context.Context, KeyboardRef) (Conn, error)
}

// Conn is the connection to a keyboard.
type Conn interface {
	// DoCommand executes a command.
	DoCommand(fx.Message) CommandFuture
}

// Result represents result of a command.
type Result struct {
	Msg fx.Message
	Err error
}

// CommandFuture is the future of sent command.
type CommandFuture interface {
	ResultChan() <-chan Result
}

// Wait waits for the result of a command.
func Wait(ctx context.Context, f CommandFuture) (fx.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-f.ResultChan():
		if !ok {
			return nil, context.Canceled
		}
		return res.Msg, res.Err
	}
}
