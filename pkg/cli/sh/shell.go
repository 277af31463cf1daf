// Package sh provides the interactive keymap editor shell.
package sh

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/roba/pkg/editor"
	env "github.com/robotalks/roba/pkg/editor/env/connector"
	"github.com/robotalks/roba/pkg/editor/msgs"
	fx "github.com/robotalks/roba/pkg/framework"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Loop   *ConnLoop

	watchLock sync.Mutex
	watching  bool
}

// ConnLoop is a running loop with a keyboard connection.
type ConnLoop struct {
	Ctx    context.Context
	Cancel func()
	Ref    editor.KeyboardRef
	Loop   *fx.Loop
	Conn   editor.Conn
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	timeout    = time.Second

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&WatchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&timeout, "timeout", timeout, "Command timeout.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     timeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Loop == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// FormatInfo prints KeyboardInfo into friendly string for display.
func FormatInfo(info editor.KeyboardInfo) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s", info.Ref.Name())
	if info.Meta.Description != "" {
		fmt.Fprintf(&w, ": %s", info.Meta.Description)
	}
	if info.Meta.Role != "" {
		fmt.Fprintf(&w, " [%s]", info.Meta.Role)
	}
	if info.Meta.Layers > 0 {
		fmt.Fprintf(&w, " %d layers %dx%d", info.Meta.Layers, info.Meta.Rows, info.Meta.Cols)
	}
	return w.String()
}

// FormatMsg prints a message for display.
func FormatMsg(msg fx.Message, inJSON bool) (string, error) {
	s, ok := msg.(msgs.SerializableMessage)
	if !ok {
		return fmt.Sprintf("%v", msg), nil
	}
	if inJSON {
		out, err := json.Marshal(s.Serializable())
		return string(out), err
	}
	if _, ok := msg.(*msgs.CommandOK); ok {
		return "OK", nil
	}
	return fmt.Sprintf("%s %s",
		reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
		s.Serializable().String()), nil
}

// Exec runs a command and waits for result.
func (s *Shell) Exec(msg fx.Message) (fx.Message, error) {
	if s.Loop == nil {
		return nil, fmt.Errorf("not connected")
	}
	ctx, cancel := context.WithTimeout(s.Loop.Ctx, s.Timeout)
	defer cancel()
	res, err := editor.Wait(ctx, s.Loop.Conn.DoCommand(msg))
	if err == context.DeadlineExceeded {
		err = fmt.Errorf("command timeout")
	}
	return res, err
}

// DoCommand runs a command, waits for result and prints it.
func DoCommand(c *ishell.Context, msg fx.Message) (fx.Message, error) {
	s := ShellFrom(c)
	res, err := s.Exec(msg)
	if err != nil {
		c.Err(err)
		return nil, err
	}
	out, err := FormatMsg(res, s.OutputJSON)
	if err != nil {
		c.Err(err)
		return nil, err
	}
	c.Println(out)
	return res, nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// DiscoverKeyboards discovers keyboards.
func (s *Shell) DiscoverKeyboards(filter func(editor.KeyboardInfo) bool) (editor.Connector, []editor.KeyboardInfo, error) {
	connector, err := s.Config.NewConnector()
	if err != nil {
		return nil, nil, err
	}
	infoList, err := connector.Discover(context.TODO())
	if err != nil {
		return connector, nil, err
	}
	if filter != nil {
		items := make([]editor.KeyboardInfo, 0, len(infoList))
		for _, info := range infoList {
			if filter(info) {
				items = append(items, info)
			}
		}
		infoList = items
	}
	return connector, infoList, nil
}

// SelectKeyboard discovers keyboards and asks for a choice.
func (s *Shell) SelectKeyboard(filter func(editor.KeyboardInfo) bool) (editor.Connector, *editor.KeyboardInfo, error) {
	connector, infoList, err := s.DiscoverKeyboards(filter)
	if err != nil {
		return nil, nil, err
	}
	if len(infoList) == 0 {
		return connector, nil, nil
	}
	var index int
	if len(infoList) > 1 {
		if !s.Interactive {
			return nil, nil, fmt.Errorf("more than 1 keyboards discovered in non-interactive mode")
		}
		items := make([]string, len(infoList))
		for n, info := range infoList {
			items[n] = FormatInfo(info)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}

	return connector, &infoList[index], nil
}

// Connect connects keyboard with ref.
func (s *Shell) Connect(ref editor.KeyboardRef) error {
	connector, err := s.Config.NewConnector()
	if err != nil {
		return err
	}
	connLoop := &ConnLoop{Ref: ref}
	connLoop.Ctx, connLoop.Cancel = context.WithCancel(context.Background())
	if connLoop.Conn, err = connector.Connect(connLoop.Ctx, ref); err != nil {
		connLoop.Cancel()
		return err
	}
	connLoop.Loop = fx.NewLoop()
	if adder, ok := connLoop.Conn.(fx.LoopAdder); ok {
		connLoop.Loop.Add(adder)
	}
	connLoop.Loop.AddTask(fx.PrLvNormal, fx.TaskFunc(s.printEvents))
	if s.Loop != nil {
		s.Loop.Cancel()
	}
	s.Loop = connLoop
	go connLoop.Loop.Run(connLoop.Ctx)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", ref.Name()))
	return nil
}

// Disconnect disconnects current keyboard.
func (s *Shell) Disconnect() {
	if s.Loop != nil {
		s.Loop.Cancel()
		s.Loop = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Watch turns printing of keyboard events on or off.
func (s *Shell) Watch(on bool) {
	s.watchLock.Lock()
	s.watching = on
	s.watchLock.Unlock()
}

func (s *Shell) printEvents(c fx.Cycle) error {
	s.watchLock.Lock()
	watching := s.watching
	s.watchLock.Unlock()
	c.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		msg, ok := mc.CurrentMessage().(msgs.SerializableMessage)
		if !ok {
			return
		}
		mc.MessageTaken()
		if !watching {
			return
		}
		if out, err := FormatMsg(msg, s.OutputJSON); err == nil {
			s.Shell.Println(out)
		}
	}))
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && (s.Config.Ref.IsValid() || !s.Config.NeedsRef()) {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.RegistryURL)
		}
		if err := s.Connect(s.Config.Ref); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Ref.Name(), err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// DiscoverCmd discovers keyboards.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			_, infoList, err := s.DiscoverKeyboards(nil)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(infoList) == 0 {
					// in case infoList is nil, make it empty slice.
					infoList = []editor.KeyboardInfo{}
				}
				out, err := json.Marshal(infoList)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(infoList) == 0 {
				c.Println("No keyboards found")
				return
			}
			for _, info := range infoList {
				c.Println(FormatInfo(info))
			}
		},
	}

	// ConnectCmd connects a keyboard.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "TYPE ID",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var ref editor.KeyboardRef
			if len(c.Args) >= 2 {
				ref.Type, ref.ID = c.Args[0], c.Args[1]
			} else {
				var filter func(editor.KeyboardInfo) bool
				if len(c.Args) == 1 {
					filter = func(info editor.KeyboardInfo) bool {
						return info.Ref.Type == c.Args[0]
					}
				}
				_, info, err := s.SelectKeyboard(filter)
				if err != nil {
					c.Err(err)
					return
				}
				if info == nil {
					c.Err(fmt.Errorf("no keyboard discovered"))
					return
				}
				ref = info.Ref
			}
			if err := s.Connect(ref); err != nil {
				c.Err(err)
				return
			}
		},
	}

	// DisconnectCmd disconnects current keyboard.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// WatchCmd prints keyboard events.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "on|off",
		Func: func(c *ishell.Context) {
			on := len(c.Args) == 0 || c.Args[0] == "on"
			ShellFrom(c).Watch(on)
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
