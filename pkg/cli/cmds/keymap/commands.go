// Package keymap provides shell commands editing the keymap of a
// connected keyboard.
package keymap

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/roba/pkg/cli/sh"
	"github.com/robotalks/roba/pkg/editor/msgs"
)

func parseUints(c *ishell.Context, names ...string) ([]uint32, bool) {
	if len(c.Args) < len(names) {
		c.Err(fmt.Errorf("%s required", strings.Join(names, " ")))
		return nil, false
	}
	vals := make([]uint32, len(names))
	for n, name := range names {
		val, err := strconv.ParseUint(c.Args[n], 10, 32)
		if err != nil {
			c.Err(fmt.Errorf("Invalid %s: %v", name, err))
			return nil, false
		}
		vals[n] = uint32(val)
	}
	return vals, true
}

var (
	// KeymapInfoCmd exposes KeymapInfoQuery command.
	KeymapInfoCmd = ishell.Cmd{
		Name:    "km.info",
		Aliases: []string{"kmi"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.KeymapInfoQuery{})
		}),
	}

	// KeymapGetCmd exposes KeymapGet command.
	KeymapGetCmd = ishell.Cmd{
		Name:    "km.get",
		Aliases: []string{"kmg"},
		Help:    "LAYER ROW COL",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, ok := parseUints(c, "LAYER", "ROW", "COL")
			if ok {
				sh.DoCommand(c, &msgs.KeymapGet{Layer: vals[0], Row: vals[1], Col: vals[2]})
			}
		}),
	}

	// KeymapSetCmd exposes KeymapSet command.
	KeymapSetCmd = ishell.Cmd{
		Name:    "km.set",
		Aliases: []string{"kms"},
		Help:    "LAYER ROW COL ACTION",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, ok := parseUints(c, "LAYER", "ROW", "COL")
			if !ok {
				return
			}
			if len(c.Args) < 4 {
				c.Err(fmt.Errorf("ACTION required"))
				return
			}
			sh.DoCommand(c, &msgs.KeymapSet{
				Layer:  vals[0],
				Row:    vals[1],
				Col:    vals[2],
				Action: strings.Join(c.Args[3:], ""),
			})
		}),
	}

	// EncoderGetCmd exposes EncoderGet command.
	EncoderGetCmd = ishell.Cmd{
		Name:    "enc.get",
		Aliases: []string{"eg"},
		Help:    "LAYER [INDEX]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, ok := parseUints(c, "LAYER")
			if !ok {
				return
			}
			msg := &msgs.EncoderGet{Layer: vals[0]}
			if len(c.Args) > 1 {
				index, err := strconv.ParseUint(c.Args[1], 10, 32)
				if err != nil {
					c.Err(fmt.Errorf("Invalid INDEX: %v", err))
					return
				}
				msg.Index = uint32(index)
			}
			sh.DoCommand(c, msg)
		}),
	}

	// EncoderSetCmd exposes EncoderSet command.
	EncoderSetCmd = ishell.Cmd{
		Name:    "enc.set",
		Aliases: []string{"es"},
		Help:    "LAYER INDEX CW_ACTION CCW_ACTION",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, ok := parseUints(c, "LAYER", "INDEX")
			if !ok {
				return
			}
			if len(c.Args) < 4 {
				c.Err(fmt.Errorf("CW_ACTION CCW_ACTION required"))
				return
			}
			sh.DoCommand(c, &msgs.EncoderSet{
				Layer:            vals[0],
				Index:            vals[1],
				Clockwise:        c.Args[2],
				CounterClockwise: c.Args[3],
			})
		}),
	}

	// KeymapResetCmd exposes KeymapReset command.
	KeymapResetCmd = ishell.Cmd{
		Name: "km.reset",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.KeymapReset{})
		}),
	}

	// KeymapDumpCmd prints a whole layer.
	KeymapDumpCmd = ishell.Cmd{
		Name:    "km.dump",
		Aliases: []string{"kmd"},
		Help:    "LAYER",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, ok := parseUints(c, "LAYER")
			if !ok {
				return
			}
			s := sh.ShellFrom(c)
			res, err := s.Exec(&msgs.KeymapInfoQuery{})
			if err != nil {
				c.Err(err)
				return
			}
			info := res.(*msgs.KeymapInfo)
			var w strings.Builder
			tw := tabwriter.NewWriter(&w, 0, 4, 1, ' ', 0)
			for row := uint32(0); row < info.Rows; row++ {
				cells := make([]string, info.Cols)
				for col := uint32(0); col < info.Cols; col++ {
					res, err := s.Exec(&msgs.KeymapGet{Layer: vals[0], Row: row, Col: col})
					if err != nil {
						c.Err(err)
						return
					}
					cells[col] = res.(*msgs.KeymapEntry).Action
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			tw.Flush()
			c.Print(w.String())
		}),
	}

	// LayerStateCmd exposes LayerStateQuery command.
	LayerStateCmd = ishell.Cmd{
		Name:    "layers",
		Aliases: []string{"ls"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.LayerStateQuery{})
		}),
	}

	// StatusCmd exposes StatusQuery command.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoCommand(c, &msgs.StatusQuery{})
		}),
	}
)

func init() {
	sh.AddCmds(
		&KeymapInfoCmd,
		&KeymapGetCmd,
		&KeymapSetCmd,
		&EncoderGetCmd,
		&EncoderSetCmd,
		&KeymapResetCmd,
		&KeymapDumpCmd,
		&LayerStateCmd,
		&StatusCmd,
	)
}
