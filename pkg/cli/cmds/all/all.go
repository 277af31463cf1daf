// Package all registers all shell commands.
package all

import (
	_ "github.com/robotalks/roba/pkg/cli/cmds/keymap"
)
