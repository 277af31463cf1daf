package main

import (
	"github.com/robotalks/roba/pkg/cli/sh"
	env "github.com/robotalks/roba/pkg/editor/env/connector"

	_ "github.com/robotalks/roba/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
