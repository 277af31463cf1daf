package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/input/joystick"
	"github.com/robotalks/roba/pkg/kbd"
	"github.com/robotalks/roba/pkg/role"
)

var (
	configFile    = "keyboard.toml"
	joystickIndex = -1
)

func init() {
	if val := os.Getenv("ROBA_CONFIG"); val != "" {
		configFile = val
	}
	flag.StringVar(&configFile, "config", configFile, "Keyboard config file, empty for defaults")
	flag.IntVar(&joystickIndex, "joystick", joystickIndex, "Drive the simulated matrix from /dev/input/js<N>, -1 to disable")
	kbd.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	path := configFile
	if _, err := os.Stat(path); os.IsNotExist(err) && !isFlagSet("config") {
		path = ""
	}
	conf, err := kbd.LoadConfig(path)
	if err != nil {
		log.Fatalln(err)
	}

	hw := kbd.NewSimHardware(&conf.Matrix)
	session := role.MustResolve(conf.RoleSources(hw.RoleSource())...)
	k, err := kbd.New(conf, session.Role(), &hw.Hardware)
	if err != nil {
		log.Fatalln(err)
	}
	defer k.Close()

	if joystickIndex >= 0 {
		dev, err := joystick.Open(joystickIndex)
		if err != nil {
			log.Fatalln(err)
		}
		glog.Infof("joystick %s: %d buttons, %d axes", dev.Name(), dev.ButtonCount(), dev.AxisCount())
		src := &joystick.Source{Device: dev, Mapping: joystick.DefaultMapping(), Keys: hw.Keys, Motion: hw.Motion}
		if len(hw.Steps) > 0 {
			src.Steps = hw.Steps[0]
		}
		k.Loop.Add(src)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := k.Run(ctx); err != nil && err != context.Canceled {
		log.Println(err)
	}
}

func isFlagSet(name string) (set bool) {
	flag.Visit(func(f *flag.Flag) {
		set = set || f.Name == name
	})
	return
}
