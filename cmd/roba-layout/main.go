package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/roba/pkg/memlayout"
)

var (
	layoutFile  string
	memoryXFile string
	outputFile  string
)

func init() {
	flag.StringVar(&layoutFile, "layout", "", "Layout TOML file, the built-in layout if empty")
	flag.StringVar(&memoryXFile, "memory-x", "", "Check FLASH and RAM of an existing memory.x")
	flag.StringVar(&outputFile, "o", "", "Write memory.x to this file, - for stdout")
}

func loadLayout() (memlayout.Layout, error) {
	layout := memlayout.Default()
	if layoutFile != "" {
		if _, err := toml.DecodeFile(layoutFile, &layout); err != nil {
			return layout, fmt.Errorf("load %s: %w", layoutFile, err)
		}
	}
	if memoryXFile != "" {
		f, err := os.Open(memoryXFile)
		if err != nil {
			return layout, err
		}
		defer f.Close()
		if layout, err = memlayout.ParseMemoryX(f, layout); err != nil {
			return layout, fmt.Errorf("parse %s: %w", memoryXFile, err)
		}
	}
	return layout, nil
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	layout, err := loadLayout()
	if err != nil {
		log.Fatalln(err)
	}
	chip := memlayout.NRF52840
	fmt.Printf("%s: flash %s, ram %s\n", chip.Name, memlayout.FormatSize(chip.FlashSize), memlayout.FormatSize(chip.RAMSize))
	for _, r := range layout.Regions() {
		fmt.Println("  ", r)
	}
	for _, r := range layout.Free(chip) {
		fmt.Println("  ", r)
	}
	if err := layout.Validate(chip); err != nil {
		log.Fatalln(err)
	}
	fmt.Println("OK")

	switch outputFile {
	case "":
	case "-":
		err = layout.WriteMemoryX(os.Stdout)
	default:
		var f *os.File
		if f, err = os.Create(outputFile); err == nil {
			err = layout.WriteMemoryX(f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}
	}
	if err != nil {
		log.Fatalln(err)
	}
}
