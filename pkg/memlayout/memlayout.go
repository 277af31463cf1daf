// Package memlayout describes the flash and RAM regions the firmware
// image is linked into, and checks them against the chip.
package memlayout

import (
	"errors"
	"fmt"
	"sort"

	fx "github.com/robotalks/roba/pkg/framework"
)

var (
	// ErrOutOfBounds indicates a region outside the chip memory.
	ErrOutOfBounds = errors.New("region out of bounds")
	// ErrOverlap indicates two regions sharing addresses.
	ErrOverlap = errors.New("regions overlap")
	// ErrEmpty indicates a region with zero length.
	ErrEmpty = errors.New("empty region")
)

// Size units.
const (
	KiB = 1024
	MiB = 1024 * KiB
)

// Space is the address space a region belongs to.
type Space string

// Address spaces.
const (
	SpaceFlash Space = "flash"
	SpaceRAM   Space = "ram"
)

// Region is a range of addresses.
type Region struct {
	Name   string `toml:"name" json:"name"`
	Space  Space  `toml:"space" json:"space"`
	Origin uint32 `toml:"origin" json:"origin"`
	Length uint32 `toml:"length" json:"length"`
}

// End is the first address after the region.
func (r Region) End() uint64 {
	return uint64(r.Origin) + uint64(r.Length)
}

// Overlaps tells if two regions share any address.
func (r Region) Overlaps(o Region) bool {
	return r.Space == o.Space && uint64(r.Origin) < o.End() && uint64(o.Origin) < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("%s %s [0x%08x, 0x%08x) %s", r.Space, r.Name, r.Origin, r.End(), FormatSize(r.Length))
}

// Chip is the physical memory of a microcontroller.
type Chip struct {
	Name        string
	FlashOrigin uint32
	FlashSize   uint32
	RAMOrigin   uint32
	RAMSize     uint32
}

// NRF52840 has 1 MiB flash and 256 KiB RAM.
var NRF52840 = Chip{
	Name:        "nRF52840",
	FlashOrigin: 0x00000000,
	FlashSize:   1024 * KiB,
	RAMOrigin:   0x20000000,
	RAMSize:     256 * KiB,
}

// Bounds gets the region covering a whole address space of the chip.
func (c Chip) Bounds(space Space) Region {
	if space == SpaceRAM {
		return Region{Name: "RAM", Space: SpaceRAM, Origin: c.RAMOrigin, Length: c.RAMSize}
	}
	return Region{Name: "FLASH", Space: SpaceFlash, Origin: c.FlashOrigin, Length: c.FlashSize}
}

// Layout is the memory contract of the firmware build.
type Layout struct {
	Flash    Region   `toml:"flash" json:"flash"`
	RAM      Region   `toml:"ram" json:"ram"`
	Reserved []Region `toml:"reserved" json:"reserved"`
}

// Default is the roBa layout for the Adafruit nRF52 UF2 bootloader with
// the S140 SoftDevice: application between the SoftDevice and the
// bootloader, RAM after the 8 bytes kept by the MBR.
func Default() Layout {
	return Layout{
		Flash: Region{Name: "FLASH", Space: SpaceFlash, Origin: 0x00027000, Length: 820 * KiB},
		RAM:   Region{Name: "RAM", Space: SpaceRAM, Origin: 0x20000008, Length: 255 * KiB},
		Reserved: []Region{
			{Name: "MBR+SoftDevice", Space: SpaceFlash, Origin: 0x00000000, Length: 0x27000},
			{Name: "Bootloader", Space: SpaceFlash, Origin: 0x000f4000, Length: 0x0c000},
			{Name: "MBR RAM", Space: SpaceRAM, Origin: 0x20000000, Length: 8},
		},
	}
}

// Regions lists all regions ordered by space and origin.
func (l Layout) Regions() []Region {
	regions := append([]Region{l.Flash, l.RAM}, l.Reserved...)
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Space != regions[j].Space {
			return regions[i].Space < regions[j].Space
		}
		return regions[i].Origin < regions[j].Origin
	})
	return regions
}

// Validate checks every region is non-empty and inside the chip, and no
// two regions overlap.
func (l Layout) Validate(chip Chip) error {
	var errs fx.AggregatedError
	if l.Flash.Space != SpaceFlash {
		errs.Add(fmt.Errorf("%s: must be in %s space", l.Flash.Name, SpaceFlash))
	}
	if l.RAM.Space != SpaceRAM {
		errs.Add(fmt.Errorf("%s: must be in %s space", l.RAM.Name, SpaceRAM))
	}
	regions := l.Regions()
	for _, r := range regions {
		if r.Length == 0 {
			errs.Add(fmt.Errorf("%s: %w", r.Name, ErrEmpty))
			continue
		}
		if r.Space != SpaceFlash && r.Space != SpaceRAM {
			errs.Add(fmt.Errorf("%s: unknown space %q", r.Name, r.Space))
			continue
		}
		bounds := chip.Bounds(r.Space)
		if r.Origin < bounds.Origin || r.End() > bounds.End() {
			errs.Add(fmt.Errorf("%s: %w: %s outside %s", r.Name, ErrOutOfBounds, r, bounds))
		}
	}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].Length > 0 && regions[j].Length > 0 && regions[i].Overlaps(regions[j]) {
				errs.Add(fmt.Errorf("%w: %s and %s", ErrOverlap, regions[i], regions[j]))
			}
		}
	}
	return errs.Aggregate()
}

// Free lists the address ranges of the chip not covered by any region.
func (l Layout) Free(chip Chip) []Region {
	var free []Region
	regions := l.Regions()
	for _, space := range []Space{SpaceFlash, SpaceRAM} {
		bounds := chip.Bounds(space)
		cursor := uint64(bounds.Origin)
		for _, r := range regions {
			if r.Space != space {
				continue
			}
			if uint64(r.Origin) > cursor {
				free = append(free, Region{Name: "free", Space: space, Origin: uint32(cursor), Length: uint32(uint64(r.Origin) - cursor)})
			}
			if r.End() > cursor {
				cursor = r.End()
			}
		}
		if cursor < bounds.End() {
			free = append(free, Region{Name: "free", Space: space, Origin: uint32(cursor), Length: uint32(bounds.End() - cursor)})
		}
	}
	return free
}

// FormatSize formats a length the way linker scripts write it.
func FormatSize(n uint32) string {
	switch {
	case n != 0 && n%MiB == 0:
		return fmt.Sprintf("%dM", n/MiB)
	case n != 0 && n%KiB == 0:
		return fmt.Sprintf("%dK", n/KiB)
	}
	return fmt.Sprintf("0x%x", n)
}
