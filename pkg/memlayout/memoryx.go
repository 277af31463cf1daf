package memlayout

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// WriteMemoryX renders the MEMORY block of a memory.x linker script.
// Reserved regions are written as comments.
func (l Layout) WriteMemoryX(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("MEMORY\n{\n")
	for _, r := range l.Reserved {
		fmt.Fprintf(&sb, "  /* %s: 0x%08x - 0x%08x */\n", r.Name, r.Origin, r.End())
	}
	for _, r := range []Region{l.Flash, l.RAM} {
		fmt.Fprintf(&sb, "  %s : ORIGIN = 0x%08x, LENGTH = %s\n", strings.ToUpper(r.Name), r.Origin, FormatSize(r.Length))
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

var memoryLine = regexp.MustCompile(`^\s*(\w+)\s*(?:\([^)]*\))?\s*:\s*ORIGIN\s*=\s*([0-9A-Fa-fx]+)\s*,\s*LENGTH\s*=\s*([0-9A-Fa-fx]+[KM]?)\s*$`)

// ParseMemoryX reads FLASH and RAM regions from a memory.x linker
// script. Reserved regions are not recoverable from the script and are
// taken from base.
func ParseMemoryX(r io.Reader, base Layout) (Layout, error) {
	l := Layout{Reserved: base.Reserved}
	var found int
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if n := strings.Index(line, "/*"); n >= 0 {
			line = line[:n]
		}
		m := memoryLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		origin, err := parseNumber(m[2])
		if err != nil {
			return l, fmt.Errorf("line %d: origin: %w", lineNo, err)
		}
		length, err := parseNumber(m[3])
		if err != nil {
			return l, fmt.Errorf("line %d: length: %w", lineNo, err)
		}
		switch strings.ToUpper(m[1]) {
		case "FLASH":
			l.Flash = Region{Name: "FLASH", Space: SpaceFlash, Origin: origin, Length: length}
			found |= 1
		case "RAM":
			l.RAM = Region{Name: "RAM", Space: SpaceRAM, Origin: origin, Length: length}
			found |= 2
		}
	}
	if err := scanner.Err(); err != nil {
		return l, err
	}
	if found != 3 {
		return l, fmt.Errorf("memory.x must define both FLASH and RAM")
	}
	return l, nil
}

func parseNumber(s string) (uint32, error) {
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = KiB, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = MiB, strings.TrimSuffix(s, "M")
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	v *= mult
	if v > 0xffffffff {
		return 0, fmt.Errorf("%s overflows 32 bits", s)
	}
	return uint32(v), nil
}
