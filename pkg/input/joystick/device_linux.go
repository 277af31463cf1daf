//go:build linux

package joystick

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

type device struct {
	file        *os.File
	name        string
	axisCount   uint8
	buttonCount uint8
}

// Open opens /dev/input/js<index>.
func Open(index int) (Device, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/input/js%d", index), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	d := &device{file: f}
	errno := d.ioctl(iocGAXES, unsafe.Pointer(&d.axisCount))
	if errno == 0 {
		errno = d.ioctl(iocGBUTTONS, unsafe.Pointer(&d.buttonCount))
	}
	if errno == 0 {
		var buf [256]byte
		if errno = d.ioctl(iocGNAME, unsafe.Pointer(&buf)); errno == 0 {
			if pos := bytes.IndexByte(buf[:], 0); pos >= 0 {
				d.name = string(buf[:pos])
			} else {
				d.name = string(buf[:])
			}
		}
	}
	if errno != 0 {
		d.file.Close()
		return nil, errno
	}
	return d, nil
}

func (d *device) Close() error     { return d.file.Close() }
func (d *device) Name() string     { return d.name }
func (d *device) AxisCount() int   { return int(d.axisCount) }
func (d *device) ButtonCount() int { return int(d.buttonCount) }

func (d *device) ReadEvent() (Event, error) {
	var buf [8]byte
	if _, err := d.file.Read(buf[:]); err != nil {
		return nil, err
	}
	var ev rawEvent
	if err := binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, &ev); err != nil {
		return nil, err
	}
	switch ev.Type &^ evINIT {
	case evBTN:
		return &buttonEvent{ev}, nil
	case evAXIS:
		return &axisEvent{ev}, nil
	}
	return &ev, nil
}

// rawEvent is struct js_event.
type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

func (e *rawEvent) IsInit() bool { return e.Type&evINIT != 0 }
func (e *rawEvent) Index() int   { return int(e.Number) }

type axisEvent struct{ rawEvent }

func (e *axisEvent) Value() int { return int(e.rawEvent.Value) }

type buttonEvent struct{ rawEvent }

func (e *buttonEvent) Pressed() bool { return e.rawEvent.Value != 0 }

const (
	iocGAXES    uint = 0x80016a11
	iocGBUTTONS uint = 0x80016a12
	iocGNAME    uint = 0x80ff6a13

	evBTN  uint8 = 0x01
	evAXIS uint8 = 0x02
	evINIT uint8 = 0x80
)

func (d *device) ioctl(req uint, ptr unsafe.Pointer) syscall.Errno {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, d.file.Fd(), uintptr(req), uintptr(ptr))
	return errno
}
