//go:build !linux

package joystick

// Open fails on platforms without the Linux joystick API.
func Open(index int) (Device, error) {
	return nil, ErrUnsupported
}
