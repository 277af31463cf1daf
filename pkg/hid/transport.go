package hid

import (
	"errors"
	"io"
	"sync"
)

// ErrNotReady indicates the host connection can't take a report now.
var ErrNotReady = errors.New("hid transport not ready")

// Transport delivers reports to the host (USB or BLE stack).
type Transport interface {
	SendReport(Report) error
}

// TransportFunc is the func form of Transport.
type TransportFunc func(Report) error

// SendReport implements Transport.
func (f TransportFunc) SendReport(r Report) error {
	return f(r)
}

// WriterTransport writes reports to a HID gadget device like /dev/hidg0.
type WriterTransport struct {
	Writer io.Writer
	// WithID prefixes each report with its ID, for composite descriptors.
	WithID bool
}

// SendReport implements Transport.
func (t *WriterTransport) SendReport(r Report) error {
	if t.Writer == nil {
		return ErrNotReady
	}
	data := r.Data
	if t.WithID {
		data = append([]byte{byte(r.ID)}, r.Data...)
	}
	_, err := t.Writer.Write(data)
	return err
}

// RecorderTransport records reports; used by the simulator and tests.
type RecorderTransport struct {
	reports  []Report
	notReady bool
	lock     sync.Mutex
}

// SetReady makes SendReport fail with ErrNotReady while not ready.
func (t *RecorderTransport) SetReady(ready bool) {
	t.lock.Lock()
	t.notReady = !ready
	t.lock.Unlock()
}

// SendReport implements Transport.
func (t *RecorderTransport) SendReport(r Report) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.notReady {
		return ErrNotReady
	}
	t.reports = append(t.reports, Report{ID: r.ID, Data: append([]byte(nil), r.Data...)})
	return nil
}

// Reports returns and clears recorded reports.
func (t *RecorderTransport) Reports() []Report {
	t.lock.Lock()
	defer t.lock.Unlock()
	reports := t.reports
	t.reports = nil
	return reports
}
