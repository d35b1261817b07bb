// Package hid consumes the key-event queue and turns it into USB HID
// boot keyboard reports.
package hid

import "context"

// ReportWriter accepts 8-byte boot keyboard reports: modifier byte,
// reserved byte, six key slots. The platform provides the real USB
// endpoint; tests provide a recorder.
type ReportWriter interface {
	WriteReport(report []byte) error
}

// Service drains the key queue. One key at a time: the engine emits a
// keycode on press and KeyNone on release, and the bus side guarantees
// the pairing.
type Service struct {
	keys <-chan byte
	out  ReportWriter
}

func New(keys <-chan byte, out ReportWriter) *Service {
	return &Service{keys: keys, out: out}
}

// Start launches the consumer loop.
func (s *Service) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case k := <-s.keys:
			s.press(k)
		}
	}
}

func (s *Service) press(k byte) {
	var report [8]byte
	report[2] = k // KeyNone leaves an all-zero (release) report
	_ = s.out.WriteReport(report[:])
}
