// Package trace renders bus traffic as text lines, the on-device view
// of what CEC is doing. Formatting avoids fmt so the MCU build stays
// lean; lines are buffered in a small ring and the oldest are dropped
// when the sink cannot keep up.
package trace

import (
	"context"
	"io"

	"pico-cec/bus"
	"pico-cec/cec"
	"pico-cec/x/conv"
)

// ringSize bounds buffered lines, matching the small in-RAM log the
// device carries.
const ringSize = 64

type Service struct {
	out   io.Writer
	lines chan []byte
}

func New(out io.Writer) *Service {
	return &Service{out: out, lines: make(chan []byte, ringSize)}
}

// Start subscribes to the frame topics and begins draining to the sink.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	rxSub := conn.Subscribe(bus.TopicFrameRx())
	txSub := conn.Subscribe(bus.TopicFrameTx())
	stSub := conn.Subscribe(bus.TopicEngineState())
	go s.collect(ctx, conn, rxSub, txSub, stSub)
	go s.drain(ctx)
}

func (s *Service) collect(ctx context.Context, conn *bus.Connection, rxSub, txSub, stSub *bus.Subscription) {
	defer conn.Unsubscribe(rxSub)
	defer conn.Unsubscribe(txSub)
	defer conn.Unsubscribe(stSub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-rxSub.Channel():
			if f, ok := msg.Payload.(cec.Frame); ok {
				s.submit(formatFrame("rx ", f))
			}
		case msg := <-txSub.Channel():
			if f, ok := msg.Payload.(cec.Frame); ok {
				s.submit(formatFrame("tx ", f))
			}
		case msg := <-stSub.Channel():
			if st, ok := msg.Payload.(string); ok {
				s.submit(append(append([]byte("state "), st...), '\n'))
			}
		}
	}
}

// submit never blocks; the ring sheds its oldest line under pressure.
func (s *Service) submit(line []byte) {
	select {
	case s.lines <- line:
	default:
		select {
		case <-s.lines:
		default:
		}
		select {
		case s.lines <- line:
		default:
		}
	}
}

func (s *Service) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.lines:
			_, _ = s.out.Write(line)
		}
	}
}

func formatFrame(dir string, f cec.Frame) []byte {
	// "rx 40 86 10 00 paddr=1000\n"
	line := make([]byte, 0, 3+3*int(f.N)+12)
	line = append(line, dir...)
	for i, b := range f.Bytes() {
		if i > 0 {
			line = append(line, ' ')
		}
		line = conv.ByteHex(line, b)
	}
	if pa, ok := routedAddr(f); ok {
		line = append(line, " paddr="...)
		line = conv.U16Hex(line, pa)
	}
	return append(line, '\n')
}

// routedAddr extracts the physical address carried by the routing
// opcodes, so trace lines read without a decoder ring.
func routedAddr(f cec.Frame) (uint16, bool) {
	if f.IsPolling() {
		return 0, false
	}
	ops := f.Operands()
	switch f.Opcode() {
	case cec.OpActiveSource, cec.OpSetStreamPath, cec.OpReportPhysicalAddress:
		if len(ops) >= 2 {
			return cec.Phys(ops[0], ops[1]), true
		}
	case cec.OpRoutingChange:
		if len(ops) >= 4 {
			return cec.Phys(ops[2], ops[3]), true
		}
	}
	return 0, false
}
