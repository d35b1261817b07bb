package trace

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pico-cec/bus"
	"pico-cec/cec"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitContains(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		if strings.Contains(b.String(), want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("output %q never contained %q", b.String(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFrameLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(8)
	out := &syncBuffer{}
	New(out).Start(ctx, b.NewConnection("trace"))

	conn := b.NewConnection("t")
	conn.Emit(bus.TopicFrameRx(), cec.Msg(0, 4, cec.OpGiveDevicePowerStatus))
	waitContains(t, out, "rx 04 8F\n")

	// Routing opcodes get their physical address spelled out.
	conn.Emit(bus.TopicFrameRx(), cec.Msg(4, 0, cec.OpSetStreamPath, 0x10, 0x00))
	waitContains(t, out, "rx 40 86 10 00 paddr=1000\n")

	conn.Emit(bus.TopicFrameTx(), cec.Msg(4, cec.AddrBroadcast, cec.OpActiveSource, 0x10, 0x00))
	waitContains(t, out, "tx 4F 82 10 00 paddr=1000\n")
}

func TestStateLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(8)
	out := &syncBuffer{}
	New(out).Start(ctx, b.NewConnection("trace"))

	b.NewConnection("t").Retain(bus.TopicEngineState(), "ready")
	waitContains(t, out, "state ready\n")
}
