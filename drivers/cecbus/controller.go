// Package cecbus drives the single-wire CEC line: bit-level timing on an
// open-drain GPIO, frame assembly, arbitration and acknowledge handling.
//
// The receive path is fed by edge interrupts (OnEdge), the transmit path
// by a single-shot alarm (OnTxAlarm), and a second single-shot alarm
// (OnAckAlarm) ends the receive-side ACK assertion. Those three entry
// points run in interrupt context: they never allocate, never lock and
// never block. The platform must serialize them. Task-side code talks to
// the controller only through Send and Recv.
package cecbus

import (
	"context"
	"sync/atomic"
	"time"

	"pico-cec/cec"
	"pico-cec/errcode"
)

// Line is the physical CEC wire. Open-drain: Assert drives it low,
// Release lets the external pull-up raise it. Read reports the level
// (true = high).
type Line interface {
	Assert()
	Release()
	Read() bool
}

// Alarm is a single-shot microsecond timer. Arm replaces any pending
// alarm; arming a time in the past fires as soon as possible.
type Alarm interface {
	Arm(at int64)
	Cancel()
}

// Controller modes. Owned by interrupt context.
const (
	modeIdle = iota
	modeRx
	modeTx
)

// selfUnset means no logical address claimed yet: nothing is ACKed and
// only broadcast frames are delivered.
const selfUnset = 0xFF

// attemptTimeout bounds one transmission attempt in wall-clock time. It
// is a backstop only; bit timers pace the real work.
const attemptTimeout = time.Second

// Transmit attempt results, interrupt side to task side.
const (
	txAcked = iota
	txNacked
	txArbLost
)

type Controller struct {
	line     Line
	txAlarm  Alarm
	ackAlarm Alarm

	self atomic.Uint32

	// Interrupt-owned state.
	mode     uint8
	lastEdge int64 // time of the most recent edge, any direction
	rx       rxState
	tx       txState

	rxq    chan cec.Frame
	txDone chan uint8

	rxDrops   atomic.Uint32
	rxResyncs atomic.Uint32
}

// New wires a controller to its line and two alarms. txAlarm paces
// transmission, ackAlarm times the receive-side ACK assertion; they can
// be pending simultaneously.
func New(line Line, txAlarm, ackAlarm Alarm) *Controller {
	c := &Controller{
		line:     line,
		txAlarm:  txAlarm,
		ackAlarm: ackAlarm,
		rxq:      make(chan cec.Frame, 4),
		txDone:   make(chan uint8, 1),
	}
	c.self.Store(selfUnset)
	line.Release()
	return c
}

// SetLogicalAddress installs the address the receive path ACKs and
// accepts direct frames for. selfUnset (or any value > 14) disables both.
func (c *Controller) SetLogicalAddress(a uint8) {
	c.self.Store(uint32(a))
}

// LogicalAddress returns the address the controller currently answers to.
func (c *Controller) LogicalAddress() uint8 {
	return uint8(c.self.Load())
}

// RxDrops counts frames discarded because the receive queue was full.
func (c *Controller) RxDrops() uint32 { return c.rxDrops.Load() }

// RxResyncs counts malformed bit timings that forced a resynchronize.
func (c *Controller) RxResyncs() uint32 { return c.rxResyncs.Load() }

// Recv blocks until a frame addressed to this node or to broadcast has
// been received in full.
func (c *Controller) Recv(ctx context.Context) (cec.Frame, error) {
	select {
	case f := <-c.rxq:
		return f, nil
	case <-ctx.Done():
		return cec.Frame{}, errcode.Cancelled
	}
}

// Send transmits a frame, waiting for bus idle and retrying a NACKed
// frame up to 5 attempts. Arbitration loss is returned to the caller
// without retry; the controller has already turned receiver for the
// winning frame.
func (c *Controller) Send(ctx context.Context, f cec.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	for attempt := 0; attempt < sendAttempts; attempt++ {
		res, err := c.transmit(ctx, f, attempt > 0)
		if err != nil {
			return err
		}
		switch res {
		case txAcked:
			return nil
		case txArbLost:
			return errcode.ArbitrationLost
		}
		// NACK: next round with the shorter retry idle time.
	}
	return errcode.Nack
}

// transmit runs one attempt and waits for its result.
func (c *Controller) transmit(ctx context.Context, f cec.Frame, retry bool) (uint8, error) {
	// Drain a stale result from a timed-out earlier attempt.
	select {
	case <-c.txDone:
	default:
	}

	c.tx.begin(f, retry)
	// The wait phase re-arms itself off lastEdge until the line has been
	// quiet long enough, so an alarm in the past is fine here.
	c.txAlarm.Arm(0)

	t := time.NewTimer(attemptTimeout)
	defer t.Stop()
	select {
	case res := <-c.txDone:
		return res, nil
	case <-ctx.Done():
		c.cancelTx()
		return 0, errcode.Cancelled
	case <-t.C:
		c.cancelTx()
		return 0, errcode.BusTimeout
	}
}

// cancelTx only flags the attempt: the next alarm step releases the
// line and winds down. Disarming here could strand the line low
// mid-bit.
func (c *Controller) cancelTx() {
	c.tx.cancelled.Store(true)
}

// deliver hands a completed frame to the task side. Interrupt context:
// non-blocking, drops counted.
func (c *Controller) deliver(f cec.Frame) {
	self := uint8(c.self.Load())
	dest := f.Destination()
	if dest != cec.AddrBroadcast && dest != self {
		return
	}
	select {
	case c.rxq <- f:
	default:
		c.rxDrops.Add(1)
	}
}

// finishAttempt ends the current transmission attempt. Interrupt context.
func (c *Controller) finishAttempt(t int64, res uint8) {
	c.mode = modeIdle
	c.tx.phase = txPhaseNone
	c.tx.lastEnd = t
	if c.tx.cancelled.Load() {
		return
	}
	select {
	case c.txDone <- res:
	default:
	}
}
