package cecbus

import "pico-cec/cec"

// Receive phases within modeRx.
const (
	rxPhaseStartLow = iota
	rxPhaseStartHigh
	rxPhaseBitLow
	rxPhaseBitHigh
)

type rxState struct {
	phase   uint8
	fall    int64 // falling edge opening the current bit (or start bit)
	bitIdx  uint8 // 0..9 within the current byte
	cur     byte
	eom     bool
	ackHold bool // we are driving the ACK low portion
	buf     [cec.MaxFrameLen]byte
	n       uint8
}

func (r *rxState) reset() {
	r.bitIdx = 0
	r.cur = 0
	r.eom = false
	r.ackHold = false
	r.n = 0
}

// OnEdge is the GPIO edge interrupt entry point. t is the edge timestamp
// in the platform's microsecond timebase; rising is the new line level.
func (c *Controller) OnEdge(t int64, rising bool) {
	c.lastEdge = t

	switch c.mode {
	case modeTx:
		// Our own transitions, or a competitor's; arbitration is caught
		// at the sample points in tx.go.
		return
	case modeIdle:
		if !rising {
			c.mode = modeRx
			c.rx.reset()
			c.rx.phase = rxPhaseStartLow
			c.rx.fall = t
		}
		return
	}

	if c.rx.ackHold {
		// We own the line during the ACK low; the release alarm finishes
		// the byte.
		return
	}

	switch c.rx.phase {
	case rxPhaseStartLow:
		if !rising {
			c.rx.fall = t
			return
		}
		low := t - c.rx.fall
		if low < startLowMinUS || low > startLowMaxUS {
			c.resync()
			return
		}
		c.rx.phase = rxPhaseStartHigh

	case rxPhaseStartHigh:
		if rising {
			return
		}
		period := t - c.rx.fall
		if period < startPeriodMinUS || period > startPeriodMaxUS {
			// Not a valid start; this edge may itself open one.
			c.rx.phase = rxPhaseStartLow
			c.rx.fall = t
			return
		}
		c.rx.reset()
		c.rx.phase = rxPhaseBitLow
		c.rx.fall = t

	case rxPhaseBitLow:
		if !rising {
			c.rx.phase = rxPhaseStartLow
			c.rx.fall = t
			return
		}
		c.rxClassify(t)

	case rxPhaseBitHigh:
		if rising {
			return
		}
		period := t - c.rx.fall
		if period < bitPeriodMinUS || period > bitPeriodMaxUS {
			c.resyncAt(t)
			return
		}
		c.rx.fall = t
		c.rx.phase = rxPhaseBitLow
		if c.rx.bitIdx == 9 {
			c.rxAckOpen(t)
		}
	}
}

// rxClassify handles the rising edge that closes a bit's low period.
func (c *Controller) rxClassify(t int64) {
	low := t - c.rx.fall
	if low < bitLowMinUS || low > bitLowMaxUS {
		c.resync()
		return
	}
	// Line still low at the sample point means '0'.
	bit := byte(1)
	if low >= sampleUS {
		bit = 0
	}

	switch {
	case c.rx.bitIdx < 8:
		c.rx.cur = c.rx.cur<<1 | bit
	case c.rx.bitIdx == 8:
		c.rx.eom = bit == 1
	default:
		// ACK cell of a byte we did not acknowledge: the initiator's own
		// release. The byte is complete.
		c.rxFinishByte()
		return
	}
	c.rx.bitIdx++
	c.rx.phase = rxPhaseBitHigh
}

// rxAckOpen runs at the falling edge opening the ACK cell. A follower
// acknowledges a directly addressed byte by stretching the low period to
// the '0' length; broadcast bytes are left alone (driving low there
// signals rejection).
func (c *Controller) rxAckOpen(t int64) {
	self := uint8(c.self.Load())
	dest := c.rx.cur & 0x0F
	if c.rx.n > 0 {
		dest = c.rx.buf[0] & 0x0F
	}
	if self > 14 || dest != self {
		return
	}
	c.rx.ackHold = true
	c.line.Assert()
	c.ackAlarm.Arm(t + bitLow0US)
}

// OnAckAlarm releases the line after an asserted ACK. Interrupt context.
func (c *Controller) OnAckAlarm(t int64) {
	if c.mode != modeRx || !c.rx.ackHold {
		return
	}
	c.rx.ackHold = false
	c.rxFinishByte()
	// State is settled first: the release edge below must find the next
	// phase already in place.
	c.line.Release()
	c.lastEdge = t
}

func (c *Controller) rxFinishByte() {
	c.rx.buf[c.rx.n] = c.rx.cur
	c.rx.n++
	if c.rx.eom || c.rx.n == cec.MaxFrameLen {
		var f cec.Frame
		f.N = c.rx.n
		copy(f.Data[:], c.rx.buf[:c.rx.n])
		c.mode = modeIdle
		c.deliver(f)
		return
	}
	c.rx.bitIdx = 0
	c.rx.cur = 0
	c.rx.phase = rxPhaseBitHigh
}

// resync discards the frame in progress and waits for the next start bit.
func (c *Controller) resync() {
	c.rxResyncs.Add(1)
	c.mode = modeIdle
}

// resyncAt treats a mistimed falling edge as a possible new start bit.
func (c *Controller) resyncAt(t int64) {
	c.rxResyncs.Add(1)
	c.rx.phase = rxPhaseStartLow
	c.rx.fall = t
}
