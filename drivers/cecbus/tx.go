package cecbus

import (
	"sync/atomic"

	"pico-cec/cec"
)

// Transmit phases, paced by the tx alarm.
const (
	txPhaseNone = iota
	txPhaseWait
	txPhaseStartLow
	txPhaseStartHigh
	txPhaseBitLow
	txPhaseBitSample
	txPhaseBitNext
	txPhaseAckLow
	txPhaseAckSample
	txPhaseAckEnd
)

type txState struct {
	phase     uint8
	frame     [16]byte
	n         uint8
	byteIdx   uint8
	bitIdx    uint8 // 0..9 within the current byte
	bitStart  int64
	curBit    byte
	freeNeed  int64
	lastEnd   int64 // when our previous attempt left the bus
	cancelled atomic.Bool
}

func (t *txState) begin(f cec.Frame, retry bool) {
	copy(t.frame[:], f.Bytes())
	t.n = f.N
	t.byteIdx = 0
	t.bitIdx = 0
	t.cancelled.Store(false)
	t.freeNeed = freeFirstUS
	if retry {
		t.freeNeed = freeRetryUS
	}
	t.phase = txPhaseWait
}

// OnTxAlarm is the transmit timer interrupt entry point.
func (c *Controller) OnTxAlarm(t int64) {
	if c.tx.cancelled.Load() {
		c.txAbandon()
		return
	}

	switch c.tx.phase {
	case txPhaseWait:
		c.txWait(t)

	case txPhaseStartLow:
		c.tx.phase = txPhaseStartHigh
		c.txAlarm.Arm(c.tx.bitStart + startPeriodUS)
		c.line.Release()
		c.lastEdge = t

	case txPhaseStartHigh:
		c.txOpenBit(t)

	case txPhaseBitLow:
		// End of the driven low portion.
		if c.tx.curBit == 1 {
			c.tx.phase = txPhaseBitSample
			c.txAlarm.Arm(c.tx.bitStart + sampleUS)
		} else {
			c.tx.phase = txPhaseBitNext
			c.txAlarm.Arm(c.tx.bitStart + bitPeriodUS)
		}
		c.line.Release()
		c.lastEdge = t

	case txPhaseBitSample:
		// We released at the '1' low time; a low line now means another
		// initiator is driving a '0' and has won arbitration.
		if !c.line.Read() {
			c.txLoseArbitration(t)
			return
		}
		c.tx.phase = txPhaseBitNext
		c.txAlarm.Arm(c.tx.bitStart + bitPeriodUS)

	case txPhaseBitNext:
		c.tx.bitIdx++
		c.txOpenBit(t)

	case txPhaseAckLow:
		c.tx.phase = txPhaseAckSample
		c.txAlarm.Arm(c.tx.bitStart + sampleUS)
		c.line.Release()
		c.lastEdge = t

	case txPhaseAckSample:
		c.txSampleAck(t)

	case txPhaseAckEnd:
		c.tx.byteIdx++
		if c.tx.byteIdx == c.tx.n {
			c.finishAttempt(t, txAcked)
			return
		}
		c.tx.bitIdx = 0
		c.txOpenBit(t)
	}
}

// txWait initiates once the bus has been quiet for the required
// signal-free time, re-arming itself otherwise.
func (c *Controller) txWait(t int64) {
	need := c.tx.freeNeed
	// Nothing on the bus since our own frame ended: the short own-time
	// window applies.
	if need == freeFirstUS && c.tx.lastEnd != 0 && c.tx.lastEnd >= c.lastEdge {
		need = freeOwnUS
	}

	quietSince := c.lastEdge
	if c.tx.lastEnd > quietSince {
		quietSince = c.tx.lastEnd
	}
	if c.mode == modeIdle && c.line.Read() && t-quietSince >= need {
		c.mode = modeTx
		c.tx.bitStart = t
		c.tx.phase = txPhaseStartLow
		c.txAlarm.Arm(t + startLowUS)
		c.line.Assert()
		c.lastEdge = t
		return
	}
	next := quietSince + need
	if next <= t {
		next = t + bitPeriodUS
	}
	c.txAlarm.Arm(next)
}

// txOpenBit drives the falling edge that opens the next bit cell.
func (c *Controller) txOpenBit(t int64) {
	c.tx.bitStart = t
	if c.tx.bitIdx == 9 {
		// ACK cell: drive the short low, then listen.
		c.tx.phase = txPhaseAckLow
		c.txAlarm.Arm(t + bitLow1US)
		c.line.Assert()
		c.lastEdge = t
		return
	}

	var bit byte
	if c.tx.bitIdx == 8 {
		// EOM
		if c.tx.byteIdx == c.tx.n-1 {
			bit = 1
		}
	} else {
		bit = c.tx.frame[c.tx.byteIdx] >> (7 - c.tx.bitIdx) & 1
	}
	c.tx.curBit = bit
	low := int64(bitLow0US)
	if bit == 1 {
		low = bitLow1US
	}
	c.tx.phase = txPhaseBitLow
	c.txAlarm.Arm(t + low)
	c.line.Assert()
	c.lastEdge = t
}

// txSampleAck reads the ACK cell at the sample point. For a directly
// addressed frame a low line is the follower's ACK; for broadcast the
// polarity inverts and a low line is a rejection.
func (c *Controller) txSampleAck(t int64) {
	low := !c.line.Read()
	broadcast := c.tx.frame[0]&0x0F == 0x0F
	acked := low != broadcast
	if !acked {
		c.finishAttempt(t, txNacked)
		return
	}
	c.tx.phase = txPhaseAckEnd
	c.txAlarm.Arm(c.tx.bitStart + bitPeriodUS)
}

// txLoseArbitration turns the controller into a receiver for the frame
// that beat us. Every bit sent so far matched the winner's; the bit we
// just lost on was their '0'.
func (c *Controller) txLoseArbitration(t int64) {
	tx := &c.tx
	c.rx.reset()
	c.rx.n = tx.byteIdx
	copy(c.rx.buf[:], tx.frame[:tx.byteIdx])

	k := tx.bitIdx
	if k >= 8 {
		// Lost on the EOM bit: the data byte matched in full.
		c.rx.cur = tx.frame[tx.byteIdx]
	} else {
		// Bits already on the wire; the lost bit itself is classified at
		// the coming rising edge.
		c.rx.cur = tx.frame[tx.byteIdx] >> (8 - k)
	}
	c.rx.bitIdx = k
	c.rx.fall = tx.bitStart
	c.rx.phase = rxPhaseBitLow

	c.mode = modeRx
	tx.phase = txPhaseNone
	if !tx.cancelled.Load() {
		select {
		case c.txDone <- txArbLost:
		default:
		}
	}
}

// txAbandon quietly releases the bus after a cancelled attempt.
func (c *Controller) txAbandon() {
	if c.mode == modeTx {
		c.mode = modeIdle
	}
	c.tx.phase = txPhaseNone
	c.line.Release()
}
