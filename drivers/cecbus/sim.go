package cecbus

import "sync"

// SimBus is a virtual CEC line with a virtual microsecond clock. It
// implements Line for a controller under test, provides its two alarms,
// and can play the far end: scheduling remote frames edge by edge and
// acknowledging the controller's own transmissions.
//
// Time only advances through Step/RunUntil, so tests are deterministic
// regardless of host scheduling.
type SimBus struct {
	mu        sync.Mutex
	now       int64
	ctrl      *Controller
	ctrlLow   bool
	remoteLow bool

	events []simEvent
	txAt   int64
	ackAt  int64

	remote simRemote

	// Intervals during which the controller drove the line low, for
	// asserting ACK behavior: pairs of [assert, release] times.
	CtrlAsserts [][2]int64
	assertAt    int64
}

type simEvent struct {
	t  int64
	fn func(t int64)
}

// AckPolicy decides whether the simulated far end drives the line low
// during the ACK cell of byte b (index i) of a frame the controller is
// transmitting. Low means ACK for direct frames and reject for broadcast.
type AckPolicy func(i int, b byte) bool

// AckAll acknowledges every byte.
func AckAll(int, byte) bool { return true }

func NewSimBus() *SimBus {
	return &SimBus{txAt: -1, ackAt: -1, assertAt: -1}
}

// Attach registers the controller the sim delivers edges and alarms to.
func (s *SimBus) Attach(c *Controller) { s.ctrl = c }

// SetAckPolicy installs the far end's ACK behavior.
func (s *SimBus) SetAckPolicy(p AckPolicy) { s.remote.policy = p }

// RemoteBytes returns the bytes the far-end decoder recovered from the
// line, i.e. what the controller actually put on the wire.
func (s *SimBus) RemoteBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.remote.bytes...)
}

// Now returns the current virtual time.
func (s *SimBus) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// ---- Line (called from controller interrupt paths) ----

func (s *SimBus) Assert()  { s.setCtrl(true) }
func (s *SimBus) Release() { s.setCtrl(false) }

func (s *SimBus) Read() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !(s.ctrlLow || s.remoteLow)
}

// ---- Alarms ----

type simAlarm struct {
	s  *SimBus
	at *int64
}

func (a simAlarm) Arm(t int64) {
	a.s.mu.Lock()
	if t <= a.s.now {
		t = a.s.now
	}
	*a.at = t
	a.s.mu.Unlock()
}

func (a simAlarm) Cancel() {
	a.s.mu.Lock()
	*a.at = -1
	a.s.mu.Unlock()
}

func (s *SimBus) TxAlarm() Alarm  { return simAlarm{s, &s.txAt} }
func (s *SimBus) AckAlarm() Alarm { return simAlarm{s, &s.ackAt} }

// ---- Level changes ----

func (s *SimBus) setCtrl(low bool) {
	s.mu.Lock()
	was := s.ctrlLow || s.remoteLow
	s.ctrlLow = low
	if low && s.assertAt < 0 {
		s.assertAt = s.now
	}
	if !low && s.assertAt >= 0 {
		s.CtrlAsserts = append(s.CtrlAsserts, [2]int64{s.assertAt, s.now})
		s.assertAt = -1
	}
	is := s.ctrlLow || s.remoteLow
	t := s.now
	s.mu.Unlock()
	if was != is {
		s.edge(t, !is)
	}
}

func (s *SimBus) setRemote(low bool) {
	s.mu.Lock()
	was := s.ctrlLow || s.remoteLow
	s.remoteLow = low
	is := s.ctrlLow || s.remoteLow
	t := s.now
	s.mu.Unlock()
	if was != is {
		s.edge(t, !is)
	}
}

func (s *SimBus) edge(t int64, rising bool) {
	if s.ctrl != nil {
		s.ctrl.OnEdge(t, rising)
	}
	s.remote.onEdge(s, t, rising)
}

// ---- Scheduling ----

func (s *SimBus) at(t int64, fn func(int64)) {
	s.mu.Lock()
	i := len(s.events)
	for i > 0 && s.events[i-1].t > t {
		i--
	}
	s.events = append(s.events, simEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = simEvent{t, fn}
	s.mu.Unlock()
}

// ScheduleFrame plays a complete remote transmission beginning with the
// start bit at time start, and returns the time its last bit cell ends.
func (s *SimBus) ScheduleFrame(start int64, data []byte) int64 {
	t := start
	s.at(t, func(int64) { s.setRemote(true) })
	s.at(t+startLowUS, func(int64) { s.setRemote(false) })
	t += startPeriodUS
	for i, b := range data {
		for k := 0; k < 8; k++ {
			t = s.scheduleBit(t, b>>(7-k)&1 == 1)
		}
		t = s.scheduleBit(t, i == len(data)-1) // EOM
		t = s.scheduleBit(t, true)             // ACK cell: short low, listen
	}
	return t
}

func (s *SimBus) scheduleBit(t int64, one bool) int64 {
	low := int64(bitLow0US)
	if one {
		low = bitLow1US
	}
	s.at(t, func(int64) { s.setRemote(true) })
	s.at(t+low, func(int64) { s.setRemote(false) })
	return t + bitPeriodUS
}

// ---- Clock ----

// Step fires the earliest pending alarm or event, advancing virtual
// time. Returns false when nothing is pending.
func (s *SimBus) Step() bool {
	s.mu.Lock()
	const none = int64(1) << 62
	t := none
	kind := 0
	if len(s.events) > 0 {
		t, kind = s.events[0].t, 1
	}
	if s.txAt >= 0 && s.txAt < t {
		t, kind = s.txAt, 2
	}
	if s.ackAt >= 0 && s.ackAt < t {
		t, kind = s.ackAt, 3
	}
	if t == none {
		s.mu.Unlock()
		return false
	}
	s.now = t
	var fn func(int64)
	switch kind {
	case 1:
		fn = s.events[0].fn
		s.events = s.events[1:]
	case 2:
		s.txAt = -1
		fn = s.ctrl.OnTxAlarm
	case 3:
		s.ackAt = -1
		fn = s.ctrl.OnAckAlarm
	}
	s.mu.Unlock()
	fn(t)
	return true
}

// RunUntil steps everything due up to and including time t.
func (s *SimBus) RunUntil(t int64) {
	for {
		s.mu.Lock()
		next := int64(1) << 62
		if len(s.events) > 0 {
			next = s.events[0].t
		}
		if s.txAt >= 0 && s.txAt < next {
			next = s.txAt
		}
		if s.ackAt >= 0 && s.ackAt < next {
			next = s.ackAt
		}
		s.mu.Unlock()
		if next > t {
			break
		}
		s.Step()
	}
	s.mu.Lock()
	if s.now < t {
		s.now = t
	}
	s.mu.Unlock()
}

// ---- Far-end decoder / acknowledger ----

// simRemote decodes the composite waveform bit by bit, recording bytes
// (to verify what the controller transmitted) and driving ACK cells per
// policy.
type simRemote struct {
	policy   AckPolicy
	started  bool
	lastFall int64
	bitsDone int
	cur      byte
	eom      bool
	bytes    []byte
}

func (r *simRemote) onEdge(s *SimBus, t int64, rising bool) {
	if !rising {
		r.lastFall = t
		if r.started && r.bitsDone == 9 && r.policy != nil {
			idx := len(r.bytes)
			if r.policy(idx, r.cur) {
				// Stretch the low to the '0' length during the ACK cell.
				s.at(t, func(int64) { s.setRemote(true) })
				s.at(t+bitLow0US, func(int64) { s.setRemote(false) })
			}
		}
		return
	}

	low := t - r.lastFall
	if low >= startLowMinUS && low <= startLowMaxUS {
		r.started = true
		r.bitsDone = 0
		r.cur = 0
		r.eom = false
		r.bytes = nil
		return
	}
	if !r.started {
		return
	}
	bit := byte(1)
	if low >= sampleUS {
		bit = 0
	}
	switch {
	case r.bitsDone < 8:
		r.cur = r.cur<<1 | bit
	case r.bitsDone == 8:
		r.eom = bit == 1
	}
	r.bitsDone++
	if r.bitsDone == bitsPerByte {
		r.bytes = append(r.bytes, r.cur)
		r.bitsDone = 0
		r.cur = 0
		if r.eom {
			r.started = false
		}
	}
}
