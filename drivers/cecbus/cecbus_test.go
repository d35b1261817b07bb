package cecbus

import (
	"bytes"
	"context"
	"testing"
	"time"

	"pico-cec/cec"
	"pico-cec/errcode"
)

func newSim() (*SimBus, *Controller) {
	s := NewSimBus()
	c := New(s, s.TxAlarm(), s.AckAlarm())
	s.Attach(c)
	return s, c
}

// runSend pumps the sim while a Send runs in the background.
func runSend(t *testing.T, s *SimBus, c *Controller, f cec.Frame) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- c.Send(context.Background(), f) }()
	deadline := time.Now().Add(5 * time.Second)
	// Hold virtual time until Send has armed its first alarm, so events
	// the test scheduled cannot run ahead of the attempt.
	for armed := false; !armed && time.Now().Before(deadline); {
		s.mu.Lock()
		armed = s.txAt >= 0
		s.mu.Unlock()
		if !armed {
			time.Sleep(20 * time.Microsecond)
		}
	}
	for {
		select {
		case err := <-errc:
			return err
		default:
		}
		if !s.Step() {
			time.Sleep(20 * time.Microsecond)
		}
		if time.Now().After(deadline) {
			t.Fatal("send did not complete")
		}
	}
}

func recvNow(t *testing.T, c *Controller) cec.Frame {
	t.Helper()
	select {
	case f := <-c.rxq:
		return f
	default:
		t.Fatal("no frame delivered")
	}
	return cec.Frame{}
}

// startAsserts counts controller low periods of start-bit length, i.e.
// transmission attempts.
func startAsserts(s *SimBus) int {
	n := 0
	for _, iv := range s.CtrlAsserts {
		d := iv[1] - iv[0]
		if d > startLowUS-200 && d < startLowUS+200 {
			n++
		}
	}
	return n
}

func TestReceiveDirectFrameAndAck(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(0) // play the TV side for a 4->0 frame

	end := s.ScheduleFrame(100000, []byte{0x40, 0x8F})
	s.RunUntil(end + 10000)

	f := recvNow(t, c)
	if !bytes.Equal(f.Bytes(), []byte{0x40, 0x8F}) {
		t.Fatalf("frame = % X", f.Bytes())
	}
	if f.Initiator() != 4 || f.Destination() != 0 {
		t.Fatalf("header decode: %d->%d", f.Initiator(), f.Destination())
	}
	// One ACK low per byte, stretched to the '0' length.
	if len(s.CtrlAsserts) != 2 {
		t.Fatalf("expected 2 ACK assertions, got %d: %v", len(s.CtrlAsserts), s.CtrlAsserts)
	}
	for _, iv := range s.CtrlAsserts {
		if d := iv[1] - iv[0]; d < bitLow0US-100 || d > bitLow0US+100 {
			t.Fatalf("ACK low duration %d", d)
		}
	}
}

func TestReceiveBroadcastWithoutAck(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)

	end := s.ScheduleFrame(100000, []byte{0x0F, 0x36})
	s.RunUntil(end + 10000)

	f := recvNow(t, c)
	if !f.IsBroadcast() || f.Opcode() != cec.OpStandby {
		t.Fatalf("frame = % X", f.Bytes())
	}
	if len(s.CtrlAsserts) != 0 {
		t.Fatalf("broadcast must not be ACKed low: %v", s.CtrlAsserts)
	}
}

func TestReceiveIgnoresOtherDestination(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)

	end := s.ScheduleFrame(100000, []byte{0x05, 0x36})
	s.RunUntil(end + 10000)

	select {
	case f := <-c.rxq:
		t.Fatalf("unexpected delivery: % X", f.Bytes())
	default:
	}
	if len(s.CtrlAsserts) != 0 {
		t.Fatalf("must not ACK another node's frame")
	}
}

func TestReceivePollingFrame(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)

	end := s.ScheduleFrame(100000, []byte{0x44})
	s.RunUntil(end + 10000)

	f := recvNow(t, c)
	if !f.IsPolling() || f.N != 1 {
		t.Fatalf("polling frame = % X", f.Bytes())
	}
	if len(s.CtrlAsserts) != 1 {
		t.Fatalf("poll to our address must be ACKed")
	}
}

func TestReceiveMaxLengthFrame(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)

	data := make([]byte, 16)
	data[0] = 0x04
	data[1] = cec.OpVendorCommandWithID
	for i := 2; i < 16; i++ {
		data[i] = byte(i)
	}
	end := s.ScheduleFrame(100000, data)
	s.RunUntil(end + 10000)

	f := recvNow(t, c)
	if !bytes.Equal(f.Bytes(), data) {
		t.Fatalf("frame = % X", f.Bytes())
	}
}

func TestResyncAfterMalformedTiming(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)

	// A runt low pulse, far outside any start bit window.
	s.at(100000, func(int64) { s.setRemote(true) })
	s.at(100300, func(int64) { s.setRemote(false) })
	// Then a clean frame.
	end := s.ScheduleFrame(150000, []byte{0x04, 0x36})
	s.RunUntil(end + 10000)

	f := recvNow(t, c)
	if !bytes.Equal(f.Bytes(), []byte{0x04, 0x36}) {
		t.Fatalf("frame = % X", f.Bytes())
	}
	if c.RxResyncs() == 0 {
		t.Fatal("malformed pulse must count a resync")
	}
}

func TestSendAckedAndWaveform(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)
	s.SetAckPolicy(AckAll)

	if err := runSend(t, s, c, cec.Msg(4, 0, cec.OpImageViewOn)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := s.RemoteBytes(); !bytes.Equal(got, []byte{0x40, 0x04}) {
		t.Fatalf("wire bytes = % X", got)
	}
	// First attempt must respect the 7-bit-period signal-free time.
	if len(s.CtrlAsserts) == 0 || s.CtrlAsserts[0][0] < freeFirstUS {
		t.Fatalf("transmission started too early: %v", s.CtrlAsserts)
	}
}

func TestSendNackRetriesFiveTimes(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)
	// No acker on the bus.

	err := runSend(t, s, c, cec.Msg(4, 0, cec.OpImageViewOn))
	if errcode.Of(err) != errcode.Nack {
		t.Fatalf("expected nack, got %v", err)
	}
	if n := startAsserts(s); n != sendAttempts {
		t.Fatalf("expected %d attempts, got %d", sendAttempts, n)
	}
}

func TestSendPollUnansweredMeansFree(t *testing.T) {
	s, c := newSim()

	err := runSend(t, s, c, cec.Polling(4))
	if errcode.Of(err) != errcode.Nack {
		t.Fatalf("unanswered poll must report nack, got %v", err)
	}
}

func TestBroadcastAckPolarity(t *testing.T) {
	// Nobody pulling low: broadcast accepted.
	s, c := newSim()
	c.SetLogicalAddress(4)
	if err := runSend(t, s, c, cec.Msg(4, cec.AddrBroadcast, cec.OpActiveSource, 0x10, 0x00)); err != nil {
		t.Fatalf("clean broadcast: %v", err)
	}

	// A follower driving low during ACK rejects the broadcast.
	s2, c2 := newSim()
	c2.SetLogicalAddress(4)
	s2.SetAckPolicy(AckAll)
	err := runSend(t, s2, c2, cec.Msg(4, cec.AddrBroadcast, cec.OpActiveSource, 0x10, 0x00))
	if errcode.Of(err) != errcode.Nack {
		t.Fatalf("rejected broadcast must nack, got %v", err)
	}
}

func TestArbitrationLossTurnsReceiver(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)

	// The controller's first attempt starts exactly after the signal-free
	// wait. A competing initiator (the TV, address 0) starts concurrently
	// with a frame addressed to us; its low header nibble wins.
	s.ScheduleFrame(freeFirstUS+1, []byte{0x04, 0x44, 0x01})

	err := runSend(t, s, c, cec.Msg(4, 0, cec.OpGivePhysicalAddress))
	if errcode.Of(err) != errcode.ArbitrationLost {
		t.Fatalf("expected arbitration_lost, got %v", err)
	}

	// Pump the remainder of the winning frame through.
	s.RunUntil(s.Now() + 100000)
	f := recvNow(t, c)
	if !bytes.Equal(f.Bytes(), []byte{0x04, 0x44, 0x01}) {
		t.Fatalf("adopted frame = % X", f.Bytes())
	}
}

func TestOwnTransmissionShortIdle(t *testing.T) {
	s, c := newSim()
	c.SetLogicalAddress(4)
	s.SetAckPolicy(AckAll)

	if err := runSend(t, s, c, cec.Msg(4, 0, cec.OpImageViewOn)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	firstEnd := s.Now()
	// The second frame is a broadcast: nobody pulls its ACK cells low.
	s.SetAckPolicy(nil)
	if err := runSend(t, s, c, cec.Msg(4, cec.AddrBroadcast, cec.OpActiveSource, 0x10, 0x00)); err != nil {
		t.Fatalf("second send: %v", err)
	}

	// The second frame's start bit begins after only 3 bit periods.
	var secondStart int64 = -1
	for _, iv := range s.CtrlAsserts {
		if iv[0] > firstEnd-bitPeriodUS && iv[1]-iv[0] > startLowUS-200 {
			secondStart = iv[0]
			break
		}
	}
	if secondStart < 0 {
		t.Fatal("second start bit not found")
	}
	gap := secondStart - firstEnd
	if gap > freeFirstUS {
		t.Fatalf("own-transmission idle wait too long: %d", gap)
	}
}
