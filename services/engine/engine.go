// Package engine is the CEC protocol task: it claims the device's
// addresses, dispatches every received frame per the mandatory CEC
// v1.3a message set, and turns remote keypresses into HID key events.
package engine

import (
	"context"
	"time"

	"pico-cec/bus"
	"pico-cec/cec"
	"pico-cec/errcode"
	"pico-cec/services/config"
	"pico-cec/services/hid"
	"pico-cec/services/indicator"
)

// Codec is the frame-level view of the bus driver.
type Codec interface {
	Send(ctx context.Context, f cec.Frame) error
	Recv(ctx context.Context) (cec.Frame, error)
	SetLogicalAddress(a uint8)
}

// EDID yields the physical address of the downstream display, or 0x0000
// when it cannot.
type EDID interface {
	PhysicalAddress() uint16
}

// keyTimeout bounds the key queue send; a stuck HID consumer drops
// keys rather than stalling the bus.
const keyTimeout = 10 * time.Millisecond

// replyAttempts bounds re-sends of a direct reply that lost arbitration.
const replyAttempts = 5

type Engine struct {
	codec Codec
	edid  EDID
	conn  *bus.Connection
	keys  chan<- byte

	cfg *config.Config

	self     uint8
	paddr    uint16
	active   uint16
	audio    bool
	menu     bool
	noActive uint8
}

func New(codec Codec, edid EDID, conn *bus.Connection, keys chan<- byte) *Engine {
	return &Engine{
		codec: codec,
		edid:  edid,
		conn:  conn,
		keys:  keys,
		self:  cec.AddrUnregistered,
	}
}

// LogicalAddress returns the claimed address, for status reporting.
func (e *Engine) LogicalAddress() uint8 { return e.self }

// PhysicalAddress returns the resolved physical address.
func (e *Engine) PhysicalAddress() uint16 { return e.paddr }

// Run executes the startup sequence, then the receive-dispatch loop.
// It waits for the retained configuration and returns only on context
// cancellation or when the configuration message is not a *config.Config.
func (e *Engine) Run(ctx context.Context) error {
	cfgSub := e.conn.Subscribe(bus.TopicConfig())
	select {
	case msg := <-cfgSub.Channel():
		cfg, ok := msg.Payload.(*config.Config)
		if !ok {
			e.conn.Unsubscribe(cfgSub)
			return errcode.ConfigInvalid
		}
		e.cfg = cfg
	case <-ctx.Done():
		e.conn.Unsubscribe(cfgSub)
		return errcode.Cancelled
	}
	e.conn.Unsubscribe(cfgSub)

	e.conn.Retain(bus.TopicEngineState(), "starting")

	// Let the downstream EDID settle before the first DDC read.
	if d := time.Duration(e.cfg.EDIDDelayMS) * time.Millisecond; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return errcode.Cancelled
		}
	}

	if err := e.readdress(ctx); err != nil {
		return err
	}
	e.conn.Retain(bus.TopicEngineState(), "ready")
	e.indicate(indicator.StateIdle)

	for {
		f, err := e.codec.Recv(ctx)
		if err != nil {
			return err
		}
		e.conn.Emit(bus.TopicFrameRx(), f)
		e.dispatch(ctx, f)
	}
}

func (e *Engine) indicate(s indicator.State) {
	e.conn.Retain(bus.TopicIndicator(), s)
}

// send transmits a frame, re-sending a direct reply that lost
// arbitration. Broadcasts are never re-fought; NACK retries live in the
// driver.
func (e *Engine) send(ctx context.Context, f cec.Frame) {
	e.conn.Emit(bus.TopicFrameTx(), f)
	for i := 0; i < replyAttempts; i++ {
		err := e.codec.Send(ctx, f)
		if errcode.Of(err) != errcode.ArbitrationLost || f.IsBroadcast() {
			return
		}
	}
}

func (e *Engine) pushKey(k byte) {
	t := time.NewTimer(keyTimeout)
	defer t.Stop()
	select {
	case e.keys <- k:
	case <-t.C:
	}
}

// selected reports whether this node is the active source.
func (e *Engine) selected() bool {
	return e.paddr != cec.PhysUnknown && e.active == e.paddr
}

// ---- Outbound messages ----

func (e *Engine) featureAbort(ctx context.Context, to uint8, opcode, reason byte) {
	e.send(ctx, cec.Msg(e.self, to, cec.OpFeatureAbort, opcode, reason))
}

func (e *Engine) imageViewOn(ctx context.Context) {
	e.send(ctx, cec.Msg(e.self, cec.AddrTV, cec.OpImageViewOn))
}

func (e *Engine) activeSource(ctx context.Context) {
	e.send(ctx, cec.Msg(e.self, cec.AddrBroadcast, cec.OpActiveSource,
		byte(e.paddr>>8), byte(e.paddr)))
}

func (e *Engine) menuStatus(ctx context.Context, to uint8) {
	state := byte(cec.MenuDeactivate)
	if e.menu {
		state = cec.MenuActivate
	}
	e.send(ctx, cec.Msg(e.self, to, cec.OpMenuStatus, state))
}

func (e *Engine) vendorID(ctx context.Context) {
	e.send(ctx, cec.Msg(e.self, cec.AddrBroadcast, cec.OpDeviceVendorID,
		byte(cec.VendorID>>16&0xFF), byte(cec.VendorID>>8&0xFF), byte(cec.VendorID&0xFF)))
}

func (e *Engine) reportPhysicalAddress(ctx context.Context) {
	e.send(ctx, cec.Msg(e.self, cec.AddrBroadcast, cec.OpReportPhysicalAddress,
		byte(e.paddr>>8), byte(e.paddr), e.cfg.DeviceType))
}

func (e *Engine) setOSDName(ctx context.Context, to uint8) {
	e.send(ctx, cec.Msg(e.self, to, cec.OpSetOSDName, []byte(cec.OSDName)...))
}

// claimActive announces this node as the active source.
func (e *Engine) claimActive(ctx context.Context) {
	e.imageViewOn(ctx)
	e.activeSource(ctx)
	e.noActive = 0
}

// ---- Dispatch ----

func onOff(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) dispatch(ctx context.Context, f cec.Frame) {
	if f.IsPolling() {
		return
	}

	init := f.Initiator()
	dest := f.Destination()
	direct := dest == e.self
	bcast := dest == cec.AddrBroadcast
	ops := f.Operands()

	switch f.Opcode() {
	case cec.OpImageViewOn, cec.OpTextViewOn:
		// The TV's business, not ours.

	case cec.OpFeatureAbort, cec.OpSystemAudioModeStatus, cec.OpMenuStatus,
		cec.OpReportPowerStatus, cec.OpGetMenuLanguage, cec.OpInactiveSource,
		cec.OpCECVersion, cec.OpSetOSDName, cec.OpVendorCommandWithID:
		// Informational; nothing to do.

	case cec.OpStandby:
		if direct || bcast {
			e.active = cec.PhysUnknown
			e.indicate(indicator.StateIdle)
		}

	case cec.OpSystemAudioModeRequest:
		if direct {
			e.send(ctx, cec.Msg(e.self, init, cec.OpSetSystemAudioMode, onOff(e.audio)))
		}

	case cec.OpGiveAudioStatus:
		if direct {
			// Fixed report: volume 50%, not muted.
			e.send(ctx, cec.Msg(e.self, init, cec.OpReportAudioStatus, 0x32))
		}

	case cec.OpSetSystemAudioMode:
		if (direct || bcast) && len(ops) >= 1 {
			e.audio = ops[0] == 1
		}

	case cec.OpGiveSystemAudioModeStat:
		if direct {
			e.send(ctx, cec.Msg(e.self, init, cec.OpSystemAudioModeStatus, onOff(e.audio)))
		}

	case cec.OpRoutingChange:
		if len(ops) >= 4 {
			e.active = cec.Phys(ops[2], ops[3])
			if e.readdress(ctx) != nil {
				return
			}
			if e.selected() {
				e.claimActive(ctx)
			}
		}

	case cec.OpActiveSource:
		if len(ops) >= 2 {
			e.active = cec.Phys(ops[0], ops[1])
			e.noActive = 0
		}

	case cec.OpReportPhysicalAddress:
		// The TV re-announcing itself after a reset: refresh our own
		// addressing and mirror the report.
		if init == cec.AddrTV && bcast {
			if e.readdress(ctx) != nil {
				return
			}
			if e.paddr != cec.PhysUnknown {
				e.reportPhysicalAddress(ctx)
			}
		}

	case cec.OpRequestActiveSource:
		e.noActive++
		if e.selected() || e.noActive > 2 {
			e.claimActive(ctx)
		}

	case cec.OpSetStreamPath:
		if len(ops) >= 2 && e.paddr == cec.Phys(ops[0], ops[1]) {
			e.active = e.paddr
			e.imageViewOn(ctx)
			e.activeSource(ctx)
			e.menu = true
			e.menuStatus(ctx, cec.AddrTV)
			e.noActive = 0
			e.indicate(indicator.StateActive)
		}

	case cec.OpDeviceVendorID:
		// Mirror the TV's broadcast with our own identity.
		if init == cec.AddrTV && bcast {
			e.vendorID(ctx)
		}

	case cec.OpGiveDeviceVendorID:
		if direct {
			e.vendorID(ctx)
		}

	case cec.OpMenuRequest:
		if direct && len(ops) >= 1 {
			switch ops[0] {
			case cec.MenuActivate:
				e.menu = true
			case cec.MenuDeactivate:
				e.menu = false
			}
			e.menuStatus(ctx, init)
		}

	case cec.OpGiveDevicePowerStatus:
		if direct {
			status := byte(cec.PowerStandby)
			if e.selected() {
				status = cec.PowerOn
			}
			e.send(ctx, cec.Msg(e.self, init, cec.OpReportPowerStatus, status))
		}

	case cec.OpGetCECVersion:
		if direct {
			e.send(ctx, cec.Msg(e.self, init, cec.OpCECVersion, cec.Version13a))
		}

	case cec.OpGiveOSDName:
		if direct {
			e.setOSDName(ctx, init)
		}

	case cec.OpGivePhysicalAddress:
		if direct && e.paddr != cec.PhysUnknown {
			e.reportPhysicalAddress(ctx)
		}

	case cec.OpUserControlPressed:
		if direct && len(ops) >= 1 {
			e.indicate(indicator.StateKeyPressed)
			if m := e.cfg.KeyMap[ops[0]]; m.Name != "" {
				e.pushKey(m.Key)
			}
		}

	case cec.OpUserControlReleased:
		if direct {
			e.pushKey(hid.KeyNone)
			if e.selected() {
				e.indicate(indicator.StateActive)
			} else {
				e.indicate(indicator.StateIdle)
			}
		}

	case cec.OpAbort:
		if direct {
			e.featureAbort(ctx, init, f.Opcode(), cec.AbortRefused)
		}

	default:
		if direct {
			e.featureAbort(ctx, init, f.Opcode(), cec.AbortUnrecognized)
		}
	}
}
