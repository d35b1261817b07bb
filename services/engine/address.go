package engine

import (
	"context"

	"pico-cec/cec"
	"pico-cec/errcode"
)

// Logical address candidates per device type, tried in order. Padded
// with 0x0F: a node that exhausts its list stays unregistered.
var laddrCandidates = [6][4]uint8{
	{0x00, 0x00, 0x00, 0x00}, // TV
	{0x01, 0x02, 0x09, 0x0F}, // Recording
	{0x0F, 0x0F, 0x0F, 0x0F}, // Reserved
	{0x03, 0x06, 0x07, 0x0F}, // Tuner
	{0x04, 0x08, 0x0B, 0x0F}, // Playback
	{0x05, 0x05, 0x05, 0x05}, // Audio System
}

// ping probes a candidate address with a polling frame. An ACK means
// some node already answers there.
func (e *Engine) ping(ctx context.Context, addr uint8) bool {
	return e.codec.Send(ctx, cec.Polling(addr)) == nil
}

// allocateLogicalAddress claims the configured address, or probes the
// device type's candidates for a free one.
func (e *Engine) allocateLogicalAddress(ctx context.Context) uint8 {
	if e.cfg.LogicalAddress != 0x00 && e.cfg.LogicalAddress != 0x0F {
		return e.cfg.LogicalAddress
	}

	a := uint8(cec.AddrUnregistered)
	for _, cand := range laddrCandidates[e.cfg.DeviceType] {
		a = cand
		if !e.ping(ctx, cand) {
			break
		}
	}
	return a
}

// resolvePhysicalAddress prefers the configured override, then the EDID
// of the attached display. 0x0000 stays "unknown".
func (e *Engine) resolvePhysicalAddress() uint16 {
	if e.cfg.PhysicalAddress != cec.PhysUnknown {
		return e.cfg.PhysicalAddress
	}
	return e.edid.PhysicalAddress()
}

// readdress re-resolves both addresses; the TV rebuilding its device map
// (routing change, its own address report) invalidates ours.
func (e *Engine) readdress(ctx context.Context) error {
	e.paddr = e.resolvePhysicalAddress()
	e.self = e.allocateLogicalAddress(ctx)
	e.codec.SetLogicalAddress(e.self)
	if ctx.Err() != nil {
		return errcode.Cancelled
	}
	return nil
}
