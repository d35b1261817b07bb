package main

import (
	"encoding/hex"
	"strings"
)

// Event is one parsed line of the device's trace stream.
type Event struct {
	Kind  string // "rx", "tx", "state"
	Bytes []byte // frame bytes for rx/tx
	State string // engine state for "state"
}

// parseLine turns a trace line ("rx 40 86 10 00 paddr=1000",
// "state ready") into an Event. Frame bytes run until the first field
// that is not a hex pair; annotations after them are ignored. Unknown or
// malformed lines are skipped.
func parseLine(line string) (Event, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return Event{}, false
	}
	switch fields[0] {
	case "state":
		return Event{Kind: "state", State: fields[1]}, true
	case "rx", "tx":
		var raw []byte
		for _, f := range fields[1:] {
			if len(f) != 2 {
				break
			}
			b, err := hex.DecodeString(f)
			if err != nil {
				break
			}
			raw = append(raw, b[0])
		}
		if len(raw) == 0 || len(raw) > 16 {
			return Event{}, false
		}
		return Event{Kind: fields[0], Bytes: raw}, true
	}
	return Event{}, false
}

// keyEvent extracts a remote control event from a received frame:
// User Control Pressed carries its code, User Control Released has none.
func keyEvent(e Event) (code byte, pressed, ok bool) {
	if e.Kind != "rx" || len(e.Bytes) < 2 {
		return 0, false, false
	}
	switch e.Bytes[1] {
	case 0x44:
		if len(e.Bytes) < 3 {
			return 0, false, false
		}
		return e.Bytes[2], true, true
	case 0x45:
		return 0, false, true
	}
	return 0, false, false
}
