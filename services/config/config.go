// Package config loads the device configuration and publishes it,
// retained, on the bus for the services that need it.
package config

import (
	"pico-cec/bus"
	"pico-cec/cec"
	"pico-cec/errcode"

	"github.com/andreyvit/tinyjson"
)

// KeyMapping binds one CEC user-control code to an HID keycode. An empty
// Name marks the entry unmapped; that keeps HID 0x00 ("no key") usable
// as a real value.
type KeyMapping struct {
	Name string
	Key  byte
}

// Config is the running device configuration, read once at startup.
type Config struct {
	// DeviceType selects the logical address candidate list.
	DeviceType uint8
	// LogicalAddress overrides allocation; 0x00 and 0x0F request it.
	LogicalAddress uint8
	// PhysicalAddress overrides EDID lookup; 0x0000 requests it.
	PhysicalAddress uint16
	// EDIDDelayMS is how long to let the downstream EDID settle before
	// the first DDC read.
	EDIDDelayMS uint32
	// KeyMap maps every CEC user-control code to an HID key.
	KeyMap [256]KeyMapping
}

// Default returns the compiled-in configuration: a Playback device with
// auto-allocated addresses and the standard key map.
func Default() *Config {
	c := &Config{
		DeviceType:     cec.DevicePlayback,
		LogicalAddress: 0x0F,
		EDIDDelayMS:    5000,
	}
	c.KeyMap = DefaultKeyMap()
	return c
}

// Load parses an embedded JSON document over the defaults. A present but
// unparsable document is an error: starting with half a configuration is
// worse than not starting.
func Load(raw []byte) (*Config, error) {
	c := Default()
	if len(raw) == 0 {
		return c, nil
	}

	var val any
	err := func() (err error) {
		defer func() {
			if recover() != nil {
				err = &errcode.E{C: errcode.ConfigInvalid, Op: "config.Load", Msg: "bad JSON"}
			}
		}()
		r := tinyjson.Raw(raw)
		val = r.Value()
		r.EnsureEOF()
		return nil
	}()
	if err != nil {
		return nil, err
	}

	m, ok := val.(map[string]any)
	if !ok {
		return nil, &errcode.E{C: errcode.ConfigInvalid, Op: "config.Load", Msg: "not an object"}
	}

	if v, ok := num(m, "device_type"); ok {
		if v > cec.DeviceAudio {
			return nil, &errcode.E{C: errcode.ConfigInvalid, Op: "config.Load", Msg: "device_type"}
		}
		c.DeviceType = uint8(v)
	}
	if v, ok := num(m, "logical_address"); ok {
		c.LogicalAddress = uint8(v) & 0x0F
	}
	if v, ok := num(m, "physical_address"); ok {
		c.PhysicalAddress = uint16(v)
	}
	if v, ok := num(m, "edid_delay_ms"); ok {
		c.EDIDDelayMS = uint32(v)
	}

	if km, ok := m["keymap"].([]any); ok {
		for _, e := range km {
			em, ok := e.(map[string]any)
			if !ok {
				continue
			}
			code, okc := num(em, "code")
			key, okk := num(em, "key")
			name, _ := em["name"].(string)
			if !okc || !okk || code > 0xFF || key > 0xFF {
				return nil, &errcode.E{C: errcode.ConfigInvalid, Op: "config.Load", Msg: "keymap entry"}
			}
			if name == "" {
				name = "key"
			}
			c.KeyMap[uint8(code)] = KeyMapping{Name: name, Key: byte(key)}
		}
	}

	return c, nil
}

func num(m map[string]any, key string) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case uint64:
		return x, true
	}
	return 0, false
}

// Publish retains the configuration on the bus so services starting
// later still receive it.
func Publish(conn *bus.Connection, c *Config) {
	conn.Retain(bus.TopicConfig(), c)
}
