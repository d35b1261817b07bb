package config

import (
	"testing"

	"pico-cec/cec"
	"pico-cec/errcode"
	"pico-cec/services/hid"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.DeviceType != cec.DevicePlayback {
		t.Fatalf("device type = %d", c.DeviceType)
	}
	if c.LogicalAddress != 0x0F || c.PhysicalAddress != 0 {
		t.Fatal("defaults must request auto allocation")
	}
	if got := c.KeyMap[cec.UserUp]; got.Key != hid.KeyUp || got.Name == "" {
		t.Fatalf("Up mapping = %+v", got)
	}
	if c.KeyMap[0x7F].Name != "" {
		t.Fatal("unmapped code must have empty name")
	}
}

func TestLoadEmptyUsesDefaults(t *testing.T) {
	c, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DeviceType != cec.DevicePlayback {
		t.Fatalf("device type = %d", c.DeviceType)
	}
}

func TestLoadOverrides(t *testing.T) {
	raw := []byte(`{
		"device_type": 1,
		"logical_address": 2,
		"physical_address": 8192,
		"edid_delay_ms": 250,
		"keymap": [{"code": 65, "name": "vol-up", "key": 128}]
	}`)
	c, err := Load(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DeviceType != cec.DeviceRecording || c.LogicalAddress != 2 {
		t.Fatalf("addresses: %+v", c)
	}
	if c.PhysicalAddress != 0x2000 || c.EDIDDelayMS != 250 {
		t.Fatalf("paddr/delay: %+v", c)
	}
	if got := c.KeyMap[cec.UserVolumeUp]; got.Key != hid.KeyVolumeUp || got.Name != "vol-up" {
		t.Fatalf("keymap override = %+v", got)
	}
	// Untouched entries keep the default map.
	if c.KeyMap[cec.UserSelect].Key != hid.KeyEnter {
		t.Fatal("default entries must survive a partial keymap")
	}
}

func TestLoadRejectsBadDeviceType(t *testing.T) {
	_, err := Load([]byte(`{"device_type": 9}`))
	if errcode.Of(err) != errcode.ConfigInvalid {
		t.Fatalf("expected config_invalid, got %v", err)
	}
}

func TestLoadRejectsBadDocument(t *testing.T) {
	if _, err := Load([]byte(`[1,2,3]`)); errcode.Of(err) != errcode.ConfigInvalid {
		t.Fatalf("expected config_invalid, got %v", err)
	}
}
