package hid

// USB HID keyboard usage IDs (keyboard/keypad page) used by the default
// key map.
const (
	KeyNone byte = 0x00

	KeyA byte = 0x04
	KeyC byte = 0x06
	KeyF byte = 0x09
	KeyR byte = 0x15
	KeyX byte = 0x1B

	Key1 byte = 0x1E
	Key2 byte = 0x1F
	Key3 byte = 0x20
	Key4 byte = 0x21
	Key5 byte = 0x22
	Key6 byte = 0x23
	Key7 byte = 0x24
	Key8 byte = 0x25
	Key9 byte = 0x26
	Key0 byte = 0x27

	KeyEnter     byte = 0x28
	KeyEscape    byte = 0x29
	KeyBackspace byte = 0x2A
	KeyTab       byte = 0x2B
	KeySpace     byte = 0x2C

	KeyRight byte = 0x4F
	KeyLeft  byte = 0x50
	KeyDown  byte = 0x51
	KeyUp    byte = 0x52

	KeyPageUp   byte = 0x4B
	KeyPageDown byte = 0x4E
	KeyHome     byte = 0x4A
	KeyEnd      byte = 0x4D

	KeyMute       byte = 0x7F
	KeyVolumeUp   byte = 0x80
	KeyVolumeDown byte = 0x81
)
