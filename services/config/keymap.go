package config

import (
	"pico-cec/cec"
	"pico-cec/services/hid"
)

// DefaultKeyMap is the compiled-in remote layout, aimed at media player
// navigation (Kodi-style shortcuts for transport keys).
func DefaultKeyMap() [256]KeyMapping {
	var m [256]KeyMapping
	set := func(code byte, name string, key byte) {
		m[code] = KeyMapping{Name: name, Key: key}
	}

	set(cec.UserSelect, "select", hid.KeyEnter)
	set(cec.UserUp, "up", hid.KeyUp)
	set(cec.UserDown, "down", hid.KeyDown)
	set(cec.UserLeft, "left", hid.KeyLeft)
	set(cec.UserRight, "right", hid.KeyRight)
	set(cec.UserExit, "exit", hid.KeyEscape)
	set(cec.UserRootMenu, "context", hid.KeyC)

	set(cec.UserNumber0, "0", hid.Key0)
	set(cec.UserNumber1, "1", hid.Key1)
	set(cec.UserNumber2, "2", hid.Key2)
	set(cec.UserNumber3, "3", hid.Key3)
	set(cec.UserNumber4, "4", hid.Key4)
	set(cec.UserNumber5, "5", hid.Key5)
	set(cec.UserNumber6, "6", hid.Key6)
	set(cec.UserNumber7, "7", hid.Key7)
	set(cec.UserNumber8, "8", hid.Key8)
	set(cec.UserNumber9, "9", hid.Key9)

	set(cec.UserChannelUp, "page-up", hid.KeyPageUp)
	set(cec.UserChannelDown, "page-down", hid.KeyPageDown)

	set(cec.UserPlay, "play", hid.KeySpace)
	set(cec.UserPause, "pause", hid.KeySpace)
	set(cec.UserStop, "stop", hid.KeyX)
	set(cec.UserRewind, "rewind", hid.KeyR)
	set(cec.UserFastForward, "fast-forward", hid.KeyF)

	return m
}
