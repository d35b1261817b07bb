package main

import (
	"bytes"
	"testing"
)

func TestParseFrameLine(t *testing.T) {
	ev, ok := parseLine("rx 40 86 10 00\n")
	if !ok || ev.Kind != "rx" {
		t.Fatalf("parse failed: %+v %v", ev, ok)
	}
	if !bytes.Equal(ev.Bytes, []byte{0x40, 0x86, 0x10, 0x00}) {
		t.Fatalf("bytes = % X", ev.Bytes)
	}
}

func TestParseIgnoresAnnotations(t *testing.T) {
	ev, ok := parseLine("rx 40 86 10 00 paddr=1000")
	if !ok || !bytes.Equal(ev.Bytes, []byte{0x40, 0x86, 0x10, 0x00}) {
		t.Fatalf("annotated parse: %+v %v", ev, ok)
	}
}

func TestParseStateLine(t *testing.T) {
	ev, ok := parseLine("state ready")
	if !ok || ev.Kind != "state" || ev.State != "ready" {
		t.Fatalf("parse failed: %+v", ev)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, line := range []string{"", "rx", "rx zz", "boot", "rx 00 11 22 33 44 55 66 77 88 99 AA BB CC DD EE FF 00"} {
		if _, ok := parseLine(line); ok {
			t.Fatalf("accepted %q", line)
		}
	}
}

func TestKeyEvent(t *testing.T) {
	ev, _ := parseLine("rx 04 44 01")
	code, pressed, ok := keyEvent(ev)
	if !ok || !pressed || code != 0x01 {
		t.Fatalf("press: %v %v %v", code, pressed, ok)
	}

	ev, _ = parseLine("rx 04 45")
	_, pressed, ok = keyEvent(ev)
	if !ok || pressed {
		t.Fatalf("release: %v %v", pressed, ok)
	}

	ev, _ = parseLine("tx 40 04")
	if _, _, ok := keyEvent(ev); ok {
		t.Fatal("tx frames are not key events")
	}
}
