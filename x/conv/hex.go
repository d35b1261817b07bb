// Package conv holds the alloc-free formatting helpers the trace path
// needs; fmt stays off the firmware's hot paths.
package conv

const hexdigits = "0123456789ABCDEF"

// ByteHex appends the two-digit uppercase hex of b.
func ByteHex(dst []byte, b byte) []byte {
	return append(dst, hexdigits[b>>4], hexdigits[b&0xF])
}

// U16Hex appends 4-digit uppercase hex, zero-padded.
func U16Hex(dst []byte, n uint16) []byte {
	dst = ByteHex(dst, byte(n>>8))
	return ByteHex(dst, byte(n))
}
