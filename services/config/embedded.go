package config

// Embedded is the configuration document compiled into the firmware.
// Empty means the defaults apply unchanged. Boards with non-standard
// topologies or key layouts replace this at build time.
var Embedded []byte
