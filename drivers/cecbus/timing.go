package cecbus

// CEC v1.3a line timing, in microseconds.
//
// A bit cell is 2.4 ms. The initiator opens every cell by pulling the line
// low; the low time encodes the bit. The receiver's decision point is
// 1.05 ms after the falling edge: still low means '0', released means '1'.
const (
	bitPeriodUS = 2400
	bitLow0US   = 1500
	bitLow1US   = 600
	sampleUS    = 1050

	startLowUS    = 3700
	startPeriodUS = 4500

	// Receive classification tolerance around nominal edges.
	rxTolUS = 400

	// Receive validity windows derived from the above.
	startLowMinUS    = startLowUS - rxTolUS
	startLowMaxUS    = startLowUS + rxTolUS
	startPeriodMinUS = startPeriodUS - rxTolUS
	startPeriodMaxUS = startPeriodUS + rxTolUS
	bitPeriodMinUS   = bitPeriodUS - rxTolUS
	bitPeriodMaxUS   = bitPeriodUS + rxTolUS
	bitLowMinUS      = 200
	bitLowMaxUS      = bitLow0US + rxTolUS
)

// Signal-free time before initiating, in bit periods: a new initiator
// waits 7, a retransmission 5, and a node that just finished its own
// transmission 3.
const (
	freeBitsFirst = 7
	freeBitsRetry = 5
	freeBitsOwn   = 3

	freeFirstUS = freeBitsFirst * bitPeriodUS
	freeRetryUS = freeBitsRetry * bitPeriodUS
	freeOwnUS   = freeBitsOwn * bitPeriodUS
)

// sendAttempts bounds retransmissions of a NACKed frame.
const sendAttempts = 5

// Bits per byte on the wire: 8 data + EOM + ACK.
const bitsPerByte = 10
