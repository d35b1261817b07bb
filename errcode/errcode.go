package errcode

// Code is a stable error identifier for bus and codec failures.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK              Code = "ok"
	Nack            Code = "nack"
	ArbitrationLost Code = "arbitration_lost"
	BusTimeout      Code = "bus_timeout"
	FrameLength     Code = "frame_length"
	BadHeader       Code = "bad_header"
	NoAddress       Code = "no_address"
	ConfigInvalid   Code = "config_invalid"
	Cancelled       Code = "cancelled"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
