//go:build rp2040 || rp2350

package platform

import (
	"device/rp"
	"io"
	"machine"
	tgk "machine/usb/hid/keyboard"
	"runtime/interrupt"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"pico-cec/drivers/cecbus"
	"pico-cec/services/hid"
	"pico-cec/services/indicator"
)

// Board wiring.
const (
	cecPinNumber = machine.GP3
	uartTX       = machine.GP0
	uartRX       = machine.GP1
	ddcSDA       = machine.GP4
	ddcSCL       = machine.GP5
)

var ctrl *cecbus.Controller

// timeUS reads the 64-bit microsecond timer without the latching pair,
// so it is safe from any context.
func timeUS() int64 {
	for {
		hi := rp.TIMER.TIMERAWH.Get()
		lo := rp.TIMER.TIMERAWL.Get()
		if rp.TIMER.TIMERAWH.Get() == hi {
			return int64(hi)<<32 | int64(lo)
		}
	}
}

// ---- CEC line ----

// cecLine emulates open drain: low is driven, high is the external
// pull-up with the pin floated as input.
type cecLine struct{ pin machine.Pin }

func (l cecLine) Assert() {
	l.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	l.pin.Low()
}

func (l cecLine) Release() {
	l.pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (l cecLine) Read() bool { return l.pin.Get() }

func CECLine() cecbus.Line { return cecLine{pin: cecPinNumber} }

// ---- Hardware alarms ----

// hwAlarm maps onto one RP2 TIMER alarm register.
type hwAlarm struct{ idx uint8 }

func (a hwAlarm) Arm(at int64) {
	now := timeUS()
	if at <= now {
		at = now + 5
	}
	rp.TIMER.INTE.SetBits(1 << a.idx)
	switch a.idx {
	case 0:
		rp.TIMER.ALARM0.Set(uint32(at))
	case 1:
		rp.TIMER.ALARM1.Set(uint32(at))
	}
}

func (a hwAlarm) Cancel() {
	rp.TIMER.ARMED.Set(1 << a.idx)
	rp.TIMER.INTR.Set(1 << a.idx)
}

func TxAlarm() cecbus.Alarm  { return hwAlarm{idx: 0} }
func AckAlarm() cecbus.Alarm { return hwAlarm{idx: 1} }

func txAlarmISR(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << 0)
	ctrl.OnTxAlarm(timeUS())
}

func ackAlarmISR(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << 1)
	ctrl.OnAckAlarm(timeUS())
}

// BindInterrupts hooks the edge and alarm interrupts up to the
// controller. Call once, before the engine starts.
func BindInterrupts(c *cecbus.Controller) {
	ctrl = c

	_ = cecPinNumber.SetInterrupt(machine.PinRising|machine.PinFalling, func(p machine.Pin) {
		ctrl.OnEdge(timeUS(), p.Get())
	})

	tx := interrupt.New(rp.IRQ_TIMER_IRQ_0, txAlarmISR)
	tx.Enable()
	ack := interrupt.New(rp.IRQ_TIMER_IRQ_1, ackAlarmISR)
	ack.Enable()
}

// ---- DDC ----

// DDCBus configures I²C at the 100 kHz DDC rate.
func DDCBus() drivers.I2C {
	b := machine.I2C0
	_ = b.Configure(machine.I2CConfig{
		Frequency: 100 * machine.KHz,
		SDA:       ddcSDA,
		SCL:       ddcSCL,
	})
	return b
}

// ---- Trace UART ----

func TraceWriter() io.Writer {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       uartTX,
		RX:       uartRX,
	})
	return u
}

// ---- Status LED ----

type boardLED struct{ pin machine.Pin }

func (l boardLED) Set(on bool) { l.pin.Set(on) }

func StatusLED() indicator.LED {
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return boardLED{pin: machine.LED}
}

// ---- USB HID keyboard ----

// usbPort is the slice of the TinyGo keyboard port we drive.
type usbPort interface {
	Down(tgk.Keycode) error
	Release() error
}

// usbKeys adapts boot reports onto the keyboard port. The keyboard
// package keeps the raw HID usage in the low byte of its 0xF000
// keycode plane.
type usbKeys struct{ port usbPort }

func (k usbKeys) WriteReport(report []byte) error {
	key := report[2]
	if key == 0 {
		return k.port.Release()
	}
	return k.port.Down(tgk.Keycode(0xF000 | uint16(key)))
}

func KeyWriter() hid.ReportWriter {
	return usbKeys{port: tgk.Port()}
}
