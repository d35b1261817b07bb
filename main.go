package main

import (
	"context"
	"time"

	"pico-cec/bus"
	"pico-cec/drivers/cecbus"
	"pico-cec/drivers/ddc"
	"pico-cec/platform"
	"pico-cec/services/config"
	"pico-cec/services/engine"
	"pico-cec/services/hid"
	"pico-cec/services/indicator"
	"pico-cec/services/trace"
)

func main() {
	// Allow USB CDC to enumerate before anything prints.
	time.Sleep(2 * time.Second)

	ctx := context.Background()
	b := bus.NewBus(8)

	ind := indicator.New(platform.StatusLED())
	ind.Start(ctx, b.NewConnection("indicator"))

	cfg, err := config.Load(config.Embedded)
	if err != nil {
		println("fatal: configuration:", err.Error())
		fault(b)
	}

	trace.New(platform.TraceWriter()).Start(ctx, b.NewConnection("trace"))

	ctrl := cecbus.New(platform.CECLine(), platform.TxAlarm(), platform.AckAlarm())
	platform.BindInterrupts(ctrl)

	keys := make(chan byte, 8)
	hid.New(keys, platform.KeyWriter()).Start(ctx)

	config.Publish(b.NewConnection("config"), cfg)

	eng := engine.New(ctrl, ddc.New(platform.DDCBus()), b.NewConnection("engine"), keys)
	if err := eng.Run(ctx); err != nil {
		println("fatal: engine:", err.Error())
		fault(b)
	}
}

// fault parks the device with the fault pattern showing.
func fault(b *bus.Bus) {
	b.NewConnection("main").Retain(bus.TopicIndicator(), indicator.StateFault)
	select {}
}
