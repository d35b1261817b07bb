// Package indicator maps device state transitions onto the status LED.
package indicator

import (
	"context"
	"time"

	"pico-cec/bus"
)

// State names published on the indicator topic.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateKeyPressed State = "key-pressed"
	StateFault      State = "fault"
)

// LED is the platform's status light.
type LED interface {
	Set(on bool)
}

// Blink patterns per state: period 0 means solid.
type pattern struct {
	on     bool
	period time.Duration
}

var patterns = map[State]pattern{
	StateIdle:       {on: true, period: time.Second},
	StateActive:     {on: true, period: 0},
	StateKeyPressed: {on: false, period: 0},
	StateFault:      {on: true, period: 125 * time.Millisecond},
}

type Service struct {
	led LED
}

func New(led LED) *Service { return &Service{led: led} }

// Start subscribes to indicator transitions and drives the LED.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.loop(ctx, conn)
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.TopicIndicator())
	defer conn.Unsubscribe(sub)

	cur := patterns[StateIdle]
	level := cur.on
	s.led.Set(level)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	retick := func() {
		if cur.period > 0 {
			tick.Reset(cur.period)
		} else {
			// Solid: park the ticker.
			tick.Reset(time.Hour)
		}
	}
	retick()

	for {
		select {
		case <-ctx.Done():
			s.led.Set(false)
			return
		case msg := <-sub.Channel():
			st, ok := msg.Payload.(State)
			if !ok {
				continue
			}
			if p, ok := patterns[st]; ok {
				cur = p
				level = cur.on
				s.led.Set(level)
				retick()
			}
		case <-tick.C:
			if cur.period > 0 {
				level = !level
				s.led.Set(level)
			}
		}
	}
}
