// cmd/pico-motor/led.go
//go:build rp2040 || rp2350

package main

import (
	"context"
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"

	"motorcode-go/bus"
	"motorcode-go/types"
)

// statusPixelPin is the board's WS2812, GP16 on RP2040-Zero-style boards.
// Boards without one just leave the pin dark.
const statusPixelPin = machine.Pin(16)

var (
	colFault    = color.RGBA{R: 48}
	colRunning  = color.RGBA{G: 32}
	colStarting = color.RGBA{B: 32}
	colLinked   = color.RGBA{R: 8, G: 8, B: 8}
	colIdle     = color.RGBA{R: 16, G: 8}
)

// statusPixel mirrors motor and bridge state onto the pixel. Both topics
// are retained, so the first frames arrive right after subscribing.
func statusPixel(ctx context.Context, conn *bus.Connection) {
	statusPixelPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led := ws2812.New(statusPixelPin)
	buf := []color.RGBA{colIdle}

	motorSub := conn.Subscribe(bus.Topic{"motor", "state"})
	defer conn.Unsubscribe(motorSub)
	bridgeSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(bridgeSub)

	motorLevel, bridgeLevel := "", ""
	show := func() {
		c := colIdle
		switch {
		case motorLevel == "fault":
			c = colFault
		case motorLevel == "running":
			c = colRunning
		case motorLevel == "starting":
			c = colStarting
		case bridgeLevel == "running":
			c = colLinked
		}
		buf[0] = c
		if err := led.WriteColors(buf); err != nil {
			println("Warn: status pixel:", err.Error())
		}
	}
	show()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-motorSub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok {
				motorLevel = st.Level
				show()
			}
		case m := <-bridgeSub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok {
				bridgeLevel = st.Level
				show()
			}
		}
	}
}
