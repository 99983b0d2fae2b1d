// cmd/pico-motor/main.go
//go:build rp2040 || rp2350

// pico-motor is the controller firmware: six-step drive on three PWM
// slices, buttons for speed control, UART bridge to a host, and a WS2812
// status pixel.
package main

import (
	"context"
	"time"

	"motorcode-go/bus"
	"motorcode-go/drivers/sixstep"
	"motorcode-go/hal"
	"motorcode-go/services/bridge"
	"motorcode-go/services/config"
	"motorcode-go/services/heartbeat"
	"motorcode-go/services/input"
	"motorcode-go/services/motor"
)

// pwmPeriod must match the motor section of the embedded pico config; the
// sink scales compare values against it.
const pwmPeriod = 1024

func main() {
	// Let USB CDC enumerate before the first prints.
	time.Sleep(2 * time.Second)
	println("[main] pico-motor boot")

	ctx := context.Background()
	b := bus.NewBus(8)

	sink, err := newPWMSink(pwmPeriod)
	if err != nil {
		println("Error: pwm init:", err.Error())
		return
	}

	drvCfg := sixstep.DefaultConfig()
	drvCfg.PWMPeriod = pwmPeriod
	drvCfg.RampDuty = 512
	drvCfg.RunDuty = 300

	if err := motor.Start(ctx, b.NewConnection("motor"), drvCfg, sink, motor.Options{}); err != nil {
		println("Error: motor start:", err.Error())
		return
	}
	if err := input.Start(ctx, b.NewConnection("input"), hal.DefaultBank()); err != nil {
		println("Error: input start:", err.Error())
		return
	}

	installUARTDial()
	go bridge.Start(ctx, b.NewConnection("bridge"))

	heartbeat.Start(ctx, b.NewConnection("heartbeat"))

	go statusPixel(ctx, b.NewConnection("led"))

	// Config publishes last; its sections are retained, so services that
	// subscribed above pick them up immediately.
	if err := config.Publish(b.NewConnection("config"), "pico"); err != nil {
		println("Error: config publish:", err.Error())
	}

	println("[main] services up")
	select {}
}
