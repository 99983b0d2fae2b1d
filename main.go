// main.go

// Demo entry point: runs the drive service against the in-memory frame
// recorder and scripts a short run, so `go run .` shows the commutation
// life cycle without hardware. The real entry points live under cmd/.
package main

import (
	"context"
	"fmt"
	"time"

	"motorcode-go/bus"
	"motorcode-go/drivers/sixstep"
	"motorcode-go/services/motor"
	"motorcode-go/types"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(16)
	rec := &sixstep.Recorder{}

	if err := motor.Start(ctx, b.NewConnection("motor"), sixstep.DefaultConfig(), rec, motor.Options{
		Tick:           200 * time.Microsecond,
		TelemetryEvery: 100,
	}); err != nil {
		fmt.Println("Error:", err)
		return
	}

	ui := b.NewConnection("ui")
	telSub := ui.Subscribe(bus.Topic{"motor", "telemetry"})
	defer ui.Unsubscribe(telSub)

	go func() {
		last := ""
		for m := range telSub.Channel() {
			tel, ok := m.Payload.(types.MotorTelemetry)
			if !ok {
				continue
			}
			line := fmt.Sprintf("state=%-8s period=%-4d duty=%-4d sector=%d",
				tel.State, tel.Period, tel.Duty, tel.Sector)
			if line != last {
				fmt.Println(line, "commits:", rec.Count())
				last = line
			}
		}
	}()

	send := func(verb string) {
		ui.Publish(ui.NewMessage(bus.Topic{"motor", "control", verb}, nil, false))
	}

	fmt.Println("arming: the first speed command starts the ramp")
	send("speed_up")
	time.Sleep(1500 * time.Millisecond)

	fmt.Println("trimming speed")
	for i := 0; i < 5; i++ {
		send("speed_up")
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("stopping")
	send("stop")
	time.Sleep(300 * time.Millisecond)

	if f, ok := rec.Last(); ok {
		fmt.Println("final frame:", frameString(f), "after", rec.Count(), "commits")
	}
}

func frameString(f sixstep.Frame) string {
	out := ""
	for i, cmd := range f {
		if i > 0 {
			out += "/"
		}
		out += cmd.Mode.String()
		if cmd.Mode == sixstep.OutputPWM {
			out += fmt.Sprintf("@%d", cmd.Compare)
		}
	}
	return out
}
