// cmd/pico-selftest/main.go
//go:build rp2040 || rp2350

// On-device smoke test for the motor stack: bus semantics the services
// depend on, the commutation driver against a recording sink, and the
// motor service's control verbs over request/reply. Flash it, watch the
// serial log; the LED ends solid on success and blinks on failure.
package main

import (
	"context"
	"time"

	"motorcode-go/bus"
	"motorcode-go/drivers/sixstep"
	"motorcode-go/services/motor"
	"motorcode-go/types"
	"motorcode-go/x/ramp"
	"motorcode-go/x/strconvx"

	"machine"
)

// testDriveConfig is the short-window drive config: the ramp decays
// 20 -> 5 with pacer steps at ticks 4, 8, then every tick, so a full
// open-loop start fits in a few dozen ticks.
func testDriveConfig() sixstep.Config {
	return sixstep.Config{
		PWMPeriod:       256,
		RampDuty:        128,
		RunDuty:         64,
		LowSpeedPeriod:  20,
		HighSpeedPeriod: 5,
		ManualMinPeriod: 3,
		ManualMaxPeriod: 40,
		RampUnit:        1,
		RampStride:      4,
		RampStrideFloor: 1,
	}
}

// --- checks -------------------------------------------------------------------
// Each check returns "" on success or a short failure detail.

// checkRetainedConfig covers the path the config service rides on: retained
// publishes reach late subscribers, nil payloads clear the slot.
func checkRetainedConfig() string {
	b := bus.NewBus(4)
	c := b.NewConnection("selftest")

	c.Publish(b.NewMessage(bus.T("config", "motor"), `{"run_duty":96}`, true))

	sub := c.Subscribe(bus.T("config", "motor"))
	select {
	case got := <-sub.Channel():
		if s, ok := got.Payload.(string); !ok || s != `{"run_duty":96}` {
			return "late subscriber got wrong payload"
		}
	case <-time.After(100 * time.Millisecond):
		return "retained config never delivered"
	}

	c.Publish(b.NewMessage(bus.T("config", "motor"), nil, true))
	cleared := c.Subscribe(bus.T("config", "motor"))
	select {
	case <-cleared.Channel():
		return "cleared slot still delivered"
	case <-time.After(60 * time.Millisecond):
	}
	return ""
}

// checkControlFanIn covers the input-to-motor path: one wildcard
// subscription sees every control verb, in publish order, and nothing else.
func checkControlFanIn() string {
	b := bus.NewBus(8)
	c := b.NewConnection("selftest")

	sub := c.Subscribe(bus.T("motor", "control", "+"))

	c.Publish(b.NewMessage(bus.T("motor", "control", "stop"), nil, false))
	c.Publish(b.NewMessage(bus.T("motor", "control", "speed_up"), nil, false))
	c.Publish(b.NewMessage(bus.T("motor", "control", "duty"), types.DutySet{Level: 64}, false))
	c.Publish(b.NewMessage(bus.T("motor", "state"), "noise", false))

	for _, want := range []string{"stop", "speed_up", "duty"} {
		select {
		case got := <-sub.Channel():
			verb, _ := got.Topic[len(got.Topic)-1].(string)
			if verb != want {
				return "verb order: got " + verb + ", want " + want
			}
		case <-time.After(200 * time.Millisecond):
			return "verb " + want + " never arrived"
		}
	}
	select {
	case <-sub.Channel():
		return "control subscription matched a non-control topic"
	case <-time.After(60 * time.Millisecond):
	}
	return ""
}

// checkPacerSchedule pins the stride-halving shape the ramp is built on.
func checkPacerSchedule() string {
	p := ramp.NewPacer[uint16](4, 1)
	want := []int{4, 8, 10, 11, 12}
	var got []int
	for t := 1; t <= 12; t++ {
		if p.Tick() {
			got = append(got, t)
		}
	}
	if len(got) != len(want) {
		return "steps fired " + strconvx.Itoa(len(got)) + ", want " + strconvx.Itoa(len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return "step " + strconvx.Itoa(i) + " at tick " + strconvx.Itoa(got[i]) +
				", want " + strconvx.Itoa(want[i])
		}
	}
	return ""
}

// checkTranslateComplement holds the half-bridge invariant across the duty
// range: the forward and inverted commands always sum to the PWM period,
// and saturation degrades to a rail, never a degenerate PWM request.
func checkTranslateComplement() string {
	const period = 256
	for _, d := range []uint16{0, 1, 64, 128, 255, 256, 300} {
		fw := sixstep.Translate(sixstep.IntentForward, d, period)
		inv := sixstep.Translate(sixstep.IntentInverted, d, period)
		if fw.Compare+inv.Compare != period {
			return "duty " + strconvx.Itoa(int(d)) + ": compares sum to " +
				strconvx.Itoa(int(fw.Compare+inv.Compare))
		}
		for _, cmd := range [2]sixstep.PhaseCommand{fw, inv} {
			if cmd.Mode == sixstep.OutputPWM && (cmd.Compare == 0 || cmd.Compare >= period) {
				return "duty " + strconvx.Itoa(int(d)) + ": degenerate PWM compare " +
					strconvx.Itoa(int(cmd.Compare))
			}
		}
	}
	return ""
}

// checkDriveCycle runs a full open-loop start against the recorder: arm,
// ramp to On on tick 22, commutate at ramp then run duty, stop to all-off
// with the sector preserved.
func checkDriveCycle() string {
	rec := &sixstep.Recorder{}
	d, err := sixstep.New(testDriveConfig(), rec)
	if err != nil {
		return "new: " + err.Error()
	}
	if d.State() != sixstep.Off {
		return "fresh drive not off"
	}

	d.SpeedUp()
	if d.State() != sixstep.RampUp {
		return "speed_up did not arm"
	}

	onAt := 0
	for t := 1; t <= 40 && onAt == 0; t++ {
		if err := d.Tick(); err != nil {
			return "tick " + strconvx.Itoa(t) + ": " + err.Error()
		}
		if d.State() == sixstep.On {
			onAt = t
		}
	}
	if onAt != 22 {
		return "reached on at tick " + strconvx.Itoa(onAt) + ", want 22"
	}
	for t := 23; t <= 26; t++ {
		if err := d.Tick(); err != nil {
			return "tick " + strconvx.Itoa(t) + ": " + err.Error()
		}
	}

	frames := rec.Frames()
	if len(frames) != 3 {
		return "commits " + strconvx.Itoa(len(frames)) + ", want 3"
	}
	for i, f := range frames {
		if modeCount(f, sixstep.OutputPWM) != 1 ||
			modeCount(f, sixstep.OutputLow) != 1 ||
			modeCount(f, sixstep.OutputFloat) != 1 {
			return "frame " + strconvx.Itoa(i) + ": bad mode mix"
		}
	}
	if c, _ := pwmCompare(frames[0]); c != 128 {
		return "ramp frame compare " + strconvx.Itoa(int(c)) + ", want 128"
	}
	if c, _ := pwmCompare(frames[2]); c != 64 {
		return "run frame compare " + strconvx.Itoa(int(c)) + ", want 64"
	}
	if d.Sector() != 3 {
		return "sector " + strconvx.Itoa(int(d.Sector())) + " after 3 commutations"
	}

	if err := d.Stop(); err != nil {
		return "stop: " + err.Error()
	}
	if d.State() != sixstep.Off {
		return "stop left state " + d.State().String()
	}
	last, ok := rec.Last()
	if !ok || last != sixstep.SafeFrame() {
		return "stop did not commit the all-off composite"
	}
	if d.Sector() != 3 {
		return "stop reset the sector"
	}
	return ""
}

// checkMotorService drives the real service over the bus: speed_up ack,
// telemetry reaching "on" under a fed tick channel, an unsupported verb
// rejected by code, and a stop ack that lands back in "off".
func checkMotorService() string {
	b := bus.NewBus(16)
	rec := &sixstep.Recorder{}
	ticks := make(chan time.Time, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := motor.Start(ctx, b.NewConnection("motor"), testDriveConfig(), rec, motor.Options{
		Tick:           time.Millisecond,
		TelemetryEvery: 1,
		Ticks:          ticks,
	})
	if err != nil {
		return "start: " + err.Error()
	}
	time.Sleep(50 * time.Millisecond) // let the service subscribe

	c := b.NewConnection("selftest")
	reply, why := request(ctx, c, b, bus.T("motor", "control", "speed_up"))
	if why != "" {
		return "speed_up: " + why
	}
	if rep, ok := reply.Payload.(types.Reply); !ok || !rep.OK {
		return "speed_up: not acked"
	}

	for i := 0; i < 26; i++ {
		ticks <- time.Now()
	}
	time.Sleep(100 * time.Millisecond)

	tel, why := latestTelemetry(c)
	if why != "" {
		return why
	}
	if tel.State != "on" {
		return "state after ramp: " + tel.State
	}
	if tel.Duty != 64 {
		return "run duty " + strconvx.Itoa(int(tel.Duty)) + ", want 64"
	}

	reply, why = request(ctx, c, b, bus.T("motor", "control", "flip"))
	if why != "" {
		return "flip: " + why
	}
	if er, ok := reply.Payload.(types.Reply); !ok || er.Code != "unsupported" {
		return "unknown verb not rejected"
	}

	reply, why = request(ctx, c, b, bus.T("motor", "control", "stop"))
	if why != "" {
		return "stop: " + why
	}
	if rep, ok := reply.Payload.(types.Reply); !ok || !rep.OK {
		return "stop: not acked"
	}
	time.Sleep(50 * time.Millisecond)

	tel, why = latestTelemetry(c)
	if why != "" {
		return why
	}
	if tel.State != "off" {
		return "state after stop: " + tel.State
	}
	return ""
}

// --- helpers ------------------------------------------------------------------

func modeCount(f sixstep.Frame, m sixstep.OutputMode) int {
	n := 0
	for _, cmd := range f {
		if cmd.Mode == m {
			n++
		}
	}
	return n
}

func pwmCompare(f sixstep.Frame) (uint16, bool) {
	for _, cmd := range f {
		if cmd.Mode == sixstep.OutputPWM {
			return cmd.Compare, true
		}
	}
	return 0, false
}

func request(ctx context.Context, c *bus.Connection, b *bus.Bus, t bus.Topic) (*bus.Message, string) {
	rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	reply, err := c.RequestWait(rctx, b.NewMessage(t, nil, false))
	if err != nil {
		return nil, "no reply"
	}
	return reply, ""
}

// latestTelemetry reads the retained motor/telemetry value via a fresh
// subscription.
func latestTelemetry(c *bus.Connection) (types.MotorTelemetry, string) {
	sub := c.Subscribe(bus.T("motor", "telemetry"))
	defer c.Unsubscribe(sub)
	select {
	case got := <-sub.Channel():
		tel, ok := got.Payload.(types.MotorTelemetry)
		if !ok {
			return types.MotorTelemetry{}, "telemetry payload has wrong type"
		}
		return tel, ""
	case <-time.After(200 * time.Millisecond):
		return types.MotorTelemetry{}, "no retained telemetry"
	}
}

// --- main ---------------------------------------------------------------------

type check struct {
	name string
	run  func() string
}

func main() {
	// Give the USB CDC time to enumerate so logs show up reliably.
	time.Sleep(300 * time.Millisecond)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.High() // running

	checks := []check{
		{"retained_config", checkRetainedConfig},
		{"control_fan_in", checkControlFanIn},
		{"pacer_schedule", checkPacerSchedule},
		{"translate_complement", checkTranslateComplement},
		{"drive_cycle", checkDriveCycle},
		{"motor_service", checkMotorService},
	}

	failed := 0
	println("== motor stack self-test ==")
	for _, c := range checks {
		if why := c.run(); why != "" {
			println("FAIL", c.name+":", why)
			failed++
		} else {
			println("ok  ", c.name)
		}
		time.Sleep(10 * time.Millisecond)
	}
	println("== done:", strconvx.Itoa(len(checks)-failed), "passed,", strconvx.Itoa(failed), "failed ==")

	// Solid LED on success, slow blink on any failure.
	if failed == 0 {
		for {
			led.High()
			time.Sleep(2 * time.Second)
		}
	}
	for {
		led.High()
		time.Sleep(250 * time.Millisecond)
		led.Low()
		time.Sleep(250 * time.Millisecond)
	}
}
