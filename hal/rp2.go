// hal/rp2.go
//go:build rp2040 || rp2350

package hal

import "machine"

// DefaultBank maps numbers straight onto machine.Pin: GP numbering on the
// Pico and Pico 2.
func DefaultBank() Bank { return gpBank{} }

type gpBank struct{}

// Line constrains requests to the RP2 user GPIOs, GP0 through GP28.
func (gpBank) Line(n int) (Line, bool) {
	if n < 0 || n > 28 {
		return nil, false
	}
	return &gpLine{pin: machine.Pin(n), num: n}, true
}

type gpLine struct {
	pin machine.Pin
	num int
}

func (g *gpLine) Input(b Bias) error {
	mode := machine.PinInput
	switch b {
	case BiasPullUp:
		mode = machine.PinInputPullup
	case BiasPullDown:
		mode = machine.PinInputPulldown
	}
	g.pin.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (g *gpLine) Output(initial bool) error {
	g.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	g.pin.Set(initial)
	return nil
}

func (g *gpLine) Set(on bool) { g.pin.Set(on) }
func (g *gpLine) Get() bool   { return g.pin.Get() }
func (g *gpLine) Number() int { return g.num }

// Watch arms the pin interrupt. Rearming replaces any earlier callback.
func (g *gpLine) Watch(t Trigger, fn func()) error {
	var change machine.PinChange
	switch t {
	case TriggerRise:
		change = machine.PinRising
	case TriggerFall:
		change = machine.PinFalling
	case TriggerBoth:
		change = machine.PinToggle
	}
	return g.pin.SetInterrupt(change, func(machine.Pin) { fn() })
}

func (g *gpLine) Unwatch() error { return g.pin.SetInterrupt(0, nil) }
