// hal/hal.go

// Package hal narrows GPIO down to the two shapes this firmware drives:
// gate-enable style outputs, and button inputs that report flanks through
// a callback.
package hal

// Bias selects the resistor wiring for an input line.
type Bias uint8

const (
	BiasNone Bias = iota
	BiasPullUp
	BiasPullDown
)

// Trigger names the flank(s) a watched line reports.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	TriggerRise
	TriggerFall
	TriggerBoth
)

func (t Trigger) String() string {
	switch t {
	case TriggerRise:
		return "rise"
	case TriggerFall:
		return "fall"
	case TriggerBoth:
		return "both"
	}
	return "none"
}

// Line is one GPIO line; direction is whatever was configured last.
type Line interface {
	Input(b Bias) error
	Output(initial bool) error
	Set(on bool)
	Get() bool
	Number() int
}

// Button is a line that reports flanks. Watch callbacks run in interrupt
// context on MCU ports: no blocking, no allocation.
type Button interface {
	Line
	Watch(t Trigger, fn func()) error
	Unwatch() error
}

// Bank hands out lines by GP number.
type Bank interface {
	Line(n int) (Line, bool)
}
