// Package gpiopwm drives the three motor phases through periph.io GPIO
// pins: one PWM-capable pin per phase, plus an optional gate-driver enable
// line per phase for true high-impedance floats.
package gpiopwm

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"motorcode-go/drivers/sixstep"
)

// PhaseOut is the pin pair for one phase. Enable may be nil; floating then
// falls back to switching the PWM pin to a floating input.
type PhaseOut struct {
	PWM    gpio.PinIO
	Enable gpio.PinIO
}

// Sink applies commutation frames to GPIO pins. It implements
// sixstep.PhaseSink.
type Sink struct {
	period uint16
	freq   physic.Frequency
	phases [sixstep.NumPhases]PhaseOut
}

var (
	errZeroPeriod = errors.New("gpiopwm: zero PWM period")
	errNoPWMPin   = errors.New("gpiopwm: phase without a PWM pin")
)

// New returns a sink scaling compare values out of period onto the pins'
// PWM range, switching at freq. A zero freq selects 25kHz.
func New(period uint16, freq physic.Frequency, phases [sixstep.NumPhases]PhaseOut) (*Sink, error) {
	if period == 0 {
		return nil, errZeroPeriod
	}
	for _, ph := range phases {
		if ph.PWM == nil {
			return nil, errNoPWMPin
		}
	}
	if freq == 0 {
		freq = 25 * physic.KiloHertz
	}
	return &Sink{period: period, freq: freq, phases: phases}, nil
}

// Commit applies one frame, phase by phase.
func (s *Sink) Commit(f sixstep.Frame) error {
	for i, cmd := range f {
		if err := s.apply(s.phases[i], cmd); err != nil {
			return fmt.Errorf("gpiopwm: phase %v: %w", sixstep.Phase(i), err)
		}
	}
	return nil
}

// Halt floats all three phases.
func (s *Sink) Halt() error {
	return s.Commit(sixstep.SafeFrame())
}

func (s *Sink) apply(ph PhaseOut, cmd sixstep.PhaseCommand) error {
	if cmd.Mode == sixstep.OutputFloat {
		// The enable line drops before the level changes.
		if ph.Enable != nil {
			if err := ph.Enable.Out(gpio.Low); err != nil {
				return err
			}
			return ph.PWM.Out(gpio.Low)
		}
		return ph.PWM.In(gpio.Float, gpio.NoEdge)
	}

	var err error
	switch cmd.Mode {
	case sixstep.OutputLow:
		err = ph.PWM.Out(gpio.Low)
	case sixstep.OutputHigh:
		err = ph.PWM.Out(gpio.High)
	case sixstep.OutputPWM:
		err = ph.PWM.PWM(scaleDuty(cmd.Compare, s.period), s.freq)
	}
	if err != nil {
		return err
	}
	// Enable rises only after the level is in place.
	if ph.Enable != nil {
		return ph.Enable.Out(gpio.High)
	}
	return nil
}

// scaleDuty maps a compare value out of period onto the gpio duty range.
func scaleDuty(compare, period uint16) gpio.Duty {
	if compare >= period {
		return gpio.DutyMax
	}
	return gpio.Duty(uint64(compare) * uint64(gpio.DutyMax) / uint64(period))
}
