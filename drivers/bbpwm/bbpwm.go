// Package bbpwm drives the three motor phases through BeagleBone sysfs PWM
// lines via go-bbhw, with an optional GPIO gate enable per phase.
package bbpwm

import (
	"errors"
	"fmt"
	"time"

	"motorcode-go/drivers/sixstep"
)

// PWM is the line surface the sink drives; bbhw.PWMLine and bbhw.FakePWMPin
// both provide it.
type PWM interface {
	SetPWM(period, duty time.Duration)
	DisablePWM()
}

// StatePin is the enable-line surface; bbhw.MMappedGPIO and bbhw.SysfsGPIO
// both provide it.
type StatePin interface {
	SetState(state bool) error
}

// Phase is the line pair for one motor phase. Enable may be nil; floating
// then only disables the PWM line.
type Phase struct {
	Line   PWM
	Enable StatePin
}

// Sink applies commutation frames to BeagleBone PWM lines. It implements
// sixstep.PhaseSink.
type Sink struct {
	period uint16
	cycle  time.Duration
	phases [sixstep.NumPhases]Phase
}

var (
	errZeroPeriod = errors.New("bbpwm: zero PWM period")
	errNoLine     = errors.New("bbpwm: phase without a PWM line")
)

// New returns a sink scaling compare values out of period onto the hardware
// PWM cycle. A zero cycle selects 40us (25kHz).
func New(period uint16, cycle time.Duration, phases [sixstep.NumPhases]Phase) (*Sink, error) {
	if period == 0 {
		return nil, errZeroPeriod
	}
	for _, ph := range phases {
		if ph.Line == nil {
			return nil, errNoLine
		}
	}
	if cycle <= 0 {
		cycle = 40 * time.Microsecond
	}
	return &Sink{period: period, cycle: cycle, phases: phases}, nil
}

// Commit applies one frame, phase by phase.
func (s *Sink) Commit(f sixstep.Frame) error {
	for i, cmd := range f {
		if err := s.apply(s.phases[i], cmd); err != nil {
			return fmt.Errorf("bbpwm: phase %v: %w", sixstep.Phase(i), err)
		}
	}
	return nil
}

// Halt floats all three phases.
func (s *Sink) Halt() error {
	return s.Commit(sixstep.SafeFrame())
}

func (s *Sink) apply(ph Phase, cmd sixstep.PhaseCommand) error {
	if cmd.Mode == sixstep.OutputFloat {
		// The enable line drops before the line stops switching.
		if ph.Enable != nil {
			if err := ph.Enable.SetState(false); err != nil {
				return err
			}
		}
		ph.Line.DisablePWM()
		return nil
	}

	switch cmd.Mode {
	case sixstep.OutputLow:
		ph.Line.SetPWM(s.cycle, 0)
	case sixstep.OutputHigh:
		ph.Line.SetPWM(s.cycle, s.cycle)
	case sixstep.OutputPWM:
		ph.Line.SetPWM(s.cycle, s.scale(cmd.Compare))
	}
	if ph.Enable != nil {
		return ph.Enable.SetState(true)
	}
	return nil
}

func (s *Sink) scale(compare uint16) time.Duration {
	if compare >= s.period {
		return s.cycle
	}
	return s.cycle * time.Duration(compare) / time.Duration(s.period)
}
