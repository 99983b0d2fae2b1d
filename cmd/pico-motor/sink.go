// cmd/pico-motor/sink.go
//go:build rp2040 || rp2350

package main

import (
	"machine"

	"motorcode-go/drivers/sixstep"
)

// Pin plan: each phase pairs the A channel of one PWM slice with the
// neighbouring pin as a plain-GPIO gate enable.
//
//	phase U: IN GP6  (PWM3 A), EN GP7
//	phase V: IN GP8  (PWM4 A), EN GP9
//	phase W: IN GP10 (PWM5 A), EN GP11

// pwmCycleNs is the switching period: 25kHz.
const pwmCycleNs = 40_000

// pwmSlice is the part of a machine PWM group the sink drives.
type pwmSlice interface {
	Configure(machine.PWMConfig) error
	Channel(machine.Pin) (uint8, error)
	Set(channel uint8, value uint32)
	Top() uint32
}

type phaseOut struct {
	slice  pwmSlice
	ch     uint8
	enable machine.Pin
}

// pwmSink applies commutation frames to the RP2 PWM slices. It implements
// sixstep.PhaseSink.
type pwmSink struct {
	period uint16
	phases [sixstep.NumPhases]phaseOut
}

func newPWMSink(period uint16) (*pwmSink, error) {
	plan := [sixstep.NumPhases]struct {
		slice  pwmSlice
		in     machine.Pin
		enable machine.Pin
	}{
		{machine.PWM3, machine.Pin(6), machine.Pin(7)},
		{machine.PWM4, machine.Pin(8), machine.Pin(9)},
		{machine.PWM5, machine.Pin(10), machine.Pin(11)},
	}

	s := &pwmSink{period: period}
	for i, p := range plan {
		if err := p.slice.Configure(machine.PWMConfig{Period: pwmCycleNs}); err != nil {
			return nil, err
		}
		ch, err := p.slice.Channel(p.in)
		if err != nil {
			return nil, err
		}
		p.enable.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.enable.Low()
		s.phases[i] = phaseOut{slice: p.slice, ch: ch, enable: p.enable}
	}
	return s, nil
}

// Commit applies one frame, phase by phase.
func (s *pwmSink) Commit(f sixstep.Frame) error {
	for i := range f {
		s.apply(&s.phases[i], f[i])
	}
	return nil
}

func (s *pwmSink) apply(ph *phaseOut, cmd sixstep.PhaseCommand) {
	switch cmd.Mode {
	case sixstep.OutputLow:
		ph.slice.Set(ph.ch, 0)
		ph.enable.High()
	case sixstep.OutputHigh:
		ph.slice.Set(ph.ch, ph.slice.Top())
		ph.enable.High()
	case sixstep.OutputPWM:
		ph.slice.Set(ph.ch, s.scale(cmd.Compare, ph.slice.Top()))
		ph.enable.High()
	default:
		// Gate driver off before the input level changes.
		ph.enable.Low()
		ph.slice.Set(ph.ch, 0)
	}
}

// scale maps a compare value out of the drive period onto the slice's
// counter range.
func (s *pwmSink) scale(compare uint16, top uint32) uint32 {
	if compare >= s.period {
		return top
	}
	return uint32(uint64(compare) * uint64(top) / uint64(s.period))
}
