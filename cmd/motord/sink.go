// cmd/motord/sink.go
package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	bbhw "github.com/btittelbach/go-bbhw"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"motorcode-go/drivers/bbpwm"
	"motorcode-go/drivers/gpiopwm"
	"motorcode-go/drivers/sixstep"
)

// buildSink selects and initialises the phase output backend. period is
// the compare range the drive config promises to stay within.
func buildSink(name string, period uint16) (sixstep.PhaseSink, error) {
	switch name {
	case "sim":
		return &simSink{}, nil
	case "gpio":
		return buildGPIOSink(period)
	case "bbb":
		return buildBBSink(period)
	default:
		return nil, fmt.Errorf("unknown sink %q", name)
	}
}

// simSink keeps the most recent frame for the console watcher. Unlike the
// test recorder it holds no history, so it can run for days.
type simSink struct {
	mu      sync.Mutex
	last    sixstep.Frame
	commits uint64
}

func (s *simSink) Commit(f sixstep.Frame) error {
	s.mu.Lock()
	s.last = f
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *simSink) Snapshot() (sixstep.Frame, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.commits
}

func buildGPIOSink(period uint16) (sixstep.PhaseSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pins, err := splitN(*gpioPins, "gpio-pins")
	if err != nil {
		return nil, err
	}
	var phases [sixstep.NumPhases]gpiopwm.PhaseOut
	for i, name := range pins {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no such pin %q", name)
		}
		phases[i].PWM = p
	}
	if *gpioEnables != "" {
		ens, err := splitN(*gpioEnables, "gpio-enables")
		if err != nil {
			return nil, err
		}
		for i, name := range ens {
			p := gpioreg.ByName(name)
			if p == nil {
				return nil, fmt.Errorf("no such pin %q", name)
			}
			if err := p.Out(gpio.Low); err != nil {
				return nil, err
			}
			phases[i].Enable = p
		}
	}
	return gpiopwm.New(period, 0, phases)
}

func buildBBSink(period uint16) (sixstep.PhaseSink, error) {
	lines, err := splitN(*bbPins, "bb-pins")
	if err != nil {
		return nil, err
	}
	var phases [sixstep.NumPhases]bbpwm.Phase
	for i, name := range lines {
		pwm, err := bbhw.NewBBBPWM(name)
		if err != nil {
			return nil, fmt.Errorf("pwm %s: %w", name, err)
		}
		phases[i].Line = pwm
	}
	if *bbEnables != "" {
		nums, err := splitN(*bbEnables, "bb-enables")
		if err != nil {
			return nil, err
		}
		for i, s := range nums {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("bb-enables: %w", err)
			}
			phases[i].Enable = bbhw.NewMMappedGPIO(uint(n), bbhw.OUT)
		}
	}
	return bbpwm.New(period, 0, phases)
}

// splitN parses a comma list that must name one entry per phase.
func splitN(s, flagName string) ([]string, error) {
	parts := strings.Split(s, ",")
	if len(parts) != sixstep.NumPhases {
		return nil, errors.New("-" + flagName + " needs exactly " +
			strconv.Itoa(sixstep.NumPhases) + " comma-separated entries")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}
