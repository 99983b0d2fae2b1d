// cmd/motord/pins.go
package main

import (
	"strconv"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"motorcode-go/hal"
)

// edgePoll bounds how long an edge watcher sleeps between stop checks.
const edgePoll = 500 * time.Millisecond

// hostPins resolves button pins through periph's registry so the input
// service can bind real header GPIOs by number ("GPIO12" style names).
func hostPins() (hal.Bank, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return periphBank{}, nil
}

type periphBank struct{}

func (periphBank) Line(n int) (hal.Line, bool) {
	p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
	if p == nil {
		return nil, false
	}
	return &periphLine{pin: p, n: n}, true
}

// periphLine adapts one periph pin to the hal surface. Flank watching runs
// as a WaitForEdge goroutine because the host GPIO drivers have no
// callback interface. All methods are called from the input service loop.
type periphLine struct {
	pin      gpio.PinIO
	n        int
	pull     gpio.Pull
	debounce time.Duration
	stop     chan struct{}
}

func (p *periphLine) Input(b hal.Bias) error {
	p.pull = toGPIOPull(b)
	return p.pin.In(p.pull, gpio.NoEdge)
}

func (p *periphLine) Output(initial bool) error {
	return p.pin.Out(gpio.Level(initial))
}

func (p *periphLine) Set(on bool) { _ = p.pin.Out(gpio.Level(on)) }
func (p *periphLine) Get() bool   { return p.pin.Read() == gpio.High }
func (p *periphLine) Number() int { return p.n }

// SetGlitchFilter suppresses flanks closer together than d. Host GPIO has
// no filter hardware, so the watcher enforces the window itself.
func (p *periphLine) SetGlitchFilter(d time.Duration) { p.debounce = d }

func (p *periphLine) Watch(t hal.Trigger, fn func()) error {
	if err := p.Unwatch(); err != nil {
		return err
	}
	if err := p.pin.In(p.pull, toGPIOEdge(t)); err != nil {
		return err
	}
	p.stop = make(chan struct{})
	go watchEdges(p.pin, p.debounce, p.stop, fn)
	return nil
}

func (p *periphLine) Unwatch() error {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	return p.pin.In(p.pull, gpio.NoEdge)
}

// watchEdges calls fn on each detected edge until stop closes. The finite
// timeout keeps teardown from hanging on a quiet pin.
func watchEdges(pin gpio.PinIO, debounce time.Duration, stop chan struct{}, fn func()) {
	var last time.Time
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !pin.WaitForEdge(edgePoll) {
			continue
		}
		if debounce > 0 && time.Since(last) < debounce {
			continue
		}
		last = time.Now()
		fn()
	}
}

func toGPIOPull(b hal.Bias) gpio.Pull {
	switch b {
	case hal.BiasPullUp:
		return gpio.PullUp
	case hal.BiasPullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func toGPIOEdge(t hal.Trigger) gpio.Edge {
	switch t {
	case hal.TriggerRise:
		return gpio.RisingEdge
	case hal.TriggerFall:
		return gpio.FallingEdge
	case hal.TriggerBoth:
		return gpio.BothEdges
	default:
		return gpio.NoEdge
	}
}
