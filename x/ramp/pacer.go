package ramp

import "golang.org/x/exp/constraints"

// Pacer spaces out unit steps with a geometrically shrinking stride:
// the first steps arrive slowly, later ones at the floor stride. Feed it
// ticks; it reports when a step is due. The caller applies the step.
//
// The stride sequence is S, S, S/2, S/4, ... floor (the countdown is
// reloaded from the current stride before the stride halves).
type Pacer[T constraints.Unsigned] struct {
	stride    T
	floor     T
	countdown T
}

// NewPacer returns a pacer with the given initial and floor strides.
// A zero initial stride fires on every tick. floor is raised to 1 so the
// halving sequence terminates.
func NewPacer[T constraints.Unsigned](initial, floor T) *Pacer[T] {
	p := &Pacer[T]{}
	p.Reset(initial, floor)
	return p
}

// Reset restarts the schedule from the initial stride.
func (p *Pacer[T]) Reset(initial, floor T) {
	if floor == 0 {
		floor = 1
	}
	if initial < floor {
		initial = floor
	}
	p.stride = initial
	p.floor = floor
	p.countdown = initial
}

// Tick consumes one tick and reports whether a step is due.
func (p *Pacer[T]) Tick() bool {
	if p.countdown > 1 {
		p.countdown--
		return false
	}
	p.countdown = p.stride
	half := p.stride / 2
	if half < p.floor {
		half = p.floor
	}
	p.stride = half
	return true
}

// Stride returns the stride that will load at the next step.
func (p *Pacer[T]) Stride() T { return p.stride }
