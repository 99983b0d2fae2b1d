// hal/sim.go
//go:build !rp2040 && !rp2350

package hal

import (
	"sync"
	"time"
)

// SimLine is the host-side line. Set plays the external signal: matching
// flanks run the watcher callback through the glitch filter, the way the
// pin hardware would.
type SimLine struct {
	mu     sync.Mutex
	num    int
	hi     bool
	driven bool
	trig   Trigger
	notify func()
	filter time.Duration
	fired  time.Time
}

func (l *SimLine) Input(Bias) error {
	l.mu.Lock()
	l.driven = false
	l.mu.Unlock()
	return nil
}

func (l *SimLine) Output(initial bool) error {
	l.mu.Lock()
	l.driven = true
	l.hi = initial
	l.mu.Unlock()
	return nil
}

func (l *SimLine) Set(on bool) {
	l.mu.Lock()
	rose := on && !l.hi
	fell := l.hi && !on
	l.hi = on
	hit := false
	switch l.trig {
	case TriggerRise:
		hit = rose
	case TriggerFall:
		hit = fell
	case TriggerBoth:
		hit = rose || fell
	}
	if !hit || l.notify == nil {
		l.mu.Unlock()
		return
	}
	now := time.Now()
	if l.filter > 0 && now.Sub(l.fired) < l.filter {
		l.mu.Unlock()
		return
	}
	l.fired = now
	fn := l.notify
	l.mu.Unlock()
	fn() // outside the lock, like an ISR
}

func (l *SimLine) Get() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hi
}

func (l *SimLine) Number() int { return l.num }

func (l *SimLine) Watch(t Trigger, fn func()) error {
	l.mu.Lock()
	l.trig, l.notify = t, fn
	l.mu.Unlock()
	return nil
}

func (l *SimLine) Unwatch() error {
	l.mu.Lock()
	l.trig, l.notify = TriggerNone, nil
	l.mu.Unlock()
	return nil
}

// SetGlitchFilter drops flanks closer together than d, standing in for
// the debounce hardware in front of a real pin.
func (l *SimLine) SetGlitchFilter(d time.Duration) {
	l.mu.Lock()
	l.filter = d
	l.mu.Unlock()
}

// SimBank creates lines on first use and keeps handing back the same
// instance per number.
type SimBank struct {
	mu    sync.Mutex
	lines map[int]*SimLine
}

func (b *SimBank) Line(n int) (Line, bool) {
	return b.At(n), true
}

// At returns the underlying *SimLine so tests can play the signal side.
func (b *SimBank) At(n int) *SimLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lines == nil {
		b.lines = make(map[int]*SimLine)
	}
	l, ok := b.lines[n]
	if !ok {
		l = &SimLine{num: n}
		b.lines[n] = l
	}
	return l
}

// DefaultBank is the host GPIO bank.
func DefaultBank() Bank { return &SimBank{} }
