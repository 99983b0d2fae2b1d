// Package sixstep implements open-loop six-step trapezoidal commutation
// for a three-phase BLDC motor.
//
// Design notes:
//
//   - Single execution context. The owner delivers time as calls to Tick
//     and commands as plain method calls; none of them may interleave. The
//     driver owns no goroutines and never blocks.
//   - The commutation scheduler divides the external tick rate by the
//     current inter-step period, so every timing constant is in tick units
//     and the package needs no clock of its own.
//   - Startup is blind: a fixed duty and a decaying step period drag the
//     rotor along until it can follow at the high-speed target. There is
//     no feedback anywhere.
//   - The sector index survives stop/start cycles.
//   - Duty 0 always commits the all-off composite and leaves the sector
//     index untouched.
package sixstep

import "motorcode-go/x/mathx"

// ---------------- Drive state ----------------

// State is the drive's coarse mode.
type State uint8

const (
	Off State = iota
	RampUp
	On
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case RampUp:
		return "ramp_up"
	case On:
		return "on"
	default:
		return "?"
	}
}

// ---------------- Driver ----------------

// Driver runs the commutation state machine against a PhaseSink.
type Driver struct {
	cfg  Config
	sink PhaseSink

	state      State
	seq        Sequencer
	ramp       rampState
	duty       uint16
	manualDuty uint16
	tickCount  uint16
}

// New validates cfg and binds a driver to its phase output sink. The
// driver starts in Off with the outputs untouched; Stop or the first
// commutation event in Off commits the all-off composite.
func New(cfg Config, sink PhaseSink) (*Driver, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	d := &Driver{cfg: cfg, sink: sink}
	d.ramp.reset(&d.cfg)
	return d, nil
}

// Config returns the normalized configuration in effect.
func (d *Driver) Config() Config { return d.cfg }

// ---------------- Commands ----------------

// SpeedUp arms the drive when it is Off, or shortens the commutation
// period by one unit when it is On. Ignored during RampUp.
func (d *Driver) SpeedUp() {
	switch d.state {
	case Off:
		d.arm()
	case On:
		d.ramp.period = mathx.SubFloor(d.ramp.period, d.cfg.RampUnit, d.cfg.ManualMinPeriod)
	}
}

// SlowDown arms the drive when it is Off (either speed command starts a
// run), or lengthens the commutation period by one unit when it is On.
// Ignored during RampUp.
func (d *Driver) SlowDown() {
	switch d.state {
	case Off:
		d.arm()
	case On:
		d.ramp.period = mathx.AddCap(d.ramp.period, d.cfg.RampUnit, d.cfg.ManualMaxPeriod)
	}
}

func (d *Driver) arm() {
	d.state = RampUp
	d.ramp.reset(&d.cfg)
	d.tickCount = 0
}

// Stop forces Off immediately: duty to zero, period back to the low-speed
// start, and the all-off composite committed to the sink without waiting
// for the next tick. The sector index is kept.
func (d *Driver) Stop() error {
	d.state = Off
	d.duty = 0
	d.ramp.reset(&d.cfg)
	d.tickCount = 0
	return d.sink.Commit(SafeFrame())
}

// SetDuty supplies the manual duty source, silently clamped to the PWM
// period. It takes effect in On when ManualDuty is configured and is held
// otherwise.
func (d *Driver) SetDuty(v uint16) {
	d.manualDuty = mathx.Clamp(v, 0, d.cfg.PWMPeriod)
}

// ---------------- Tick ----------------

// Tick advances the drive by one time-base tick: it applies the state's
// duty policy, moves the ramp along, and commutates when the inter-step
// period has elapsed. The returned error is the sink's, if any; driver
// state has already advanced when one is reported.
func (d *Driver) Tick() error {
	switch d.state {
	case Off:
		d.duty = 0
	case RampUp:
		d.duty = d.cfg.RampDuty
		if d.ramp.tick(&d.cfg) {
			d.state = On
			d.duty = d.onDuty()
		}
	case On:
		d.duty = d.onDuty()
	}

	d.tickCount++
	if d.tickCount >= d.ramp.period {
		d.tickCount = 0
		return d.commutate()
	}
	return nil
}

func (d *Driver) onDuty() uint16 {
	if d.cfg.ManualDuty {
		return d.manualDuty
	}
	return d.cfg.RunDuty
}

// commutate runs one commutation event: the all-off composite at zero
// duty, otherwise the next sector's frame at the commanded duty.
func (d *Driver) commutate() error {
	if d.duty == 0 {
		return d.sink.Commit(SafeFrame())
	}
	return d.sink.Commit(TranslateFrame(d.seq.Step(), d.duty, d.cfg.PWMPeriod))
}

// ---------------- Observation ----------------

func (d *Driver) State() State   { return d.state }
func (d *Driver) Period() uint16 { return d.ramp.period }
func (d *Driver) Duty() uint16   { return d.duty }
func (d *Driver) Sector() uint8  { return d.seq.Sector() }

// Snapshot is the observable drive state, collected for telemetry.
type Snapshot struct {
	State  State
	Period uint16
	Duty   uint16
	Sector uint8
}

// Snapshot collects the current state in one call.
func (d *Driver) Snapshot() Snapshot {
	return Snapshot{
		State:  d.state,
		Period: d.ramp.period,
		Duty:   d.duty,
		Sector: d.seq.Sector(),
	}
}
