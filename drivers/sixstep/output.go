package sixstep

import "motorcode-go/x/mathx"

// ---------------- Phase commands ----------------

// OutputMode selects how one phase output is driven at the peripheral.
type OutputMode uint8

const (
	OutputFloat OutputMode = iota // high impedance, gate driver disabled
	OutputLow                     // held at the low rail
	OutputHigh                    // held at the high rail
	OutputPWM                     // switching at Compare counts per period
)

func (m OutputMode) String() string {
	switch m {
	case OutputFloat:
		return "float"
	case OutputLow:
		return "low"
	case OutputHigh:
		return "high"
	case OutputPWM:
		return "pwm"
	default:
		return "?"
	}
}

// PhaseCommand is the concrete command for one phase output. Compare
// carries the rail value for OutputLow (0) and OutputHigh (the PWM period),
// so a complementary pair of commands always sums to the period.
type PhaseCommand struct {
	Mode    OutputMode
	Compare uint16
}

// Frame is the full three-phase command applied at one commutation event.
type Frame [NumPhases]PhaseCommand

// SafeFrame returns the all-off composite: every phase floating with its
// gate driver disabled.
func SafeFrame() Frame {
	return Frame{}
}

// ---------------- Output capabilities ----------------

// PhaseSink applies a frame to the output peripheral. A frame is applied as
// one update; implementations with a hardware latch must use it so a torn
// frame is never visible across a PWM cycle. Commit must be callable from
// the driver's tick context.
type PhaseSink interface {
	Commit(f Frame) error
}

// PhasePin is the single-pin capability used when no grouped peripheral is
// available: rail force, PWM compare, or full disable.
type PhasePin interface {
	SetLevel(high bool) error
	SetCompare(v uint16) error
	Disable() error
}

// PinSink adapts three PhasePins into a PhaseSink. Application is
// sequential in phase order; prefer a latched sink where the hardware has
// one.
type PinSink struct {
	Pins [NumPhases]PhasePin
}

func (s *PinSink) Commit(f Frame) error {
	for i, cmd := range f {
		if err := applyPin(s.Pins[i], cmd); err != nil {
			return err
		}
	}
	return nil
}

func applyPin(p PhasePin, cmd PhaseCommand) error {
	switch cmd.Mode {
	case OutputLow:
		return p.SetLevel(false)
	case OutputHigh:
		return p.SetLevel(true)
	case OutputPWM:
		return p.SetCompare(cmd.Compare)
	default:
		return p.Disable()
	}
}

// ---------------- Translation ----------------

// Translate maps one drive intent at the commanded duty to a phase command.
// duty is clamped to [0, period] first; clamping is silent. Saturated duty
// degrades to a rail force, never a 0% or 100% PWM request.
func Translate(in Intent, duty, period uint16) PhaseCommand {
	d := mathx.Clamp(duty, 0, period)
	switch in {
	case IntentForceLow:
		return PhaseCommand{Mode: OutputLow}
	case IntentForceHigh:
		return PhaseCommand{Mode: OutputHigh, Compare: period}
	case IntentForward:
		switch {
		case d == 0:
			return PhaseCommand{Mode: OutputLow}
		case d >= period:
			return PhaseCommand{Mode: OutputHigh, Compare: period}
		}
		return PhaseCommand{Mode: OutputPWM, Compare: d}
	case IntentInverted:
		switch {
		case d == 0:
			return PhaseCommand{Mode: OutputHigh, Compare: period}
		case d >= period:
			return PhaseCommand{Mode: OutputLow}
		}
		return PhaseCommand{Mode: OutputPWM, Compare: period - d}
	default:
		return PhaseCommand{}
	}
}

// TranslateFrame translates a full sector's intents at the given duty.
func TranslateFrame(in Intents, duty, period uint16) Frame {
	var f Frame
	for i := range in {
		f[i] = Translate(in[i], duty, period)
	}
	return f
}
