package sixstep

// ---------------- Phases and drive intents ----------------

const (
	// NumPhases is fixed by the motor topology.
	NumPhases = 3
	// SectorCount is one electrical revolution in commutation steps.
	SectorCount = 6
)

type Phase uint8

const (
	PhaseA Phase = iota
	PhaseB
	PhaseC
)

func (p Phase) String() string {
	switch p {
	case PhaseA:
		return "A"
	case PhaseB:
		return "B"
	case PhaseC:
		return "C"
	default:
		return "?"
	}
}

// Intent is the per-phase drive request for one sector, before duty is
// applied.
type Intent uint8

const (
	IntentFloat    Intent = iota // high impedance, gate driver disabled
	IntentForceLow               // held at the low rail
	IntentForceHigh              // held at the high rail
	IntentForward                // PWM at the commanded duty
	IntentInverted               // PWM at the complement of the commanded duty
)

func (i Intent) String() string {
	switch i {
	case IntentFloat:
		return "float"
	case IntentForceLow:
		return "force_low"
	case IntentForceHigh:
		return "force_high"
	case IntentForward:
		return "forward"
	case IntentInverted:
		return "inverted"
	default:
		return "?"
	}
}

// Intents is one sector's drive request for all three phases.
type Intents [NumPhases]Intent

// sectorTable is the standard six-step trapezoidal pattern: per sector one
// phase sources PWM, one sinks at the low rail, one floats.
var sectorTable = [SectorCount]Intents{
	{IntentForward, IntentForceLow, IntentFloat},
	{IntentForward, IntentFloat, IntentForceLow},
	{IntentFloat, IntentForward, IntentForceLow},
	{IntentForceLow, IntentForward, IntentFloat},
	{IntentForceLow, IntentFloat, IntentForward},
	{IntentFloat, IntentForceLow, IntentForward},
}

// ---------------- Sequencer ----------------

// Sequencer owns the commutation sector index. The index wraps modulo
// SectorCount and is never reset between runs: phase continuity across
// stop/start cycles is deliberate.
type Sequencer struct {
	sector uint8
}

// Sector returns the current sector index in [0, SectorCount).
func (s *Sequencer) Sector() uint8 { return s.sector }

// Step advances to the next sector and returns its drive intents. Callers
// must not Step while the commanded duty is 0; zero-duty commutation events
// take the all-off composite instead.
func (s *Sequencer) Step() Intents {
	s.sector = (s.sector + 1) % SectorCount
	return sectorTable[s.sector]
}
