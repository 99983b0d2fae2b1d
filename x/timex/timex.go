package timex

import (
	"time"

	"motorcode-go/x/mathx"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// PeriodFromHz converts a frequency to its period in nanoseconds, treating
// 0 Hz as 1 Hz so callers never divide by zero.
func PeriodFromHz(freqHz uint32) uint64 {
	hz := uint64(freqHz)
	if hz == 0 {
		hz = 1
	}
	return 1_000_000_000 / hz
}

// StepHz returns the commutation step rate (rounded, in Hz) for a time base
// running at tick and an inter-step period measured in ticks.
func StepHz(tick time.Duration, period uint16) uint32 {
	den := uint64(tick.Nanoseconds()) * uint64(period)
	if den == 0 {
		return 0
	}
	return uint32(mathx.RoundDiv(uint64(1_000_000_000), den))
}

// ElectricalRPM returns electrical revolutions per minute for a six-step
// cycle at the given tick and inter-step period. Divide by pole pairs for
// shaft RPM.
func ElectricalRPM(tick time.Duration, period uint16) uint32 {
	den := uint64(tick.Nanoseconds()) * uint64(period)
	if den == 0 {
		return 0
	}
	// 60 s/min over 6 steps/rev leaves a factor of ten.
	return uint32(mathx.RoundDiv(uint64(10_000_000_000), den))
}
