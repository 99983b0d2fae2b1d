package sixstep

import (
	"motorcode-go/x/mathx"
	"motorcode-go/x/ramp"
)

// rampState paces the open-loop decay of the commutation period from the
// low-speed start toward the high-speed target. The decay is geometric up
// front and settles to a linear tail once the pacer stride hits its floor.
type rampState struct {
	period uint16
	pacer  ramp.Pacer[uint16]
}

func (r *rampState) reset(cfg *Config) {
	r.period = cfg.LowSpeedPeriod
	r.pacer.Reset(cfg.RampStride, cfg.RampStrideFloor)
}

// tick advances the decay by one time-base tick and reports whether the
// target period has been reached.
func (r *rampState) tick(cfg *Config) bool {
	if r.period <= cfg.HighSpeedPeriod {
		return true
	}
	if r.pacer.Tick() {
		r.period = mathx.SubFloor(r.period, cfg.RampUnit, cfg.HighSpeedPeriod)
	}
	return r.period <= cfg.HighSpeedPeriod
}
