package sixstep

import (
	"errors"

	"motorcode-go/x/mathx"
)

// ---------------- Errors ----------------

// Sentinel errors (TinyGo-safe; no fmt).
var (
	ErrNilSink       = errors.New("sixstep: nil phase sink")
	ErrZeroPWMPeriod = errors.New("sixstep: PWM period is zero")
	ErrPeriodWindow  = errors.New("sixstep: high-speed period above low-speed period")
)

// ---------------- Configuration ----------------

// Config carries the timing and duty constants of the drive. Periods are in
// ticks of the external time base, duties in PWM counter counts out of
// PWMPeriod.
type Config struct {
	// PWMPeriod is the counter top of the PWM peripheral; full scale for
	// every duty value below.
	PWMPeriod uint16

	// RampDuty drives the windings during RAMP_UP. RunDuty takes over in
	// ON unless ManualDuty is set.
	RampDuty uint16
	RunDuty  uint16

	// LowSpeedPeriod is the inter-step period a run starts from;
	// HighSpeedPeriod is the target the ramp decays to.
	LowSpeedPeriod  uint16
	HighSpeedPeriod uint16

	// ManualMinPeriod and ManualMaxPeriod bound the period nudges applied
	// by speed commands in ON.
	ManualMinPeriod uint16
	ManualMaxPeriod uint16

	// RampUnit is the period decrement per ramp step. RampStride is the
	// initial tick count between ramp steps; it halves down to
	// RampStrideFloor as the ramp progresses.
	RampUnit        uint16
	RampStride      uint16
	RampStrideFloor uint16

	// ManualDuty routes the duty source in ON to SetDuty instead of
	// RunDuty.
	ManualDuty bool
}

// DefaultConfig mirrors the reference hardware tuning: 8-bit duty scale,
// 50% ramp drive, 25% run drive, a 512 to 80 tick open-loop window.
func DefaultConfig() Config {
	return Config{
		PWMPeriod:       256,
		RampDuty:        128,
		RunDuty:         64,
		LowSpeedPeriod:  512,
		HighSpeedPeriod: 80,
		ManualMinPeriod: 64,
		ManualMaxPeriod: 512,
		RampUnit:        1,
		RampStride:      64,
		RampStrideFloor: 8,
	}
}

// normalize defaults zero values, clamps fixable ones into range and
// rejects combinations no run could complete with.
func (c *Config) normalize() error {
	if c.PWMPeriod == 0 {
		return ErrZeroPWMPeriod
	}
	def := DefaultConfig()
	if c.LowSpeedPeriod == 0 {
		c.LowSpeedPeriod = def.LowSpeedPeriod
	}
	if c.HighSpeedPeriod == 0 {
		c.HighSpeedPeriod = def.HighSpeedPeriod
	}
	if c.HighSpeedPeriod > c.LowSpeedPeriod {
		return ErrPeriodWindow
	}
	c.RampDuty = mathx.Clamp(c.RampDuty, 0, c.PWMPeriod)
	c.RunDuty = mathx.Clamp(c.RunDuty, 0, c.PWMPeriod)
	if c.RampUnit == 0 {
		c.RampUnit = 1
	}
	if c.ManualMinPeriod == 0 {
		c.ManualMinPeriod = 1
	}
	if c.ManualMaxPeriod == 0 {
		c.ManualMaxPeriod = c.LowSpeedPeriod
	}
	if c.ManualMaxPeriod < c.ManualMinPeriod {
		c.ManualMaxPeriod = c.ManualMinPeriod
	}
	// Stride 0 and floor 0 are handled by the pacer: every-tick stepping
	// and a floor of 1.
	return nil
}
