package types

// ------------------------
// Motor
// ------------------------

// MotorInfo is published retained at motor/info.
type MotorInfo struct {
	Driver          string `json:"driver"` // e.g. "sixstep"
	PWMPeriod       uint16 `json:"pwm_period"`
	LowSpeedPeriod  uint16 `json:"low_speed_period"`
	HighSpeedPeriod uint16 `json:"high_speed_period"`
	TickUs          uint32 `json:"tick_us"`
	ManualDuty      bool   `json:"manual_duty,omitempty"`
}

// MotorTelemetry is published retained at motor/telemetry.
type MotorTelemetry struct {
	State  string `json:"state"` // "off" | "ramp_up" | "on"
	Period uint16 `json:"period"`
	Duty   uint16 `json:"duty"`
	Sector uint8  `json:"sector"`
	StepHz uint32 `json:"step_hz"`
	ERPM   uint32 `json:"erpm"`
	TS     int64  `json:"ts_ms"`
}

// Control payloads (motor/control/<verb>)

// DutySet carries the manual duty level for the "duty" verb.
type DutySet struct {
	Level uint16 `json:"level"` // 0..PWMPeriod, clamped by the driver
}

// ------------------------
// Button (input service)
// ------------------------

// ButtonValue rides on motor/control/<verb> when a press triggers the verb.
type ButtonValue struct {
	Pressed bool `json:"pressed"`
}
