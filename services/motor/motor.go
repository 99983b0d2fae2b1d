// motor/motor.go
package motor

import (
	"context"
	"encoding/json"
	"time"

	"motorcode-go/bus"
	"motorcode-go/drivers/sixstep"
	"motorcode-go/errcode"
	"motorcode-go/types"
	"motorcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

var (
	topicControl   = bus.Topic{"motor", "control", "+"}
	topicTelemetry = bus.Topic{"motor", "telemetry"}
	topicState     = bus.Topic{"motor", "state"}
	topicInfo      = bus.Topic{"motor", "info"}
	topicConfig    = bus.Topic{"config", "motor"}
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Options tune the service around the drive. Zero values select defaults.
type Options struct {
	// Tick is the drive time base. Every timing constant in the drive
	// config is a multiple of it.
	Tick time.Duration

	// TelemetryEvery is the number of ticks between telemetry publishes.
	TelemetryEvery int

	// Ticks overrides the internal ticker; mainly for tests and platforms
	// with a hardware time base.
	Ticks <-chan time.Time
}

// Start validates cfg, binds the drive to sink and runs the service until
// ctx is cancelled. Control verbs arrive on motor/control/<verb>; telemetry,
// state and info are published retained.
func Start(ctx context.Context, conn *bus.Connection, cfg sixstep.Config, sink sixstep.PhaseSink, opts Options) error {
	drv, err := sixstep.New(cfg, sink)
	if err != nil {
		return err
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Millisecond
	}
	if opts.TelemetryEvery <= 0 {
		opts.TelemetryEvery = 250
	}
	s := &service{conn: conn, drv: drv, sink: sink, opts: opts}
	go s.run(ctx)
	return nil
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Config arrives as JSON on config/motor. Zero fields keep the drive
// defaults.
type Config struct {
	PWMPeriod       uint16 `json:"pwm_period,omitempty"`
	RampDuty        uint16 `json:"ramp_duty,omitempty"`
	RunDuty         uint16 `json:"run_duty,omitempty"`
	LowSpeedPeriod  uint16 `json:"low_speed_period,omitempty"`
	HighSpeedPeriod uint16 `json:"high_speed_period,omitempty"`
	ManualMinPeriod uint16 `json:"manual_min_period,omitempty"`
	ManualMaxPeriod uint16 `json:"manual_max_period,omitempty"`
	RampUnit        uint16 `json:"ramp_unit,omitempty"`
	RampStride      uint16 `json:"ramp_stride,omitempty"`
	RampStrideFloor uint16 `json:"ramp_stride_floor,omitempty"`
	ManualDuty      bool   `json:"manual_duty,omitempty"`

	TickUs         uint32 `json:"tick_us,omitempty"`
	TelemetryEvery int    `json:"telemetry_every,omitempty"`
}

func (c Config) drive() sixstep.Config {
	out := sixstep.DefaultConfig()
	if c.PWMPeriod != 0 {
		out.PWMPeriod = c.PWMPeriod
	}
	if c.RampDuty != 0 {
		out.RampDuty = c.RampDuty
	}
	if c.RunDuty != 0 {
		out.RunDuty = c.RunDuty
	}
	if c.LowSpeedPeriod != 0 {
		out.LowSpeedPeriod = c.LowSpeedPeriod
	}
	if c.HighSpeedPeriod != 0 {
		out.HighSpeedPeriod = c.HighSpeedPeriod
	}
	if c.ManualMinPeriod != 0 {
		out.ManualMinPeriod = c.ManualMinPeriod
	}
	if c.ManualMaxPeriod != 0 {
		out.ManualMaxPeriod = c.ManualMaxPeriod
	}
	if c.RampUnit != 0 {
		out.RampUnit = c.RampUnit
	}
	if c.RampStride != 0 {
		out.RampStride = c.RampStride
	}
	if c.RampStrideFloor != 0 {
		out.RampStrideFloor = c.RampStrideFloor
	}
	out.ManualDuty = c.ManualDuty
	return out
}

func decodeConfig(p any) (Config, error) {
	var raw []byte
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]any:
		// Decoded upstream (eg. by the config service); re-marshal for
		// simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return Config{}, err
		}
		raw = b
	default:
		return Config{}, errcode.InvalidPayload
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Service loop
// -----------------------------------------------------------------------------

type service struct {
	conn *bus.Connection
	drv  *sixstep.Driver
	sink sixstep.PhaseSink
	opts Options

	ticker    *time.Ticker
	tickCount uint32
	prevState sixstep.State
	faulted   bool
}

func (s *service) run(ctx context.Context) {
	ctlSub := s.conn.Subscribe(topicControl)
	defer s.conn.Unsubscribe(ctlSub)
	cfgs := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgs)

	ticks := s.opts.Ticks
	if ticks == nil {
		s.ticker = time.NewTicker(s.opts.Tick)
		defer s.ticker.Stop()
		ticks = s.ticker.C
	}

	s.publishInfo()
	s.publishTelemetry()
	s.publishState("idle", "ready", nil)

	for {
		select {
		case <-ctx.Done():
			if err := s.drv.Stop(); err != nil {
				println("Warn: motor stop on shutdown:", err.Error())
			}
			s.publishState("idle", "stopped", nil)
			return
		case <-ticks:
			s.tick()
		case msg, ok := <-ctlSub.Channel():
			if !ok {
				return
			}
			s.handleControl(msg)
		case msg, ok := <-cfgs.Channel():
			if !ok {
				return
			}
			s.reconfigure(msg)
		}
	}
}

func (s *service) tick() {
	s.noteDriveError(s.drv.Tick())
	s.tickCount++
	if s.tickCount%uint32(s.opts.TelemetryEvery) == 0 {
		s.publishTelemetry()
	}
	s.noteStateChange()
}

// -----------------------------------------------------------------------------
// Control verbs
// -----------------------------------------------------------------------------

func (s *service) handleControl(msg *bus.Message) {
	var err error
	switch verbOf(msg.Topic) {
	case "speed_up":
		s.drv.SpeedUp()
	case "slow_down":
		s.drv.SlowDown()
	case "stop":
		err = s.drv.Stop()
	case "duty":
		var lvl uint16
		if lvl, err = dutyLevel(msg.Payload); err == nil {
			s.drv.SetDuty(lvl)
		}
	default:
		err = errcode.Unsupported
	}

	if err != nil {
		code := errcode.Of(err)
		if code == errcode.Error {
			// No code means the sink refused: track it as a fault.
			code = errcode.MotorFault
			s.noteDriveError(err)
		}
		s.conn.Reply(msg, types.Reply{Code: string(code)}, false)
		return
	}
	s.noteDriveError(nil)
	s.conn.Reply(msg, types.Reply{OK: true}, false)
	s.publishTelemetry()
	s.noteStateChange()
}

func verbOf(t bus.Topic) string {
	if len(t) == 0 {
		return ""
	}
	v, _ := t[len(t)-1].(string)
	return v
}

func dutyLevel(p any) (uint16, error) {
	switch v := p.(type) {
	case types.DutySet:
		return v.Level, nil
	case *types.DutySet:
		return v.Level, nil
	case uint16:
		return v, nil
	case int:
		if v < 0 {
			return 0, errcode.InvalidParams
		}
		return uint16(min(v, 0xFFFF)), nil
	case float64:
		if v < 0 {
			return 0, errcode.InvalidParams
		}
		return uint16(min(int(v), 0xFFFF)), nil
	case map[string]any:
		if lv, ok := v["level"]; ok {
			return dutyLevel(lv)
		}
		return 0, errcode.InvalidPayload
	default:
		return 0, errcode.InvalidPayload
	}
}

// -----------------------------------------------------------------------------
// Reconfiguration
// -----------------------------------------------------------------------------

func (s *service) reconfigure(msg *bus.Message) {
	cfg, err := decodeConfig(msg.Payload)
	if err != nil {
		println("Warn: motor config rejected:", err.Error())
		s.publishState(s.level(), "config_decode_failed", err)
		return
	}

	drv, err := sixstep.New(cfg.drive(), s.sink)
	if err != nil {
		println("Warn: motor config rejected:", err.Error())
		s.publishState(s.level(), "config_rejected", err)
		return
	}
	// Park the old drive before the swap.
	if err := s.drv.Stop(); err != nil {
		println("Warn: motor stop during reconfigure:", err.Error())
	}
	s.drv = drv
	s.prevState = drv.State()

	if cfg.TickUs > 0 {
		s.opts.Tick = time.Duration(cfg.TickUs) * time.Microsecond
		if s.ticker != nil {
			s.ticker.Reset(s.opts.Tick)
		}
	}
	if cfg.TelemetryEvery > 0 {
		s.opts.TelemetryEvery = cfg.TelemetryEvery
	}

	println("Info: motor reconfigured")
	s.publishInfo()
	s.publishTelemetry()
	s.publishState("idle", "reconfigured", nil)
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

func (s *service) publishTelemetry() {
	snap := s.drv.Snapshot()
	tel := types.MotorTelemetry{
		State:  snap.State.String(),
		Period: snap.Period,
		Duty:   snap.Duty,
		Sector: snap.Sector,
		TS:     timex.NowMs(),
	}
	if snap.State != sixstep.Off {
		tel.StepHz = timex.StepHz(s.opts.Tick, snap.Period)
		tel.ERPM = timex.ElectricalRPM(s.opts.Tick, snap.Period)
	}
	s.conn.Publish(s.conn.NewMessage(topicTelemetry, tel, true))
}

func (s *service) publishInfo() {
	cfg := s.drv.Config()
	s.conn.Publish(s.conn.NewMessage(topicInfo, types.MotorInfo{
		Driver:          "sixstep",
		PWMPeriod:       cfg.PWMPeriod,
		LowSpeedPeriod:  cfg.LowSpeedPeriod,
		HighSpeedPeriod: cfg.HighSpeedPeriod,
		TickUs:          uint32(s.opts.Tick / time.Microsecond),
		ManualDuty:      cfg.ManualDuty,
	}, true))
}

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}

// noteDriveError publishes fault state on the first commit failure and a
// recovery once commits succeed again.
func (s *service) noteDriveError(err error) {
	if err != nil {
		if !s.faulted {
			s.faulted = true
			println("Error: motor sink commit failed:", err.Error())
			s.publishState("fault", "sink_commit_failed", errcode.Wrap(errcode.MotorFault, err))
		}
		return
	}
	if s.faulted {
		s.faulted = false
		println("Info: motor sink recovered")
		s.publishState(s.level(), "sink_recovered", nil)
	}
}

func (s *service) noteStateChange() {
	st := s.drv.State()
	if st == s.prevState {
		return
	}
	s.prevState = st
	if !s.faulted {
		s.publishState(s.level(), "drive_"+st.String(), nil)
	}
	s.publishTelemetry()
}

func (s *service) level() string {
	if s.faulted {
		return "fault"
	}
	switch s.drv.State() {
	case sixstep.RampUp:
		return "starting"
	case sixstep.On:
		return "running"
	default:
		return "idle"
	}
}
