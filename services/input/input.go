// input/input.go
package input

import (
	"context"
	"encoding/json"
	"time"

	"motorcode-go/bus"
	"motorcode-go/errcode"
	"motorcode-go/hal"
	"motorcode-go/types"
	"motorcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

var (
	topicState   = bus.Topic{"input", "state"}
	topicButtons = bus.Topic{"input", "buttons"}
	topicConfig  = bus.Topic{"config", "input"}
	topicControl = bus.Topic{"motor", "control"}
)

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Button binds one GPIO pin to a motor control verb.
type Button struct {
	Pin  int    `json:"pin"`
	Verb string `json:"verb"`
	// ActiveLow selects pull-up wiring: the pin idles high and a press
	// pulls it low.
	ActiveLow bool `json:"active_low,omitempty"`
}

// Config arrives as JSON on config/input.
type Config struct {
	Buttons    []Button `json:"buttons"`
	DebounceMs int      `json:"debounce_ms,omitempty"`
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

// press carries one debounced press from IRQ context into the loop.
type press struct {
	verb string
	pin  int
}

type service struct {
	conn     *bus.Connection
	pins     hal.Bank
	events   chan press
	bound    []hal.Button
	debounce time.Duration
	lastMs   map[int]int64
}

// Start runs the input service until ctx is cancelled. Buttons are bound
// from config; each press publishes motor/control/<verb>.
func Start(ctx context.Context, conn *bus.Connection, pins hal.Bank) error {
	s := &service{conn: conn, pins: pins, events: make(chan press, 8), lastMs: make(map[int]int64)}
	go s.run(ctx)
	return nil
}

func (s *service) run(ctx context.Context) {
	cfgs := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgs)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.unbind()
			return
		case ev := <-s.events:
			if !s.accept(ev.pin) {
				continue
			}
			println("Info: input: pin", ev.pin, "->", ev.verb)
			s.conn.Publish(s.conn.NewMessage(topicControl.Append(ev.verb), types.ButtonValue{Pressed: true}, false))
		case msg, ok := <-cfgs.Channel():
			if !ok {
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				println("Warn: input config rejected:", err.Error())
				s.publishState("fault", "config_decode_failed", err)
				continue
			}
			s.rebind(cfg)
		}
	}
}

// accept applies the software debounce window per pin. Hardware filtering,
// where a pin offers it, runs in front of this; the window still holds on
// ports without one.
func (s *service) accept(pin int) bool {
	now := timex.NowMs()
	if last, ok := s.lastMs[pin]; ok && now-last < s.debounce.Milliseconds() {
		return false
	}
	s.lastMs[pin] = now
	return true
}

func (s *service) rebind(cfg Config) {
	s.unbind()

	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	if debounce == 0 {
		debounce = 20 * time.Millisecond
	}
	s.debounce = debounce

	for _, btn := range cfg.Buttons {
		if btn.Verb == "" {
			continue
		}
		line, ok := s.pins.Line(btn.Pin)
		if !ok {
			println("Warn: input: no pin", btn.Pin)
			continue
		}
		watchable, ok := line.(hal.Button)
		if !ok {
			println("Warn: input: pin", btn.Pin, "cannot report flanks")
			continue
		}

		bias, trig := hal.BiasPullDown, hal.TriggerRise
		if btn.ActiveLow {
			bias, trig = hal.BiasPullUp, hal.TriggerFall
		}
		if err := watchable.Input(bias); err != nil {
			println("Warn: input: pin", btn.Pin, "configure:", err.Error())
			continue
		}
		if gf, ok := line.(interface{ SetGlitchFilter(time.Duration) }); ok {
			gf.SetGlitchFilter(debounce)
		}

		verb, number := btn.Verb, btn.Pin
		if err := watchable.Watch(trig, func() {
			// IRQ context: hand off without blocking or locking.
			select {
			case s.events <- press{verb: verb, pin: number}:
			default:
			}
		}); err != nil {
			println("Warn: input: pin", btn.Pin, "watch:", err.Error())
			continue
		}
		println("Info: input: pin", btn.Pin, "->", btn.Verb, "on", trig.String())
		s.bound = append(s.bound, watchable)
	}

	s.conn.Publish(s.conn.NewMessage(topicButtons, cfg.Buttons, true))
	s.publishState("running", "buttons_bound", nil)
}

func (s *service) unbind() {
	for _, p := range s.bound {
		_ = p.Unwatch()
	}
	s.bound = nil
}

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}
