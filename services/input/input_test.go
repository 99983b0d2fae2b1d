package input

import (
	"context"
	"testing"
	"time"

	"motorcode-go/bus"
	"motorcode-go/hal"
	"motorcode-go/types"
)

type harness struct {
	cli  *bus.Connection
	pins *hal.SimBank
}

func startService(t *testing.T) *harness {
	t.Helper()
	b := bus.NewBus(64)
	h := &harness{
		cli:  b.NewConnection("test"),
		pins: &hal.SimBank{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := Start(ctx, b.NewConnection("input"), h.pins); err != nil {
		t.Fatal(err)
	}

	// The first state message follows the config subscription, so waiting
	// for it means a config publish cannot race past the service.
	st := h.cli.Subscribe(bus.Topic{"input", "state"})
	defer h.cli.Unsubscribe(st)
	awaitState(t, st, func(s types.ServiceState) bool { return s.Status == "awaiting_config" })
	return h
}

// configure publishes cfg and blocks until the service has bound its pins.
func (h *harness) configure(t *testing.T, cfg Config) {
	t.Helper()
	sub := h.cli.Subscribe(bus.Topic{"input", "buttons"})
	defer h.cli.Unsubscribe(sub)
	h.cli.Publish(h.cli.NewMessage(bus.Topic{"config", "input"}, cfg, false))

	deadline := time.After(time.Second)
	for {
		select {
		case m, ok := <-sub.Channel():
			if !ok {
				t.Fatal("buttons subscription closed")
			}
			if btns, ok := m.Payload.([]Button); ok && sameButtons(btns, cfg.Buttons) {
				return
			}
		case <-deadline:
			t.Fatal("service never bound the configured buttons")
		}
	}
}

func sameButtons(a, b []Button) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// press drives a full press on an active-low button: idle high, then the
// falling flank the watcher is armed for.
func press(t *testing.T, pin *hal.SimLine) {
	t.Helper()
	pin.Set(true)
	pin.Set(false)
}

func awaitVerb(t *testing.T, sub *bus.Subscription, verb string) *bus.Message {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m, ok := <-sub.Channel():
			if !ok {
				t.Fatal("control subscription closed")
			}
			if len(m.Topic) == 3 && m.Topic[2] == verb {
				return m
			}
		case <-deadline:
			t.Fatalf("verb %q never published", verb)
		}
	}
}

func assertSilence(t *testing.T, sub *bus.Subscription) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected message on %v", m.Topic)
	case <-time.After(20 * time.Millisecond):
	}
}

func awaitState(t *testing.T, sub *bus.Subscription, pred func(types.ServiceState) bool) types.ServiceState {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m, ok := <-sub.Channel():
			if !ok {
				t.Fatal("state subscription closed")
			}
			if st, ok := m.Payload.(types.ServiceState); ok && pred(st) {
				return st
			}
		case <-deadline:
			t.Fatal("state never matched")
		}
	}
}

func TestStartAwaitsConfig(t *testing.T) {
	h := startService(t)

	st := h.cli.Subscribe(bus.Topic{"input", "state"})
	defer h.cli.Unsubscribe(st)
	s := awaitState(t, st, func(s types.ServiceState) bool { return s.Status == "awaiting_config" })
	if s.Level != "idle" {
		t.Fatalf("level = %q, want idle", s.Level)
	}
}

func TestButtonPressPublishesVerb(t *testing.T) {
	h := startService(t)
	h.configure(t, Config{
		Buttons: []Button{
			{Pin: 2, Verb: "speed_up", ActiveLow: true},
			{Pin: 3, Verb: "stop"},
		},
		DebounceMs: 1,
	})

	ctl := h.cli.Subscribe(bus.Topic{"motor", "control", "+"})
	defer h.cli.Unsubscribe(ctl)

	press(t, h.pins.At(2))
	m := awaitVerb(t, ctl, "speed_up")
	if v, ok := m.Payload.(types.ButtonValue); !ok || !v.Pressed {
		t.Fatalf("payload = %#v, want pressed ButtonValue", m.Payload)
	}

	// Pin 3 is active-high: the rising flank is the press.
	h.pins.At(3).Set(true)
	awaitVerb(t, ctl, "stop")
}

func TestDebounceSuppressesChatter(t *testing.T) {
	h := startService(t)
	h.configure(t, Config{
		Buttons:    []Button{{Pin: 4, Verb: "slow_down", ActiveLow: true}},
		DebounceMs: 60000,
	})

	ctl := h.cli.Subscribe(bus.Topic{"motor", "control", "+"})
	defer h.cli.Unsubscribe(ctl)

	pin := h.pins.At(4)
	press(t, pin)
	press(t, pin) // within the debounce window, swallowed before the handler
	awaitVerb(t, ctl, "slow_down")
	assertSilence(t, ctl)
}

func TestBadConfigReportsFault(t *testing.T) {
	h := startService(t)

	st := h.cli.Subscribe(bus.Topic{"input", "state"})
	defer h.cli.Unsubscribe(st)

	h.cli.Publish(h.cli.NewMessage(bus.Topic{"config", "input"}, 42, false))
	awaitState(t, st, func(s types.ServiceState) bool {
		return s.Level == "fault" && s.Status == "config_decode_failed"
	})

	// A good config afterwards still binds.
	h.configure(t, Config{Buttons: []Button{{Pin: 7, Verb: "stop", ActiveLow: true}}})

	ctl := h.cli.Subscribe(bus.Topic{"motor", "control", "+"})
	defer h.cli.Unsubscribe(ctl)
	press(t, h.pins.At(7))
	awaitVerb(t, ctl, "stop")
}

func TestRebindReleasesOldPins(t *testing.T) {
	h := startService(t)
	h.configure(t, Config{Buttons: []Button{{Pin: 2, Verb: "speed_up", ActiveLow: true}}})
	h.configure(t, Config{Buttons: []Button{{Pin: 5, Verb: "stop", ActiveLow: true}}})

	ctl := h.cli.Subscribe(bus.Topic{"motor", "control", "+"})
	defer h.cli.Unsubscribe(ctl)

	press(t, h.pins.At(2))
	assertSilence(t, ctl)

	press(t, h.pins.At(5))
	awaitVerb(t, ctl, "stop")
}
