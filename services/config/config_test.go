package config

import (
	"encoding/json"
	"testing"
	"time"

	"motorcode-go/bus"
	"motorcode-go/services/motor"
	"motorcode-go/types"
)

func overrideLookup(t *testing.T, fn func(string) ([]byte, bool)) {
	t.Helper()
	old := EmbeddedConfigLookup
	EmbeddedConfigLookup = fn
	t.Cleanup(func() { EmbeddedConfigLookup = old })
}

func collectSections(t *testing.T, sub *bus.Subscription, want int) map[string]any {
	t.Helper()
	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < want && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			key, ok := m.Topic[len(m.Topic)-1].(string)
			if !ok {
				t.Fatalf("topic key type %T, want string", m.Topic[len(m.Topic)-1])
			}
			if key == "state" {
				continue // the service's own record, asserted separately
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != want {
		t.Fatalf("expected %d sections, got %d (%v)", want, len(got), got)
	}
	return got
}

func TestPublishFansOutSectionsRetained(t *testing.T) {
	overrideLookup(t, func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	})

	b := bus.NewBus(16)
	conn := b.NewConnection("config")
	if err := Publish(conn, "pico"); err != nil {
		t.Fatal(err)
	}

	// Subscribe after the fact: delivery must come from the retained store.
	sub := conn.Subscribe(bus.Topic{topicPrefix, "#"})
	got := collectSections(t, sub, 3)

	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Errorf("mode = %#v, want \"dev\"", got["mode"])
	}
	if v, ok := got["debug"].(bool); !ok || !v {
		t.Errorf("debug = %#v, want true", got["debug"])
	}
	region, ok := got["region"].(map[string]any)
	if !ok {
		t.Fatalf("region type = %T, want map[string]any", got["region"])
	}
	if code, ok := region["code"].(string); !ok || code != "eu" {
		t.Errorf("region.code = %#v, want \"eu\"", region["code"])
	}
}

func TestPublishRecordsOutcomeState(t *testing.T) {
	overrideLookup(t, func(string) ([]byte, bool) {
		return []byte(`{"motor": {"run_duty": 96}}`), true
	})

	b := bus.NewBus(8)
	conn := b.NewConnection("config")
	if err := Publish(conn, "pico"); err != nil {
		t.Fatal(err)
	}

	sub := conn.Subscribe(topicState)
	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.ServiceState)
		if !ok {
			t.Fatalf("state payload type %T", m.Payload)
		}
		if st.Level != "idle" || st.Status != "published" || st.Error != "" {
			t.Fatalf("state = %+v", st)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("config/state never published")
	}
}

// The shipped pico config must stay decodable by the motor service, tag for
// tag, or the firmware boots with defaults instead of the tuned values.
func TestEmbeddedPicoMotorSectionDecodes(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("config")
	if err := Publish(conn, "pico"); err != nil {
		t.Fatal(err)
	}

	sub := conn.Subscribe(bus.Topic{topicPrefix, "motor"})
	defer conn.Unsubscribe(sub)

	select {
	case m := <-sub.Channel():
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			t.Fatal(err)
		}
		var mc motor.Config
		if err := json.Unmarshal(raw, &mc); err != nil {
			t.Fatal(err)
		}
		if mc.PWMPeriod != 1024 || mc.RunDuty != 300 || mc.TickUs != 250 {
			t.Fatalf("motor section = %+v", mc)
		}
		if mc.HighSpeedPeriod == 0 || mc.HighSpeedPeriod > mc.LowSpeedPeriod {
			t.Fatalf("speed window %d..%d would be rejected by the drive",
				mc.HighSpeedPeriod, mc.LowSpeedPeriod)
		}
	case <-time.After(time.Second):
		t.Fatal("config/motor never published")
	}
}

func TestPublishErrors(t *testing.T) {
	overrideLookup(t, func(string) ([]byte, bool) { return nil, false })

	b := bus.NewBus(4)
	conn := b.NewConnection("config")

	if err := Publish(conn, ""); err == nil {
		t.Error("empty device ID accepted")
	}
	if err := Publish(conn, "unknown-device"); err == nil {
		t.Error("missing embedded document accepted")
	}

	// The failure must land in the retained state record.
	sub := conn.Subscribe(topicState)
	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.ServiceState)
		if !ok {
			t.Fatalf("state payload type %T", m.Payload)
		}
		if st.Level != "fault" || st.Status != "publish_failed" || st.Error == "" {
			t.Fatalf("state = %+v", st)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("fault state never published")
	}
}

func TestPublishRejectsNonObjectDocument(t *testing.T) {
	overrideLookup(t, func(string) ([]byte, bool) {
		return []byte(`"just a string"`), true
	})

	b := bus.NewBus(4)
	conn := b.NewConnection("config")
	if err := Publish(conn, "pico"); err == nil {
		t.Fatal("non-object document accepted")
	}
}
