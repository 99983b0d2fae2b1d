// mqbridge/mqbridge_test.go
package mqbridge

import (
	"encoding/json"
	"testing"

	"github.com/streadway/amqp"

	"motorcode-go/bus"
	"motorcode-go/types"
)

func TestCommandTopicMapping(t *testing.T) {
	cases := []struct {
		name    string
		d       amqp.Delivery
		topic   bus.Topic
		payload any
		ok      bool
	}{
		{
			name:  "speed up",
			d:     amqp.Delivery{ContentType: ctSpeedUp},
			topic: bus.Topic{"motor", "control", "speed_up"},
			ok:    true,
		},
		{
			name:  "slow down",
			d:     amqp.Delivery{ContentType: ctSlowDown},
			topic: bus.Topic{"motor", "control", "slow_down"},
			ok:    true,
		},
		{
			name:  "stop",
			d:     amqp.Delivery{ContentType: ctStop},
			topic: bus.Topic{"motor", "control", "stop"},
			ok:    true,
		},
		{
			name:    "duty",
			d:       amqp.Delivery{ContentType: ctDuty, Body: []byte{0, 0, 0x01, 0x2c}},
			topic:   bus.Topic{"motor", "control", "duty"},
			payload: types.DutySet{Level: 300},
			ok:      true,
		},
		{
			name: "duty with a short body",
			d:    amqp.Delivery{ContentType: ctDuty, Body: []byte{0x2c}},
		},
		{
			name: "duty beyond 16 bits",
			d:    amqp.Delivery{ContentType: ctDuty, Body: []byte{0, 1, 0, 0}},
		},
		{
			name: "unknown content type",
			d:    amqp.Delivery{ContentType: "application/octet-stream", Body: []byte("x")},
		},
	}

	for _, c := range cases {
		topic, payload, ok := commandTopic(c.d)
		if ok != c.ok {
			t.Errorf("%s: ok = %v, want %v", c.name, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if !topic.Equal(c.topic) {
			t.Errorf("%s: topic = %v, want %v", c.name, topic, c.topic)
		}
		if payload != c.payload {
			t.Errorf("%s: payload = %#v, want %#v", c.name, payload, c.payload)
		}
	}
}

func TestEventPublishingMapsTelemetry(t *testing.T) {
	m := &bus.Message{
		Topic:   bus.Topic{"motor", "telemetry"},
		Payload: types.MotorTelemetry{State: "on", Period: 5, Duty: 64},
	}
	pub, ok := eventPublishing(m)
	if !ok {
		t.Fatal("telemetry not mapped")
	}
	if pub.ContentType != ctTelemetry {
		t.Fatalf("content type = %q", pub.ContentType)
	}
	var tel types.MotorTelemetry
	if err := json.Unmarshal(pub.Body, &tel); err != nil {
		t.Fatal(err)
	}
	if tel.State != "on" || tel.Period != 5 {
		t.Fatalf("round-tripped telemetry = %+v", tel)
	}
}

func TestEventPublishingSkipsControl(t *testing.T) {
	m := &bus.Message{Topic: bus.Topic{"motor", "control", "stop"}}
	if _, ok := eventPublishing(m); ok {
		t.Fatal("control verb exported to the events exchange")
	}
}

func TestEventPublishingSkipsUnencodable(t *testing.T) {
	m := &bus.Message{Topic: bus.Topic{"motor", "state"}, Payload: make(chan int)}
	if _, ok := eventPublishing(m); ok {
		t.Fatal("unencodable payload accepted")
	}
}
