package bus

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("motor")

	sub := c.Subscribe(Topic{"motor", "state"})
	c.Publish(c.NewMessage(Topic{"motor", "state"}, "running", false))

	wantString(t, sub, "running")
}

func TestRetainedReplaysToLateSubscriber(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("config")

	c.Publish(c.NewMessage(Topic{"config", "motor"}, `{"duty":128}`, true))

	// Subscribed after the publish; the stored copy must arrive anyway,
	// still marked retained.
	m := next(t, c.Subscribe(Topic{"config", "motor"}))
	if m.Payload != `{"duty":128}` || !m.Retained {
		t.Fatalf("replayed message = %+v", m)
	}
}

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		name    string
		pattern Topic
		topic   Topic
		hit     bool
	}{
		{"exact", Topic{"motor", "state"}, Topic{"motor", "state"}, true},
		{"plus fills one token", Topic{"motor", "+", "stop"}, Topic{"motor", "control", "stop"}, true},
		{"plus needs exact depth", Topic{"motor", "+", "stop"}, Topic{"motor", "stop"}, false},
		{"plus keeps literals", Topic{"motor", "+", "stop"}, Topic{"motor", "control", "duty"}, false},
		{"hash takes the rest", Topic{"motor", "#"}, Topic{"motor", "control", "stop"}, true},
		{"hash matches zero tokens", Topic{"motor", "#"}, Topic{"motor"}, true},
		{"hash at the root", Topic{"#"}, Topic{"config", "motor"}, true},
		{"topic too shallow", Topic{"motor", "control", "#"}, Topic{"motor"}, false},
		{"topic too deep", Topic{"motor"}, Topic{"motor", "control"}, false},
		{"plus spans token types", Topic{"phase", "+"}, Topic{"phase", 2}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBus(4)
			c := b.NewConnection("match")
			sub := c.Subscribe(tc.pattern)
			c.Publish(b.NewMessage(tc.topic, "x", false))
			if tc.hit {
				wantString(t, sub, "x")
			} else {
				quiet(t, sub)
			}
		})
	}
}

func TestFanout(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("fan")

	deep := c.Subscribe(Topic{"motor", "control", "#"})
	wide := c.Subscribe(Topic{"motor", "#"})
	one := c.Subscribe(Topic{"motor", "control", "stop"})
	other := c.Subscribe(Topic{"input", "#"})

	c.Publish(b.NewMessage(Topic{"motor", "control", "stop"}, "halt", false))

	wantString(t, deep, "halt")
	wantString(t, wide, "halt")
	wantString(t, one, "halt")
	quiet(t, other)
}

func TestRetainedReplayAcrossPatterns(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("late")

	c.Publish(b.NewMessage(Topic{"motor"}, "off", true))
	c.Publish(b.NewMessage(Topic{"motor", "state"}, "ramp_up", true))
	c.Publish(b.NewMessage(Topic{"motor", "state", "detail"}, "sector 3", true))
	c.Publish(b.NewMessage(Topic{"motor", "telemetry"}, "tele", true))

	all := c.Subscribe(Topic{"motor", "#"})
	if got, want := collect(t, all, 4), []string{"off", "ramp_up", "sector 3", "tele"}; !slices.Equal(got, want) {
		t.Errorf("motor/# replayed %v, want %v", got, want)
	}
	quiet(t, all)

	deep := c.Subscribe(Topic{"motor", "+", "#"})
	if got, want := collect(t, deep, 3), []string{"ramp_up", "sector 3", "tele"}; !slices.Equal(got, want) {
		t.Errorf("motor/+/# replayed %v, want %v", got, want)
	}
	quiet(t, deep)

	pair := c.Subscribe(Topic{"motor", "+"})
	if got, want := collect(t, pair, 2), []string{"ramp_up", "tele"}; !slices.Equal(got, want) {
		t.Errorf("motor/+ replayed %v, want %v", got, want)
	}
	quiet(t, pair)
}

func TestNilPayloadClearsRetained(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("cfg")

	c.Publish(b.NewMessage(Topic{"config", "motor"}, "stale", true))
	c.Publish(b.NewMessage(Topic{"config", "input"}, "buttons", true))
	c.Publish(b.NewMessage(Topic{"config", "motor"}, nil, true))

	sub := c.Subscribe(Topic{"config", "#"})
	wantString(t, sub, "buttons")
	quiet(t, sub)
}

func TestRequestWait(t *testing.T) {
	b := NewBus(8)
	asker := b.NewConnection("ctl")
	server := b.NewConnection("motor")

	at := Topic{"motor", "info", "get"}
	serve := server.Subscribe(at)
	defer server.Unsubscribe(serve)
	go func() {
		if m, ok := <-serve.Channel(); ok {
			server.Reply(m, "ok", false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := b.NewMessage(at, nil, false)
	rep, err := asker.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("RequestWait: %v", err)
	}
	if rep.Payload != "ok" {
		t.Fatalf("reply payload = %#v", rep.Payload)
	}
	if len(req.ReplyTo) == 0 || !rep.Topic.Equal(req.ReplyTo) {
		t.Fatalf("reply came on %v, request points at %v", rep.Topic, req.ReplyTo)
	}
}

func TestRequestWaitGivesUpWithContext(t *testing.T) {
	b := NewBus(8)
	asker := b.NewConnection("ctl")

	// motor/noop has no server: the deadline is the only way out.
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if _, err := asker.RequestWait(ctx, b.NewMessage(Topic{"motor", "noop"}, nil, false)); err == nil {
		t.Fatal("RequestWait returned without a server")
	}
}

func TestManualRequestReply(t *testing.T) {
	b := NewBus(8)
	asker := b.NewConnection("ctl")
	server := b.NewConnection("motor")

	at := Topic{"motor", "control", "duty"}
	serve := server.Subscribe(at)
	defer server.Unsubscribe(serve)

	req := b.NewMessage(at, nil, false)
	replies := asker.Request(req)
	defer asker.Unsubscribe(replies)

	served := make(chan struct{})
	go func() {
		defer close(served)
		if m, ok := <-serve.Channel(); ok {
			server.Reply(m, map[string]any{"duty": 128}, false)
		}
	}()

	m := next(t, replies)
	body, ok := m.Payload.(map[string]any)
	if !ok || body["duty"] != 128 {
		t.Fatalf("reply payload = %#v", m.Payload)
	}
	<-served
}

func TestReplyNeedsReplyTo(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("motor")
	every := c.Subscribe(Topic{"#"})

	// Button presses arrive as plain publishes. Answering one must go
	// nowhere rather than onto the bus at large.
	press := b.NewMessage(Topic{"motor", "control", "stop"}, nil, false)
	c.Publish(press)
	if m := next(t, every); m.Payload != nil {
		t.Fatalf("press carried %#v", m.Payload)
	}

	c.Reply(press, "ok", false)
	quiet(t, every)
}

func TestTopicTokensMustBeComparable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("T accepted a []byte token")
		}
	}()
	T("motor", []byte("state"))
}

func TestAppendLeavesBaseAlone(t *testing.T) {
	base := T("motor", "phase")
	full := base.Append(2, "value")

	if len(base) != 2 {
		t.Fatalf("base grew to %v", base)
	}
	if !full.Equal(Topic{"motor", "phase", 2, "value"}) {
		t.Fatalf("appended topic = %v", full)
	}
}

func TestWildcardVocabularyIsPerBus(t *testing.T) {
	b := NewBus(4, "*", ">")
	c := b.NewConnection("alt")

	star := c.Subscribe(Topic{"motor", "*"})
	rest := c.Subscribe(Topic{"motor", ">"})
	c.Publish(b.NewMessage(Topic{"motor", "state"}, "on", false))
	wantString(t, star, "on")
	wantString(t, rest, "on")

	// "+" is an ordinary token on this bus.
	plus := c.Subscribe(Topic{"motor", "+"})
	c.Publish(b.NewMessage(Topic{"motor", "telemetry"}, "t1", false))
	quiet(t, plus)
	c.Publish(b.NewMessage(Topic{"motor", "+"}, "literal", false))
	wantString(t, plus, "literal")
}

func TestFullSubscriberLosesNewest(t *testing.T) {
	b := NewBus(1)
	c := b.NewConnection("slow")

	s := c.Subscribe(Topic{"motor", "telemetry"})
	c.Publish(b.NewMessage(Topic{"motor", "telemetry"}, "first", false))
	c.Publish(b.NewMessage(Topic{"motor", "telemetry"}, "second", false))

	wantString(t, s, "first")
	quiet(t, s)
}

func TestUnsubscribeShutsTheChannel(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("once")

	s := c.Subscribe(Topic{"motor", "state"})
	c.Unsubscribe(s)
	if _, ok := <-s.Channel(); ok {
		t.Fatal("read succeeded after Unsubscribe")
	}

	c.Unsubscribe(s) // again
	c.Unsubscribe(nil)
	c.Publish(b.NewMessage(Topic{"motor", "state"}, "late", false))
}

// next pulls one message off sub or fails the test.
func next(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(250 * time.Millisecond):
		t.Fatal("no message arrived")
	}
	return nil
}

func wantString(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	if m := next(t, sub); m.Payload != want {
		t.Fatalf("payload = %#v, want %q", m.Payload, want)
	}
}

// quiet asserts sub stays empty long enough for a stray delivery to show.
func quiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("stray message on %v: %#v", m.Topic, m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

// collect reads n string payloads and returns them sorted.
func collect(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		m := next(t, sub)
		s, ok := m.Payload.(string)
		if !ok {
			t.Fatalf("payload %#v is not a string", m.Payload)
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
