// Package heartbeat publishes a retained liveness record. The bridge
// exports it, so a host can watch board uptime without a console attached.
package heartbeat

import (
	"context"
	"time"

	"motorcode-go/bus"
	"motorcode-go/x/timex"
)

var (
	topicBeat   = bus.Topic{"heartbeat", "state"}
	topicConfig = bus.Topic{"config", "heartbeat"}
)

// Beat is the retained liveness payload.
type Beat struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
	TS       int64  `json:"ts_ms"`
}

// Start runs the beat loop until ctx is cancelled. The cadence follows the
// config/heartbeat section ({"interval": seconds}) and defaults to one
// second.
func Start(ctx context.Context, conn *bus.Connection) {
	go run(ctx, conn)
}

func run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	start := time.Now()
	var seq uint32
	beat := func() {
		seq++
		conn.Publish(conn.NewMessage(topicBeat, Beat{
			Seq:      seq,
			UptimeMs: int64(time.Since(start) / time.Millisecond),
			TS:       timex.NowMs(),
		}, true))
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	// A retained beat exists as soon as the service is up.
	beat()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat stopping")
			return
		case <-tick.C:
			beat()
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			if iv, ok := intervalOf(msg.Payload); ok {
				tick.Reset(iv)
				println("Info: heartbeat interval", int64(iv/time.Millisecond), "ms")
			}
		}
	}
}

// intervalOf extracts a positive interval in seconds from a decoded config
// section. Numbers arrive as float64 from the config parser; fractional
// seconds are allowed.
func intervalOf(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m["interval"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second)), true
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second, true
		}
	}
	return 0, false
}
