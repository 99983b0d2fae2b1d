// Package config fans the device's embedded configuration out to the bus:
// every top-level key of the device document becomes a retained
// config/<key> message, so services subscribing later still receive their
// section.
package config

import (
	"errors"

	"motorcode-go/bus"
	"motorcode-go/types"
	"motorcode-go/x/timex"

	"github.com/andreyvit/tinyjson"
)

const topicPrefix = "config"

var topicState = bus.Topic{topicPrefix, "state"}

// EmbeddedConfigLookup resolves a device ID to its raw config document.
// Hosts that load configuration from disk override it before Publish.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Publish resolves the device document, publishes its sections and records
// the outcome on the retained config/state topic. It is synchronous: when
// it returns nil, every section is retained on the bus.
func Publish(conn *bus.Connection, device string) error {
	err := publishSections(conn, device)

	st := types.ServiceState{Level: "idle", Status: "published", TS: timex.NowMs()}
	if err != nil {
		st.Level = "fault"
		st.Status = "publish_failed"
		st.Error = err.Error()
	}
	// The record goes last so a section named "state" never masks it.
	conn.Publish(conn.NewMessage(topicState, st, true))
	return err
}

func publishSections(conn *bus.Connection, device string) error {
	if device == "" {
		return errors.New("config: empty device ID")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("config: no embedded document for device: " + device)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	sections, ok := val.(map[string]any)
	if !ok {
		return errors.New("config: device document is not a JSON object")
	}
	for k, v := range sections {
		conn.Publish(conn.NewMessage(bus.T(topicPrefix, k), v, true))
	}
	return nil
}
