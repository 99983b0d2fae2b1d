package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// One JSON document per device ID. Top-level keys become retained
// config/<key> messages, so each section matches the Config struct of the
// service that consumes it.
// -----------------------------------------------------------------------------

// Pico dev board: three buttons on the left header, UART0 to the host.
const cfgPico = `{
  "motor": {
      "pwm_period": 1024,
      "ramp_duty": 512,
      "run_duty": 300,
      "low_speed_period": 400,
      "high_speed_period": 60,
      "ramp_stride": 64,
      "ramp_stride_floor": 8,
      "tick_us": 250,
      "telemetry_every": 400
  },
  "input": {
      "debounce_ms": 30,
      "buttons": [
          {"pin": 12, "verb": "speed_up", "active_low": true},
          {"pin": 13, "verb": "slow_down", "active_low": true},
          {"pin": 14, "verb": "stop", "active_low": true}
      ]
  },
  "bridge": {
      "transport": {"type": "uart", "uart": {"baud": 115200, "rx_pin": 1, "tx_pin": 0}}
  },
  "heartbeat": {
      "interval": 2
  }
}`

// BeagleBone test rig: eHRPWM outputs, no buttons, the host daemon dials
// the board over its own serial transport.
const cfgBBB = `{
  "motor": {
      "pwm_period": 1000,
      "ramp_duty": 500,
      "run_duty": 250,
      "low_speed_period": 800,
      "high_speed_period": 120,
      "ramp_stride": 96,
      "ramp_stride_floor": 12,
      "tick_us": 500,
      "telemetry_every": 200
  },
  "heartbeat": {
      "interval": 5
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"bbb":  []byte(cfgBBB),
}
