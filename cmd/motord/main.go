// cmd/motord/main.go

// motord runs the motor stack on a Linux host: the drive service against a
// real or simulated phase sink, button input on header GPIOs, the config
// publisher, and optional bridges to a serial-attached controller and an
// AMQP broker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"motorcode-go/bus"
	"motorcode-go/drivers/sixstep"
	"motorcode-go/services/bridge"
	"motorcode-go/services/config"
	"motorcode-go/services/heartbeat"
	"motorcode-go/services/input"
	"motorcode-go/services/motor"
	"motorcode-go/services/mqbridge"
	"motorcode-go/types"
)

var (
	cfgPath    = flag.String("config", "", "JSON config file (built-in defaults when empty)")
	sinkName   = flag.String("sink", "sim", "phase output: sim, gpio or bbb")
	serialPort = flag.String("serial", "", "serial device of a controller peer; enables the bridge")
	serialBaud = flag.Int("baud", 115200, "baud rate for -serial")
	amqpURL    = flag.String("amqp", "", "AMQP broker URL; enables the broker bridge")
	verbose    = flag.Bool("verbose", false, "print telemetry lines")

	gpioPins    = flag.String("gpio-pins", "GPIO12,GPIO13,GPIO18", "PWM pin per phase for -sink gpio")
	gpioEnables = flag.String("gpio-enables", "", "optional gate enable pin per phase for -sink gpio")
	bbPins      = flag.String("bb-pins", "P9_22,P9_14,P8_19", "PWM line per phase for -sink bbb")
	bbEnables   = flag.String("bb-enables", "", "optional gate enable GPIO number per phase for -sink bbb")
)

// defaultConfig serves when no -config file is given. Sections reach the
// services the same way an embedded device config would.
const defaultConfig = `{
  "motor": {
    "pwm_period": 1024,
    "ramp_duty": 512,
    "run_duty": 320,
    "low_speed_period": 400,
    "high_speed_period": 60,
    "ramp_stride": 64,
    "ramp_stride_floor": 8,
    "tick_us": 1000,
    "telemetry_every": 500
  },
  "heartbeat": {"interval": 5}
}`

func main() {
	flag.Parse()

	sections, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %s", err)
	}

	sink, err := buildSink(*sinkName, motorPeriod(sections))
	if err != nil {
		log.Fatalf("Failed to init %s sink: %s", *sinkName, err)
	}
	fmt.Println("motord: sink", *sinkName)

	// The flag wins over any bridge section in the file.
	if *serialPort != "" {
		raw, err := json.Marshal(bridge.Config{Transport: bridge.TransportConfig{
			Type:   "serial",
			Serial: &bridge.SerialConfig{Port: *serialPort, Baud: *serialBaud},
		}})
		if err != nil {
			log.Fatalf("Failed to encode bridge config: %s", err)
		}
		sections["bridge"] = raw
	}

	blob, err := json.Marshal(sections)
	if err != nil {
		log.Fatalf("Failed to encode config: %s", err)
	}
	config.EmbeddedConfigLookup = func(string) ([]byte, bool) { return blob, true }

	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		fmt.Println("motord: stopping on", sig)
		cancel()
	}()

	b := bus.NewBus(16)

	registerSerialTransport()

	if err := motor.Start(ctx, b.NewConnection("motor"), sixstep.DefaultConfig(), sink, motor.Options{}); err != nil {
		log.Fatalf("Failed to start motor service: %s", err)
	}
	pins, err := hostPins()
	if err != nil {
		log.Fatalf("Failed to init GPIO: %s", err)
	}
	if err := input.Start(ctx, b.NewConnection("input"), pins); err != nil {
		log.Fatalf("Failed to start input service: %s", err)
	}
	if _, hasBridge := sections["bridge"]; hasBridge {
		go bridge.Start(ctx, b.NewConnection("bridge"))
	}
	if *amqpURL != "" {
		if err := mqbridge.Start(ctx, b.NewConnection("mqbridge"), mqbridge.Config{URL: *amqpURL}); err != nil {
			log.Fatalf("Failed to start broker bridge: %s", err)
		}
	}
	heartbeat.Start(ctx, b.NewConnection("heartbeat"))

	console := b.NewConnection("console")
	go watch(ctx, console, sink)

	// Config publishes last: every service above already holds its
	// subscription, and late subscribers get the retained sections anyway.
	if err := config.Publish(b.NewConnection("config"), "motord"); err != nil {
		log.Fatalf("Failed to publish config: %s", err)
	}

	<-ctx.Done()
}

// loadConfig returns the top-level config sections, keyed as published on
// config/<key>.
func loadConfig(path string) (map[string]json.RawMessage, error) {
	raw := []byte(defaultConfig)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return sections, nil
}

// motorPeriod extracts the PWM period the sink must scale against.
func motorPeriod(sections map[string]json.RawMessage) uint16 {
	period := sixstep.DefaultConfig().PWMPeriod
	raw, ok := sections["motor"]
	if !ok {
		return period
	}
	var mc motor.Config
	if err := json.Unmarshal(raw, &mc); err == nil && mc.PWMPeriod != 0 {
		period = mc.PWMPeriod
	}
	return period
}

// watch mirrors service state and telemetry onto stdout.
func watch(ctx context.Context, conn *bus.Connection, sink sixstep.PhaseSink) {
	stSub := conn.Subscribe(bus.Topic{"motor", "state"})
	defer conn.Unsubscribe(stSub)
	brSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(brSub)
	telSub := conn.Subscribe(bus.Topic{"motor", "telemetry"})
	defer conn.Unsubscribe(telSub)

	sim, _ := sink.(*simSink)

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-stSub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok {
				line := "motord: motor " + st.Level + " (" + st.Status + ")"
				if st.Error != "" {
					line += ": " + st.Error
				}
				fmt.Println(line)
			}
		case m := <-brSub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok {
				fmt.Println("motord: bridge " + st.Level + " (" + st.Status + ")")
			}
		case m := <-telSub.Channel():
			if !*verbose {
				continue
			}
			if tel, ok := m.Payload.(types.MotorTelemetry); ok {
				fmt.Printf("motord: %s period=%d duty=%d sector=%d erpm=%d",
					tel.State, tel.Period, tel.Duty, tel.Sector, tel.ERPM)
				if sim != nil {
					frame, commits := sim.Snapshot()
					fmt.Printf(" frame=%s commits=%d", formatFrame(frame), commits)
				}
				fmt.Println()
			}
		}
	}
}

func formatFrame(f sixstep.Frame) string {
	out := ""
	for i, cmd := range f {
		if i > 0 {
			out += "/"
		}
		out += cmd.Mode.String()
		if cmd.Mode == sixstep.OutputPWM {
			out += fmt.Sprintf("@%d", cmd.Compare)
		}
	}
	return out
}
