// cmd/motorctl/main.go

// motorctl talks to a controller running the bridge over a serial port:
// it sends control verbs and streams whatever the controller exports.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tarm/serial"

	"motorcode-go/services/bridge"
	"motorcode-go/types"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "serial device of the controller")
	baud   = flag.Int("baud", 115200, "baud rate")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	port, err := serial.OpenPort(&serial.Config{Name: *device, Baud: *baud})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer port.Close()

	wr := bridge.NewFrameWriter(port)
	rd := bridge.NewFrameReader(port)

	switch args[0] {
	case "up":
		err = sendControl(wr, "speed_up", nil)
	case "down":
		err = sendControl(wr, "slow_down", nil)
	case "stop":
		err = sendControl(wr, "stop", nil)
	case "duty":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: duty needs a level")
			os.Exit(2)
		}
		var n int
		if n, err = strconv.Atoi(args[1]); err != nil || n < 0 || n > 0xFFFF {
			fmt.Fprintln(os.Stderr, "Error: duty level must be 0..65535")
			os.Exit(2)
		}
		err = sendControl(wr, "duty", types.DutySet{Level: uint16(n)})
	case "watch":
		err = watch(rd, wr, "")
	case "info":
		err = watch(rd, wr, "motor/info")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: motorctl [-device DEV] [-baud N] COMMAND

Commands:
  up           nudge the motor faster (starts it when off)
  down         nudge the motor slower (starts it when off)
  stop         stop the motor
  duty LEVEL   set the manual duty level
  watch        stream exported topics until interrupted
  info         print the drive info record and exit`)
}

// sendControl publishes one control verb into the controller's bus.
func sendControl(wr *bridge.FrameWriter, verb string, payload any) error {
	wm := bridge.WireMsg{Topic: []string{"motor", "control", verb}}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		wm.Payload = raw
	}
	body, err := json.Marshal(wm)
	if err != nil {
		return err
	}
	if err := wr.WriteFrame(bridge.Frame{Type: bridge.FramePub, Payload: body}); err != nil {
		return err
	}
	fmt.Println("sent", verb)
	return nil
}

// watch prints published frames. A non-empty until stops after the first
// frame on that topic. Pings are answered so the controller keeps the link
// alive.
func watch(rd *bridge.FrameReader, wr *bridge.FrameWriter, until string) error {
	// A fresh subscription makes the controller resend its retained motor
	// records, so watch starts with the current state even on a link that
	// was already up.
	if err := wr.WriteFrame(bridge.Frame{Type: bridge.FrameSub, Payload: []byte("motor/#")}); err != nil {
		return err
	}
	// The extra subscription overlaps the built-in exports, so every live
	// publish arrives twice; skip the copy.
	seen := map[string]string{}
	for {
		f, err := rd.ReadFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case bridge.FramePing:
			if err := wr.WriteFrame(bridge.Frame{Type: bridge.FramePong}); err != nil {
				return err
			}
		case bridge.FramePub:
			var wm bridge.WireMsg
			if err := json.Unmarshal(f.Payload, &wm); err != nil {
				continue
			}
			topic := strings.Join(wm.Topic, "/")
			if until == "" {
				if seen[topic] == string(wm.Payload) {
					continue
				}
				seen[topic] = string(wm.Payload)
				fmt.Printf("%s %s\n", topic, string(wm.Payload))
				continue
			}
			if topic == until {
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, wm.Payload, "", "  "); err == nil {
					fmt.Println(pretty.String())
				} else {
					fmt.Println(string(wm.Payload))
				}
				return nil
			}
		case bridge.FrameClose:
			return nil
		}
	}
}
