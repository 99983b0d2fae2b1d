package sixstep

import (
	"errors"
	"testing"
)

func TestTranslate(t *testing.T) {
	const period = 256
	cases := []struct {
		name string
		in   Intent
		duty uint16
		want PhaseCommand
	}{
		{"float", IntentFloat, 100, PhaseCommand{Mode: OutputFloat}},
		{"force_low", IntentForceLow, 100, PhaseCommand{Mode: OutputLow}},
		{"force_high", IntentForceHigh, 100, PhaseCommand{Mode: OutputHigh, Compare: period}},
		{"forward_zero", IntentForward, 0, PhaseCommand{Mode: OutputLow}},
		{"forward_mid", IntentForward, 100, PhaseCommand{Mode: OutputPWM, Compare: 100}},
		{"forward_full", IntentForward, period, PhaseCommand{Mode: OutputHigh, Compare: period}},
		{"forward_over", IntentForward, 4000, PhaseCommand{Mode: OutputHigh, Compare: period}},
		{"inverted_zero", IntentInverted, 0, PhaseCommand{Mode: OutputHigh, Compare: period}},
		{"inverted_mid", IntentInverted, 100, PhaseCommand{Mode: OutputPWM, Compare: period - 100}},
		{"inverted_full", IntentInverted, period, PhaseCommand{Mode: OutputLow}},
		{"inverted_over", IntentInverted, 4000, PhaseCommand{Mode: OutputLow}},
	}
	for _, tc := range cases {
		if got := Translate(tc.in, tc.duty, period); got != tc.want {
			t.Errorf("%s: Translate(%v, %d) = %+v, want %+v", tc.name, tc.in, tc.duty, got, tc.want)
		}
	}
}

// A forward and an inverted output at the same duty must always sum to the
// PWM period, rails included.
func TestTranslateComplementSumsToPeriod(t *testing.T) {
	const period = 256
	for d := uint16(0); d <= period; d++ {
		fwd := Translate(IntentForward, d, period)
		inv := Translate(IntentInverted, d, period)
		if sum := fwd.Compare + inv.Compare; sum != period {
			t.Fatalf("duty %d: forward %d + inverted %d = %d, want %d", d, fwd.Compare, inv.Compare, sum, period)
		}
	}
}

func TestSafeFrameAllFloat(t *testing.T) {
	for i, cmd := range SafeFrame() {
		if cmd.Mode != OutputFloat || cmd.Compare != 0 {
			t.Errorf("phase %v = %+v, want floating", Phase(i), cmd)
		}
	}
}

type pinCall struct {
	op   string
	high bool
	v    uint16
}

type scriptPin struct {
	calls []pinCall
	err   error
}

func (p *scriptPin) SetLevel(high bool) error {
	p.calls = append(p.calls, pinCall{op: "level", high: high})
	return p.err
}

func (p *scriptPin) SetCompare(v uint16) error {
	p.calls = append(p.calls, pinCall{op: "compare", v: v})
	return p.err
}

func (p *scriptPin) Disable() error {
	p.calls = append(p.calls, pinCall{op: "disable"})
	return p.err
}

func TestPinSinkRouting(t *testing.T) {
	pins := [NumPhases]*scriptPin{{}, {}, {}}
	sink := &PinSink{Pins: [NumPhases]PhasePin{pins[0], pins[1], pins[2]}}

	if err := sink.Commit(Frame{
		{Mode: OutputPWM, Compare: 42},
		{Mode: OutputLow},
		{Mode: OutputFloat},
	}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Commit(Frame{
		{Mode: OutputHigh, Compare: 256},
		{Mode: OutputFloat},
		{Mode: OutputLow},
	}); err != nil {
		t.Fatal(err)
	}

	want := [NumPhases][]pinCall{
		{{op: "compare", v: 42}, {op: "level", high: true}},
		{{op: "level"}, {op: "disable"}},
		{{op: "disable"}, {op: "level"}},
	}
	for i, pin := range pins {
		if len(pin.calls) != len(want[i]) {
			t.Errorf("phase %v: calls = %+v, want %+v", Phase(i), pin.calls, want[i])
			continue
		}
		for j := range want[i] {
			if pin.calls[j] != want[i][j] {
				t.Errorf("phase %v call %d = %+v, want %+v", Phase(i), j, pin.calls[j], want[i][j])
			}
		}
	}
}

func TestPinSinkStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	pins := [NumPhases]*scriptPin{{}, {err: boom}, {}}
	sink := &PinSink{Pins: [NumPhases]PhasePin{pins[0], pins[1], pins[2]}}

	err := sink.Commit(Frame{{Mode: OutputLow}, {Mode: OutputLow}, {Mode: OutputLow}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(pins[2].calls) != 0 {
		t.Errorf("phase C touched after failure: %+v", pins[2].calls)
	}
}
