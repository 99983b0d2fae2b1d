package sixstep

import "testing"

func TestSectorTableShape(t *testing.T) {
	for s, in := range sectorTable {
		var float, low, fwd, other int
		for _, i := range in {
			switch i {
			case IntentFloat:
				float++
			case IntentForceLow:
				low++
			case IntentForward:
				fwd++
			default:
				other++
			}
		}
		if float != 1 || low != 1 || fwd != 1 || other != 0 {
			t.Errorf("sector %d = %v, want one float, one force_low, one forward", s, in)
		}
	}
}

func TestSectorAdjacency(t *testing.T) {
	for s := range sectorTable {
		next := sectorTable[(s+1)%SectorCount]
		changed := 0
		for p := range sectorTable[s] {
			if sectorTable[s][p] != next[p] {
				changed++
			}
		}
		if changed != 2 {
			t.Errorf("sector %d -> %d: %d phases change, want 2", s, (s+1)%SectorCount, changed)
		}
	}
}

func TestSequencerAdvanceThenEmit(t *testing.T) {
	var q Sequencer
	got := q.Step()
	if q.Sector() != 1 {
		t.Fatalf("sector after first step = %d, want 1", q.Sector())
	}
	if got != sectorTable[1] {
		t.Fatalf("first step emitted %v, want %v", got, sectorTable[1])
	}
}

func TestSequencerWraps(t *testing.T) {
	var q Sequencer
	for i := 0; i < 4*SectorCount; i++ {
		q.Step()
		if s := q.Sector(); s >= SectorCount {
			t.Fatalf("sector %d out of range after %d steps", s, i+1)
		}
	}
	if q.Sector() != 0 {
		t.Fatalf("sector = %d after %d steps, want 0", q.Sector(), 4*SectorCount)
	}
}
