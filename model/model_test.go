package model

import "testing"

func TestPhaseHasSnapshot(t *testing.T) {
	cases := []struct {
		phase Phase
		want  bool
	}{
		{Phase{Tag: PhaseOff}, false},
		{Phase{Tag: PhaseSnapshot, Inner: 0}, true},
		{Phase{Tag: PhaseSnapshot, Inner: 3}, false},
		{Phase{Tag: PhaseDone}, true},
		{Phase{Tag: PhaseSigned, Inner: 5}, true},
		{Phase{Tag: PhaseSignedValidation, Inner: 5}, true},
		{Phase{Tag: PhaseUnsigned, Inner: 5}, true},
		{Phase{Tag: PhaseExport, Inner: 1}, true},
		{Phase{Tag: PhaseEmergency}, false},
	}
	for _, c := range cases {
		if got := c.phase.HasSnapshot(); got != c.want {
			t.Errorf("Phase{%v,%d}.HasSnapshot() = %v, want %v", c.phase.Tag, c.phase.Inner, got, c.want)
		}
	}
}
