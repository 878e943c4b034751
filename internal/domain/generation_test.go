package domain

import "testing"

func TestGenerationTerminal(t *testing.T) {
	cases := []struct {
		status   string
		terminal bool
	}{
		{GenerationStatusProcessing, false},
		{GenerationStatusCompleted, false},
		{GenerationStatusFailed, true},
		{GenerationStatusApplied, true},
	}
	for _, tc := range cases {
		g := &Generation{Status: tc.status}
		if got := g.Terminal(); got != tc.terminal {
			t.Fatalf("Terminal() for status %q = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}
