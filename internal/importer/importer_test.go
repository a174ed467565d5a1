package importer

import (
	"testing"
)

const sampleProgram = `
name: Base Block
coach_id: 3
weeks:
  - sessions:
      - name: Full Body A
        exercises:
          - name: Back Squat
            sets: "3"
            reps: "5"
            load: "80kg"
            tempo: "3-1-1"
            rest_sec: 180
          - name: Bench Press
            sets: "3"
            reps: "8"
      - name: Conditioning
        exercises:
          - name: Row Intervals
            sets: "4"
            reps: "500m"
  - sessions:
      - name: Full Body A
        exercises:
          - name: Back Squat
            sets: "4"
            reps: "5"
`

// TestParseProgram verifies week numbering, session ordering and exercise
// positions come from file order.
func TestParseProgram(t *testing.T) {
	p, err := Parse([]byte(sampleProgram))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Name != "Base Block" {
		t.Errorf("name = %q, want Base Block", p.Name)
	}
	if p.CoachID != 3 {
		t.Errorf("coach = %d, want 3", p.CoachID)
	}
	if p.TotalWeeks() != 2 {
		t.Fatalf("weeks = %d, want 2", p.TotalWeeks())
	}
	if p.Weeks[0].Number != 1 || p.Weeks[1].Number != 2 {
		t.Errorf("week numbers = %d, %d", p.Weeks[0].Number, p.Weeks[1].Number)
	}

	week1 := p.SessionsInWeek(1)
	if len(week1) != 2 {
		t.Fatalf("week 1 sessions = %d, want 2", len(week1))
	}
	if week1[0].Order != 1 || week1[1].Order != 2 {
		t.Errorf("session orders = %d, %d", week1[0].Order, week1[1].Order)
	}
	if week1[1].Name != "Conditioning" {
		t.Errorf("second session = %q", week1[1].Name)
	}

	squat := week1[0].Exercises[0]
	if squat.Name != "Back Squat" || squat.Position != 1 {
		t.Errorf("first exercise = %+v", squat)
	}
	if squat.TargetSets != "3" || squat.TargetReps != "5" || squat.TargetLoad != "80kg" {
		t.Errorf("targets = %q/%q/%q", squat.TargetSets, squat.TargetReps, squat.TargetLoad)
	}
	if squat.Tempo != "3-1-1" || squat.RestSec != 180 {
		t.Errorf("tempo = %q, rest = %d", squat.Tempo, squat.RestSec)
	}
	if week1[0].Exercises[1].Position != 2 {
		t.Errorf("second exercise position = %d", week1[0].Exercises[1].Position)
	}
}

// TestParseAssignsFreshIDs verifies every entity gets a unique ID.
func TestParseAssignsFreshIDs(t *testing.T) {
	p, err := Parse([]byte(sampleProgram))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	seen := make(map[string]bool)
	check := func(id string) {
		if seen[id] {
			t.Errorf("duplicate ID %s", id)
		}
		seen[id] = true
	}
	check(p.ID.String())
	for _, w := range p.Weeks {
		for _, s := range w.Sessions {
			check(s.ID.String())
			for _, ex := range s.Exercises {
				check(ex.ID.String())
			}
		}
	}
}

// TestParseValidation rejects structurally broken program files.
func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", `{{{`},
		{"no name", "weeks:\n  - sessions:\n      - name: A\n"},
		{"no weeks", "name: Empty\n"},
		{"empty week", "name: P\nweeks:\n  - sessions: []\n"},
		{"unnamed session", "name: P\nweeks:\n  - sessions:\n      - exercises: []\n"},
		{"unnamed exercise", "name: P\nweeks:\n  - sessions:\n      - name: A\n        exercises:\n          - sets: \"3\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
