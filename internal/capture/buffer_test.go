package capture

import (
	"testing"

	"github.com/claude/repcycle/internal/models"
	"github.com/google/uuid"
)

func testSession() models.SessionTemplate {
	return models.SessionTemplate{
		ID:    uuid.New(),
		Name:  "Upper A",
		Order: 1,
		Exercises: []models.ExerciseTemplate{
			{ID: uuid.New(), Name: "Bench Press", Position: 1, TargetSets: "3", TargetReps: "8"},
			{ID: uuid.New(), Name: "Row", Position: 2, TargetSets: "3", TargetReps: "10"},
			{ID: uuid.New(), Name: "Dips", Position: 3, TargetSets: "3", TargetReps: "12"},
		},
	}
}

// TestSelectSessionResets verifies that selecting a session sizes the buffer
// from the target set counts and that re-selecting never reuses stale state.
func TestSelectSessionResets(t *testing.T) {
	b := New()
	s := testSession()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatalf("SelectSession: %v", err)
	}

	bench := s.Exercises[0].ID
	if err := b.SetField(bench, 0, FieldReps, "8"); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if got := len(b.Payload()); got != 1 {
		t.Fatalf("payload exercises = %d, want 1", got)
	}

	// Re-selecting resets the buffer.
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatalf("SelectSession: %v", err)
	}
	if got := len(b.Payload()); got != 0 {
		t.Errorf("payload after reset = %d exercises, want 0", got)
	}
}

// TestSelectSessionOutOfRange verifies the index bounds check.
func TestSelectSessionOutOfRange(t *testing.T) {
	b := New()
	if err := b.SelectSession([]models.SessionTemplate{testSession()}, 1); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if err := b.SelectSession(nil, 0); err == nil {
		t.Error("expected error for empty week")
	}
}

// TestSetFieldUnknown verifies field-name validation and unknown exercises.
func TestSetFieldUnknown(t *testing.T) {
	b := New()
	s := testSession()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.SetField(s.Exercises[0].ID, 0, Field("weight"), "80"); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := b.SetField(uuid.New(), 0, FieldReps, "8"); err == nil {
		t.Error("expected error for exercise outside the session")
	}
}

// TestSetFieldGrowsSlots verifies that logging an extra set beyond the
// planned count grows the slot list instead of failing.
func TestSetFieldGrowsSlots(t *testing.T) {
	b := New()
	s := testSession()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatal(err)
	}
	bench := s.Exercises[0].ID
	if err := b.SetField(bench, 4, FieldReps, "6"); err != nil {
		t.Fatalf("SetField beyond planned sets: %v", err)
	}
	logs := b.Payload()
	if len(logs) != 1 || len(logs[0].Sets) != 1 {
		t.Fatalf("payload = %+v, want one set", logs)
	}
	if logs[0].Sets[0].SetNumber != 5 {
		t.Errorf("set number = %d, want 5", logs[0].Sets[0].SetNumber)
	}
}

// TestHasUnloggedExercise covers the confirmation-gate predicate: true while
// any exercise has zero non-empty sets.
func TestHasUnloggedExercise(t *testing.T) {
	b := New()
	s := testSession()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatal(err)
	}
	if !b.HasUnloggedExercise() {
		t.Error("fresh buffer should report unlogged exercises")
	}

	for _, ex := range s.Exercises[:2] {
		for i := range 3 {
			if err := b.SetField(ex.ID, i, FieldReps, "8"); err != nil {
				t.Fatal(err)
			}
		}
	}
	if !b.HasUnloggedExercise() {
		t.Error("third exercise untouched, predicate should still be true")
	}
	if got := b.UnloggedExercises(); len(got) != 1 || got[0] != "Dips" {
		t.Errorf("UnloggedExercises = %v, want [Dips]", got)
	}

	if err := b.SetField(s.Exercises[2].ID, 0, FieldNote, "skipped, shoulder pain"); err != nil {
		t.Fatal(err)
	}
	if b.HasUnloggedExercise() {
		t.Error("a note-only set counts as logged")
	}
}

// TestPayloadFiltersEmptySets verifies that fully empty sets are dropped
// while a comment-only set survives.
func TestPayloadFiltersEmptySets(t *testing.T) {
	b := New()
	s := testSession()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatal(err)
	}
	bench := s.Exercises[0].ID
	if err := b.SetField(bench, 0, FieldReps, "8"); err != nil {
		t.Fatal(err)
	}
	if err := b.SetField(bench, 2, FieldNote, "grip slipped"); err != nil {
		t.Fatal(err)
	}

	logs := b.Payload()
	if len(logs) != 1 {
		t.Fatalf("payload exercises = %d, want 1", len(logs))
	}
	sets := logs[0].Sets
	if len(sets) != 2 {
		t.Fatalf("payload sets = %d, want 2 (empty middle set dropped)", len(sets))
	}
	if sets[0].SetNumber != 1 || sets[1].SetNumber != 3 {
		t.Errorf("set numbers = %d,%d, want 1,3", sets[0].SetNumber, sets[1].SetNumber)
	}
}

// TestFrozenBufferRejectsSelect verifies the recap-pending freeze: the
// buffer must not be repopulated from the advanced cursor until dismissal.
func TestFrozenBufferRejectsSelect(t *testing.T) {
	b := New()
	s := testSession()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Fatal(err)
	}
	bench := s.Exercises[0].ID
	if err := b.SetField(bench, 0, FieldReps, "8"); err != nil {
		t.Fatal(err)
	}

	b.Freeze()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != ErrFrozen {
		t.Errorf("SelectSession while frozen = %v, want ErrFrozen", err)
	}
	if got := len(b.Payload()); got != 1 {
		t.Errorf("frozen buffer lost state: payload exercises = %d, want 1", got)
	}

	b.Unfreeze()
	if err := b.SelectSession([]models.SessionTemplate{s}, 0); err != nil {
		t.Errorf("SelectSession after unfreeze: %v", err)
	}
}
