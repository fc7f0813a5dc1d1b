package history

import "testing"

func TestUpDownRoundTripRestoresDraft(t *testing.T) {
	n := New()
	n.SetEntries([]string{"B", "A"}) // B newest

	got, ok := n.Up("my draft")
	if !ok || got != "B" {
		t.Fatalf("first up: got %q ok=%v, want B", got, ok)
	}
	got, ok = n.Up("should not overwrite draft")
	if !ok || got != "A" {
		t.Fatalf("second up: got %q, want A", got)
	}
	got, ok = n.Down()
	if !ok || got != "B" {
		t.Fatalf("first down: got %q, want B", got)
	}
	got, ok = n.Down()
	if !ok || got != "my draft" {
		t.Fatalf("second down: got %q, want the original draft", got)
	}
	if n.Navigating() {
		t.Fatal("expected sentinel position after full round trip")
	}
}

func TestUpSaturatesAtOldest(t *testing.T) {
	n := New()
	n.SetEntries([]string{"B", "A"})

	n.Up("")
	n.Up("")
	got, ok := n.Up("")
	if !ok || got != "A" {
		t.Fatalf("up past oldest: got %q, want A", got)
	}
}

func TestUpWithEmptyHistoryIsNoop(t *testing.T) {
	n := New()
	if _, ok := n.Up("draft"); ok {
		t.Fatal("expected no navigation with empty history")
	}
	if _, ok := n.Down(); ok {
		t.Fatal("expected no navigation below sentinel")
	}
}

func TestResetDropsDraft(t *testing.T) {
	n := New()
	n.SetEntries([]string{"A"})
	n.Up("draft")
	n.Reset()

	if n.Navigating() {
		t.Fatal("expected sentinel after reset")
	}
	// After reset the old draft must be gone.
	n.Up("")
	got, _ := n.Down()
	if got != "" {
		t.Fatalf("expected empty draft after reset, got %q", got)
	}
}

func TestShrinkingHistoryClampsIndex(t *testing.T) {
	n := New()
	n.SetEntries([]string{"C", "B", "A"})
	n.Up("draft")
	n.Up("draft")
	n.Up("draft") // index at oldest (2)

	n.SetEntries([]string{"C"}) // rollback removed two entries

	got, ok := n.Up("")
	if !ok || got != "C" {
		t.Fatalf("after shrink: got %q ok=%v, want C", got, ok)
	}
}
