package types

import "testing"

func TestSubstateDiffIsDowned(t *testing.T) {
	var nilDiff *SubstateDiff
	if nilDiff.IsDowned("x") {
		t.Fatal("nil diff should never report a downed id")
	}

	d := &SubstateDiff{Down: []SubstateID{"a", "b"}, Up: []SubstateID{"c"}}
	if !d.IsDowned("a") || !d.IsDowned("b") {
		t.Fatal("expected a and b to be downed")
	}
	if d.IsDowned("c") {
		t.Fatal("c was upped, not downed")
	}
}

func TestTransactionAllInputs(t *testing.T) {
	tx := &Transaction{
		ID:           TransactionID{},
		InputRefs:    []SubstateID{"ref1"},
		Inputs:       []SubstateID{"in1", "in2"},
		FilledInputs: []SubstateID{"fill1"},
	}
	got := tx.AllInputs()
	want := []SubstateID{"ref1", "in1", "in2", "fill1"}
	if len(got) != len(want) {
		t.Fatalf("AllInputs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AllInputs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLockStateIsUnlocked(t *testing.T) {
	l := NewLockState()
	if !l.IsUnlocked() {
		t.Fatal("fresh lock state should be unlocked")
	}
	l.IsWritten = true
	if l.IsUnlocked() {
		t.Fatal("written lock state should not be unlocked")
	}
	l = NewLockState()
	l.Readers[TransactionID{0x01}] = struct{}{}
	if l.IsUnlocked() {
		t.Fatal("lock state with a reader should not be unlocked")
	}
}

func TestExecutedTransactionSetFinalDecision(t *testing.T) {
	e := &ExecutedTransaction{}
	e.SetFinalDecision(DecisionAbort)
	if e.FinalDecision == nil || *e.FinalDecision != DecisionAbort {
		t.Fatalf("expected final decision Abort, got %v", e.FinalDecision)
	}
}
