package types

// LockFlag is the granularity of a substate lock intent: Read for
// input_refs, Write for inputs and filled_inputs.
type LockFlag uint8

const (
	LockRead LockFlag = iota
	LockWrite
)

func (f LockFlag) String() string {
	if f == LockWrite {
		return "Write"
	}
	return "Read"
}

// LockState is the lock state of a single substate: at most one writer, and
// a writer is incompatible with any reader; readers are shared.
type LockState struct {
	Writer    TransactionID
	IsWritten bool
	Readers   map[TransactionID]struct{}
}

func NewLockState() LockState {
	return LockState{Readers: make(map[TransactionID]struct{})}
}

func (l LockState) IsUnlocked() bool {
	return !l.IsWritten && len(l.Readers) == 0
}

// SubstateRecord is a versioned addressable state item, the store's record
// of a single substate and its current lock holder(s).
type SubstateRecord struct {
	ID      SubstateID
	Version uint64
	Value   []byte
	Lock    LockState
}

// LockIntent names a substate a transaction wants to lock and at what
// granularity, derived from the executor's accepted diff (§4.5).
type LockIntent struct {
	SubstateID SubstateID
	Version    uint64
	Flag       LockFlag
}

// SubstateDiff is the accepted output of a transaction's execution: the
// substates it downed (consumed) and the substates it upped (created).
type SubstateDiff struct {
	Down []SubstateID
	Up   []SubstateID
}

func (d *SubstateDiff) IsDowned(id SubstateID) bool {
	if d == nil {
		return false
	}
	for _, x := range d.Down {
		if x == id {
			return true
		}
	}
	return false
}

// Transaction is the minimal shape of a transaction the core needs: its
// id and the substates it touches. Transaction semantics (what substates
// mean, how fees are computed) are owned by the executor collaborator,
// out of scope per spec.md §1.
type Transaction struct {
	ID           TransactionID
	InputRefs    []SubstateID // read-only
	Inputs       []SubstateID // pre-filled, read-write
	FilledInputs []SubstateID // resolved at runtime, read-write
}

// AllInputs returns every substate id the transaction touches, in the
// canonical order refs, inputs, filled-inputs.
func (t *Transaction) AllInputs() []SubstateID {
	out := make([]SubstateID, 0, len(t.InputRefs)+len(t.Inputs)+len(t.FilledInputs))
	out = append(out, t.InputRefs...)
	out = append(out, t.Inputs...)
	out = append(out, t.FilledInputs...)
	return out
}

// ExecutionResult is what the executor collaborator returns for a
// transaction: the accepted substate diff (if execution succeeded), the fee
// charged, and any logs it produced.
type ExecutionResult struct {
	Accepted bool
	Diff     *SubstateDiff
	Fee      uint64
	Logs     []string
}

// ExecutedTransaction is a transaction together with its resolved inputs,
// derived lock intents, and (once committed) final decision.
type ExecutedTransaction struct {
	Transaction    *Transaction
	ResolvedInputs []LockIntent
	Result         *ExecutionResult
	FinalDecision  *Decision
}

func (e *ExecutedTransaction) SetResolvedInputs(intents []LockIntent) {
	e.ResolvedInputs = intents
}

func (e *ExecutedTransaction) SetFinalDecision(d Decision) {
	cp := d
	e.FinalDecision = &cp
}
