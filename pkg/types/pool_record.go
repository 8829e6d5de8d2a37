package types

// TransactionPoolStage is the per-transaction coordinator state. Stages only
// advance forward in this order; Complete is terminal.
//
//	New -> Prepared -> LocalPrepared -> {AllPrepared, SomePrepared} -> Complete
type TransactionPoolStage uint8

const (
	StageNew TransactionPoolStage = iota
	StagePrepared
	StageLocalPrepared
	StageAllPrepared
	StageSomePrepared
	StageComplete
)

func (s TransactionPoolStage) String() string {
	switch s {
	case StageNew:
		return "New"
	case StagePrepared:
		return "Prepared"
	case StageLocalPrepared:
		return "LocalPrepared"
	case StageAllPrepared:
		return "AllPrepared"
	case StageSomePrepared:
		return "SomePrepared"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

func (s TransactionPoolStage) IsNew() bool            { return s == StageNew }
func (s TransactionPoolStage) IsPrepared() bool       { return s == StagePrepared }
func (s TransactionPoolStage) IsLocalPrepared() bool  { return s == StageLocalPrepared }
func (s TransactionPoolStage) IsComplete() bool       { return s == StageComplete }
func (s TransactionPoolStage) IsSomeOrAllPrepared() bool {
	return s == StageAllPrepared || s == StageSomePrepared
}

// ShardEvidence records what a single foreign shard (identified by its
// committee bucket) observed for a transaction: the QC that justified its
// LocalPrepared command, and the decision it reached.
type ShardEvidence struct {
	QCID     QCID
	Decision Decision
}

// Evidence tracks, per bucket, what every shard touched by a transaction has
// observed. InvolvedBuckets is fixed when the pool record is created (the
// set of committee buckets whose substates the transaction reads or writes).
type Evidence struct {
	InvolvedBuckets []uint32
	PerBucket       map[uint32]ShardEvidence
}

func NewEvidence(involved []uint32) Evidence {
	return Evidence{
		InvolvedBuckets: append([]uint32(nil), involved...),
		PerBucket:       make(map[uint32]ShardEvidence, len(involved)),
	}
}

// Update records (or overwrites) what bucket observed for this transaction,
// justified by qcID.
func (e *Evidence) Update(bucket uint32, qcID QCID, decision Decision) {
	if e.PerBucket == nil {
		e.PerBucket = make(map[uint32]ShardEvidence)
	}
	e.PerBucket[bucket] = ShardEvidence{QCID: qcID, Decision: decision}
}

// AllShardsComplete reports whether every involved bucket has recorded
// evidence.
func (e *Evidence) AllShardsComplete() bool {
	for _, b := range e.InvolvedBuckets {
		if _, ok := e.PerBucket[b]; !ok {
			return false
		}
	}
	return true
}

// HasForeignAbort reports whether any bucket other than localBucket recorded
// an Abort decision.
func (e *Evidence) HasForeignAbort(localBucket uint32) bool {
	for bucket, ev := range e.PerBucket {
		if bucket == localBucket {
			continue
		}
		if ev.Decision.IsAbort() {
			return true
		}
	}
	return false
}

// TransactionPoolRecord is the canonical BFT coordinator state for a single
// cross-shard transaction: its stage, its original and (if changed)
// overridden decision, and the evidence gathered from every shard it
// touches.
type TransactionPoolRecord struct {
	TransactionID    TransactionID
	Stage            TransactionPoolStage
	OriginalDecision Decision
	ChangedDecision  *Decision
	Evidence         Evidence
	IsReady          bool
}

// FinalDecision is the pool's conclusive decision for Accept: the changed
// decision if one was recorded (a foreign Abort overriding a local Commit),
// otherwise the original decision.
func (r *TransactionPoolRecord) FinalDecision() Decision {
	if r.ChangedDecision != nil {
		return *r.ChangedDecision
	}
	return r.OriginalDecision
}

// SetChangedDecision overrides the record's decision, used when a foreign
// shard aborts while the local shard originally decided Commit.
func (r *TransactionPoolRecord) SetChangedDecision(d Decision) {
	cp := d
	r.ChangedDecision = &cp
}
