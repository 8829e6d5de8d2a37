package types

import "errors"

// Error kinds for the state store (§4.1/§7). NotFound and Conflict are
// recoverable; Corrupt is fatal.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrCorrupt  = errors.New("corrupt: invariant breach discovered during read")
)

// PoolRecordFilter selects transaction pool records for ReadTx.GetPoolRecords.
// A zero-value filter with OnlyReady=false and no Stages matches every
// record.
type PoolRecordFilter struct {
	Stages   []TransactionPoolStage
	OnlyReady bool
}

// ReadTx is a short-lived read transaction with snapshot-isolation
// semantics (§4.1, §5).
type ReadTx interface {
	GetBlock(id BlockID) (*Block, error)
	GetTip(epoch Epoch) (*Block, error)
	GetParent(b *Block) (*Block, error)
	GetQC(blockID BlockID) (*QuorumCertificate, error)
	GetHighQC(epoch Epoch) (*QuorumCertificate, error)

	GetLastVoted(epoch Epoch) (*LastVoted, error)
	GetLockedBlock(epoch Epoch) (*LockedBlockMarker, error)
	GetLastExecuted(epoch Epoch) (*LastExecuted, error)

	ExecutedTransactionExists(id TransactionID) (bool, error)
	GetExecutedTransaction(id TransactionID) (*ExecutedTransaction, error)

	GetMissingTransactions(blockID BlockID) ([]TransactionID, error)
	// GetAwaitingBlocks returns the ids of blocks still waiting on txID per
	// the awaiting-transactions index (§6 "Persisted state"), so the mempool
	// coordinator can reprocess them once txID finishes executing.
	GetAwaitingBlocks(txID TransactionID) ([]BlockID, error)

	GetPoolRecord(id TransactionID) (*TransactionPoolRecord, error)
	GetPoolRecords(filter PoolRecordFilter) ([]*TransactionPoolRecord, error)
	CountPoolRecords(filter PoolRecordFilter) (int, error)

	GetSubstate(id SubstateID) (*SubstateRecord, error)
}

// WriteTx is a short-lived write transaction: it must commit atomically or
// have no visible effect (§4.1, §5).
type WriteTx interface {
	ReadTx

	InsertBlock(b *Block) error // idempotent on id
	InsertQC(qc *QuorumCertificate) error // idempotent on (block_id, epoch)

	SetLastVoted(epoch Epoch, v LastVoted) error
	SetLockedBlock(epoch Epoch, v LockedBlockMarker) error
	SetLastExecuted(epoch Epoch, v LastExecuted) error
	SetHighQC(epoch Epoch, qc *QuorumCertificate) error

	InsertMissingTransactions(blockID BlockID, ids []TransactionID) error
	RemoveMissingTransactions(blockID BlockID) error

	InsertExecutedTransaction(tx *ExecutedTransaction) error
	SetExecutedTransactionFinalDecision(id TransactionID, d Decision) error

	InsertPoolRecord(r *TransactionPoolRecord) error
	UpdatePoolRecord(r *TransactionPoolRecord) error
	RemovePoolRecord(id TransactionID) error
	// TransitionPoolRecord moves a record forward one stage, recording
	// whether it is now ready to be proposed.
	TransitionPoolRecord(id TransactionID, newStage TransactionPoolStage, isReady bool) error

	UpsertSubstate(s *SubstateRecord) error
	// DeleteSubstate removes a consumed substate record entirely. Deleting
	// an id with no record is a no-op.
	DeleteSubstate(id SubstateID) error
	// TryLockMany acquires locks on every id atomically: all-or-nothing.
	// On failure it returns (false, nil) and leaves lock state unchanged.
	TryLockMany(owner TransactionID, ids []SubstateID, flag LockFlag) (bool, error)
	// TryUnlockMany releases every lock owner holds on ids, regardless of
	// flag; ids owner does not hold a lock on are silently skipped.
	TryUnlockMany(owner TransactionID, ids []SubstateID) error
}

// StateStore exposes short-lived read and write transactions over durable
// storage (§4.1).
type StateStore interface {
	WithReadTx(fn func(ReadTx) error) error
	WithWriteTx(fn func(WriteTx) error) error
}
