// Package txpool implements the C2 transaction pool stage machine: the
// per-transaction coordinator state driving two-phase commit across shards
// (§3, §4.4.5). It is grounded on the teacher's
// pkg/distributed.Coordinator/Participant state machine
// (two_phase_commit.go) — explicit named states, forward-only transitions,
// one record per transaction — generalized from the teacher's in-memory,
// goroutine-fanout coordinator (which drives real RPCs to participants) to
// a record mutated synchronously inside the block-proposal write
// transaction, since here the "participants" are foreign shard committees
// learned about asynchronously through block commands, not services this
// node calls out to directly.
package txpool

import (
	"fmt"

	"github.com/shardledger/valnode/pkg/substatelock"
	"github.com/shardledger/valnode/pkg/types"
)

// NewRecord creates the pool record a transaction enters the mempool with,
// in stage New (§3: "Pool records are created when a transaction enters the
// mempool").
func NewRecord(txID types.TransactionID, originalDecision types.Decision, involvedBuckets []uint32) *types.TransactionPoolRecord {
	return &types.TransactionPoolRecord{
		TransactionID:    txID,
		Stage:            types.StageNew,
		OriginalDecision: originalDecision,
		Evidence:         types.NewEvidence(involvedBuckets),
		IsReady:          false,
	}
}

// Pool applies block commands to pool records during decide_what_to_vote
// (§4.4.5). It needs the substate lock manager to acquire locks on Prepare
// and the executed-transaction record to know what substates to lock.
type Pool struct {
	locks *substatelock.Manager
}

func New(locks *substatelock.Manager) *Pool {
	return &Pool{locks: locks}
}

// ApplyCommand runs the per-command rule of §4.4.5's table against record
// inside tx, mutating it and persisting the transition. A non-nil error
// wrapping ErrAbstain means the whole block must be abstained on; any other
// error is a store failure.
func (p *Pool) ApplyCommand(tx types.WriteTx, localBucket uint32, justifyQC types.QCID, cmd types.Command, record *types.TransactionPoolRecord) error {
	switch cmd.Kind {
	case types.CommandPrepare:
		return p.applyPrepare(tx, localBucket, justifyQC, cmd, record)
	case types.CommandLocalPrepared:
		return p.applyLocalPrepared(tx, localBucket, justifyQC, cmd, record)
	case types.CommandAccept:
		return p.applyAccept(tx, cmd, record)
	default:
		return fmt.Errorf("txpool: command %d: %w", cmd.Kind, ErrUnknownCommand)
	}
}

func (p *Pool) applyPrepare(tx types.WriteTx, localBucket uint32, justifyQC types.QCID, cmd types.Command, record *types.TransactionPoolRecord) error {
	if !record.Stage.IsNew() {
		return fmt.Errorf("txpool: Prepare(%s) requires stage New, got %s: %w", cmd.TransactionID, record.Stage, ErrAbstain)
	}
	if cmd.Decision != record.OriginalDecision {
		return fmt.Errorf("txpool: Prepare(%s) decision %s != original %s: %w", cmd.TransactionID, cmd.Decision, record.OriginalDecision, ErrAbstain)
	}

	if cmd.Decision.IsCommit() {
		executed, err := tx.GetExecutedTransaction(cmd.TransactionID)
		if err != nil {
			return fmt.Errorf("txpool: Prepare(%s): %w", cmd.TransactionID, err)
		}
		ok, err := p.locks.Acquire(tx, cmd.TransactionID, executed.ResolvedInputs)
		if err != nil {
			return fmt.Errorf("txpool: Prepare(%s) lock acquisition: %w", cmd.TransactionID, err)
		}
		if !ok {
			return fmt.Errorf("txpool: Prepare(%s) lock conflict: %w", cmd.TransactionID, ErrAbstain)
		}
	}

	record.Stage = types.StagePrepared
	record.IsReady = true
	record.Evidence.Update(localBucket, justifyQC, cmd.Decision)
	return tx.UpdatePoolRecord(record)
}

func (p *Pool) applyLocalPrepared(tx types.WriteTx, localBucket uint32, justifyQC types.QCID, cmd types.Command, record *types.TransactionPoolRecord) error {
	if record.Stage.IsNew() {
		return fmt.Errorf("txpool: LocalPrepared(%s) requires a non-New stage: %w", cmd.TransactionID, ErrAbstain)
	}
	if cmd.Decision != record.OriginalDecision && (record.ChangedDecision == nil || cmd.Decision != *record.ChangedDecision) {
		return fmt.Errorf("txpool: LocalPrepared(%s) decision %s matches neither original nor changed: %w", cmd.TransactionID, cmd.Decision, ErrAbstain)
	}

	if record.Stage.IsPrepared() {
		record.Stage = types.StageLocalPrepared
		record.IsReady = false
	}

	record.Evidence.Update(localBucket, justifyQC, cmd.Decision)
	if record.Evidence.AllShardsComplete() {
		if record.Evidence.HasForeignAbort(localBucket) {
			record.SetChangedDecision(types.DecisionAbort)
			record.Stage = types.StageSomePrepared
			record.IsReady = false
		} else {
			record.Stage = types.StageAllPrepared
			record.IsReady = true
		}
	}

	return tx.UpdatePoolRecord(record)
}

func (p *Pool) applyAccept(tx types.WriteTx, cmd types.Command, record *types.TransactionPoolRecord) error {
	if !record.Stage.IsSomeOrAllPrepared() {
		return fmt.Errorf("txpool: Accept(%s) requires stage AllPrepared or SomePrepared, got %s: %w", cmd.TransactionID, record.Stage, ErrAbstain)
	}
	if cmd.Decision != record.FinalDecision() {
		return fmt.Errorf("txpool: Accept(%s) decision %s != final decision %s: %w", cmd.TransactionID, cmd.Decision, record.FinalDecision(), ErrAbstain)
	}

	record.Stage = types.StageComplete
	record.IsReady = false
	return tx.UpdatePoolRecord(record)
}
