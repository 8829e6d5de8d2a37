package txpool

import (
	"errors"
	"testing"

	"github.com/shardledger/valnode/pkg/store"
	"github.com/shardledger/valnode/pkg/substatelock"
	"github.com/shardledger/valnode/pkg/types"
)

func withStore(t *testing.T, fn func(tx types.WriteTx)) {
	t.Helper()
	s := store.NewMemStore()
	err := s.WithWriteTx(func(tx types.WriteTx) error {
		fn(tx)
		return nil
	})
	if err != nil {
		t.Fatalf("write tx: %v", err)
	}
}

func seedExecuted(t *testing.T, tx types.WriteTx, txID types.TransactionID, intents []types.LockIntent) {
	t.Helper()
	executed := &types.ExecutedTransaction{
		Transaction:    &types.Transaction{ID: txID},
		ResolvedInputs: intents,
		Result:         &types.ExecutionResult{Accepted: true},
	}
	if err := tx.InsertExecutedTransaction(executed); err != nil {
		t.Fatalf("insert executed: %v", err)
	}
}

func TestPoolSingleShardHappyPath(t *testing.T) {
	withStore(t, func(tx types.WriteTx) {
		txID := types.TransactionID{0x01}
		intents := []types.LockIntent{{SubstateID: "a", Flag: types.LockWrite}}
		seedExecuted(t, tx, txID, intents)

		record := NewRecord(txID, types.DecisionCommit, []uint32{0})
		if err := tx.InsertPoolRecord(record); err != nil {
			t.Fatalf("insert pool record: %v", err)
		}

		pool := New(substatelock.New(nil))

		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.Prepare(txID, types.DecisionCommit), record); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if record.Stage != types.StagePrepared || !record.IsReady {
			t.Fatalf("after Prepare: stage=%s ready=%v", record.Stage, record.IsReady)
		}

		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.LocalPrepared(txID, types.DecisionCommit), record); err != nil {
			t.Fatalf("LocalPrepared: %v", err)
		}
		if record.Stage != types.StageAllPrepared || !record.IsReady {
			t.Fatalf("after LocalPrepared (single shard): stage=%s ready=%v", record.Stage, record.IsReady)
		}

		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.Accept(txID, types.DecisionCommit), record); err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if record.Stage != types.StageComplete {
			t.Fatalf("after Accept: stage=%s", record.Stage)
		}
	})
}

func TestPoolPrepareAbstainsOnLockConflict(t *testing.T) {
	withStore(t, func(tx types.WriteTx) {
		holder := types.TransactionID{0xFF}
		ok, err := tx.TryLockMany(holder, []types.SubstateID{"a"}, types.LockWrite)
		if err != nil || !ok {
			t.Fatalf("seed lock: ok=%v err=%v", ok, err)
		}

		txID := types.TransactionID{0x01}
		intents := []types.LockIntent{{SubstateID: "a", Flag: types.LockWrite}}
		seedExecuted(t, tx, txID, intents)
		record := NewRecord(txID, types.DecisionCommit, []uint32{0})
		if err := tx.InsertPoolRecord(record); err != nil {
			t.Fatalf("insert pool record: %v", err)
		}

		pool := New(substatelock.New(nil))
		err = pool.ApplyCommand(tx, 0, types.QCID{}, types.Prepare(txID, types.DecisionCommit), record)
		if !errors.Is(err, ErrAbstain) {
			t.Fatalf("expected ErrAbstain on lock conflict, got %v", err)
		}
	})
}

func TestPoolForeignAbortOverridesLocalCommit(t *testing.T) {
	withStore(t, func(tx types.WriteTx) {
		txID := types.TransactionID{0x02}
		seedExecuted(t, tx, txID, nil)
		record := NewRecord(txID, types.DecisionCommit, []uint32{0, 1})
		if err := tx.InsertPoolRecord(record); err != nil {
			t.Fatalf("insert pool record: %v", err)
		}

		pool := New(substatelock.New(nil))
		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.Prepare(txID, types.DecisionCommit), record); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.LocalPrepared(txID, types.DecisionCommit), record); err != nil {
			t.Fatalf("LocalPrepared (local bucket 0): %v", err)
		}
		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.LocalPrepared(txID, types.DecisionAbort), record); err != nil {
			t.Fatalf("LocalPrepared (foreign bucket 1 abort): %v", err)
		}

		if record.Stage != types.StageSomePrepared {
			t.Fatalf("expected SomePrepared after foreign abort, got %s", record.Stage)
		}
		if record.FinalDecision() != types.DecisionAbort {
			t.Fatalf("expected final decision Abort, got %s", record.FinalDecision())
		}

		if err := pool.ApplyCommand(tx, 0, types.QCID{}, types.Accept(txID, types.DecisionAbort), record); err != nil {
			t.Fatalf("Accept(Abort): %v", err)
		}
		if record.Stage != types.StageComplete {
			t.Fatalf("after Accept: stage=%s", record.Stage)
		}
	})
}

func TestPoolRejectsUnknownCommandKind(t *testing.T) {
	withStore(t, func(tx types.WriteTx) {
		txID := types.TransactionID{0x03}
		seedExecuted(t, tx, txID, nil)
		record := NewRecord(txID, types.DecisionCommit, []uint32{0})
		pool := New(substatelock.New(nil))

		err := pool.ApplyCommand(tx, 0, types.QCID{}, types.Command{Kind: types.CommandKind(99), TransactionID: txID}, record)
		if !errors.Is(err, ErrUnknownCommand) {
			t.Fatalf("expected ErrUnknownCommand, got %v", err)
		}
	})
}
