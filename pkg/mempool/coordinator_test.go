package mempool

import (
	"context"
	"errors"
	"testing"

	"github.com/shardledger/valnode/pkg/epoch"
	"github.com/shardledger/valnode/pkg/store"
	"github.com/shardledger/valnode/pkg/types"
)

func newTestCoordinator() (*Coordinator, types.StateStore) {
	s := store.NewMemStore()
	committee := types.Committee{Members: []types.Address{"v0"}}
	epochs := epoch.NewStaticManager(0, committee, types.CommitteeShard{})
	c := New(NoopSubstateResolver{}, NoopExecutor{}, s, epochs, nil, 2, nil, nil)
	return c, s
}

func TestSubmitExecutesAndPersists(t *testing.T) {
	c, s := newTestCoordinator()
	defer c.Stop()

	tx := &types.Transaction{ID: types.TransactionID{0x01}, Inputs: []types.SubstateID{"a"}}
	if err := c.Submit(context.Background(), tx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err := s.WithReadTx(func(rtx types.ReadTx) error {
		exists, err := rtx.ExecutedTransactionExists(tx.ID)
		if err != nil {
			return err
		}
		if !exists {
			t.Fatal("expected the transaction to be recorded as executed")
		}
		executed, err := rtx.GetExecutedTransaction(tx.ID)
		if err != nil {
			return err
		}
		if !executed.Result.Accepted {
			t.Fatal("expected NoopExecutor to accept the transaction")
		}
		if len(executed.ResolvedInputs) != 1 || executed.ResolvedInputs[0].Flag != types.LockWrite {
			t.Fatalf("expected a single Write lock intent on the downed input, got %+v", executed.ResolvedInputs)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestSubmitIsIdempotentForAlreadyExecutedTransaction(t *testing.T) {
	c, _ := newTestCoordinator()
	defer c.Stop()

	tx := &types.Transaction{ID: types.TransactionID{0x02}}
	if err := c.Submit(context.Background(), tx); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := c.Submit(context.Background(), tx); err != nil {
		t.Fatalf("second submit (already executed) should be a no-op, got: %v", err)
	}
}

// failingResolver fails Resolve with its configured err. A transaction-level
// error must become a transaction failure (non-nil ExecutedTransaction,
// Result.Accepted == false, nil error); a system error is returned as a Go
// error.
type failingResolver struct {
	err error
}

func (r failingResolver) ResolveVirtualSubstates(context.Context, *types.Transaction, types.Epoch) (map[string][]byte, error) {
	return nil, nil
}

func (r failingResolver) Resolve(context.Context, *types.Transaction) (map[types.SubstateID][]byte, error) {
	return nil, r.err
}

func TestExecuteReturnsTransactionFailureNotGoError(t *testing.T) {
	s := store.NewMemStore()
	epochs := epoch.NewStaticManager(0, types.Committee{Members: []types.Address{"v0"}}, types.CommitteeShard{})
	c := New(failingResolver{err: types.ErrInputSubstateDowned}, NoopExecutor{}, s, epochs, nil, 1, nil, nil)
	defer c.Stop()

	tx := &types.Transaction{ID: types.TransactionID{0x03}, Inputs: []types.SubstateID{"a"}}
	executed, err := c.Execute(context.Background(), tx, 0)
	if err != nil {
		t.Fatalf("expected no Go error for a transaction failure, got %v", err)
	}
	if executed == nil || executed.Result.Accepted {
		t.Fatalf("expected a rejected ExecutedTransaction, got %+v", executed)
	}
}

func TestExecutePropagatesSystemFailureAsGoError(t *testing.T) {
	s := store.NewMemStore()
	epochs := epoch.NewStaticManager(0, types.Committee{Members: []types.Address{"v0"}}, types.CommitteeShard{})
	c := New(failingResolver{err: errors.New("boom")}, NoopExecutor{}, s, epochs, nil, 1, nil, nil)
	defer c.Stop()

	tx := &types.Transaction{ID: types.TransactionID{0x04}}
	_, err := c.Execute(context.Background(), tx, 0)
	if err == nil {
		t.Fatal("expected a system error for an unrecognized resolver failure")
	}
}
