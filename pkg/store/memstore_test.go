package store

import (
	"errors"
	"testing"

	"github.com/shardledger/valnode/pkg/types"
)

func TestMemStoreBlockAndTip(t *testing.T) {
	s := NewMemStore()
	genesis := &types.Block{ID: types.BlockID{0x01}, Epoch: 1, Height: 0}
	child := &types.Block{ID: types.BlockID{0x02}, Epoch: 1, Height: 1, Parent: genesis.ID}

	err := s.WithWriteTx(func(tx types.WriteTx) error {
		if err := tx.InsertBlock(genesis); err != nil {
			return err
		}
		return tx.InsertBlock(child)
	})
	if err != nil {
		t.Fatalf("insert blocks: %v", err)
	}

	err = s.WithReadTx(func(tx types.ReadTx) error {
		tip, err := tx.GetTip(1)
		if err != nil {
			return err
		}
		if tip.ID != child.ID {
			t.Errorf("expected tip %s, got %s", child.ID, tip.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read tip: %v", err)
	}
}

func TestMemStoreGetBlockNotFound(t *testing.T) {
	s := NewMemStore()
	err := s.WithReadTx(func(tx types.ReadTx) error {
		_, err := tx.GetBlock(types.BlockID{0xAA})
		return err
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreSubstateLockAllOrNothing(t *testing.T) {
	s := NewMemStore()
	a := types.SubstateID("a")
	b := types.SubstateID("b")
	owner1 := types.TransactionID{0x01}
	owner2 := types.TransactionID{0x02}

	var ok bool
	err := s.WithWriteTx(func(tx types.WriteTx) error {
		var err error
		ok, err = tx.TryLockMany(owner1, []types.SubstateID{a, b}, types.LockWrite)
		return err
	})
	if err != nil || !ok {
		t.Fatalf("expected owner1 to acquire both locks, ok=%v err=%v", ok, err)
	}

	err = s.WithWriteTx(func(tx types.WriteTx) error {
		var err error
		ok, err = tx.TryLockMany(owner2, []types.SubstateID{a}, types.LockRead)
		return err
	})
	if err != nil || ok {
		t.Fatalf("expected owner2 to be denied (a is write-locked by owner1), ok=%v err=%v", ok, err)
	}

	err = s.WithWriteTx(func(tx types.WriteTx) error {
		return tx.TryUnlockMany(owner1, []types.SubstateID{a, b})
	})
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}

	err = s.WithWriteTx(func(tx types.WriteTx) error {
		var err error
		ok, err = tx.TryLockMany(owner2, []types.SubstateID{a}, types.LockRead)
		return err
	})
	if err != nil || !ok {
		t.Fatalf("expected owner2 to acquire a after release, ok=%v err=%v", ok, err)
	}
}

func TestMemStoreDeleteSubstate(t *testing.T) {
	s := NewMemStore()
	id := types.SubstateID("x")
	err := s.WithWriteTx(func(tx types.WriteTx) error {
		return tx.UpsertSubstate(&types.SubstateRecord{ID: id, Version: 1, Lock: types.NewLockState()})
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err = s.WithWriteTx(func(tx types.WriteTx) error {
		return tx.DeleteSubstate(id)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	err = s.WithReadTx(func(tx types.ReadTx) error {
		_, err := tx.GetSubstate(id)
		return err
	})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemStoreAwaitingBlocksIsReverseOfMissing(t *testing.T) {
	s := NewMemStore()
	block1 := types.BlockID{0x01}
	block2 := types.BlockID{0x02}
	tx1 := types.TransactionID{0x10}
	tx2 := types.TransactionID{0x20}

	err := s.WithWriteTx(func(tx types.WriteTx) error {
		if err := tx.InsertMissingTransactions(block1, []types.TransactionID{tx1, tx2}); err != nil {
			return err
		}
		return tx.InsertMissingTransactions(block2, []types.TransactionID{tx1})
	})
	if err != nil {
		t.Fatalf("insert missing: %v", err)
	}

	err = s.WithReadTx(func(tx types.ReadTx) error {
		blocks, err := tx.GetAwaitingBlocks(tx1)
		if err != nil {
			return err
		}
		if len(blocks) != 2 {
			t.Errorf("expected tx1 to be awaited by 2 blocks, got %d", len(blocks))
		}
		blocks2, err := tx.GetAwaitingBlocks(tx2)
		if err != nil {
			return err
		}
		if len(blocks2) != 1 || blocks2[0] != block1 {
			t.Errorf("expected tx2 to be awaited only by block1, got %v", blocks2)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read awaiting blocks: %v", err)
	}
}
