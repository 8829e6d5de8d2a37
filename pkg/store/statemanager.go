package store

import (
	"context"
	"fmt"

	"github.com/shardledger/valnode/pkg/types"
)

// StateManager applies a committed transaction's accepted substate diff to
// the state store (§4.4.6): every downed substate is consumed (removed),
// every upped substate is materialized fresh at version 1, unlocked.
// Grounded on the same per-record-kind model as MemStore/PebbleStore — this
// repository has no multi-version substate chain, so "up" always starts a
// fresh record rather than appending to one.
type StateManager struct {
	store types.StateStore
}

var _ types.StateManager = (*StateManager)(nil)

func NewStateManager(s types.StateStore) *StateManager {
	return &StateManager{store: s}
}

func (m *StateManager) ApplyDiff(_ context.Context, diff *types.SubstateDiff) error {
	if diff == nil {
		return nil
	}
	return m.store.WithWriteTx(func(tx types.WriteTx) error {
		for _, id := range diff.Down {
			if err := tx.DeleteSubstate(id); err != nil {
				return fmt.Errorf("store: apply diff: down %s: %w", id, err)
			}
		}
		for _, id := range diff.Up {
			rec := &types.SubstateRecord{ID: id, Version: 1, Lock: types.NewLockState()}
			if err := tx.UpsertSubstate(rec); err != nil {
				return fmt.Errorf("store: apply diff: up %s: %w", id, err)
			}
		}
		return nil
	})
}
