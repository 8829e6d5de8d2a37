package mempool

import "github.com/shardledger/valnode/pkg/types"

// scratchStateDB is the in-memory execution scratch space built fresh per
// transaction (§4.5 step 3), grounded on executor.rs's new_state_db: a
// throwaway MemoryStateStore seeded with the bootstrap resource, then filled
// with the transaction's resolved inputs, never shared across executions.
type scratchStateDB struct {
	values map[types.SubstateID][]byte
}

var _ types.StateDB = (*scratchStateDB)(nil)

func newScratchStateDB() *scratchStateDB {
	db := &scratchStateDB{values: make(map[types.SubstateID][]byte)}
	db.values[bootstrapResourceID] = nil
	return db
}

func (db *scratchStateDB) SetMany(inputs map[types.SubstateID][]byte) error {
	for id, v := range inputs {
		db.values[id] = v
	}
	return nil
}
