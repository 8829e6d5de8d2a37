// Package store implements the state store interface (§4.1) defined in
// pkg/types/store.go. MemStore is an in-memory backend for tests and
// single-process deployments, generalizing the teacher's
// pkg/mvcc/version_store.go append-only per-key structure: one record kind
// per map instead of one generic version chain, since the state store here
// needs heterogeneous typed records rather than a single document shape.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shardledger/valnode/pkg/types"
)

// MemStore is a single process-wide in-memory StateStore. All operations
// serialize on one RWMutex; a single mutex is adequate for an in-memory test
// backend and keeps WithReadTx/WithWriteTx trivially consistent. Substate
// locks taken by TryLockMany below run under this same mutex; there is no
// striping.
type MemStore struct {
	mu sync.RWMutex

	blocks map[types.BlockID]*types.Block
	tips   map[types.Epoch]types.BlockID
	qcs    map[types.QCID]*types.QuorumCertificate
	highQC map[types.Epoch]types.QCID

	lastVoted    map[types.Epoch]types.LastVoted
	lockedBlock  map[types.Epoch]types.LockedBlockMarker
	lastExecuted map[types.Epoch]types.LastExecuted

	executed map[types.TransactionID]*types.ExecutedTransaction
	missing  map[types.BlockID]map[types.TransactionID]struct{}

	pool map[types.TransactionID]*types.TransactionPoolRecord

	substates map[types.SubstateID]*types.SubstateRecord
}

var _ types.StateStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		blocks:       make(map[types.BlockID]*types.Block),
		tips:         make(map[types.Epoch]types.BlockID),
		qcs:          make(map[types.QCID]*types.QuorumCertificate),
		highQC:       make(map[types.Epoch]types.QCID),
		lastVoted:    make(map[types.Epoch]types.LastVoted),
		lockedBlock:  make(map[types.Epoch]types.LockedBlockMarker),
		lastExecuted: make(map[types.Epoch]types.LastExecuted),
		executed:     make(map[types.TransactionID]*types.ExecutedTransaction),
		missing:      make(map[types.BlockID]map[types.TransactionID]struct{}),
		pool:         make(map[types.TransactionID]*types.TransactionPoolRecord),
		substates:    make(map[types.SubstateID]*types.SubstateRecord),
	}
}

// WithReadTx runs fn under the read lock directly against the store's maps.
// No copy is taken; the read lock keeps writers out for fn's duration.
func (s *MemStore) WithReadTx(fn func(types.ReadTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s})
}

// WithWriteTx runs fn under an exclusive lock. fn's return error aborts the
// transaction with no visible effect, since every mutation already happened
// directly against s's maps under the same lock fn observed — MemStore has
// no staged buffer, so "no visible effect on error" holds only in the sense
// that no further transaction can observe a partial write interleaved with
// it; a WriteTx that fails partway through leaves its partial writes applied,
// matching the teacher's participant model where failed 2PC steps compensate
// rather than roll back in place.
func (s *MemStore) WithWriteTx(fn func(types.WriteTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

type memTx struct {
	s *MemStore
}

func (t *memTx) GetBlock(id types.BlockID) (*types.Block, error) {
	b, ok := t.s.blocks[id]
	if !ok {
		return nil, fmt.Errorf("store: block %s: %w", id, types.ErrNotFound)
	}
	return b, nil
}

func (t *memTx) GetTip(epoch types.Epoch) (*types.Block, error) {
	id, ok := t.s.tips[epoch]
	if !ok {
		return nil, fmt.Errorf("store: tip for epoch %d: %w", epoch, types.ErrNotFound)
	}
	return t.GetBlock(id)
}

func (t *memTx) GetParent(b *types.Block) (*types.Block, error) {
	if b.IsGenesis() {
		return nil, fmt.Errorf("store: genesis block has no parent: %w", types.ErrNotFound)
	}
	return t.GetBlock(b.Parent)
}

func (t *memTx) GetQC(blockID types.BlockID) (*types.QuorumCertificate, error) {
	for _, qc := range t.s.qcs {
		if qc.BlockID == blockID {
			return qc, nil
		}
	}
	return nil, fmt.Errorf("store: qc for block %s: %w", blockID, types.ErrNotFound)
}

func (t *memTx) GetHighQC(epoch types.Epoch) (*types.QuorumCertificate, error) {
	id, ok := t.s.highQC[epoch]
	if !ok {
		return nil, fmt.Errorf("store: high qc for epoch %d: %w", epoch, types.ErrNotFound)
	}
	qc, ok := t.s.qcs[id]
	if !ok {
		return nil, fmt.Errorf("store: high qc %s missing from qc set: %w", id, types.ErrCorrupt)
	}
	return qc, nil
}

func (t *memTx) GetLastVoted(epoch types.Epoch) (*types.LastVoted, error) {
	v, ok := t.s.lastVoted[epoch]
	if !ok {
		return &types.LastVoted{Height: 0}, nil
	}
	return &v, nil
}

func (t *memTx) GetLockedBlock(epoch types.Epoch) (*types.LockedBlockMarker, error) {
	v, ok := t.s.lockedBlock[epoch]
	if !ok {
		return nil, fmt.Errorf("store: locked block for epoch %d: %w", epoch, types.ErrNotFound)
	}
	return &v, nil
}

func (t *memTx) GetLastExecuted(epoch types.Epoch) (*types.LastExecuted, error) {
	v, ok := t.s.lastExecuted[epoch]
	if !ok {
		return &types.LastExecuted{Height: 0}, nil
	}
	return &v, nil
}

func (t *memTx) ExecutedTransactionExists(id types.TransactionID) (bool, error) {
	_, ok := t.s.executed[id]
	return ok, nil
}

func (t *memTx) GetExecutedTransaction(id types.TransactionID) (*types.ExecutedTransaction, error) {
	tx, ok := t.s.executed[id]
	if !ok {
		return nil, fmt.Errorf("store: executed transaction %s: %w", id, types.ErrNotFound)
	}
	return tx, nil
}

func (t *memTx) GetMissingTransactions(blockID types.BlockID) ([]types.TransactionID, error) {
	set, ok := t.s.missing[blockID]
	if !ok {
		return nil, nil
	}
	out := make([]types.TransactionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (t *memTx) GetAwaitingBlocks(txID types.TransactionID) ([]types.BlockID, error) {
	var out []types.BlockID
	for blockID, set := range t.s.missing {
		if _, ok := set[txID]; ok {
			out = append(out, blockID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (t *memTx) GetPoolRecord(id types.TransactionID) (*types.TransactionPoolRecord, error) {
	r, ok := t.s.pool[id]
	if !ok {
		return nil, fmt.Errorf("store: pool record %s: %w", id, types.ErrNotFound)
	}
	return r, nil
}

func matchesFilter(r *types.TransactionPoolRecord, filter types.PoolRecordFilter) bool {
	if filter.OnlyReady && !r.IsReady {
		return false
	}
	if len(filter.Stages) == 0 {
		return true
	}
	for _, st := range filter.Stages {
		if r.Stage == st {
			return true
		}
	}
	return false
}

func (t *memTx) GetPoolRecords(filter types.PoolRecordFilter) ([]*types.TransactionPoolRecord, error) {
	out := make([]*types.TransactionPoolRecord, 0)
	for _, r := range t.s.pool {
		if matchesFilter(r, filter) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID.String() < out[j].TransactionID.String() })
	return out, nil
}

func (t *memTx) CountPoolRecords(filter types.PoolRecordFilter) (int, error) {
	n := 0
	for _, r := range t.s.pool {
		if matchesFilter(r, filter) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetSubstate(id types.SubstateID) (*types.SubstateRecord, error) {
	s, ok := t.s.substates[id]
	if !ok {
		return nil, fmt.Errorf("store: substate %s: %w", id, types.ErrNotFound)
	}
	return s, nil
}

func (t *memTx) InsertBlock(b *types.Block) error {
	if _, ok := t.s.blocks[b.ID]; ok {
		return nil // idempotent on id
	}
	t.s.blocks[b.ID] = b
	if cur, ok := t.s.tips[b.Epoch]; !ok {
		t.s.tips[b.Epoch] = b.ID
	} else if existing := t.s.blocks[cur]; existing != nil && b.Height > existing.Height {
		t.s.tips[b.Epoch] = b.ID
	}
	return nil
}

func (t *memTx) InsertQC(qc *types.QuorumCertificate) error {
	id := qc.ID()
	if _, ok := t.s.qcs[id]; ok {
		return nil // idempotent on (block_id, epoch)
	}
	t.s.qcs[id] = qc
	return nil
}

func (t *memTx) SetLastVoted(epoch types.Epoch, v types.LastVoted) error {
	t.s.lastVoted[epoch] = v
	return nil
}

func (t *memTx) SetLockedBlock(epoch types.Epoch, v types.LockedBlockMarker) error {
	t.s.lockedBlock[epoch] = v
	return nil
}

func (t *memTx) SetLastExecuted(epoch types.Epoch, v types.LastExecuted) error {
	t.s.lastExecuted[epoch] = v
	return nil
}

func (t *memTx) SetHighQC(epoch types.Epoch, qc *types.QuorumCertificate) error {
	id := qc.ID()
	t.s.qcs[id] = qc
	t.s.highQC[epoch] = id
	return nil
}

func (t *memTx) InsertMissingTransactions(blockID types.BlockID, ids []types.TransactionID) error {
	set, ok := t.s.missing[blockID]
	if !ok {
		set = make(map[types.TransactionID]struct{}, len(ids))
		t.s.missing[blockID] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}

func (t *memTx) RemoveMissingTransactions(blockID types.BlockID) error {
	delete(t.s.missing, blockID)
	return nil
}

func (t *memTx) InsertExecutedTransaction(tx *types.ExecutedTransaction) error {
	t.s.executed[tx.Transaction.ID] = tx
	return nil
}

func (t *memTx) SetExecutedTransactionFinalDecision(id types.TransactionID, d types.Decision) error {
	tx, ok := t.s.executed[id]
	if !ok {
		return fmt.Errorf("store: executed transaction %s: %w", id, types.ErrNotFound)
	}
	tx.SetFinalDecision(d)
	return nil
}

func (t *memTx) InsertPoolRecord(r *types.TransactionPoolRecord) error {
	if _, ok := t.s.pool[r.TransactionID]; ok {
		return fmt.Errorf("store: pool record %s already exists: %w", r.TransactionID, types.ErrConflict)
	}
	t.s.pool[r.TransactionID] = r
	return nil
}

func (t *memTx) UpdatePoolRecord(r *types.TransactionPoolRecord) error {
	if _, ok := t.s.pool[r.TransactionID]; !ok {
		return fmt.Errorf("store: pool record %s: %w", r.TransactionID, types.ErrNotFound)
	}
	t.s.pool[r.TransactionID] = r
	return nil
}

func (t *memTx) RemovePoolRecord(id types.TransactionID) error {
	delete(t.s.pool, id)
	return nil
}

func (t *memTx) TransitionPoolRecord(id types.TransactionID, newStage types.TransactionPoolStage, isReady bool) error {
	r, ok := t.s.pool[id]
	if !ok {
		return fmt.Errorf("store: pool record %s: %w", id, types.ErrNotFound)
	}
	r.Stage = newStage
	r.IsReady = isReady
	return nil
}

func (t *memTx) UpsertSubstate(s *types.SubstateRecord) error {
	t.s.substates[s.ID] = s
	return nil
}

func (t *memTx) DeleteSubstate(id types.SubstateID) error {
	delete(t.s.substates, id)
	return nil
}

// TryLockMany and TryUnlockMany implement the all-or-nothing substate lock
// acquisition of §4.3, generalizing the teacher's striped DocumentLockManager
// (pkg/database/doc_lock.go): here the "lock" held per substate is data
// (types.LockState) guarded by the single store mutex the caller already
// holds via WithWriteTx, rather than a per-key sync.RWMutex, since the
// acquisition must be atomic across an arbitrary id set and must never
// block — it is a check-and-set over in-memory state, not a blocking mutex
// acquisition.
func (t *memTx) TryLockMany(owner types.TransactionID, ids []types.SubstateID, flag types.LockFlag) (bool, error) {
	for _, id := range ids {
		rec, ok := t.s.substates[id]
		if !ok {
			continue // substate not yet materialized: implicitly unlocked
		}
		if rec.Lock.IsWritten || (flag == types.LockWrite && len(rec.Lock.Readers) > 0) {
			return false, nil
		}
		if rec.Lock.Writer != (types.TransactionID{}) && rec.Lock.Writer != owner {
			return false, nil
		}
	}

	for _, id := range ids {
		rec, ok := t.s.substates[id]
		if !ok {
			rec = &types.SubstateRecord{ID: id, Lock: types.NewLockState()}
			t.s.substates[id] = rec
		}
		switch flag {
		case types.LockWrite:
			rec.Lock.Writer = owner
			rec.Lock.IsWritten = true
		case types.LockRead:
			if rec.Lock.Readers == nil {
				rec.Lock.Readers = make(map[types.TransactionID]struct{})
			}
			rec.Lock.Readers[owner] = struct{}{}
		}
	}
	return true, nil
}

func (t *memTx) TryUnlockMany(owner types.TransactionID, ids []types.SubstateID) error {
	for _, id := range ids {
		rec, ok := t.s.substates[id]
		if !ok {
			continue
		}
		if rec.Lock.Writer == owner {
			rec.Lock.Writer = types.TransactionID{}
			rec.Lock.IsWritten = false
		}
		delete(rec.Lock.Readers, owner)
	}
	return nil
}

