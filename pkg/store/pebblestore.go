package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/shardledger/valnode/pkg/types"
)

// PebbleStore is the durable StateStore backend (§4.1), keeping one LSM
// keyspace per record kind via single-byte prefixes. It is grounded on the
// cockroachdb/pebble dependency present in the pack (ethereum-go-ethereum's
// go.mod); no pack repo imports pebble directly, so the Open/Set/Get/NewIter
// call shapes below follow pebble's own public API rather than copied pack
// source (see DESIGN.md). Record encoding uses encoding/json, matching the
// teacher's own choice of JSON for on-disk/wire document encoding
// (pkg/database/metadata.go, pkg/server/handlers).
type PebbleStore struct {
	db *pebble.DB
}

const (
	prefixBlock        byte = 'b'
	prefixQC           byte = 'q'
	prefixTip          byte = 't'
	prefixHighQC       byte = 'h'
	prefixLastVoted    byte = 'v'
	prefixLockedBlock  byte = 'l'
	prefixLastExecuted byte = 'e'
	prefixExecuted     byte = 'x'
	prefixMissing      byte = 'm'
	prefixPool         byte = 'p'
	prefixSubstate     byte = 's'
)

func Open(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("store: open pebble at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func epochKey(prefix byte, epoch types.Epoch) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], uint64(epoch))
	return k
}

func idKey(prefix byte, id fmt.Stringer) []byte {
	return append([]byte{prefix}, []byte(id.String())...)
}

func substateKey(id types.SubstateID) []byte {
	return append([]byte{prefixSubstate}, []byte(id)...)
}

// WithReadTx runs fn against a pebble snapshot, giving ReadTx the
// point-in-time isolation §4.1 requires without holding a write lock.
func (s *PebbleStore) WithReadTx(fn func(types.ReadTx) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()
	return fn(&pebbleReadTx{snap: snap, db: s.db})
}

// WithWriteTx buffers writes in a pebble.Batch and commits atomically once
// fn returns nil; an error from fn discards the batch, matching the
// "commit atomically or have no visible effect" contract of WriteTx.
func (s *PebbleStore) WithWriteTx(fn func(types.WriteTx) error) error {
	batch := s.db.NewIndexedBatch()
	tx := &pebbleWriteTx{pebbleReadTx: pebbleReadTx{snap: nil, db: s.db, reader: batch}, batch: batch}
	if err := fn(tx); err != nil {
		_ = batch.Close()
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

// reader is the subset of pebble.DB/pebble.Snapshot/pebble.Batch that reads
// need; an indexed batch satisfies it too, so write transactions read back
// their own uncommitted writes.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleReadTx struct {
	snap   *pebble.Snapshot
	db     *pebble.DB
	reader reader
}

func (t *pebbleReadTx) src() reader {
	if t.reader != nil {
		return t.reader
	}
	return t.snap
}

func (t *pebbleReadTx) getJSON(key []byte, out any) error {
	v, closer, err := t.src().Get(key)
	if err == pebble.ErrNotFound {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: pebble get: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("store: decode %x: %w: %w", key, err, types.ErrCorrupt)
	}
	return nil
}

func (t *pebbleReadTx) GetBlock(id types.BlockID) (*types.Block, error) {
	var b types.Block
	if err := t.getJSON(idKey(prefixBlock, id), &b); err != nil {
		return nil, fmt.Errorf("store: block %s: %w", id, err)
	}
	return &b, nil
}

func (t *pebbleReadTx) GetTip(epoch types.Epoch) (*types.Block, error) {
	var id types.BlockID
	if err := t.getJSON(epochKey(prefixTip, epoch), &id); err != nil {
		return nil, fmt.Errorf("store: tip for epoch %d: %w", epoch, err)
	}
	return t.GetBlock(id)
}

func (t *pebbleReadTx) GetParent(b *types.Block) (*types.Block, error) {
	if b.IsGenesis() {
		return nil, fmt.Errorf("store: genesis block has no parent: %w", types.ErrNotFound)
	}
	return t.GetBlock(b.Parent)
}

func (t *pebbleReadTx) GetQC(blockID types.BlockID) (*types.QuorumCertificate, error) {
	it, err := t.src().NewIter(&pebble.IterOptions{LowerBound: []byte{prefixQC}, UpperBound: []byte{prefixQC + 1}})
	if err != nil {
		return nil, fmt.Errorf("store: iterate qcs: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var qc types.QuorumCertificate
		if err := json.Unmarshal(it.Value(), &qc); err != nil {
			continue
		}
		if qc.BlockID == blockID {
			return &qc, nil
		}
	}
	return nil, fmt.Errorf("store: qc for block %s: %w", blockID, types.ErrNotFound)
}

func (t *pebbleReadTx) GetHighQC(epoch types.Epoch) (*types.QuorumCertificate, error) {
	var id types.QCID
	if err := t.getJSON(epochKey(prefixHighQC, epoch), &id); err != nil {
		return nil, fmt.Errorf("store: high qc for epoch %d: %w", epoch, err)
	}
	var qc types.QuorumCertificate
	if err := t.getJSON(idKey(prefixQC, id), &qc); err != nil {
		return nil, fmt.Errorf("store: high qc %s: %w", id, types.ErrCorrupt)
	}
	return &qc, nil
}

func (t *pebbleReadTx) GetLastVoted(epoch types.Epoch) (*types.LastVoted, error) {
	var v types.LastVoted
	if err := t.getJSON(epochKey(prefixLastVoted, epoch), &v); err != nil {
		if err == types.ErrNotFound {
			return &types.LastVoted{Height: 0}, nil
		}
		return nil, err
	}
	return &v, nil
}

func (t *pebbleReadTx) GetLockedBlock(epoch types.Epoch) (*types.LockedBlockMarker, error) {
	var v types.LockedBlockMarker
	if err := t.getJSON(epochKey(prefixLockedBlock, epoch), &v); err != nil {
		return nil, fmt.Errorf("store: locked block for epoch %d: %w", epoch, err)
	}
	return &v, nil
}

func (t *pebbleReadTx) GetLastExecuted(epoch types.Epoch) (*types.LastExecuted, error) {
	var v types.LastExecuted
	if err := t.getJSON(epochKey(prefixLastExecuted, epoch), &v); err != nil {
		if err == types.ErrNotFound {
			return &types.LastExecuted{Height: 0}, nil
		}
		return nil, err
	}
	return &v, nil
}

func (t *pebbleReadTx) ExecutedTransactionExists(id types.TransactionID) (bool, error) {
	_, closer, err := t.src().Get(idKey(prefixExecuted, id))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: pebble get: %w", err)
	}
	closer.Close()
	return true, nil
}

func (t *pebbleReadTx) GetExecutedTransaction(id types.TransactionID) (*types.ExecutedTransaction, error) {
	var tx types.ExecutedTransaction
	if err := t.getJSON(idKey(prefixExecuted, id), &tx); err != nil {
		return nil, fmt.Errorf("store: executed transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (t *pebbleReadTx) GetMissingTransactions(blockID types.BlockID) ([]types.TransactionID, error) {
	var ids []types.TransactionID
	err := t.getJSON(idKey(prefixMissing, blockID), &ids)
	if err == types.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: missing transactions for %s: %w", blockID, err)
	}
	return ids, nil
}

func (t *pebbleReadTx) GetAwaitingBlocks(txID types.TransactionID) ([]types.BlockID, error) {
	it, err := t.src().NewIter(&pebble.IterOptions{LowerBound: []byte{prefixMissing}, UpperBound: []byte{prefixMissing + 1}})
	if err != nil {
		return nil, fmt.Errorf("store: iterate missing: %w", err)
	}
	defer it.Close()
	var out []types.BlockID
	for it.First(); it.Valid(); it.Next() {
		var ids []types.TransactionID
		if err := json.Unmarshal(it.Value(), &ids); err != nil {
			continue
		}
		for _, id := range ids {
			if id != txID {
				continue
			}
			h, err := types.HashFromHex(string(it.Key()[1:]))
			if err != nil {
				continue
			}
			out = append(out, types.BlockID(h))
			break
		}
	}
	return out, nil
}

func (t *pebbleReadTx) GetPoolRecord(id types.TransactionID) (*types.TransactionPoolRecord, error) {
	var r types.TransactionPoolRecord
	if err := t.getJSON(idKey(prefixPool, id), &r); err != nil {
		return nil, fmt.Errorf("store: pool record %s: %w", id, err)
	}
	return &r, nil
}

func (t *pebbleReadTx) scanPool() ([]*types.TransactionPoolRecord, error) {
	it, err := t.src().NewIter(&pebble.IterOptions{LowerBound: []byte{prefixPool}, UpperBound: []byte{prefixPool + 1}})
	if err != nil {
		return nil, fmt.Errorf("store: iterate pool: %w", err)
	}
	defer it.Close()
	var out []*types.TransactionPoolRecord
	for it.First(); it.Valid(); it.Next() {
		var r types.TransactionPoolRecord
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			return nil, fmt.Errorf("store: decode pool record: %w: %w", err, types.ErrCorrupt)
		}
		out = append(out, &r)
	}
	return out, nil
}

func (t *pebbleReadTx) GetPoolRecords(filter types.PoolRecordFilter) ([]*types.TransactionPoolRecord, error) {
	all, err := t.scanPool()
	if err != nil {
		return nil, err
	}
	out := make([]*types.TransactionPoolRecord, 0, len(all))
	for _, r := range all {
		if matchesFilter(r, filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *pebbleReadTx) CountPoolRecords(filter types.PoolRecordFilter) (int, error) {
	recs, err := t.GetPoolRecords(filter)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (t *pebbleReadTx) GetSubstate(id types.SubstateID) (*types.SubstateRecord, error) {
	var s types.SubstateRecord
	if err := t.getJSON(substateKey(id), &s); err != nil {
		return nil, fmt.Errorf("store: substate %s: %w", id, err)
	}
	return &s, nil
}

type pebbleWriteTx struct {
	pebbleReadTx
	batch *pebble.Batch
}

func (t *pebbleWriteTx) putJSON(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %x: %w", key, err)
	}
	return t.batch.Set(key, b, nil)
}

func (t *pebbleWriteTx) InsertBlock(b *types.Block) error {
	if ok, _ := t.has(idKey(prefixBlock, b.ID)); ok {
		return nil
	}
	if err := t.putJSON(idKey(prefixBlock, b.ID), b); err != nil {
		return err
	}
	tip, err := t.GetTip(b.Epoch)
	if err != nil || b.Height > tip.Height {
		return t.putJSON(epochKey(prefixTip, b.Epoch), b.ID)
	}
	return nil
}

func (t *pebbleWriteTx) has(key []byte) (bool, error) {
	_, closer, err := t.src().Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (t *pebbleWriteTx) InsertQC(qc *types.QuorumCertificate) error {
	id := qc.ID()
	if ok, _ := t.has(idKey(prefixQC, id)); ok {
		return nil
	}
	return t.putJSON(idKey(prefixQC, id), qc)
}

func (t *pebbleWriteTx) SetLastVoted(epoch types.Epoch, v types.LastVoted) error {
	return t.putJSON(epochKey(prefixLastVoted, epoch), v)
}

func (t *pebbleWriteTx) SetLockedBlock(epoch types.Epoch, v types.LockedBlockMarker) error {
	return t.putJSON(epochKey(prefixLockedBlock, epoch), v)
}

func (t *pebbleWriteTx) SetLastExecuted(epoch types.Epoch, v types.LastExecuted) error {
	return t.putJSON(epochKey(prefixLastExecuted, epoch), v)
}

func (t *pebbleWriteTx) SetHighQC(epoch types.Epoch, qc *types.QuorumCertificate) error {
	id := qc.ID()
	if err := t.putJSON(idKey(prefixQC, id), qc); err != nil {
		return err
	}
	return t.putJSON(epochKey(prefixHighQC, epoch), id)
}

func (t *pebbleWriteTx) InsertMissingTransactions(blockID types.BlockID, ids []types.TransactionID) error {
	existing, _ := t.GetMissingTransactions(blockID)
	seen := make(map[types.TransactionID]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	merged := make([]types.TransactionID, 0, len(seen))
	for id := range seen {
		merged = append(merged, id)
	}
	return t.putJSON(idKey(prefixMissing, blockID), merged)
}

func (t *pebbleWriteTx) RemoveMissingTransactions(blockID types.BlockID) error {
	return t.batch.Delete(idKey(prefixMissing, blockID), nil)
}

func (t *pebbleWriteTx) InsertExecutedTransaction(tx *types.ExecutedTransaction) error {
	return t.putJSON(idKey(prefixExecuted, tx.Transaction.ID), tx)
}

func (t *pebbleWriteTx) SetExecutedTransactionFinalDecision(id types.TransactionID, d types.Decision) error {
	tx, err := t.GetExecutedTransaction(id)
	if err != nil {
		return err
	}
	tx.SetFinalDecision(d)
	return t.putJSON(idKey(prefixExecuted, id), tx)
}

func (t *pebbleWriteTx) InsertPoolRecord(r *types.TransactionPoolRecord) error {
	if ok, _ := t.has(idKey(prefixPool, r.TransactionID)); ok {
		return fmt.Errorf("store: pool record %s already exists: %w", r.TransactionID, types.ErrConflict)
	}
	return t.putJSON(idKey(prefixPool, r.TransactionID), r)
}

func (t *pebbleWriteTx) UpdatePoolRecord(r *types.TransactionPoolRecord) error {
	if ok, _ := t.has(idKey(prefixPool, r.TransactionID)); !ok {
		return fmt.Errorf("store: pool record %s: %w", r.TransactionID, types.ErrNotFound)
	}
	return t.putJSON(idKey(prefixPool, r.TransactionID), r)
}

func (t *pebbleWriteTx) RemovePoolRecord(id types.TransactionID) error {
	return t.batch.Delete(idKey(prefixPool, id), nil)
}

func (t *pebbleWriteTx) TransitionPoolRecord(id types.TransactionID, newStage types.TransactionPoolStage, isReady bool) error {
	r, err := t.GetPoolRecord(id)
	if err != nil {
		return err
	}
	r.Stage = newStage
	r.IsReady = isReady
	return t.putJSON(idKey(prefixPool, id), r)
}

func (t *pebbleWriteTx) UpsertSubstate(s *types.SubstateRecord) error {
	return t.putJSON(substateKey(s.ID), s)
}

func (t *pebbleWriteTx) DeleteSubstate(id types.SubstateID) error {
	return t.batch.Delete(substateKey(id), nil)
}

func (t *pebbleWriteTx) TryLockMany(owner types.TransactionID, ids []types.SubstateID, flag types.LockFlag) (bool, error) {
	recs := make([]*types.SubstateRecord, len(ids))
	for i, id := range ids {
		rec, err := t.GetSubstate(id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				rec = &types.SubstateRecord{ID: id, Lock: types.NewLockState()}
			} else {
				return false, err
			}
		}
		if rec.Lock.IsWritten || (flag == types.LockWrite && len(rec.Lock.Readers) > 0) {
			return false, nil
		}
		if rec.Lock.Writer != (types.TransactionID{}) && rec.Lock.Writer != owner {
			return false, nil
		}
		recs[i] = rec
	}

	for _, rec := range recs {
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
		if err := t.UpsertSubstate(rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (t *pebbleWriteTx) TryUnlockMany(owner types.TransactionID, ids []types.SubstateID) error {
	for _, id := range ids {
		rec, err := t.GetSubstate(id)
		if err != nil {
			continue
		}
		if rec.Lock.Writer == owner {
			rec.Lock.Writer = types.TransactionID{}
			rec.Lock.IsWritten = false
		}
		delete(rec.Lock.Readers, owner)
		if err := t.UpsertSubstate(rec); err != nil {
			return err
		}
	}
	return nil
}
