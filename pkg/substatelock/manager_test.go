package substatelock

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shardledger/valnode/pkg/metrics"
	"github.com/shardledger/valnode/pkg/store"
	"github.com/shardledger/valnode/pkg/types"
)

func TestManagerAcquireAllOrNothing(t *testing.T) {
	s := store.NewMemStore()
	m := New(nil)
	owner := types.TransactionID{0x01}

	err := s.WithWriteTx(func(tx types.WriteTx) error {
		ok, err := m.Acquire(tx, owner, []types.LockIntent{
			{SubstateID: "a", Flag: types.LockWrite},
			{SubstateID: "b", Flag: types.LockRead},
		})
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected acquisition to succeed on an empty store")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write tx: %v", err)
	}
}

func TestManagerAcquireConflictRecordsMetric(t *testing.T) {
	s := store.NewMemStore()
	metricsSink := metrics.New()
	m := New(metricsSink)
	holder := types.TransactionID{0xAA}
	other := types.TransactionID{0xBB}

	err := s.WithWriteTx(func(tx types.WriteTx) error {
		ok, err := tx.TryLockMany(holder, []types.SubstateID{"x"}, types.LockWrite)
		if err != nil || !ok {
			t.Fatalf("seed lock: ok=%v err=%v", ok, err)
		}

		ok, err = m.Acquire(tx, other, []types.LockIntent{{SubstateID: "x", Flag: types.LockWrite}})
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected conflicting acquisition to fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write tx: %v", err)
	}

	if got := testutil.ToFloat64(metricsSink.LockConflicts); got != 1 {
		t.Fatalf("expected LockConflicts to be incremented once, got %v", got)
	}
}

func TestManagerReleaseDropsAllIntents(t *testing.T) {
	s := store.NewMemStore()
	m := New(nil)
	owner := types.TransactionID{0x01}
	intents := []types.LockIntent{
		{SubstateID: "a", Flag: types.LockWrite},
		{SubstateID: "b", Flag: types.LockRead},
	}

	err := s.WithWriteTx(func(tx types.WriteTx) error {
		ok, err := m.Acquire(tx, owner, intents)
		if err != nil || !ok {
			t.Fatalf("acquire: ok=%v err=%v", ok, err)
		}
		if err := m.Release(tx, owner, intents); err != nil {
			return err
		}

		other := types.TransactionID{0x02}
		ok, err = m.Acquire(tx, other, intents)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected a second owner to acquire the same intents after release")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write tx: %v", err)
	}
}
