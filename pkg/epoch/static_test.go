package epoch

import (
	"context"
	"testing"
	"time"

	"github.com/shardledger/valnode/pkg/types"
)

func TestStaticManagerCurrentEpochAndCommittee(t *testing.T) {
	committee := types.Committee{Members: []types.Address{"v0", "v1"}}
	shard := types.CommitteeShard{NumShardGroups: 1}
	m := NewStaticManager(3, committee, shard)
	ctx := context.Background()

	got, err := m.CurrentEpoch(ctx)
	if err != nil || got != 3 {
		t.Fatalf("CurrentEpoch() = %d, %v; want 3, nil", got, err)
	}

	c, err := m.GetLocalCommittee(ctx, 3)
	if err != nil || c.Len() != 2 {
		t.Fatalf("GetLocalCommittee(3) = %v, %v", c, err)
	}

	if _, err := m.GetLocalCommittee(ctx, 4); err == nil {
		t.Fatal("expected error for an unknown epoch")
	}
}

func TestStaticManagerGetValidatorNode(t *testing.T) {
	committee := types.Committee{Members: []types.Address{"v0"}}
	m := NewStaticManager(0, committee, types.CommitteeShard{})
	ctx := context.Background()

	if _, err := m.GetValidatorNode(ctx, 0, "v0"); err != nil {
		t.Fatalf("expected v0 to be a registered validator: %v", err)
	}
	if _, err := m.GetValidatorNode(ctx, 0, "unknown"); err == nil {
		t.Fatal("expected an error for an unregistered validator")
	}
}

func TestStaticManagerAdvanceEpochNotifiesSubscribers(t *testing.T) {
	committee := types.Committee{Members: []types.Address{"v0"}}
	m := NewStaticManager(0, committee, types.CommitteeShard{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.AdvanceEpoch(1, committee, types.CommitteeShard{})

	select {
	case ev := <-ch:
		if ev.Epoch != 1 {
			t.Fatalf("expected epoch event 1, got %d", ev.Epoch)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for epoch event")
	}

	got, err := m.CurrentEpoch(context.Background())
	if err != nil || got != 1 {
		t.Fatalf("CurrentEpoch() = %d, %v; want 1, nil", got, err)
	}
}
