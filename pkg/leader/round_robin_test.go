package leader

import (
	"testing"

	"github.com/shardledger/valnode/pkg/types"
)

func TestRoundRobinRotatesWithOffset(t *testing.T) {
	committee := types.Committee{Members: []types.Address{"v0", "v1", "v2", "v3"}}
	blockID := types.BlockID{0, 0, 0, 0, 0, 0, 0, 7}

	rr := RoundRobin{}
	first := rr.GetLeader(committee, blockID, 0)
	second := rr.GetLeader(committee, blockID, 1)

	firstIdx := committee.IndexOf(first)
	secondIdx := committee.IndexOf(second)
	if (firstIdx+1)%committee.Len() != secondIdx {
		t.Fatalf("expected offset 1 to rotate to the next member: first=%d second=%d", firstIdx, secondIdx)
	}
}

func TestRoundRobinEmptyCommittee(t *testing.T) {
	rr := RoundRobin{}
	if got := rr.GetLeader(types.Committee{}, types.BlockID{}, 0); got != "" {
		t.Fatalf("expected empty address for an empty committee, got %q", got)
	}
}

func TestRoundRobinDeterministic(t *testing.T) {
	committee := types.Committee{Members: []types.Address{"v0", "v1", "v2"}}
	blockID := types.BlockID{0xAB, 0xCD}

	rr := RoundRobin{}
	a := rr.GetLeader(committee, blockID, 5)
	b := rr.GetLeader(committee, blockID, 5)
	if a != b {
		t.Fatalf("expected deterministic leader selection, got %q and %q", a, b)
	}
}
