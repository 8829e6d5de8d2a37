// Package leader implements the default leader-election strategy: a
// round-robin rotation over committee order (spec.md §4.4.5, §6).
package leader

import (
	"encoding/binary"

	"github.com/shardledger/valnode/pkg/types"
)

// RoundRobin selects the leader for a block as
// committee[(hash(block_id)+offset) mod |committee|], matching the default
// described in spec.md §6.
type RoundRobin struct{}

var _ types.LeaderStrategy = RoundRobin{}

func (RoundRobin) GetLeader(committee types.Committee, blockID types.BlockID, offset uint32) types.Address {
	if committee.Len() == 0 {
		return ""
	}
	h := binary.BigEndian.Uint64(blockID[:8])
	idx := (h + uint64(offset)) % uint64(committee.Len())
	return committee.Members[idx]
}
