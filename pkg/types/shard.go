package types

import (
	"encoding/binary"
	"fmt"
)

// ShardID is a point in the substate-id keyspace. Committees are
// responsible for contiguous ranges ("shard groups") of this space.
type ShardID Hash

func (s ShardID) String() string { return Hash(s).String() }

// ToBucket maps a shard id onto one of numBuckets committee buckets by
// taking the most significant 32 bits of the id modulo numBuckets, mirroring
// the teacher's hash-based shard routing in pkg/sharding.ShardRouter.
func (s ShardID) ToBucket(numBuckets uint32) uint32 {
	if numBuckets == 0 {
		return 0
	}
	prefix := binary.BigEndian.Uint32(s[:4])
	return prefix % numBuckets
}

// ShardGroup is a contiguous range of committee buckets that a committee is
// collectively responsible for. Buckets, not raw ShardIDs, are used for
// gossip topic naming ("consensus-<start>-<end>") so topic strings stay
// short regardless of keyspace width.
type ShardGroup struct {
	Start uint32 // inclusive
	End   uint32 // inclusive
}

func (g ShardGroup) Contains(bucket uint32) bool {
	return bucket >= g.Start && bucket <= g.End
}

func (g ShardGroup) String() string {
	return fmt.Sprintf("%d-%d", g.Start, g.End)
}

// CommitteeShard describes the committee this validator belongs to for a
// given epoch: which bucket it owns, the shard group the bucket belongs to,
// and how many members the local committee has.
type CommitteeShard struct {
	Bucket         uint32
	Group          ShardGroup
	NumShardGroups uint32
	NumMembers     uint32
}

// Committee is the set of validators responsible for a shard group in an
// epoch, in the canonical order used by the leader strategy.
type Committee struct {
	Members []Address
}

func (c Committee) Len() int { return len(c.Members) }

func (c Committee) Contains(addr Address) bool {
	for _, m := range c.Members {
		if m == addr {
			return true
		}
	}
	return false
}

// IndexOf returns the position of addr in the committee, or -1.
func (c Committee) IndexOf(addr Address) int {
	for i, m := range c.Members {
		if m == addr {
			return i
		}
	}
	return -1
}

// ValidatorNode is a single member of a committee, as returned by the epoch
// manager collaborator.
type ValidatorNode struct {
	Address  Address
	ShardKey ShardID
}

// EpochEvent is emitted by the epoch manager's event subscription.
type EpochEvent struct {
	Epoch Epoch
}
