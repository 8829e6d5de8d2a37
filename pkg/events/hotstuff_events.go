package events

import "github.com/shardledger/valnode/pkg/types"

// BlockCommitted is emitted once per block as its Accept commands are
// applied during the three-chain commit rule (spec.md §4.4.6).
type BlockCommitted struct {
	BlockID types.BlockID
	Height  types.NodeHeight
}

// VoteSent is emitted whenever this validator casts a vote.
type VoteSent struct {
	BlockID  types.BlockID
	Decision types.Decision
}

// TransactionPoolStageChanged is emitted whenever a pool record advances.
type TransactionPoolStageChanged struct {
	TransactionID types.TransactionID
	From          types.TransactionPoolStage
	To            types.TransactionPoolStage
}

// Hotstuff bundles the event feeds the proposal handler publishes to.
type Hotstuff struct {
	BlockCommitted *Feed[BlockCommitted]
	VoteSent       *Feed[VoteSent]
	StageChanged   *Feed[TransactionPoolStageChanged]
}

func NewHotstuff() *Hotstuff {
	return &Hotstuff{
		BlockCommitted: NewFeed[BlockCommitted](),
		VoteSent:       NewFeed[VoteSent](),
		StageChanged:   NewFeed[TransactionPoolStageChanged](),
	}
}
