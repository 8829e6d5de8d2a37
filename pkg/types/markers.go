package types

// LastVoted is the height of the last block this validator cast a vote on,
// per epoch.
type LastVoted struct {
	Height NodeHeight
}

// LockedBlockMarker is the highest block known to satisfy the three-chain
// safety level; votes must extend it.
type LockedBlockMarker struct {
	BlockID BlockID
	Height  NodeHeight
}

// LastExecuted is the height up to which this validator has applied commit
// commands.
type LastExecuted struct {
	Height NodeHeight
}
