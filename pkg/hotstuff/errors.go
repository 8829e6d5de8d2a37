package hotstuff

import "errors"

// Proposal validation errors (§4.4.3). JustifyBlockNotFound is recoverable
// (§4.4.7); the rest indicate a misbehaving or out-of-sync proposer.
var (
	ErrProposingGenesisBlock = errors.New("hotstuff: proposing genesis block")
	ErrNodeHashMismatch      = errors.New("hotstuff: block id does not match its content hash")
	ErrJustifyBlockNotFound  = errors.New("hotstuff: justify block not found")
	ErrJustifyBlockInvalid   = errors.New("hotstuff: justify block height mismatch")
	ErrChannelClosed         = errors.New("hotstuff: internal channel closed")
)
