package types

// HotstuffMessageKind tags the wire variant of a HotstuffMessage. Consensus
// messages are a closed, versioned schema (§6).
type HotstuffMessageKind uint8

const (
	MsgProposal HotstuffMessageKind = iota
	MsgVote
	MsgNewView
	MsgRequestMissingTransactions
)

// ProposalMessage carries a block a leader is proposing to its committee.
type ProposalMessage struct {
	Block *Block
}

// VoteMessage is a signed vote addressed to the leader of the next block.
type VoteMessage struct {
	Epoch     Epoch
	BlockID   BlockID
	Decision  Decision
	Signer    Address
	Signature Signature
	Proof     MerkleProof
}

// NewViewMessage carries a replica's high QC when it times out waiting for a
// proposal, so the next leader can catch up.
type NewViewMessage struct {
	Epoch    Epoch
	HighQC   *QuorumCertificate
	NewHeight NodeHeight
}

// RequestMissingTransactionsMessage asks the leader for the executed
// transactions a pending block is waiting on.
type RequestMissingTransactionsMessage struct {
	BlockID        BlockID
	Epoch          Epoch
	TransactionIDs []TransactionID
}

// HotstuffMessage is the tagged union of every consensus wire message.
// Exactly one of the pointer fields matching Kind is populated.
type HotstuffMessage struct {
	Kind           HotstuffMessageKind
	Proposal       *ProposalMessage
	Vote           *VoteMessage
	NewView        *NewViewMessage
	RequestMissing *RequestMissingTransactionsMessage
}

func NewProposalMessage(b *Block) HotstuffMessage {
	return HotstuffMessage{Kind: MsgProposal, Proposal: &ProposalMessage{Block: b}}
}

func NewVoteMessage(v VoteMessage) HotstuffMessage {
	return HotstuffMessage{Kind: MsgVote, Vote: &v}
}

func NewRequestMissingTransactionsMessage(m RequestMissingTransactionsMessage) HotstuffMessage {
	return HotstuffMessage{Kind: MsgRequestMissingTransactions, RequestMissing: &m}
}

// DanMessageKind tags the wire variant of a DanMessage (mempool traffic, a
// schema separate from consensus messages per §6).
type DanMessageKind uint8

const (
	DanMsgNewTransaction DanMessageKind = iota
)

// DanMessage is the tagged union of mempool gossip messages.
type DanMessage struct {
	Kind        DanMessageKind
	Transaction *Transaction
}
