package types

import (
	"context"
	"errors"
)

// EpochManager is the external collaborator that knows the current epoch,
// committee membership, and validator-set merkle roots (§1(iii), §6). This
// repository does not implement it against a base layer; pkg/epoch provides
// a static in-process implementation for tests and single-epoch deployments.
type EpochManager interface {
	CurrentEpoch(ctx context.Context) (Epoch, error)
	GetLocalCommittee(ctx context.Context, epoch Epoch) (Committee, error)
	GetLocalCommitteeShard(ctx context.Context, epoch Epoch) (CommitteeShard, error)
	GetCommitteeShard(ctx context.Context, epoch Epoch, shardKey ShardID) (CommitteeShard, error)
	GetValidatorNode(ctx context.Context, epoch Epoch, addr Address) (ValidatorNode, error)
	GetValidatorNodeMerkleProof(ctx context.Context, epoch Epoch, addr Address) (MerkleProof, error)
	IsThisValidatorRegisteredForEpoch(ctx context.Context, epoch Epoch) (bool, error)
	NumShardGroups(ctx context.Context, epoch Epoch) (uint32, error)
	Subscribe(ctx context.Context) (<-chan EpochEvent, error)
}

// LeaderStrategy picks the leader for a block (§4.4.5, §6). The default is
// round-robin over committee order, indexed by (hash(block_id)+offset) mod n.
type LeaderStrategy interface {
	GetLeader(committee Committee, blockID BlockID, offset uint32) Address
}

// SignatureService signs and verifies votes over (leaf_hash, block_id,
// decision) (§6). QC/vote signature *verification discipline* is resolved
// in DESIGN.md: this design does not re-derive the scheme, it trusts
// VerifyVote's answer.
type SignatureService interface {
	SignVote(leafHash Hash, blockID BlockID, decision Decision) (Signature, error)
	VerifyVote(signer Address, leafHash Hash, blockID BlockID, decision Decision, sig Signature) bool
}

// StateManager applies a committed transaction's substate diff to durable
// state (§4.4.6). The substate store itself is out of scope (§1(iv)); this
// is the narrow write path the proposal handler uses during commit.
type StateManager interface {
	ApplyDiff(ctx context.Context, diff *SubstateDiff) error
}

// StateDB is the in-memory execution scratch space the mempool coordinator
// builds per transaction before invoking the executor (§4.5).
type StateDB interface {
	SetMany(inputs map[SubstateID][]byte) error
}

// Executor is the external collaborator that, given resolved inputs and a
// transaction, produces an execution result with a substate diff (§1(i),
// §6). Out of scope: this repository only calls it.
type Executor interface {
	Execute(ctx context.Context, tx *Transaction, db StateDB, virtualSubstates map[string][]byte) (*ExecutionResult, error)
}

// Resolver error kinds (§6, §7). UnauthorizedFeeClaim, InputSubstateDowned
// and InputSubstateDoesNotExist are transaction failures, never system
// failures; Transport and Storage propagate as ordinary errors.
var (
	ErrUnauthorizedFeeClaim      = errors.New("unauthorized fee claim")
	ErrInputSubstateDowned       = errors.New("input substate downed")
	ErrInputSubstateDoesNotExist = errors.New("input substate does not exist")
	ErrResolverTransport         = errors.New("substate resolver transport error")
	ErrResolverStorage           = errors.New("substate resolver storage error")
)

// SubstateResolver is the external collaborator that loads versioned inputs
// and virtual substates from storage and foreign committees (§1(ii), §6).
type SubstateResolver interface {
	ResolveVirtualSubstates(ctx context.Context, tx *Transaction, epoch Epoch) (map[string][]byte, error)
	Resolve(ctx context.Context, tx *Transaction) (map[SubstateID][]byte, error)
}

// InboundGossip is one decoded message arriving from the gossip overlay,
// tagged with the sending peer's identity.
type InboundGossip struct {
	Peer Address
	Data []byte
}

// GossipOverlay is the external pub/sub transport (§1(v), §6): topic
// subscribe/unsubscribe/publish plus an inbound stream of (peer, bytes).
type GossipOverlay interface {
	SubscribeTopic(ctx context.Context, topic string) error
	UnsubscribeTopic(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, data []byte) error
	Inbound() <-chan InboundGossip
}

// PeerTransport is point-to-point delivery to a single peer (votes,
// RequestMissingTransactions) — distinct from the broadcast GossipOverlay,
// mirroring the Rust source's tx_leader mpsc channel.
type PeerTransport interface {
	SendToPeer(ctx context.Context, peer Address, msg HotstuffMessage) error
}

// Spec bundles every collaborator the consensus engine needs behind a
// single vtable-like abstraction, chosen once at startup, per spec.md §9's
// design note ("avoid pervasive generics in favour of a single vtable-like
// abstraction").
type Spec struct {
	ValidatorAddr Address
	Store         StateStore
	EpochManager  EpochManager
	Leader        LeaderStrategy
	Signer        SignatureService
	StateManager  StateManager
}
