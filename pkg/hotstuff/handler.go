// Package hotstuff implements the C4 proposal handler: dispatch of local and
// foreign block proposals, the should_vote safety/liveness predicate, the
// per-command decide_what_to_vote rule, and the three-chain commit walk
// (§4.4). It is ported 1:1 from original_source's
// OnReceiveProposalHandler<TConsensusSpec> (on_receive_proposal.rs): Go has
// no direct analogue of a generic type-parameter collaborator bundle, so the
// Rust source's TConsensusSpec is replaced by the explicit types.Spec
// vtable struct (spec.md §9 design note).
package hotstuff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shardledger/valnode/pkg/events"
	"github.com/shardledger/valnode/pkg/metrics"
	"github.com/shardledger/valnode/pkg/substatelock"
	"github.com/shardledger/valnode/pkg/txpool"
	"github.com/shardledger/valnode/pkg/types"
)

// Handler is the consensus engine's entry point for inbound proposals. One
// Handler exists per validator process.
type Handler struct {
	spec      types.Spec
	pool      *txpool.Pool
	locks     *substatelock.Manager
	transport types.PeerTransport
	events    *events.Hotstuff
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func New(
	spec types.Spec,
	locks *substatelock.Manager,
	pool *txpool.Pool,
	transport types.PeerTransport,
	ev *events.Hotstuff,
	m *metrics.Metrics,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{spec: spec, pool: pool, locks: locks, transport: transport, events: ev, metrics: m, log: log}
}

// Handle dispatches an inbound proposal to the local or foreign path
// depending on whether from is a member of the block's local committee.
func (h *Handler) Handle(ctx context.Context, from types.Address, msg types.ProposalMessage) error {
	block := msg.Block

	localCommittee, err := h.spec.EpochManager.GetLocalCommittee(ctx, block.Epoch)
	if err != nil {
		return fmt.Errorf("hotstuff: handle: local committee: %w", err)
	}

	if localCommittee.Contains(from) {
		h.log.Debug("received local proposal", "block", block.ID, "parent", block.Parent, "height", block.Height, "from", from)
		return h.handleLocalProposal(ctx, from, localCommittee, block)
	}
	h.log.Debug("received foreign proposal", "block", block.ID, "parent", block.Parent, "height", block.Height, "from", from)
	return h.handleForeignProposal(ctx, from, block)
}

func (h *Handler) handleLocalProposal(ctx context.Context, from types.Address, localCommittee types.Committee, block *types.Block) error {
	err := h.spec.Store.WithWriteTx(func(tx types.WriteTx) error {
		if err := validateLocalProposedBlock(tx, from, block); err != nil {
			return err
		}
		if err := tx.InsertQC(block.Justify); err != nil {
			return err
		}
		return tx.InsertBlock(block)
	})
	if err != nil {
		return fmt.Errorf("hotstuff: handle_local_proposal: %w", err)
	}

	missing, err := h.blockHasMissingTransaction(ctx, localCommittee, block)
	if err != nil {
		return err
	}
	if missing {
		return nil
	}
	return h.ProcessBlock(ctx, localCommittee, block)
}

// blockHasMissingTransaction checks that every transaction a block's
// commands reference has already been executed locally. If any are
// missing, it records the block as pending and asks the leader for them
// (§4.4.2 step 3).
func (h *Handler) blockHasMissingTransaction(ctx context.Context, localCommittee types.Committee, block *types.Block) (bool, error) {
	var missingIDs []types.TransactionID
	err := h.spec.Store.WithReadTx(func(tx types.ReadTx) error {
		for _, txID := range block.AllTransactionIDs() {
			exists, err := tx.ExecutedTransactionExists(txID)
			if err != nil {
				return err
			}
			if !exists {
				missingIDs = append(missingIDs, txID)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("hotstuff: block_has_missing_transaction: %w", err)
	}
	if len(missingIDs) == 0 {
		return false, nil
	}

	if err := h.spec.Store.WithWriteTx(func(tx types.WriteTx) error {
		return tx.InsertMissingTransactions(block.ID, missingIDs)
	}); err != nil {
		return false, fmt.Errorf("hotstuff: block_has_missing_transaction: persist: %w", err)
	}

	msg := types.NewRequestMissingTransactionsMessage(types.RequestMissingTransactionsMessage{
		BlockID:        block.ID,
		Epoch:          block.Epoch,
		TransactionIDs: missingIDs,
	})
	if err := h.sendToLeader(ctx, localCommittee, block.ID, msg); err != nil {
		return false, err
	}
	return true, nil
}

// ReprocessBlock re-enters a previously-pending block once its missing
// transactions have finished executing (§4.4.7, invoked by pkg/mempool).
func (h *Handler) ReprocessBlock(ctx context.Context, blockID types.BlockID) error {
	var block *types.Block
	err := h.spec.Store.WithReadTx(func(tx types.ReadTx) error {
		b, err := tx.GetBlock(blockID)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	if err != nil {
		return fmt.Errorf("hotstuff: reprocess_block: %w", err)
	}

	localCommittee, err := h.spec.EpochManager.GetLocalCommittee(ctx, block.Epoch)
	if err != nil {
		return fmt.Errorf("hotstuff: reprocess_block: local committee: %w", err)
	}
	return h.ProcessBlock(ctx, localCommittee, block)
}

// ProcessBlock runs should_vote, decide_what_to_vote, and the three-chain
// commit walk for a block whose transactions are all known locally, then
// sends a vote to the next leader if a decision was reached.
func (h *Handler) ProcessBlock(ctx context.Context, localCommittee types.Committee, block *types.Block) error {
	localShard, err := h.spec.EpochManager.GetLocalCommitteeShard(ctx, block.Epoch)
	if err != nil {
		return fmt.Errorf("hotstuff: process_block: local committee shard: %w", err)
	}

	var decided bool
	err = h.spec.Store.WithWriteTx(func(tx types.WriteTx) error {
		vote, err := shouldVote(tx, block)
		if err != nil {
			return err
		}

		if vote {
			accepted, err := h.decideWhatToVote(tx, block, localShard)
			if err != nil {
				return err
			}
			decided = accepted
		}

		return h.updateNodesAndCommit(ctx, tx, block, localShard)
	})
	if err != nil {
		return fmt.Errorf("hotstuff: process_block: %w", err)
	}

	if decided {
		vote, err := h.generateVoteMessage(ctx, block, types.DecisionCommit)
		if err != nil {
			return err
		}
		h.log.Debug("sending vote", "block", block.ID, "decision", vote.Decision)
		if h.events != nil {
			h.events.VoteSent.Send(events.VoteSent{BlockID: block.ID, Decision: vote.Decision})
		}
		if h.metrics != nil {
			h.metrics.VotesCast.WithLabelValues(vote.Decision.String()).Inc()
		}
		return h.sendToLeader(ctx, localCommittee, block.ID, types.NewVoteMessage(vote))
	}
	if h.metrics != nil {
		h.metrics.ProposalsAbstained.Inc()
	}
	return nil
}

func (h *Handler) handleForeignProposal(ctx context.Context, from types.Address, block *types.Block) error {
	vn, err := h.spec.EpochManager.GetValidatorNode(ctx, block.Epoch, from)
	if err != nil {
		return fmt.Errorf("hotstuff: handle_foreign_proposal: %w", err)
	}
	foreignShard, err := h.spec.EpochManager.GetCommitteeShard(ctx, block.Epoch, vn.ShardKey)
	if err != nil {
		return fmt.Errorf("hotstuff: handle_foreign_proposal: %w", err)
	}
	if err := validateProposedBlock(from, block); err != nil {
		return err
	}

	err = h.spec.Store.WithWriteTx(func(tx types.WriteTx) error {
		return h.onReceiveForeignBlock(tx, block, foreignShard)
	})
	if err != nil {
		return fmt.Errorf("hotstuff: handle_foreign_proposal: %w", err)
	}
	return nil
}

func (h *Handler) onReceiveForeignBlock(tx types.WriteTx, block *types.Block, foreignShard types.CommitteeShard) error {
	if err := tx.InsertQC(block.Justify); err != nil {
		return err
	}

	for _, cmd := range block.Commands {
		if !cmd.IsLocalPrepared() {
			continue
		}
		record, err := tx.GetPoolRecord(cmd.TransactionID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return err
		}
		if record.Stage.IsComplete() {
			h.log.Warn("foreign proposal received after transaction complete, ignoring", "tx", cmd.TransactionID)
			continue
		}

		record.Evidence.Update(foreignShard.Bucket, block.Justify.ID(), cmd.Decision)
		changeToAbort := cmd.Decision.IsAbort() && record.OriginalDecision.IsCommit()
		if changeToAbort {
			h.log.Info("foreign shard abort, updating decision to abort", "tx", cmd.TransactionID)
			record.SetChangedDecision(types.DecisionAbort)
		}

		if record.Stage.IsLocalPrepared() && record.Evidence.AllShardsComplete() {
			if changeToAbort {
				record.Stage = types.StageSomePrepared
			} else {
				record.Stage = types.StageAllPrepared
			}
			record.IsReady = true
		}

		if err := tx.UpdatePoolRecord(record); err != nil {
			return err
		}
	}
	return nil
}

// decideWhatToVote applies §4.4.5's per-command rule to every command in
// block, via pkg/txpool. It returns (true, nil) only if every command
// passed; any ErrAbstain means the voter abstains on the whole block.
func (h *Handler) decideWhatToVote(tx types.WriteTx, block *types.Block, localShard types.CommitteeShard) (bool, error) {
	if err := tx.SetLastVoted(block.Epoch, types.LastVoted{Height: block.Height}); err != nil {
		return false, err
	}

	for _, cmd := range block.Commands {
		record, err := tx.GetPoolRecord(cmd.TransactionID)
		if err != nil {
			return false, fmt.Errorf("hotstuff: decide_what_to_vote: %w", err)
		}

		err = h.pool.ApplyCommand(tx, localShard.Bucket, block.Justify.ID(), cmd, record)
		if err != nil {
			if isAbstain(err) {
				h.log.Warn("abstaining from block", "block", block.ID, "reason", err)
				return false, nil
			}
			return false, err
		}
	}

	h.log.Debug("accepting block", "block", block.ID)
	return true, nil
}

// isAbstain reports whether err (possibly wrapped) is txpool.ErrAbstain.
func isAbstain(err error) bool {
	return errors.Is(err, txpool.ErrAbstain)
}

func (h *Handler) sendToLeader(ctx context.Context, localCommittee types.Committee, blockID types.BlockID, msg types.HotstuffMessage) error {
	leader := h.spec.Leader.GetLeader(localCommittee, blockID, 0)
	return h.transport.SendToPeer(ctx, leader, msg)
}

func (h *Handler) generateVoteMessage(ctx context.Context, block *types.Block, decision types.Decision) (types.VoteMessage, error) {
	proof, err := h.spec.EpochManager.GetValidatorNodeMerkleProof(ctx, block.Epoch, h.spec.ValidatorAddr)
	if err != nil {
		return types.VoteMessage{}, fmt.Errorf("hotstuff: generate_vote_message: %w", err)
	}
	if _, err := h.spec.EpochManager.GetValidatorNode(ctx, block.Epoch, h.spec.ValidatorAddr); err != nil {
		return types.VoteMessage{}, fmt.Errorf("hotstuff: generate_vote_message: %w", err)
	}

	// The merkle leaf a vote signs over is keyed by this validator's node
	// hash in the epoch's validator-set tree; block id stands in for it here
	// since StaticManager (pkg/epoch) maintains no such tree.
	leafHash := types.Hash(block.ID)
	sig, err := h.spec.Signer.SignVote(leafHash, block.ID, decision)
	if err != nil {
		return types.VoteMessage{}, fmt.Errorf("hotstuff: generate_vote_message: sign: %w", err)
	}

	return types.VoteMessage{
		Epoch:     block.Epoch,
		BlockID:   block.ID,
		Decision:  decision,
		Signer:    h.spec.ValidatorAddr,
		Signature: sig,
		Proof:     proof,
	}, nil
}
