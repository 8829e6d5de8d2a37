package hotstuff

import (
	"context"
	"fmt"

	"github.com/shardledger/valnode/pkg/events"
	"github.com/shardledger/valnode/pkg/types"
)

// updateNodesAndCommit implements §4.4.6: it advances high_qc, locks the
// precommit node, and — if block's ancestry forms a three-chain — commits
// every block from LastExecuted+1 up to the commit node's height.
//
// The Rust source (update_nodes/on_commit) walks the chain recursively,
// "catching up" any unexecuted ancestors before executing the current one.
// Recursion depth there is bounded by how far behind a replica has fallen,
// which is exactly the case a crash-recovering or catching-up validator
// hits hardest — so here the walk is iterative (ascending from
// LastExecuted+1 to the commit height) to keep it O(1) stack regardless of
// how far behind the node is.
func (h *Handler) updateNodesAndCommit(ctx context.Context, tx types.WriteTx, block *types.Block, localShard types.CommitteeShard) error {
	if err := updateHighQC(tx, block.Epoch, block.Justify); err != nil {
		return err
	}

	commitNode, err := tx.GetBlock(block.Justify.BlockID)
	if err != nil {
		return nil // justify block not yet known: nothing more to do this round
	}
	precommitNode, err := tx.GetBlock(commitNode.Justify.BlockID)
	if err != nil {
		return nil
	}

	locked, err := tx.GetLockedBlock(block.Epoch)
	if err != nil {
		return fmt.Errorf("hotstuff: update_nodes: locked block: %w", err)
	}
	if precommitNode.Height > locked.Height {
		if err := tx.SetLockedBlock(block.Epoch, types.LockedBlockMarker{BlockID: precommitNode.ID, Height: precommitNode.Height}); err != nil {
			return err
		}
	}

	prepareNodeID := precommitNode.Justify.BlockID
	if commitNode.Parent != precommitNode.ID || precommitNode.Parent != prepareNodeID {
		return nil // does not form a three-chain yet
	}

	commitNode2, err := tx.GetBlock(prepareNodeID)
	if err != nil {
		return nil // the prepare node itself isn't known yet
	}

	lastExecuted, err := tx.GetLastExecuted(block.Epoch)
	if err != nil {
		return fmt.Errorf("hotstuff: update_nodes: last executed: %w", err)
	}
	if lastExecuted.Height >= commitNode2.Height {
		return nil
	}

	if err := h.commitRange(ctx, tx, lastExecuted.Height, commitNode2, localShard); err != nil {
		return err
	}
	return tx.SetLastExecuted(block.Epoch, types.LastExecuted{Height: commitNode2.Height})
}

// commitRange walks up the parent chain from target, collecting every block
// above fromHeight, then executes them in ascending height order.
func (h *Handler) commitRange(ctx context.Context, tx types.WriteTx, fromHeight types.NodeHeight, target *types.Block, localShard types.CommitteeShard) error {
	var chain []*types.Block
	current := target
	for current.Height > fromHeight {
		chain = append(chain, current)
		if current.IsGenesis() {
			break
		}
		parent, err := tx.GetParent(current)
		if err != nil {
			return fmt.Errorf("hotstuff: commit_range: %w", err)
		}
		current = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if err := h.executeBlock(ctx, tx, chain[i], localShard); err != nil {
			return err
		}
		if h.events != nil {
			h.events.BlockCommitted.Send(events.BlockCommitted{BlockID: chain[i].ID, Height: chain[i].Height})
		}
		if h.metrics != nil {
			h.metrics.BlocksCommitted.Inc()
		}
	}
	return nil
}

// executeBlock applies every Accept command's substate diff (§4.4.6):
// commit or abort, unlock the transaction's inputs, drop its pool record,
// and stamp its final decision.
func (h *Handler) executeBlock(ctx context.Context, tx types.WriteTx, block *types.Block, localShard types.CommitteeShard) error {
	for _, cmd := range block.Commands {
		if !cmd.IsAccept() {
			continue
		}

		executed, err := tx.GetExecutedTransaction(cmd.TransactionID)
		if err != nil {
			return fmt.Errorf("hotstuff: execute: %w", err)
		}

		if cmd.Decision.IsCommit() && executed.Result != nil && executed.Result.Diff != nil {
			if err := h.spec.StateManager.ApplyDiff(ctx, executed.Result.Diff); err != nil {
				return fmt.Errorf("hotstuff: execute: apply diff: %w", err)
			}
		}
		if err := h.locks.Release(tx, cmd.TransactionID, executed.ResolvedInputs); err != nil {
			return fmt.Errorf("hotstuff: execute: release locks: %w", err)
		}

		if err := tx.RemovePoolRecord(cmd.TransactionID); err != nil {
			return fmt.Errorf("hotstuff: execute: remove pool record: %w", err)
		}
		if err := tx.SetExecutedTransactionFinalDecision(cmd.TransactionID, cmd.Decision); err != nil {
			return fmt.Errorf("hotstuff: execute: final decision: %w", err)
		}
	}
	return nil
}

// updateHighQC stores qc as the epoch's high QC if it is higher than the
// one currently stored (or none is stored yet).
func updateHighQC(tx types.WriteTx, epoch types.Epoch, qc *types.QuorumCertificate) error {
	current, err := tx.GetHighQC(epoch)
	if err != nil {
		return tx.SetHighQC(epoch, qc)
	}
	if qc.BlockHeight > current.BlockHeight {
		return tx.SetHighQC(epoch, qc)
	}
	return nil
}
