package hotstuff

import (
	"fmt"

	"github.com/shardledger/valnode/pkg/types"
)

// validateProposedBlock runs the checks every proposal (local or foreign)
// must satisfy (§4.4.3): never a genesis block, and the block's declared id
// matches its own content hash.
func validateProposedBlock(from types.Address, block *types.Block) error {
	if block.Height == 0 || block.IsGenesis() {
		return fmt.Errorf("hotstuff: block %s from %s: %w", block.ID, from, ErrProposingGenesisBlock)
	}
	if block.ComputeID() != block.ID {
		return fmt.Errorf("hotstuff: block %s from %s: %w", block.ID, from, ErrNodeHashMismatch)
	}
	return nil
}

// validateLocalProposedBlock adds the justify-block checks that only apply
// to proposals from our own local committee (§4.4.3): its justify block
// must already be known, and the cached height on the QC must agree with
// the stored block's height.
func validateLocalProposedBlock(tx types.ReadTx, from types.Address, block *types.Block) error {
	if err := validateProposedBlock(from, block); err != nil {
		return err
	}

	justifyBlock, err := tx.GetBlock(block.Justify.BlockID)
	if err != nil {
		return fmt.Errorf("hotstuff: block %s from %s justify %s: %w", block.ID, from, block.Justify.BlockID, ErrJustifyBlockNotFound)
	}
	if justifyBlock.Height != block.Justify.BlockHeight {
		return fmt.Errorf("hotstuff: block %s from %s: justify height %d != stored justify block height %d: %w",
			block.ID, from, block.Justify.BlockHeight, justifyBlock.Height, ErrJustifyBlockInvalid)
	}
	return nil
}

// shouldVote implements §4.4.4: height monotonicity and the safe-node
// predicate must both hold; the safe-node predicate itself passes on either
// its liveness rule or its safety rule.
func shouldVote(tx types.ReadTx, block *types.Block) (bool, error) {
	lastVoted, err := tx.GetLastVoted(block.Epoch)
	if err != nil {
		return false, fmt.Errorf("hotstuff: should_vote: %w", err)
	}
	if block.Height <= lastVoted.Height {
		return false, nil
	}

	locked, err := tx.GetLockedBlock(block.Epoch)
	if err != nil {
		return false, fmt.Errorf("hotstuff: should_vote: locked block: %w", err)
	}
	lockedBlock, err := tx.GetBlock(locked.BlockID)
	if err != nil {
		return false, fmt.Errorf("hotstuff: should_vote: locked block %s: %w", locked.BlockID, err)
	}

	safe, err := isSafeBlock(tx, block, lockedBlock)
	if err != nil {
		return false, err
	}
	return safe, nil
}

// isSafeBlock is the safeNode predicate (arxiv.org/abs/1803.05069): liveness
// (the justify references a higher block than the locked one) or safety
// (the block's ancestry passes through the locked block) — either suffices.
func isSafeBlock(tx types.ReadTx, block *types.Block, lockedBlock *types.Block) (bool, error) {
	if block.Justify.BlockHeight > lockedBlock.Height {
		return true, nil // liveness
	}
	return blockExtends(tx, block, lockedBlock.ID)
}

// blockExtends walks the parent chain from block until it reaches ancestorID
// or falls to or below ancestorID's height without matching it.
func blockExtends(tx types.ReadTx, block *types.Block, ancestorID types.BlockID) (bool, error) {
	ancestor, err := tx.GetBlock(ancestorID)
	if err != nil {
		return false, fmt.Errorf("hotstuff: blockExtends: ancestor %s: %w", ancestorID, err)
	}

	current := block
	for {
		if current.ID == ancestorID {
			return true, nil
		}
		if current.Height <= ancestor.Height || current.IsGenesis() {
			return false, nil
		}
		parent, err := tx.GetParent(current)
		if err != nil {
			return false, fmt.Errorf("hotstuff: blockExtends: %w", err)
		}
		current = parent
	}
}
