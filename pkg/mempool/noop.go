package mempool

import (
	"context"

	"github.com/shardledger/valnode/pkg/types"
)

// NoopExecutor accepts every transaction, downing every input it touches
// and producing no new substates. It exists only so cmd/valnode can run a
// standalone node without a real VM wired in — the Executor and Substate
// Resolver collaborators are explicitly out of scope for this repository
// (§1); a production deployment replaces both.
type NoopExecutor struct{}

var _ types.Executor = NoopExecutor{}

func (NoopExecutor) Execute(_ context.Context, transaction *types.Transaction, _ types.StateDB, _ map[string][]byte) (*types.ExecutionResult, error) {
	down := append(append([]types.SubstateID{}, transaction.Inputs...), transaction.FilledInputs...)
	return &types.ExecutionResult{Accepted: true, Diff: &types.SubstateDiff{Down: down}}, nil
}

// NoopSubstateResolver resolves every referenced substate to an empty value
// without contacting any foreign committee, and never emits virtual
// substates. Like NoopExecutor, it is a standalone-run placeholder, not a
// production resolver.
type NoopSubstateResolver struct{}

var _ types.SubstateResolver = NoopSubstateResolver{}

func (NoopSubstateResolver) ResolveVirtualSubstates(context.Context, *types.Transaction, types.Epoch) (map[string][]byte, error) {
	return nil, nil
}

func (NoopSubstateResolver) Resolve(_ context.Context, transaction *types.Transaction) (map[types.SubstateID][]byte, error) {
	out := make(map[types.SubstateID][]byte, len(transaction.AllInputs()))
	for _, id := range transaction.AllInputs() {
		out[id] = nil
	}
	return out, nil
}
