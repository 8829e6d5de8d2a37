package mempool

import "errors"

// Execution errors (§4.5, §7). UnauthorizedFeeClaim, InputSubstateDowned and
// InputSubstateDoesNotExist are transaction failures — surfaced on the
// returned ExecutedTransaction, never as a Go error — ExecutionThreadFailure
// is fatal to the one submission that hit it, not the node.
var ErrExecutionThreadFailure = errors.New("mempool: execution worker panicked")

// bootstrapResourceID is the well-known, non-fungible resource address used
// as the identity anchor every fresh execution scratch space is seeded with
// (§6 "Bootstrap"), grounded on executor.rs's new_state_db/bootstrap_state.
const bootstrapResourceID = "resource_0000000000000000000000000000000000000000000000000000identity"
