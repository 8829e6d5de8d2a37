package txpool

import "errors"

// ErrAbstain signals that a command failed its stage/decision check
// (§4.4.5): the caller must abstain from voting on the whole block, not
// treat the transaction as aborted.
var ErrAbstain = errors.New("txpool: abstain from voting on block")

// ErrUnknownCommand is returned for a types.Command whose Kind this package
// does not recognize — a defensive check against a miswired gossip decoder.
var ErrUnknownCommand = errors.New("txpool: unknown command kind")
