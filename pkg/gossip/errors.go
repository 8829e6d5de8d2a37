package gossip

import "errors"

// ErrInvalidMessage tags a decode failure (§7 "Disagreement"/transient):
// counted and logged, never fatal to the dispatcher.
var ErrInvalidMessage = errors.New("gossip: invalid message")
