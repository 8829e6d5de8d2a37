package types

// Address identifies a validator node. It is opaque to the core — the
// signature service and epoch manager collaborators are responsible for
// mapping it to a real network identity or public key.
type Address string

// Epoch is a contiguous interval with a fixed validator set and committee
// mapping.
type Epoch uint64

// NodeHeight is the monotonic height of a block within its chain.
type NodeHeight uint64

// TransactionID uniquely identifies a transaction.
type TransactionID Hash

func (t TransactionID) String() string { return Hash(t).String() }

// BlockID is the content hash of a block.
type BlockID Hash

func (b BlockID) String() string { return Hash(b).String() }

func (b BlockID) IsZero() bool { return Hash(b).IsZero() }

// GenesisBlockID is the sentinel id of the (never proposed, never voted on)
// genesis block.
var GenesisBlockID = BlockID{}

// QCID uniquely identifies a quorum certificate.
type QCID Hash

func (q QCID) String() string { return Hash(q).String() }

// SubstateID addresses a versioned substate. Substate identifiers are
// opaque strings owned by the substate resolver collaborator (§1(ii)).
type SubstateID string
