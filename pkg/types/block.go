package types

// Block is an ordered list of commands with an id, parent, height, and an
// anchoring QC (justify). A genesis block has height 0 and the sentinel id;
// it is never proposed or accepted as a new proposal.
type Block struct {
	ID       BlockID
	Parent   BlockID
	Justify  *QuorumCertificate
	Epoch    Epoch
	Height   NodeHeight
	Proposer Address
	Commands []Command
}

// ComputeID returns the content hash the block's ID must equal:
// hash(epoch, parent, justify, height, proposer, commands). It does not
// mutate b.
func (b *Block) ComputeID() BlockID {
	h := newHasher().
		writeUint64(uint64(b.Epoch)).
		writeBytes(b.Parent[:]).
		writeUint64(uint64(b.Height))

	if b.Justify != nil {
		h.writeBytes(b.Justify.BlockID[:]).
			writeUint64(uint64(b.Justify.BlockHeight)).
			writeUint64(uint64(b.Justify.Epoch)).
			writeByte(byte(b.Justify.Decision))
	}

	h.writeBytes([]byte(b.Proposer))

	for _, cmd := range b.Commands {
		h.writeByte(byte(cmd.Kind)).
			writeBytes(cmd.TransactionID[:]).
			writeByte(byte(cmd.Decision))
	}

	return BlockID(h.sum())
}

// IsGenesis reports whether b is the sentinel genesis block: height 0 and
// the sentinel id. Such a block is never proposed or accepted as new.
func (b *Block) IsGenesis() bool {
	return b.Height == 0 && b.ID == GenesisBlockID
}

// NewGenesisBlock constructs the never-proposed sentinel block for an epoch,
// used to seed a fresh chain.
func NewGenesisBlock(epoch Epoch) *Block {
	return &Block{
		ID:       GenesisBlockID,
		Parent:   GenesisBlockID,
		Justify:  GenesisQC(epoch),
		Epoch:    epoch,
		Height:   0,
		Proposer: "",
		Commands: nil,
	}
}

// AllTransactionIDs returns the distinct transaction ids referenced by the
// block's commands, in command order.
func (b *Block) AllTransactionIDs() []TransactionID {
	seen := make(map[TransactionID]struct{}, len(b.Commands))
	ids := make([]TransactionID, 0, len(b.Commands))
	for _, cmd := range b.Commands {
		if _, ok := seen[cmd.TransactionID]; ok {
			continue
		}
		seen[cmd.TransactionID] = struct{}{}
		ids = append(ids, cmd.TransactionID)
	}
	return ids
}
