package types

// SignerEntry is one validator's contribution to a quorum certificate: its
// signature over (block_id, decision) and the merkle proof anchoring it to
// the epoch's validator-set root.
type SignerEntry struct {
	Signer    Address
	Signature Signature
	Proof     MerkleProof
}

// QuorumCertificate aggregates signatures from a quorum (>= ceil(2n/3) of
// the committee) over (block_id, decision), certifying that block's parent
// link for the next proposal to justify.
type QuorumCertificate struct {
	BlockID     BlockID
	BlockHeight NodeHeight
	Epoch       Epoch
	Decision    Decision
	Signers     []SignerEntry
}

// ID derives the QC's own identity from the fields that make it unique:
// (block_id, epoch). insert_qc is idempotent on this pair per spec.md §4.1.
func (q *QuorumCertificate) ID() QCID {
	h := newHasher().
		writeBytes(q.BlockID[:]).
		writeUint64(uint64(q.Epoch)).
		sum()
	return QCID(h)
}

// GenesisQC is the QC referenced by the genesis block; it certifies no
// proposed block.
func GenesisQC(epoch Epoch) *QuorumCertificate {
	return &QuorumCertificate{
		BlockID:     GenesisBlockID,
		BlockHeight: 0,
		Epoch:       epoch,
		Decision:    DecisionCommit,
	}
}

// HasQuorum reports whether the certificate carries enough signatures for a
// committee of the given size: >= ceil(2n/3).
func HasQuorum(numSigners, committeeSize int) bool {
	if committeeSize == 0 {
		return false
	}
	threshold := (2*committeeSize + 2) / 3 // ceil(2n/3)
	return numSigners >= threshold
}
