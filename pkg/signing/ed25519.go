// Package signing implements the signature service collaborator (spec.md
// §6) over crypto/ed25519 — the standard library's canonical
// implementation, not a stdlib fallback: no pack example reaches for a
// third-party ed25519 alternative (see DESIGN.md).
package signing

import (
	"crypto/ed25519"
	"fmt"

	"github.com/shardledger/valnode/pkg/types"
)

// KeyResolver maps a validator address to its public key, as published by
// the epoch manager's validator-set merkle tree (§6). It is supplied by the
// caller rather than embedded here, since key distribution is out of scope.
type KeyResolver func(types.Address) (ed25519.PublicKey, bool)

// Service signs votes with a local private key and verifies votes against
// any validator's public key via the supplied resolver.
type Service struct {
	self       types.Address
	privateKey ed25519.PrivateKey
	resolve    KeyResolver
}

var _ types.SignatureService = (*Service)(nil)

func NewService(self types.Address, privateKey ed25519.PrivateKey, resolve KeyResolver) *Service {
	return &Service{self: self, privateKey: privateKey, resolve: resolve}
}

// leafBytes builds the canonical (leaf_hash, block_id, decision) message a
// vote signs over.
func leafBytes(leafHash types.Hash, blockID types.BlockID, decision types.Decision) []byte {
	b := make([]byte, 0, len(leafHash)+len(blockID)+1)
	b = append(b, leafHash[:]...)
	b = append(b, blockID[:]...)
	b = append(b, byte(decision))
	return b
}

func (s *Service) SignVote(leafHash types.Hash, blockID types.BlockID, decision types.Decision) (types.Signature, error) {
	if len(s.privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing: no private key configured for %s", s.self)
	}
	sig := ed25519.Sign(s.privateKey, leafBytes(leafHash, blockID, decision))
	return types.Signature(sig), nil
}

func (s *Service) VerifyVote(signer types.Address, leafHash types.Hash, blockID types.BlockID, decision types.Decision, sig types.Signature) bool {
	pub, ok := s.resolve(signer)
	if !ok || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, leafBytes(leafHash, blockID, decision), []byte(sig))
}
