package signing

import (
	"crypto/ed25519"
	"testing"

	"github.com/shardledger/valnode/pkg/types"
)

func TestSignAndVerifyVoteRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	self := types.Address("validator-1")
	resolve := func(addr types.Address) (ed25519.PublicKey, bool) {
		if addr == self {
			return pub, true
		}
		return nil, false
	}
	svc := NewService(self, priv, resolve)

	leaf := types.Hash{0x01}
	block := types.BlockID{0x02}

	sig, err := svc.SignVote(leaf, block, types.DecisionCommit)
	if err != nil {
		t.Fatalf("sign vote: %v", err)
	}

	if !svc.VerifyVote(self, leaf, block, types.DecisionCommit, sig) {
		t.Fatal("expected signature to verify")
	}
	if svc.VerifyVote(self, leaf, block, types.DecisionAbort, sig) {
		t.Fatal("signature must not verify against a different decision")
	}
}

func TestVerifyVoteUnknownSigner(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	svc := NewService("self", priv, func(types.Address) (ed25519.PublicKey, bool) { return nil, false })

	sig, err := svc.SignVote(types.Hash{}, types.BlockID{}, types.DecisionCommit)
	if err != nil {
		t.Fatalf("sign vote: %v", err)
	}
	if svc.VerifyVote("someone-else", types.Hash{}, types.BlockID{}, types.DecisionCommit, sig) {
		t.Fatal("expected verification to fail for an unresolvable signer")
	}
}

func TestSignVoteRequiresConfiguredKey(t *testing.T) {
	svc := NewService("self", nil, nil)
	if _, err := svc.SignVote(types.Hash{}, types.BlockID{}, types.DecisionCommit); err == nil {
		t.Fatal("expected an error when no private key is configured")
	}
}
