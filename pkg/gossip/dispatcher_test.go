package gossip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shardledger/valnode/pkg/epoch"
	"github.com/shardledger/valnode/pkg/types"
)

// fakeOverlay is a hand-rolled types.GossipOverlay recording every
// subscribe/unsubscribe/publish call, in place of a real libp2p host.
type fakeOverlay struct {
	mu          sync.Mutex
	subscribed  map[string]bool
	published   map[string][][]byte
	inbound     chan types.InboundGossip
}

func newFakeOverlay() *fakeOverlay {
	return &fakeOverlay{
		subscribed: make(map[string]bool),
		published:  make(map[string][][]byte),
		inbound:    make(chan types.InboundGossip, 16),
	}
}

func (f *fakeOverlay) SubscribeTopic(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = true
	return nil
}

func (f *fakeOverlay) UnsubscribeTopic(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = false
	return nil
}

func (f *fakeOverlay) Publish(_ context.Context, topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], data)
	return nil
}

func (f *fakeOverlay) Inbound() <-chan types.InboundGossip { return f.inbound }

func (f *fakeOverlay) isSubscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[topic]
}

func (f *fakeOverlay) publishCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[topic])
}

func newTestEpochs(members ...types.Address) *epoch.StaticManager {
	committee := types.Committee{Members: members}
	shard := types.CommitteeShard{Bucket: 2, Group: types.ShardGroup{Start: 0, End: 3}, NumShardGroups: 4}
	return epoch.NewStaticManager(0, committee, shard)
}

func TestSubscribeConsensusIsIdempotent(t *testing.T) {
	overlay := newFakeOverlay()
	epochs := newTestEpochs("v0", "v1")
	d := New(overlay, epochs, nil, nil)
	ctx := context.Background()

	if err := d.SubscribeConsensus(ctx, 0); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if err := d.SubscribeConsensus(ctx, 0); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if !overlay.isSubscribed("consensus-0-3") {
		t.Fatal("expected to be subscribed to consensus-0-3")
	}
}

func TestMulticastNoopBelowTwoMembers(t *testing.T) {
	overlay := newFakeOverlay()
	epochs := newTestEpochs("v0") // single-member committee
	d := New(overlay, epochs, nil, nil)

	if err := d.Multicast(context.Background(), 0, types.NewProposalMessage(&types.Block{})); err != nil {
		t.Fatalf("multicast: %v", err)
	}
	if overlay.publishCount("consensus-0-3") != 0 {
		t.Fatal("expected no publish for a committee with fewer than 2 members")
	}
}

func TestMulticastPublishesForMultiMemberCommittee(t *testing.T) {
	overlay := newFakeOverlay()
	epochs := newTestEpochs("v0", "v1")
	d := New(overlay, epochs, nil, nil)

	if err := d.Multicast(context.Background(), 0, types.NewProposalMessage(&types.Block{})); err != nil {
		t.Fatalf("multicast: %v", err)
	}
	if overlay.publishCount("consensus-0-3") != 1 {
		t.Fatal("expected exactly one publish")
	}
}

func TestForwardToForeignReplicasExcludesLocalAndExcludedBucket(t *testing.T) {
	overlay := newFakeOverlay()
	epochs := newTestEpochs("v0", "v1")
	d := New(overlay, epochs, nil, nil)

	var shard0, shard1, shard2 types.ShardID
	shard0[0], shard0[1], shard0[2], shard0[3] = 0, 0, 0, 0 // bucket 0 mod 4
	shard1[0], shard1[1], shard1[2], shard1[3] = 0, 0, 0, 1 // bucket 1 mod 4
	shard2[0], shard2[1], shard2[2], shard2[3] = 0, 0, 0, 2 // bucket 2 mod 4 (local)

	excl := uint32(1)
	msg := types.DanMessage{Kind: types.DanMsgNewTransaction, Transaction: &types.Transaction{}}
	err := d.ForwardToForeignReplicas(context.Background(), 0, []types.ShardID{shard0, shard1, shard2}, msg, &excl)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	if overlay.publishCount("transactions-0") != 1 {
		t.Fatal("expected bucket 0 to receive the forwarded message")
	}
	if overlay.publishCount("transactions-1") != 0 {
		t.Fatal("expected excluded bucket 1 to receive nothing")
	}
	if overlay.publishCount("transactions-2") != 0 {
		t.Fatal("expected local bucket 2 to receive nothing via foreign forwarding")
	}
}

func TestRunRoutesDecodedEnvelopesByKind(t *testing.T) {
	overlay := newFakeOverlay()
	epochs := newTestEpochs("v0")
	d := New(overlay, epochs, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	hsFrame, err := encodeFrame(envelope{Kind: envelopeHotstuff, Hotstuff: &types.HotstuffMessage{Kind: types.MsgProposal, Proposal: &types.ProposalMessage{Block: &types.Block{}}}})
	if err != nil {
		t.Fatalf("encode hotstuff envelope: %v", err)
	}
	danFrame, err := encodeFrame(envelope{Kind: envelopeDan, Dan: &types.DanMessage{Kind: types.DanMsgNewTransaction, Transaction: &types.Transaction{}}})
	if err != nil {
		t.Fatalf("encode dan envelope: %v", err)
	}

	overlay.inbound <- types.InboundGossip{Peer: "peer-a", Data: hsFrame}
	overlay.inbound <- types.InboundGossip{Peer: "peer-b", Data: danFrame}

	select {
	case m := <-d.ConsensusInbound():
		if m.Peer != "peer-a" || m.Message.Kind != types.MsgProposal {
			t.Fatalf("unexpected consensus message: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for consensus message")
	}

	select {
	case m := <-d.MempoolInbound():
		if m.Peer != "peer-b" || m.Message.Kind != types.DanMsgNewTransaction {
			t.Fatalf("unexpected mempool message: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mempool message")
	}
}
