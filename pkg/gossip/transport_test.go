package gossip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/shardledger/valnode/pkg/epoch"
	"github.com/shardledger/valnode/pkg/metrics"
	"github.com/shardledger/valnode/pkg/types"
)

func TestTransportServerSendForwardsDecodedMessage(t *testing.T) {
	epochs := epoch.NewStaticManager(0, types.Committee{Members: []types.Address{"v0"}}, types.CommitteeShard{})
	d := New(newFakeOverlay(), epochs, nil, nil)
	server := NewTransportServer(d, nil)

	payload := struct {
		RequestID uuid.UUID
		Peer      types.Address
		Msg       types.HotstuffMessage
	}{
		RequestID: uuid.New(),
		Peer:      "v1",
		Msg:       types.NewVoteMessage(types.VoteMessage{BlockID: types.BlockID{0x01}, Decision: types.DecisionCommit}),
	}
	frame, err := encodeFrame(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := server.Send(context.Background(), &wrapperspb.BytesValue{Value: frame}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-d.ConsensusInbound():
		if got.Peer != "v1" || got.Message.Kind != types.MsgVote {
			t.Fatalf("unexpected forwarded message: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the decoded message on ConsensusInbound")
	}
}

func TestTransportServerSendOnMalformedFrameCountsAndDrops(t *testing.T) {
	epochs := epoch.NewStaticManager(0, types.Committee{Members: []types.Address{"v0"}}, types.CommitteeShard{})
	m := metrics.New()
	d := New(newFakeOverlay(), epochs, m, nil)
	server := NewTransportServer(d, nil)

	if _, err := server.Send(context.Background(), &wrapperspb.BytesValue{Value: []byte{0x01}}); err != nil {
		t.Fatalf("Send should swallow decode errors, got: %v", err)
	}
	if got := testutil.ToFloat64(m.GossipDecodeErrors.WithLabelValues("transport")); got != 1 {
		t.Fatalf("expected one transport decode error counted, got %v", got)
	}

	select {
	case got := <-d.ConsensusInbound():
		t.Fatalf("expected no forwarded message for a malformed frame, got %+v", got)
	default:
	}
}

func TestSendToPeerWrapsDialerError(t *testing.T) {
	dialErr := func(types.Address) (string, error) { return "", errors.New("no route to peer") }
	transport := NewTransport("v0", dialErr, nil)

	err := transport.SendToPeer(context.Background(), "v1", types.NewVoteMessage(types.VoteMessage{}))
	if err == nil {
		t.Fatal("expected an error when the dialer cannot resolve the peer")
	}
}
