package gossip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shardledger/valnode/pkg/metrics"
	"github.com/shardledger/valnode/pkg/types"
)

// envelopeKind tags which of the two closed message schemas (§6) a frame
// carries: HotStuff consensus traffic or DanMessage mempool traffic.
type envelopeKind uint8

const (
	envelopeHotstuff envelopeKind = iota
	envelopeDan
)

type envelope struct {
	Kind     envelopeKind
	Hotstuff *types.HotstuffMessage `json:",omitempty"`
	Dan      *types.DanMessage      `json:",omitempty"`
}

func consensusTopic(group types.ShardGroup) string {
	return fmt.Sprintf("consensus-%s", group)
}

func transactionsTopic(bucket uint32) string {
	return fmt.Sprintf("transactions-%d", bucket)
}

// PeerMessage pairs a decoded message with the peer it arrived from.
type PeerMessage[T any] struct {
	Peer    types.Address
	Message T
}

// Dispatcher is the C6 gossip dispatcher: topic lifecycle plus encode/decode
// of the two wire schemas over a single types.GossipOverlay. One instance
// exists per validator process.
type Dispatcher struct {
	overlay types.GossipOverlay
	epochs  types.EpochManager
	metrics *metrics.Metrics
	log     *slog.Logger

	consensusInbound chan PeerMessage[types.HotstuffMessage]
	mempoolInbound   chan PeerMessage[types.DanMessage]

	mu               sync.Mutex
	subscribedGroup  *types.ShardGroup
	subscribedBucket *uint32
}

func New(overlay types.GossipOverlay, epochs types.EpochManager, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		overlay:          overlay,
		epochs:           epochs,
		metrics:          m,
		log:              log,
		consensusInbound: make(chan PeerMessage[types.HotstuffMessage], 64),
		mempoolInbound:   make(chan PeerMessage[types.DanMessage], 64),
	}
}

func (d *Dispatcher) ConsensusInbound() <-chan PeerMessage[types.HotstuffMessage] { return d.consensusInbound }
func (d *Dispatcher) MempoolInbound() <-chan PeerMessage[types.DanMessage]        { return d.mempoolInbound }

// Run decodes every frame the overlay delivers and forwards it to the
// channel matching its schema, tagged with the sending peer (§4.6 "On
// inbound gossip"). Decode failures are counted/logged but never kill the
// service. Run blocks until ctx is cancelled or the overlay's inbound
// channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	inbound := d.overlay.Inbound()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			d.handleInbound(msg)
		}
	}
}

func (d *Dispatcher) handleInbound(msg types.InboundGossip) {
	var env envelope
	if err := decodeFrame(msg.Data, &env); err != nil {
		d.log.Warn("gossip: decode failure", "peer", msg.Peer, "err", err)
		if d.metrics != nil {
			d.metrics.GossipDecodeErrors.WithLabelValues("unknown").Inc()
		}
		return
	}

	switch env.Kind {
	case envelopeHotstuff:
		if env.Hotstuff == nil {
			d.log.Warn("gossip: hotstuff envelope missing payload", "peer", msg.Peer)
			return
		}
		d.consensusInbound <- PeerMessage[types.HotstuffMessage]{Peer: msg.Peer, Message: *env.Hotstuff}
	case envelopeDan:
		if env.Dan == nil {
			d.log.Warn("gossip: dan envelope missing payload", "peer", msg.Peer)
			return
		}
		d.mempoolInbound <- PeerMessage[types.DanMessage]{Peer: msg.Peer, Message: *env.Dan}
	default:
		d.log.Warn("gossip: unknown envelope kind", "peer", msg.Peer, "kind", env.Kind)
		if d.metrics != nil {
			d.metrics.GossipDecodeErrors.WithLabelValues("unknown").Inc()
		}
	}
}

// SubscribeConsensus subscribes to the local committee's consensus topic
// for epoch, unsubscribing from a previously-subscribed different group
// first. Idempotent when already subscribed to the same group.
func (d *Dispatcher) SubscribeConsensus(ctx context.Context, epoch types.Epoch) error {
	shard, err := d.epochs.GetLocalCommitteeShard(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: subscribe consensus: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subscribedGroup != nil && *d.subscribedGroup == shard.Group {
		return nil
	}
	if d.subscribedGroup != nil {
		if err := d.overlay.UnsubscribeTopic(ctx, consensusTopic(*d.subscribedGroup)); err != nil {
			return fmt.Errorf("gossip: subscribe consensus: unsubscribe previous: %w", err)
		}
	}
	if err := d.overlay.SubscribeTopic(ctx, consensusTopic(shard.Group)); err != nil {
		return fmt.Errorf("gossip: subscribe consensus: %w", err)
	}
	group := shard.Group
	d.subscribedGroup = &group
	return nil
}

// UnsubscribeConsensus reverses SubscribeConsensus.
func (d *Dispatcher) UnsubscribeConsensus(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subscribedGroup == nil {
		return nil
	}
	if err := d.overlay.UnsubscribeTopic(ctx, consensusTopic(*d.subscribedGroup)); err != nil {
		return fmt.Errorf("gossip: unsubscribe consensus: %w", err)
	}
	d.subscribedGroup = nil
	return nil
}

// SubscribeMempool subscribes to the local committee bucket's transaction
// topic, mirroring mempool/gossip.rs's MempoolGossip::subscribe.
func (d *Dispatcher) SubscribeMempool(ctx context.Context, epoch types.Epoch) error {
	shard, err := d.epochs.GetLocalCommitteeShard(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: subscribe mempool: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subscribedBucket != nil && *d.subscribedBucket == shard.Bucket {
		return nil
	}
	if d.subscribedBucket != nil {
		if err := d.overlay.UnsubscribeTopic(ctx, transactionsTopic(*d.subscribedBucket)); err != nil {
			return fmt.Errorf("gossip: subscribe mempool: unsubscribe previous: %w", err)
		}
	}
	if err := d.overlay.SubscribeTopic(ctx, transactionsTopic(shard.Bucket)); err != nil {
		return fmt.Errorf("gossip: subscribe mempool: %w", err)
	}
	bucket := shard.Bucket
	d.subscribedBucket = &bucket
	return nil
}

// UnsubscribeMempool reverses SubscribeMempool.
func (d *Dispatcher) UnsubscribeMempool(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subscribedBucket == nil {
		return nil
	}
	if err := d.overlay.UnsubscribeTopic(ctx, transactionsTopic(*d.subscribedBucket)); err != nil {
		return fmt.Errorf("gossip: unsubscribe mempool: %w", err)
	}
	d.subscribedBucket = nil
	return nil
}

// Multicast publishes msg to the local committee's consensus topic. If the
// local committee has fewer than two members there is no one to gossip to,
// so it returns immediately without publishing (§4.6).
func (d *Dispatcher) Multicast(ctx context.Context, epoch types.Epoch, msg types.HotstuffMessage) error {
	committee, err := d.epochs.GetLocalCommittee(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: multicast: %w", err)
	}
	if committee.Len() < 2 {
		return nil
	}
	shard, err := d.epochs.GetLocalCommitteeShard(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: multicast: %w", err)
	}

	frame, err := encodeFrame(envelope{Kind: envelopeHotstuff, Hotstuff: &msg})
	if err != nil {
		return fmt.Errorf("gossip: multicast: %w", err)
	}
	if err := d.overlay.Publish(ctx, consensusTopic(shard.Group), frame); err != nil {
		return fmt.Errorf("gossip: multicast: %w", err)
	}
	if d.metrics != nil {
		d.metrics.GossipPublished.WithLabelValues("consensus").Inc()
	}
	return nil
}

// ForwardToLocalReplicas republishes a mempool message to this validator's
// own bucket topic, mirroring gossip.rs's forward_to_local_replicas.
func (d *Dispatcher) ForwardToLocalReplicas(ctx context.Context, epoch types.Epoch, msg types.DanMessage) error {
	shard, err := d.epochs.GetLocalCommitteeShard(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: forward to local replicas: %w", err)
	}
	return d.publishDan(ctx, transactionsTopic(shard.Bucket), msg, "mempool_local")
}

// ForwardToForeignReplicas computes the set of foreign committee buckets a
// transaction's shards route to and republishes msg to each, excluding the
// local bucket and excludeBucket if given, mirroring gossip.rs's
// forward_to_foreign_replicas bucket-routing logic.
func (d *Dispatcher) ForwardToForeignReplicas(ctx context.Context, epoch types.Epoch, shards []types.ShardID, msg types.DanMessage, excludeBucket *uint32) error {
	n, err := d.epochs.NumShardGroups(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: forward to foreign replicas: %w", err)
	}
	localShard, err := d.epochs.GetLocalCommitteeShard(ctx, epoch)
	if err != nil {
		return fmt.Errorf("gossip: forward to foreign replicas: %w", err)
	}

	buckets := make(map[uint32]struct{})
	for _, s := range shards {
		b := s.ToBucket(n)
		if b == localShard.Bucket {
			continue
		}
		if excludeBucket != nil && b == *excludeBucket {
			continue
		}
		buckets[b] = struct{}{}
	}

	for bucket := range buckets {
		if err := d.publishDan(ctx, transactionsTopic(bucket), msg, "mempool_foreign"); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) publishDan(ctx context.Context, topic string, msg types.DanMessage, metricKind string) error {
	frame, err := encodeFrame(envelope{Kind: envelopeDan, Dan: &msg})
	if err != nil {
		return fmt.Errorf("gossip: publish %s: %w", topic, err)
	}
	if err := d.overlay.Publish(ctx, topic, frame); err != nil {
		return fmt.Errorf("gossip: publish %s: %w", topic, err)
	}
	if d.metrics != nil {
		d.metrics.GossipPublished.WithLabelValues(metricKind).Inc()
	}
	return nil
}
