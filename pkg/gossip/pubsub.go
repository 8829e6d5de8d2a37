package gossip

import (
	"context"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/shardledger/valnode/pkg/types"
)

// PubSubOverlay adapts github.com/libp2p/go-libp2p-pubsub's gossipsub router
// to types.GossipOverlay (§1(v), §6). No teacher source imports libp2p
// directly — the call shapes below follow the library's own public API,
// same grounding posture as pkg/store/pebblestore.go's use of pebble (see
// DESIGN.md), justified by libp2p/go-libp2p and go-libp2p-pubsub both being
// present in the pack's dependency surface for exactly this purpose.
type PubSubOverlay struct {
	host host.Host
	ps   *pubsub.PubSub

	mu      sync.Mutex
	topics  map[string]*pubsub.Topic
	subs    map[string]*pubsub.Subscription
	cancels map[string]context.CancelFunc

	inbound chan types.InboundGossip
}

func NewPubSubOverlay(ctx context.Context, h host.Host) (*PubSubOverlay, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("gossip: new gossipsub: %w", err)
	}
	return &PubSubOverlay{
		host:    h,
		ps:      ps,
		topics:  make(map[string]*pubsub.Topic),
		subs:    make(map[string]*pubsub.Subscription),
		cancels: make(map[string]context.CancelFunc),
		inbound: make(chan types.InboundGossip, 256),
	}, nil
}

func (o *PubSubOverlay) Inbound() <-chan types.InboundGossip { return o.inbound }

// SubscribeTopic joins and subscribes to topic, idempotent if already
// subscribed, and starts a background read loop forwarding every inbound
// message (except our own) to Inbound().
func (o *PubSubOverlay) SubscribeTopic(ctx context.Context, topic string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.subs[topic]; ok {
		return nil
	}

	t, err := o.ps.Join(topic)
	if err != nil {
		return fmt.Errorf("gossip: join topic %s: %w", topic, err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("gossip: subscribe topic %s: %w", topic, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	o.topics[topic] = t
	o.subs[topic] = sub
	o.cancels[topic] = cancel
	go o.readLoop(readCtx, sub)
	return nil
}

func (o *PubSubOverlay) readLoop(ctx context.Context, sub *pubsub.Subscription) {
	self := o.host.ID()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return // ctx cancelled on UnsubscribeTopic, or the router shut the subscription down
		}
		if msg.ReceivedFrom == self {
			continue
		}
		o.inbound <- types.InboundGossip{Peer: types.Address(msg.ReceivedFrom.String()), Data: msg.Data}
	}
}

// UnsubscribeTopic reverses SubscribeTopic; a no-op if not subscribed.
func (o *PubSubOverlay) UnsubscribeTopic(ctx context.Context, topic string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	sub, ok := o.subs[topic]
	if !ok {
		return nil
	}
	sub.Cancel()
	if cancel, ok := o.cancels[topic]; ok {
		cancel()
	}
	delete(o.subs, topic)
	delete(o.cancels, topic)
	if t, ok := o.topics[topic]; ok {
		_ = t.Close()
		delete(o.topics, topic)
	}
	return nil
}

// Publish joins topic first if we aren't already a member of it — a
// validator can publish to a shard group it routes traffic for without
// necessarily consuming it.
func (o *PubSubOverlay) Publish(ctx context.Context, topic string, data []byte) error {
	o.mu.Lock()
	t, ok := o.topics[topic]
	o.mu.Unlock()
	if !ok {
		if err := o.SubscribeTopic(ctx, topic); err != nil {
			return err
		}
		o.mu.Lock()
		t = o.topics[topic]
		o.mu.Unlock()
	}
	if err := t.Publish(ctx, data); err != nil {
		return fmt.Errorf("gossip: publish to %s: %w", topic, err)
	}
	return nil
}
