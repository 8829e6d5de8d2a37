// Command valnode runs one sharded validator node: state store, substate
// lock manager, transaction pool, proposal handler, mempool coordinator,
// and gossip dispatcher, wired together the way the teacher's
// cmd/server/main.go wires its server.Config into server.New/Start — parse
// flags, build one long-lived component graph, block until a shutdown
// signal, then drain.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-libp2p"
	"google.golang.org/grpc"

	"github.com/shardledger/valnode/internal/config"
	"github.com/shardledger/valnode/pkg/epoch"
	"github.com/shardledger/valnode/pkg/events"
	"github.com/shardledger/valnode/pkg/gossip"
	"github.com/shardledger/valnode/pkg/hotstuff"
	"github.com/shardledger/valnode/pkg/leader"
	"github.com/shardledger/valnode/pkg/mempool"
	"github.com/shardledger/valnode/pkg/metrics"
	"github.com/shardledger/valnode/pkg/signing"
	"github.com/shardledger/valnode/pkg/store"
	"github.com/shardledger/valnode/pkg/substatelock"
	"github.com/shardledger/valnode/pkg/txpool"
	"github.com/shardledger/valnode/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "valnode: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("validator", cfg.ValidatorAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	committee := types.Committee{Members: cfg.Committee}
	shard := types.CommitteeShard{
		Bucket:         cfg.ShardGroupStart,
		Group:          types.ShardGroup{Start: cfg.ShardGroupStart, End: cfg.ShardGroupEnd},
		NumShardGroups: cfg.NumShardGroups,
		NumMembers:     uint32(committee.Len()),
	}
	epochMgr := epoch.NewStaticManager(0, committee, shard)

	// Only this validator's own public key is known locally; verifying a
	// foreign vote needs the epoch manager's validator-set lookup, which a
	// production epoch manager adapter (out of scope, §1(iii)) would supply.
	selfPub := priv.Public().(ed25519.PublicKey)
	signer := signing.NewService(cfg.ValidatorAddr, priv, func(addr types.Address) (ed25519.PublicKey, bool) {
		if addr == cfg.ValidatorAddr {
			return selfPub, true
		}
		return nil, false
	})

	var stateStore types.StateStore
	if cfg.DataDir != "" {
		ps, err := store.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open pebble store at %s: %w", cfg.DataDir, err)
		}
		defer ps.Close()
		stateStore = ps
	} else {
		stateStore = store.NewMemStore()
	}

	m := metrics.New()
	locks := substatelock.New(m)
	pool := txpool.New(locks)
	ev := events.NewHotstuff()

	spec := types.Spec{
		ValidatorAddr: cfg.ValidatorAddr,
		Store:         stateStore,
		EpochManager:  epochMgr,
		Leader:        leader.RoundRobin{},
		Signer:        signer,
		StateManager:  store.NewStateManager(stateStore),
	}

	dialer := func(addr types.Address) (string, error) {
		target, ok := cfg.PeerTargets[addr]
		if !ok {
			return "", fmt.Errorf("no gRPC target configured for peer %s", addr)
		}
		return target, nil
	}
	transport := gossip.NewTransport(cfg.ValidatorAddr, dialer, log)
	defer transport.Close()

	h := hotstuff.New(spec, locks, pool, transport, ev, m, log)

	host, err := libp2p.New(libp2p.ListenAddrStrings(cfg.LibP2PListen))
	if err != nil {
		return fmt.Errorf("start libp2p host: %w", err)
	}
	defer host.Close()

	overlay, err := gossip.NewPubSubOverlay(ctx, host)
	if err != nil {
		return fmt.Errorf("start gossipsub: %w", err)
	}
	dispatcher := gossip.New(overlay, epochMgr, m, log)
	if err := dispatcher.SubscribeConsensus(ctx, 0); err != nil {
		return fmt.Errorf("subscribe consensus topic: %w", err)
	}
	if err := dispatcher.SubscribeMempool(ctx, 0); err != nil {
		return fmt.Errorf("subscribe mempool topic: %w", err)
	}

	coordinator := mempool.New(mempool.NoopSubstateResolver{}, mempool.NoopExecutor{}, stateStore, epochMgr, h, cfg.ExecutionWorkers, m, log)
	defer coordinator.Stop()

	grpcServer := grpc.NewServer()
	gossip.NewTransportServer(dispatcher, log).Register(grpcServer)
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Error("grpc server stopped", "err", err)
		}
	}()
	defer grpcServer.GracefulStop()

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "err", err)
		}
	}()
	defer metricsServer.Close()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("gossip dispatcher stopped", "err", err)
		}
	}()

	log.Info("valnode started", "listen", cfg.ListenAddr, "metrics", cfg.MetricsAddr, "gossip", cfg.LibP2PListen)
	mainLoop(ctx, h, coordinator, dispatcher, log)
	log.Info("valnode shutting down")
	return nil
}

// mainLoop dispatches decoded gossip traffic to the proposal handler and
// mempool coordinator until ctx is cancelled.
func mainLoop(ctx context.Context, h *hotstuff.Handler, coordinator *mempool.Coordinator, dispatcher *gossip.Dispatcher, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-dispatcher.ConsensusInbound():
			handleConsensusMessage(ctx, h, msg, log)
		case msg := <-dispatcher.MempoolInbound():
			handleMempoolMessage(ctx, coordinator, msg, log)
		}
	}
}

func handleConsensusMessage(ctx context.Context, h *hotstuff.Handler, msg gossip.PeerMessage[types.HotstuffMessage], log *slog.Logger) {
	switch msg.Message.Kind {
	case types.MsgProposal:
		if err := h.Handle(ctx, msg.Peer, *msg.Message.Proposal); err != nil {
			log.Warn("proposal handling failed", "from", msg.Peer, "err", err)
		}
	default:
		// Vote aggregation and the missing-transactions request/response
		// service are carried by the same HotstuffMessage schema but live
		// outside the proposal handler's scope (§4.4 only covers receiving
		// and deciding on proposals); a leader-side collector is the next
		// piece that would consume MsgVote/MsgRequestMissingTransactions.
		log.Debug("consensus message kind not handled by the proposal path", "kind", msg.Message.Kind, "from", msg.Peer)
	}
}

func handleMempoolMessage(ctx context.Context, coordinator *mempool.Coordinator, msg gossip.PeerMessage[types.DanMessage], log *slog.Logger) {
	if msg.Message.Kind != types.DanMsgNewTransaction || msg.Message.Transaction == nil {
		return
	}
	go func() {
		if err := coordinator.Submit(ctx, msg.Message.Transaction); err != nil {
			log.Warn("mempool submission failed", "tx", msg.Message.Transaction.ID, "from", msg.Peer, "err", err)
		}
	}()
}
