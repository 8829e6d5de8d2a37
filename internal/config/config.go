// Package config parses cmd/valnode's command-line flags into a typed
// Config, grounded on the teacher's cmd/server/main.go flag layout (plain
// stdlib flag, one flag per tunable, a DefaultConfig baseline overridden by
// parsed values).
package config

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"strings"

	"github.com/shardledger/valnode/pkg/types"
)

// Config is the full set of knobs cmd/valnode needs to stand up one
// validator process.
type Config struct {
	ListenAddr   string // gRPC PeerTransport listen address
	MetricsAddr  string // Prometheus /metrics listen address
	LibP2PListen string // libp2p-pubsub host listen multiaddr

	DataDir string // pebble data directory; empty selects the in-memory store

	ValidatorAddr types.Address
	Committee     []types.Address
	PeerTargets   map[types.Address]string // validator address -> "host:port" for gRPC dialing

	ShardGroupStart uint32
	ShardGroupEnd   uint32
	NumShardGroups  uint32

	ExecutionWorkers int

	PrivateKey ed25519.PrivateKey
}

// DefaultConfig mirrors the teacher's DefaultConfig(): safe single-node
// defaults, every value overridable by a flag.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       "0.0.0.0:26000",
		MetricsAddr:      "0.0.0.0:9090",
		LibP2PListen:     "/ip4/0.0.0.0/tcp/26001",
		DataDir:          "",
		ShardGroupStart:  0,
		ShardGroupEnd:    0,
		NumShardGroups:   1,
		ExecutionWorkers: 4,
		PeerTargets:      map[types.Address]string{},
	}
}

// Parse reads os.Args-style flags (via the standard flag package) into a
// fresh Config built from DefaultConfig.
func Parse(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("valnode", flag.ContinueOnError)
	listenAddr := fs.String("listen", cfg.ListenAddr, "gRPC listen address for peer vote/request delivery")
	metricsAddr := fs.String("metrics", cfg.MetricsAddr, "Prometheus /metrics listen address")
	libp2pListen := fs.String("gossip-listen", cfg.LibP2PListen, "libp2p-pubsub host listen multiaddr")
	dataDir := fs.String("data-dir", cfg.DataDir, "Pebble data directory (empty selects the in-memory store)")
	validatorAddr := fs.String("validator", "", "This validator's address")
	committee := fs.String("committee", "", "Comma-separated committee member addresses")
	peerTargets := fs.String("peers", "", "Comma-separated address=host:port pairs for gRPC peer dialing")
	shardStart := fs.Uint("shard-start", cfg.ShardGroupStart, "Inclusive start of this committee's shard group")
	shardEnd := fs.Uint("shard-end", cfg.ShardGroupEnd, "Inclusive end of this committee's shard group")
	numShardGroups := fs.Uint("num-shard-groups", cfg.NumShardGroups, "Total number of shard groups in the network")
	workers := fs.Int("execution-workers", cfg.ExecutionWorkers, "Blocking worker pool size for transaction execution")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ListenAddr = *listenAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.LibP2PListen = *libp2pListen
	cfg.DataDir = *dataDir
	cfg.ValidatorAddr = types.Address(*validatorAddr)
	cfg.ShardGroupStart = uint32(*shardStart)
	cfg.ShardGroupEnd = uint32(*shardEnd)
	cfg.NumShardGroups = uint32(*numShardGroups)
	cfg.ExecutionWorkers = *workers

	if *committee != "" {
		for _, addr := range strings.Split(*committee, ",") {
			cfg.Committee = append(cfg.Committee, types.Address(strings.TrimSpace(addr)))
		}
	}
	if *peerTargets != "" {
		for _, pair := range strings.Split(*peerTargets, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("config: invalid -peers entry %q, want address=host:port", pair)
			}
			cfg.PeerTargets[types.Address(kv[0])] = kv[1]
		}
	}

	if cfg.ValidatorAddr == "" {
		return nil, fmt.Errorf("config: -validator is required")
	}
	if len(cfg.Committee) == 0 {
		cfg.Committee = []types.Address{cfg.ValidatorAddr}
	}

	return cfg, nil
}
