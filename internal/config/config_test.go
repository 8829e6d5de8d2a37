package config

import (
	"testing"

	"github.com/shardledger/valnode/pkg/types"
)

func TestParseRequiresValidator(t *testing.T) {
	if _, err := Parse([]string{}); err == nil {
		t.Fatal("expected an error when -validator is not supplied")
	}
}

func TestParseDefaultsCommitteeToSelf(t *testing.T) {
	cfg, err := Parse([]string{"-validator", "v0"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Committee) != 1 || cfg.Committee[0] != types.Address("v0") {
		t.Fatalf("expected committee to default to [v0], got %v", cfg.Committee)
	}
}

func TestParseCommitteeAndPeerTargets(t *testing.T) {
	cfg, err := Parse([]string{
		"-validator", "v0",
		"-committee", "v0, v1,v2",
		"-peers", "v1=10.0.0.1:26000, v2=10.0.0.2:26000",
		"-shard-start", "2",
		"-shard-end", "5",
		"-num-shard-groups", "8",
		"-execution-workers", "16",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []types.Address{"v0", "v1", "v2"}
	if len(cfg.Committee) != len(want) {
		t.Fatalf("committee = %v, want %v", cfg.Committee, want)
	}
	for i, addr := range want {
		if cfg.Committee[i] != addr {
			t.Fatalf("committee[%d] = %q, want %q", i, cfg.Committee[i], addr)
		}
	}

	if cfg.PeerTargets["v1"] != "10.0.0.1:26000" || cfg.PeerTargets["v2"] != "10.0.0.2:26000" {
		t.Fatalf("unexpected peer targets: %v", cfg.PeerTargets)
	}
	if cfg.ShardGroupStart != 2 || cfg.ShardGroupEnd != 5 || cfg.NumShardGroups != 8 {
		t.Fatalf("unexpected shard config: start=%d end=%d groups=%d", cfg.ShardGroupStart, cfg.ShardGroupEnd, cfg.NumShardGroups)
	}
	if cfg.ExecutionWorkers != 16 {
		t.Fatalf("ExecutionWorkers = %d, want 16", cfg.ExecutionWorkers)
	}
}

func TestParseRejectsMalformedPeerEntry(t *testing.T) {
	_, err := Parse([]string{"-validator", "v0", "-peers", "not-a-pair"})
	if err == nil {
		t.Fatal("expected an error for a malformed -peers entry")
	}
}

func TestDefaultConfigSingleNodeDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DataDir != "" {
		t.Fatalf("expected empty DataDir to select the in-memory store by default, got %q", cfg.DataDir)
	}
	if cfg.NumShardGroups != 1 {
		t.Fatalf("expected NumShardGroups=1 by default, got %d", cfg.NumShardGroups)
	}
	if cfg.ExecutionWorkers <= 0 {
		t.Fatalf("expected a positive default worker count, got %d", cfg.ExecutionWorkers)
	}
}
