// Package epoch provides the epoch manager collaborator interface consumer
// side (spec.md §1(iii), §6). A production adapter against a base layer is
// out of scope; StaticManager is a fixed-committee implementation suitable
// for tests and single-epoch deployments.
package epoch

import (
	"context"
	"fmt"
	"sync"

	"github.com/shardledger/valnode/pkg/types"
)

// StaticManager is a fixed-membership EpochManager: one committee, one
// shard group, no base-layer RPC. It is grounded on original_source's
// base_layer_epoch_manager.rs interface surface, without its base-layer
// integration (out of scope per spec.md §1(iii)).
type StaticManager struct {
	mu          sync.RWMutex
	epoch       types.Epoch
	committee   types.Committee
	shard       types.CommitteeShard
	validators  map[types.Address]types.ValidatorNode
	registered  map[types.Address]bool
	subscribers []chan types.EpochEvent
}

var _ types.EpochManager = (*StaticManager)(nil)

func NewStaticManager(epoch types.Epoch, committee types.Committee, shard types.CommitteeShard) *StaticManager {
	validators := make(map[types.Address]types.ValidatorNode, len(committee.Members))
	registered := make(map[types.Address]bool, len(committee.Members))
	for _, m := range committee.Members {
		validators[m] = types.ValidatorNode{Address: m}
		registered[m] = true
	}
	return &StaticManager{
		epoch:      epoch,
		committee:  committee,
		shard:      shard,
		validators: validators,
		registered: registered,
	}
}

func (m *StaticManager) CurrentEpoch(context.Context) (types.Epoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch, nil
}

func (m *StaticManager) GetLocalCommittee(_ context.Context, epoch types.Epoch) (types.Committee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if epoch != m.epoch {
		return types.Committee{}, fmt.Errorf("epoch: unknown epoch %d", epoch)
	}
	return m.committee, nil
}

func (m *StaticManager) GetLocalCommitteeShard(_ context.Context, epoch types.Epoch) (types.CommitteeShard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if epoch != m.epoch {
		return types.CommitteeShard{}, fmt.Errorf("epoch: unknown epoch %d", epoch)
	}
	return m.shard, nil
}

func (m *StaticManager) GetCommitteeShard(ctx context.Context, epoch types.Epoch, _ types.ShardID) (types.CommitteeShard, error) {
	// StaticManager has a single shard group; every shard key maps to it.
	return m.GetLocalCommitteeShard(ctx, epoch)
}

func (m *StaticManager) GetValidatorNode(_ context.Context, epoch types.Epoch, addr types.Address) (types.ValidatorNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if epoch != m.epoch {
		return types.ValidatorNode{}, fmt.Errorf("epoch: unknown epoch %d", epoch)
	}
	v, ok := m.validators[addr]
	if !ok {
		return types.ValidatorNode{}, fmt.Errorf("epoch: validator %s not registered", addr)
	}
	return v, nil
}

func (m *StaticManager) GetValidatorNodeMerkleProof(context.Context, types.Epoch, types.Address) (types.MerkleProof, error) {
	// No merkle tree is maintained by a single fixed committee; proofs are
	// the epoch manager's responsibility in production (§1(iii)).
	return types.MerkleProof{}, nil
}

func (m *StaticManager) IsThisValidatorRegisteredForEpoch(_ context.Context, epoch types.Epoch) (bool, error) {
	return epoch == m.epoch, nil
}

func (m *StaticManager) NumShardGroups(_ context.Context, epoch types.Epoch) (uint32, error) {
	if epoch != m.epoch {
		return 0, fmt.Errorf("epoch: unknown epoch %d", epoch)
	}
	return m.shard.NumShardGroups, nil
}

func (m *StaticManager) Subscribe(ctx context.Context) (<-chan types.EpochEvent, error) {
	ch := make(chan types.EpochEvent, 1)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.subscribers {
			if c == ch {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// AdvanceEpoch moves the static manager to a new committee/epoch and
// notifies subscribers, for tests that exercise epoch-change handling.
func (m *StaticManager) AdvanceEpoch(epoch types.Epoch, committee types.Committee, shard types.CommitteeShard) {
	m.mu.Lock()
	m.epoch = epoch
	m.committee = committee
	m.shard = shard
	validators := make(map[types.Address]types.ValidatorNode, len(committee.Members))
	for _, addr := range committee.Members {
		validators[addr] = types.ValidatorNode{Address: addr}
	}
	m.validators = validators
	subs := append([]chan types.EpochEvent(nil), m.subscribers...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- types.EpochEvent{Epoch: epoch}:
		default:
		}
	}
}
