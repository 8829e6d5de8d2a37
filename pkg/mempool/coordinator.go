// Package mempool implements the C5 mempool and execution coordinator
// (§4.5): resolve virtual substates, resolve inputs, execute on a blocking
// worker pool, derive resolved lock intents from the accepted diff, and
// reprocess any block that was waiting on the transaction.
//
// Grounded on original_source's
// applications/tari_validator_node/src/p2p/services/mempool/executor.rs
// (execute_transaction/new_state_db), adapted from a free `tokio::spawn_blocking`
// call per transaction to a bounded github.com/JekaMas/workerpool pool,
// matching the teacher corpus's preference (go-ethereum) for a managed
// worker pool over raw goroutines on CPU-bound paths, and gossip.rs's
// forward_to_local_replicas/forward_to_foreign_replicas, which pkg/gossip
// adapts for mempool traffic.
package mempool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JekaMas/workerpool"
	"golang.org/x/sync/singleflight"

	"github.com/shardledger/valnode/pkg/hotstuff"
	"github.com/shardledger/valnode/pkg/metrics"
	"github.com/shardledger/valnode/pkg/types"
)

// Coordinator is the C5 mempool/execution service. One instance exists per
// validator process, sized by the number of blocking workers it may run
// concurrently.
type Coordinator struct {
	resolver types.SubstateResolver
	executor types.Executor
	store    types.StateStore
	epochs   types.EpochManager
	hotstuff *hotstuff.Handler

	pool    *workerpool.WorkerPool
	inflight singleflight.Group

	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(
	resolver types.SubstateResolver,
	executor types.Executor,
	store types.StateStore,
	epochs types.EpochManager,
	hs *hotstuff.Handler,
	workers int,
	m *metrics.Metrics,
	log *slog.Logger,
) *Coordinator {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		resolver: resolver,
		executor: executor,
		store:    store,
		epochs:   epochs,
		hotstuff: hs,
		pool:     workerpool.New(workers),
		metrics:  m,
		log:      log,
	}
}

// Stop waits for in-flight executions to drain and shuts the worker pool
// down. Safe to call once during process shutdown.
func (c *Coordinator) Stop() {
	c.pool.StopWait()
}

// Submit resolves and executes transaction exactly once, even if it arrives
// concurrently from several gossip peers (singleflight coalescing), persists
// the result, and reprocesses any block that was pending on it.
func (c *Coordinator) Submit(ctx context.Context, transaction *types.Transaction) error {
	key := transaction.ID.String()
	_, err, _ := c.inflight.Do(key, func() (any, error) {
		var exists bool
		if err := c.store.WithReadTx(func(tx types.ReadTx) error {
			ok, err := tx.ExecutedTransactionExists(transaction.ID)
			exists = ok
			return err
		}); err != nil {
			return nil, fmt.Errorf("mempool: submit: %w", err)
		}
		if exists {
			return nil, nil
		}

		epoch, err := c.epochs.CurrentEpoch(ctx)
		if err != nil {
			return nil, fmt.Errorf("mempool: submit: current epoch: %w", err)
		}

		executed, err := c.Execute(ctx, transaction, epoch)
		if err != nil {
			return nil, err
		}

		if err := c.store.WithWriteTx(func(tx types.WriteTx) error {
			return tx.InsertExecutedTransaction(executed)
		}); err != nil {
			return nil, fmt.Errorf("mempool: submit: persist: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	return c.reprocessAwaitingBlocks(ctx, transaction.ID)
}

// Execute runs §4.5's three steps for one transaction and returns the
// executed transaction with its resolved lock intents attached. A non-nil
// ExecutedTransaction with Result.Accepted == false and a nil error means a
// transaction failure (step 1/2's UnauthorizedFeeClaim, InputSubstateDowned,
// InputSubstateDoesNotExist) — recorded against the transaction, never the
// node. Any other error is a system failure.
func (c *Coordinator) Execute(ctx context.Context, transaction *types.Transaction, epoch types.Epoch) (*types.ExecutedTransaction, error) {
	virtualSubstates, err := c.resolver.ResolveVirtualSubstates(ctx, transaction, epoch)
	if err != nil {
		if errors.Is(err, types.ErrUnauthorizedFeeClaim) {
			c.log.Warn("unauthorized fee claim", "tx", transaction.ID, "err", err)
			return transactionFailure(transaction, err), nil
		}
		return nil, fmt.Errorf("mempool: execute: resolve virtual substates: %w", err)
	}

	inputs, err := c.resolver.Resolve(ctx, transaction)
	if err != nil {
		if errors.Is(err, types.ErrInputSubstateDowned) || errors.Is(err, types.ErrInputSubstateDoesNotExist) {
			c.log.Warn("invalid input shard", "tx", transaction.ID, "err", err)
			return transactionFailure(transaction, err), nil
		}
		return nil, fmt.Errorf("mempool: execute: resolve inputs: %w", err)
	}

	return c.executeOnWorker(ctx, transaction, inputs, virtualSubstates)
}

type executionOutcome struct {
	executed *types.ExecutedTransaction
	err      error
}

// executeOnWorker offloads the actual execution to the blocking pool
// (executor.rs's task::spawn_blocking), recovering a panic into
// ErrExecutionThreadFailure rather than crashing the pool goroutine.
func (c *Coordinator) executeOnWorker(
	ctx context.Context,
	transaction *types.Transaction,
	inputs map[types.SubstateID][]byte,
	virtualSubstates map[string][]byte,
) (*types.ExecutedTransaction, error) {
	resultCh := make(chan executionOutcome, 1)

	c.pool.Submit(func() {
		outcome := func() (out executionOutcome) {
			defer func() {
				if r := recover(); r != nil {
					out = executionOutcome{err: fmt.Errorf("mempool: execute %s: %w: %v", transaction.ID, ErrExecutionThreadFailure, r)}
				}
			}()

			db := newScratchStateDB()
			if err := db.SetMany(inputs); err != nil {
				return executionOutcome{err: fmt.Errorf("mempool: execute %s: seed scratch db: %w", transaction.ID, err)}
			}

			start := time.Now()
			result, err := c.executor.Execute(ctx, transaction, db, virtualSubstates)
			if c.metrics != nil {
				c.metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
			}
			if err != nil {
				return executionOutcome{err: fmt.Errorf("mempool: execute %s: %w", transaction.ID, err)}
			}

			resolvedInputs, err := c.resolveLockIntents(transaction, result)
			if err != nil {
				return executionOutcome{err: err}
			}

			executed := &types.ExecutedTransaction{Transaction: transaction, Result: result}
			executed.SetResolvedInputs(resolvedInputs)
			return executionOutcome{executed: executed}
		}()
		resultCh <- outcome
	})

	select {
	case outcome := <-resultCh:
		return outcome.executed, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveLockIntents derives the resolved lock intents from the diff
// (§4.5 step 3): every input the diff downed is a Write intent at its
// stored version, every other input is a Read intent.
func (c *Coordinator) resolveLockIntents(transaction *types.Transaction, result *types.ExecutionResult) ([]types.LockIntent, error) {
	if !result.Accepted || result.Diff == nil {
		return nil, nil
	}

	ids := transaction.AllInputs()
	intents := make([]types.LockIntent, 0, len(ids))
	err := c.store.WithReadTx(func(tx types.ReadTx) error {
		for _, id := range ids {
			var version uint64
			rec, err := tx.GetSubstate(id)
			switch {
			case err == nil:
				version = rec.Version
			case errors.Is(err, types.ErrNotFound):
				version = 0 // not yet materialized: this execution creates it
			default:
				return fmt.Errorf("substate %s: %w", id, err)
			}
			flag := types.LockRead
			if result.Diff.IsDowned(id) {
				flag = types.LockWrite
			}
			intents = append(intents, types.LockIntent{SubstateID: id, Version: version, Flag: flag})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mempool: execute %s: resolve lock intents: %w", transaction.ID, err)
	}
	return intents, nil
}

func transactionFailure(transaction *types.Transaction, cause error) *types.ExecutedTransaction {
	return &types.ExecutedTransaction{
		Transaction: transaction,
		Result:      &types.ExecutionResult{Accepted: false, Logs: []string{cause.Error()}},
	}
}

// reprocessAwaitingBlocks asks the store which blocks were waiting on txID
// (the awaiting-transactions index, §6), and for each whose every missing
// transaction is now executed, clears the index entry and re-enters the
// block through the proposal handler (§4.4.7).
func (c *Coordinator) reprocessAwaitingBlocks(ctx context.Context, txID types.TransactionID) error {
	var blockIDs []types.BlockID
	if err := c.store.WithReadTx(func(tx types.ReadTx) error {
		ids, err := tx.GetAwaitingBlocks(txID)
		blockIDs = ids
		return err
	}); err != nil {
		return fmt.Errorf("mempool: reprocess: awaiting blocks for %s: %w", txID, err)
	}

	for _, blockID := range blockIDs {
		ready, err := c.allMissingExecuted(blockID)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		if err := c.store.WithWriteTx(func(tx types.WriteTx) error {
			return tx.RemoveMissingTransactions(blockID)
		}); err != nil {
			return fmt.Errorf("mempool: reprocess: clear missing for %s: %w", blockID, err)
		}
		c.log.Debug("reprocessing block, missing transactions resolved", "block", blockID)
		if c.hotstuff != nil {
			if err := c.hotstuff.ReprocessBlock(ctx, blockID); err != nil {
				return fmt.Errorf("mempool: reprocess block %s: %w", blockID, err)
			}
		}
	}
	return nil
}

func (c *Coordinator) allMissingExecuted(blockID types.BlockID) (bool, error) {
	var ready bool
	err := c.store.WithReadTx(func(tx types.ReadTx) error {
		missing, err := tx.GetMissingTransactions(blockID)
		if err != nil {
			return err
		}
		for _, id := range missing {
			exists, err := tx.ExecutedTransactionExists(id)
			if err != nil {
				return err
			}
			if !exists {
				return nil // ready stays false
			}
		}
		ready = true
		return nil
	})
	return ready, err
}
