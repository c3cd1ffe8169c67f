package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/mezonai/mmn-replay/bankhash"
	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/interfaces"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
	"github.com/mezonai/mmn-replay/store"
	"github.com/mezonai/mmn-replay/types"
	"github.com/mezonai/mmn-replay/utils"
)

const maxWorkerCount = 64

// defaultWorkerCount sizes the per-slot pool from the host CPU count,
// bounded so wide machines do not over-schedule tiny blocks.
func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	if n > maxWorkerCount {
		n = maxWorkerCount
	}
	return n
}

// Engine re-executes block transactions over an account store plus an
// in-memory overlay of not-yet-flushed updates. It implements the state
// transition consumed by the replay orchestrator.
//
// The overlay accumulates every account touched since the last Flush; that
// set is exactly what an incremental snapshot needs.
type Engine struct {
	mu           sync.RWMutex
	accountStore store.AccountStore
	txMetaStore  store.TxMetaStore
	overlay      map[string]*types.Account
	current      *StateHandle
	workers      int
	verifySigs   bool
}

type Option func(*Engine)

// WithWorkers bounds the per-slot worker pool.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			return
		}
		if n > maxWorkerCount {
			n = maxWorkerCount
		}
		e.workers = n
	}
}

// WithSignatureCheck makes the engine re-verify transaction signatures.
// Transactions failing the check are excluded deterministically.
func WithSignatureCheck(enabled bool) Option {
	return func(e *Engine) {
		e.verifySigs = enabled
	}
}

func NewEngine(accountStore store.AccountStore, txMetaStore store.TxMetaStore, opts ...Option) *Engine {
	e := &Engine{
		accountStore: accountStore,
		txMetaStore:  txMetaStore,
		overlay:      make(map[string]*types.Account),
		workers:      defaultWorkerCount(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SeedAccounts persists bootstrap state, typically genesis allocations
// into an empty store.
func (e *Engine) SeedAccounts(accounts []*types.Account) error {
	return e.accountStore.StoreBatch(accounts)
}

// ResetToAccounts replaces the durable account set with a checkpoint's
// state and drops the overlay. A store flushed past the checkpoint slot
// would otherwise leak future accounts into the resumed run.
func (e *Engine) ResetToAccounts(accounts []*types.Account) error {
	e.mu.Lock()
	e.overlay = make(map[string]*types.Account)
	e.mu.Unlock()
	return e.accountStore.Replace(accounts)
}

// BootstrapAt establishes the engine's base handle. The account store must
// already contain the state that bankHash commits to.
func (e *Engine) BootstrapAt(slot uint64, bankHash [32]byte) *StateHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.Release()
	}
	e.overlay = make(map[string]*types.Account)
	e.current = newHandle(slot, bankHash)
	return e.current
}

// CurrentHandle returns the live handle, or nil before bootstrap.
func (e *Engine) CurrentHandle() *StateHandle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Apply re-executes blk on top of prior and returns the successor handle with
// the recomputed bank hash. Per-transaction failures land in the metas; an
// error return means the transition could not run at all.
//
// Slots are strictly sequential: prior must be the engine's current handle.
func (e *Engine) Apply(ctx context.Context, prior interfaces.StateHandle, blk *block.Block) (interfaces.StateHandle, [32]byte, []*types.TransactionMeta, error) {
	var zero [32]byte
	if err := ctx.Err(); err != nil {
		return nil, zero, nil, err
	}

	handle, ok := prior.(*StateHandle)
	if !ok {
		return nil, zero, nil, fmt.Errorf("foreign state handle")
	}
	e.mu.RLock()
	current := e.current
	e.mu.RUnlock()
	if handle != current || handle.isReleased() {
		return nil, zero, nil, fmt.Errorf("stale state handle for slot %d", handle.Slot())
	}
	if blk.Slot <= handle.Slot() {
		return nil, zero, nil, fmt.Errorf("block slot %d does not advance state at slot %d", blk.Slot, handle.Slot())
	}

	blockHash := hex.EncodeToString(blk.Hash[:])
	jobs, metaByIndex := e.parseTransactions(blk, blockHash)

	// slotState is only written here, between level joins, so workers can
	// read it lock-free through readPrior.
	slotState := make(map[string]*types.Account)
	readPrior := e.priorReader(slotState)

	graph := buildDependencyGraph(jobs)
	levels := groupByDependencyLevel(graph, len(jobs))

	for _, level := range levels {
		prefetch := e.prefetchLevel(level, jobs, slotState)
		readLevel := func(addr string) *types.Account {
			if acc, ok := prefetch[addr]; ok {
				return acc.Clone()
			}
			return readPrior(addr)
		}
		results := executeGroup(level, jobs, readLevel, e.workers, blk.Slot, blockHash)
		for _, result := range results {
			if !result.Success {
				monitoring.IncreaseExecFaultCount()
				logx.Warn("EXECUTOR", fmt.Sprintf("Apply fail slot=%d tx=%d hash=%s: %v",
					blk.Slot, result.Index, utils.ShortenLog(result.Meta.TxHash), result.Err))
			}
			for addr, acc := range result.Updated {
				slotState[addr] = acc
			}
			metaByIndex[result.Index] = result.Meta
		}
	}

	deltaHash := bankhash.ComputeAccountsDeltaHash(slotState)
	newBankHash := bankhash.CombineBankHash(handle.BankHash(), deltaHash)

	metas := make([]*types.TransactionMeta, 0, len(metaByIndex))
	for _, meta := range metaByIndex {
		if meta != nil {
			metas = append(metas, meta)
		}
	}
	if e.txMetaStore != nil && len(metas) > 0 {
		if err := e.txMetaStore.StoreBatch(metas); err != nil {
			return nil, zero, nil, err
		}
	}

	e.mu.Lock()
	for addr, acc := range slotState {
		e.overlay[addr] = acc
	}
	next := newHandle(blk.Slot, newBankHash)
	e.current = next
	e.mu.Unlock()
	handle.Release()

	return next, newBankHash, metas, nil
}

// parseTransactions decodes every entry transaction in declared order.
// Undecodable or (optionally) mis-signed transactions become failed metas and
// are excluded from execution, which keeps the exclusion deterministic.
func (e *Engine) parseTransactions(blk *block.Block, blockHash string) ([]txJob, []*types.TransactionMeta) {
	txCount := blk.TxCount()
	jobs := make([]txJob, 0, txCount)
	metaByIndex := make([]*types.TransactionMeta, txCount)

	idx := 0
	for _, entry := range blk.Entries {
		for _, raw := range entry.Transactions {
			tx, err := utils.ParseTx(raw)
			if err != nil {
				sum := sha256.Sum256(raw)
				metaByIndex[idx] = types.NewTxMeta(hex.EncodeToString(sum[:]), blk.Slot, blockHash, types.TxStatusFailed, fmt.Sprintf("unparsable transaction: %v", err))
				monitoring.IncreaseExecFaultCount()
				idx++
				continue
			}
			if e.verifySigs && !tx.Verify() {
				metaByIndex[idx] = types.NewTxMeta(tx.Hash(), blk.Slot, blockHash, types.TxStatusFailed, "invalid signature")
				monitoring.IncreaseExecFaultCount()
				idx++
				continue
			}
			jobs = append(jobs, txJob{Index: idx, Tx: tx})
			idx++
		}
	}
	return jobs, metaByIndex
}

// priorReader builds the read view workers use: slot state so far, then the
// unflushed overlay, then the account store. Always returns clones.
func (e *Engine) priorReader(slotState map[string]*types.Account) func(addr string) *types.Account {
	return func(addr string) *types.Account {
		if acc, ok := slotState[addr]; ok {
			return acc.Clone()
		}
		e.mu.RLock()
		acc, ok := e.overlay[addr]
		e.mu.RUnlock()
		if ok {
			return acc.Clone()
		}
		stored, err := e.accountStore.GetByAddr(addr)
		if err != nil || stored == nil {
			return nil
		}
		return stored.Clone()
	}
}

// prefetchLevel loads a level's read set from the account store in one
// batched call, skipping addresses already served by slot state or overlay.
func (e *Engine) prefetchLevel(level []int, jobs []txJob, slotState map[string]*types.Account) map[string]*types.Account {
	unique := make(map[string]struct{})
	for _, idx := range level {
		for _, addr := range writeAccounts(jobs[idx].Tx) {
			if addr == "" {
				continue
			}
			if _, ok := slotState[addr]; ok {
				continue
			}
			e.mu.RLock()
			_, inOverlay := e.overlay[addr]
			e.mu.RUnlock()
			if inOverlay {
				continue
			}
			unique[addr] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(unique))
	for addr := range unique {
		addrs = append(addrs, addr)
	}
	prefetch, err := e.accountStore.GetBatch(addrs)
	if err != nil {
		logx.Warn("EXECUTOR", "Account prefetch failed:", err)
		return nil
	}
	return prefetch
}

// DirtyAccounts returns the overlay contents sorted by address: every account
// modified since the last Flush.
func (e *Engine) DirtyAccounts() []*types.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts := make([]*types.Account, 0, len(e.overlay))
	for _, acc := range e.overlay {
		accounts = append(accounts, acc.Clone())
	}
	sort.Slice(accounts, func(a, b int) bool { return accounts[a].Address < accounts[b].Address })
	return accounts
}

// Flush persists the overlay into the account store and clears it. Called at
// checkpoint boundaries so durable state matches the checkpointed slot.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.overlay) == 0 {
		return nil
	}
	accounts := make([]*types.Account, 0, len(e.overlay))
	for _, acc := range e.overlay {
		accounts = append(accounts, acc)
	}
	if err := e.accountStore.StoreBatch(accounts); err != nil {
		return err
	}
	e.overlay = make(map[string]*types.Account)
	return nil
}
