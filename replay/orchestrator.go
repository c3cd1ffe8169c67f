package replay

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/blocksource"
	"github.com/mezonai/mmn-replay/checkpoint"
	"github.com/mezonai/mmn-replay/events"
	"github.com/mezonai/mmn-replay/executor"
	"github.com/mezonai/mmn-replay/faults"
	"github.com/mezonai/mmn-replay/forkchoice"
	"github.com/mezonai/mmn-replay/interfaces"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
	"github.com/mezonai/mmn-replay/poh"
	"github.com/mezonai/mmn-replay/report"
	"github.com/mezonai/mmn-replay/retry"
	"github.com/mezonai/mmn-replay/snapshot"
	"github.com/mezonai/mmn-replay/store"
	"github.com/mezonai/mmn-replay/types"
	"github.com/mezonai/mmn-replay/utils"
)

// Config carries construction knobs for the orchestrator.
type Config struct {
	SnapshotDir string
	FetchPolicy retry.Policy
	// FullSnapshotEvery is how many checkpoints apart full snapshots
	// are written; the ones between are incremental.
	FullSnapshotEvery int
	// LeaderKeys resolves a leader's block-signing key. When set and
	// the key is known, every block's signature is re-checked; a bad
	// signature is structural corruption. Nil skips the check, for
	// deployments whose genesis carries no leader keys.
	LeaderKeys func(leaderID string) (ed25519.PublicKey, bool)
}

const defaultFullSnapshotEvery = 10

// VerifyOptions selects the range and cadence of one verification run.
type VerifyOptions struct {
	// StartRoot is the trusted anchor. Its commitment is taken as
	// given; replay begins at its children.
	StartRoot block.Ref
	// EndSlot bounds the walk. Zero means the latest slot the source
	// knows about.
	EndSlot uint64
	// CheckpointInterval K persists a checkpoint every K verified
	// slots. Zero disables checkpointing.
	CheckpointInterval uint64
	// Resume restarts from the latest usable checkpoint instead of
	// StartRoot when one exists.
	Resume bool
}

// Orchestrator drives verification runs: it walks the fork tree from a
// trusted root, re-executes every block on the selected path, and
// compares recomputed commitments against stored ones, persisting
// checkpoints along the way.
type Orchestrator struct {
	src         *blocksource.PrefetchSource
	engine      *executor.Engine
	blocks      store.BlockStore
	accounts    store.AccountStore
	checkpoints *checkpoint.Store
	bus         *events.EventBus

	snapshotDir string
	fetchPolicy retry.Policy
	fullEvery   int
	leaderKeys  func(leaderID string) (ed25519.PublicKey, bool)

	mu    sync.Mutex
	state stateVar
}

func NewOrchestrator(
	src interfaces.BlockSource,
	engine *executor.Engine,
	blocks store.BlockStore,
	accounts store.AccountStore,
	checkpoints *checkpoint.Store,
	bus *events.EventBus,
	cfg Config,
) *Orchestrator {
	if bus == nil {
		bus = events.NewEventBus()
	}
	fullEvery := cfg.FullSnapshotEvery
	if fullEvery <= 0 {
		fullEvery = defaultFullSnapshotEvery
	}
	policy := cfg.FetchPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Orchestrator{
		src:         blocksource.NewPrefetchSource(src),
		engine:      engine,
		blocks:      blocks,
		accounts:    accounts,
		checkpoints: checkpoints,
		bus:         bus,
		snapshotDir: cfg.SnapshotDir,
		fetchPolicy: policy,
		fullEvery:   fullEvery,
		leaderKeys:  cfg.LeaderKeys,
	}
}

// Bus exposes the event bus for external subscribers.
func (o *Orchestrator) Bus() *events.EventBus {
	return o.bus
}

// State reports the current run state.
func (o *Orchestrator) State() string {
	return o.state.get().String()
}

// Verify executes one verification run. The returned report always
// describes the progress made; the error carries the typed fault for
// terminal states other than success.
func (o *Orchestrator) Verify(ctx context.Context, opts VerifyOptions) (*report.VerificationReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	runID := uuid.Must(uuid.NewV7()).String()
	started := time.Now()

	collector := report.NewCollector()
	collector.Attach(o.bus)

	o.state.to(stateLoadingCheckpoint)
	root, prior, err := o.bootstrap(ctx, opts)
	if err != nil {
		return o.finish(collector, runID, classify(ctx, err), root.Slot, started, err)
	}

	frontier := opts.EndSlot
	if frontier == 0 {
		frontier, err = o.src.LatestSlot(ctx)
		if err != nil {
			return o.finish(collector, runID, classify(ctx, err), root.Slot, started, err)
		}
	}

	o.bus.Publish(events.NewRunStarted(runID, root.Slot, frontier))
	logx.Info("REPLAY", fmt.Sprintf("Run %s: verifying from root slot %d toward slot %d", runID, root.Slot, frontier))

	o.state.to(stateReplaying)
	final, lastVerified, err := o.run(ctx, runID, root, prior, frontier, opts)
	return o.finish(collector, runID, final, lastVerified, started, err)
}

func (o *Orchestrator) finish(collector *report.Collector, runID string, final runState, lastVerified uint64, started time.Time, err error) (*report.VerificationReport, error) {
	o.state.to(final)
	o.bus.Publish(events.NewRunFinished(runID, string(final.reportStatus()), lastVerified, time.Since(started)))
	monitoring.RecordRunOutcome(final.outcome())

	collector.Close()
	rep := collector.Report()
	logx.Info("REPLAY", rep.Summary())
	return rep, err
}

// classify maps a bootstrap or setup error to its terminal state.
func classify(ctx context.Context, err error) runState {
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return stateCancelled
	case faults.IsIncompleteData(err):
		return stateIncompleteData
	case faults.IsAmbiguousFork(err):
		return stateAmbiguousFork
	case faults.IsDivergence(err):
		return stateDiverged
	default:
		return stateFailed
	}
}

// bootstrap resolves the starting point: the latest usable checkpoint
// when resuming, the caller-provided trusted root otherwise. The
// engine comes out positioned at the returned root.
func (o *Orchestrator) bootstrap(ctx context.Context, opts VerifyOptions) (block.Ref, interfaces.StateHandle, error) {
	if opts.Resume && o.checkpoints != nil {
		rec, err := o.checkpoints.Latest()
		if err != nil {
			return opts.StartRoot, nil, fmt.Errorf("load latest checkpoint: %w", err)
		}
		if rec != nil {
			state, err := checkpoint.LoadState(rec)
			if err != nil {
				return opts.StartRoot, nil, fmt.Errorf("load checkpoint state at slot %d: %w", rec.Slot, err)
			}
			if err := o.engine.ResetToAccounts(state.AccountPointers()); err != nil {
				return opts.StartRoot, nil, fmt.Errorf("seed accounts from checkpoint: %w", err)
			}
			root, err := o.resolveRootAt(ctx, rec.Slot, rec.BankHash)
			if err != nil {
				return opts.StartRoot, nil, err
			}
			handle := o.engine.BootstrapAt(rec.Slot, rec.BankHash)
			logx.Info("REPLAY", fmt.Sprintf("Resuming from checkpoint at slot %d (%s snapshot)", rec.Slot, rec.Kind))
			return root, handle, nil
		}
		logx.Info("REPLAY", "No usable checkpoint found, starting from the trusted root")
	}

	if opts.StartRoot.Hash == ([32]byte{}) {
		return opts.StartRoot, nil, fmt.Errorf("start root is required when no checkpoint is available")
	}
	rootBlk, err := o.fetchBlock(ctx, opts.StartRoot)
	if err != nil {
		return opts.StartRoot, nil, err
	}
	handle := o.engine.BootstrapAt(rootBlk.Slot, rootBlk.BankHash)
	return opts.StartRoot, handle, nil
}

// resolveRootAt finds the stored block at the checkpoint slot whose
// commitment matches the checkpoint. The block tree is rebuilt from it.
func (o *Orchestrator) resolveRootAt(ctx context.Context, slot uint64, bankHash [32]byte) (block.Ref, error) {
	blks, err := o.src.BlocksAtSlot(ctx, slot)
	if err != nil {
		return block.Ref{}, fmt.Errorf("blocks at checkpoint slot %d: %w", slot, err)
	}
	for _, blk := range blks {
		if blk.BankHash == bankHash {
			return block.Ref{Slot: blk.Slot, Hash: blk.Hash}, nil
		}
	}
	return block.Ref{}, &faults.IncompleteDataError{
		Slot:     slot,
		Attempts: 1,
		Cause:    fmt.Errorf("no stored block matches checkpoint commitment"),
	}
}

// cpTracker is the per-run checkpoint cadence state. A nil base forces
// the next checkpoint to be a full snapshot; resumed runs always start
// that way so incremental chains never straddle restarts.
type cpTracker struct {
	seq  int
	base *checkpoint.Record
}

func (o *Orchestrator) run(ctx context.Context, runID string, root block.Ref, prior interfaces.StateHandle, frontier uint64, opts VerifyOptions) (runState, uint64, error) {
	tree, err := forkchoice.BuildTree(ctx, o.src, root, frontier)
	if err != nil {
		return classify(ctx, err), root.Slot, err
	}
	path, err := forkchoice.SelectPath(tree)
	if err != nil {
		return classify(ctx, err), root.Slot, err
	}

	rootBlk, err := o.fetchBlock(ctx, path.Root)
	if err != nil {
		return classify(ctx, err), root.Slot, err
	}

	prevTail := rootBlk.LastEntryHash()
	lastVerified := root.Slot
	cp := &cpTracker{}

	steps := path.Steps
	for i := 1; i < len(steps); i++ {
		if ctx.Err() != nil {
			logx.Info("REPLAY", fmt.Sprintf("Cancelled at slot boundary after slot %d", lastVerified))
			return stateCancelled, lastVerified, ctx.Err()
		}

		step := steps[i]
		if step.Skipped {
			o.bus.Publish(events.NewSlotSkipped(step.Slot))
			continue
		}

		// Warm the next block while this one verifies.
		for j := i + 1; j < len(steps); j++ {
			if !steps[j].Skipped {
				o.src.Prefetch(ctx, *steps[j].Ref)
				break
			}
		}

		slotStart := time.Now()
		blk, err := o.fetchBlock(ctx, *step.Ref)
		if err != nil {
			return classify(ctx, err), lastVerified, err
		}

		if divErr := o.verifyStructure(blk, prevTail); divErr != nil {
			o.reportDivergence(divErr)
			return stateDiverged, lastVerified, divErr
		}

		next, commitment, metas, err := o.engine.Apply(ctx, prior, blk)
		if err != nil {
			return classify(ctx, err), lastVerified, fmt.Errorf("apply slot %d: %w", blk.Slot, err)
		}
		o.publishTxFaults(blk.Slot, metas)

		if commitment != blk.BankHash {
			divErr := &faults.DivergenceError{Slot: blk.Slot, Expected: commitment, Actual: blk.BankHash}
			o.reportDivergence(divErr)
			return stateDiverged, lastVerified, divErr
		}

		prior = next
		prevTail = blk.LastEntryHash()
		lastVerified = blk.Slot

		if err := o.blocks.MarkStatus(blk.Slot, blk.Hash, block.BlockRooted); err != nil {
			logx.Warn("REPLAY", fmt.Sprintf("Could not mark slot %d rooted: %v", blk.Slot, err))
		}

		elapsed := time.Since(slotStart)
		monitoring.RecordVerifiedSlot(blk.Slot, elapsed, blk.TxCount())
		o.bus.Publish(events.NewSlotVerified(blk.Slot, commitment, blk.TxCount(), elapsed))

		if opts.CheckpointInterval > 0 && o.checkpoints != nil && utils.IsCheckpointBoundary(blk.Slot, opts.CheckpointInterval) {
			if rec, err := o.writeCheckpoint(runID, blk.Slot, commitment, cp); err != nil {
				logx.Error("REPLAY", fmt.Sprintf("Checkpoint at slot %d failed: %v", blk.Slot, err))
			} else {
				o.bus.Publish(events.NewCheckpointSaved(rec.Slot, rec.SnapshotPath, string(rec.Kind)))
			}
		}
	}

	if path.Truncated {
		logx.Warn("REPLAY", fmt.Sprintf("Run ended early at slot %d: selected path was truncated at a dead block", lastVerified))
	}
	return stateSucceeded, lastVerified, nil
}

// verifyStructure checks the block against its own claims before any
// execution: content hash, parent linkage, and the entry hash chain.
// Any failure is a divergence, pinned to a transaction when the
// failing entry carries some.
func (o *Orchestrator) verifyStructure(blk *block.Block, prevTail [32]byte) *faults.DivergenceError {
	if !blk.VerifyHash() {
		computed := blk.ComputeHash()
		return &faults.DivergenceError{Slot: blk.Slot, Expected: computed, Actual: blk.Hash}
	}
	if blk.PrevHash != prevTail {
		return &faults.DivergenceError{Slot: blk.Slot, Expected: prevTail, Actual: blk.PrevHash}
	}
	if o.leaderKeys != nil {
		if pub, ok := o.leaderKeys(blk.LeaderID); ok && !blk.VerifySignature(pub) {
			logx.Error("REPLAY", fmt.Sprintf("Leader signature check failed at slot %d (leader %s)", blk.Slot, blk.LeaderID))
			return &faults.DivergenceError{Slot: blk.Slot, Expected: blk.Hash}
		}
	}
	if err := poh.VerifyEntriesFrom(prevTail, blk.Entries, blk.Slot); err != nil {
		var mismatch *poh.MismatchError
		if errors.As(err, &mismatch) {
			divErr := &faults.DivergenceError{Slot: blk.Slot, Expected: mismatch.Got, Actual: mismatch.Expected}
			if len(blk.Entries[mismatch.EntryIndex].Transactions) > 0 {
				idx := blk.FirstTxIndexOfEntry(mismatch.EntryIndex)
				divErr.TxIndex = &idx
			}
			return divErr
		}
		return &faults.DivergenceError{Slot: blk.Slot}
	}
	return nil
}

func (o *Orchestrator) reportDivergence(divErr *faults.DivergenceError) {
	monitoring.IncreaseDivergenceCount()
	o.bus.Publish(events.NewDivergenceFound(divErr.Slot, divErr.Expected, divErr.Actual, divErr.TxIndex))
	logx.Error("REPLAY", divErr.Error())
}

func (o *Orchestrator) publishTxFaults(slot uint64, metas []*types.TransactionMeta) {
	for i, meta := range metas {
		if meta == nil || meta.Status != types.TxStatusFailed {
			continue
		}
		fault := &faults.ExecutionFaultError{Slot: slot, TxIndex: i, TxHash: meta.TxHash, Reason: meta.Error}
		logx.Warn("REPLAY", fault.Error())
		o.bus.Publish(events.NewExecutionFault(slot, i, meta.TxHash, meta.Error))
	}
}

// fetchBlock retrieves one block with bounded retry. A block that
// stays missing is incomplete data, never a divergence.
func (o *Orchestrator) fetchBlock(ctx context.Context, ref block.Ref) (*block.Block, error) {
	var blk *block.Block
	attempts, err := o.fetchPolicy.Do(ctx, fmt.Sprintf("fetch block at slot %d", ref.Slot), func() error {
		b, err := o.src.Block(ctx, ref)
		if err != nil {
			monitoring.IncreaseFetchRetryCount()
			return err
		}
		if b == nil {
			monitoring.IncreaseFetchRetryCount()
			return fmt.Errorf("block at slot %d not in source", ref.Slot)
		}
		blk = b
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &faults.IncompleteDataError{Slot: ref.Slot, Attempts: attempts, Cause: err}
	}
	return blk, nil
}

// writeCheckpoint persists a snapshot plus its record. Ordering is
// chosen so a crash at any point leaves the store loadable: snapshot
// file first, then the record, and only then the account store flush
// that a full snapshot implies.
func (o *Orchestrator) writeCheckpoint(runID string, slot uint64, bankHash [32]byte, cp *cpTracker) (*checkpoint.Record, error) {
	cpStart := time.Now()
	full := cp.base == nil || cp.seq%o.fullEvery == 0

	var rec checkpoint.Record
	if full {
		accounts, err := o.collectFullState()
		if err != nil {
			return nil, err
		}
		path, err := snapshot.WriteFull(o.snapshotDir, accounts, slot, bankHash)
		if err != nil {
			return nil, err
		}
		rec = checkpoint.Record{
			Slot:         slot,
			BankHash:     bankHash,
			SnapshotPath: path,
			Kind:         snapshot.KindFull,
			Digest:       digestOf(slot, bankHash, accounts),
			RunID:        runID,
		}
		if err := o.checkpoints.Put(rec); err != nil {
			return nil, err
		}
		if err := o.engine.Flush(); err != nil {
			logx.Warn("CHECKPOINT", fmt.Sprintf("Account flush after full snapshot at slot %d failed: %v", slot, err))
		}
		cp.base = &rec
	} else {
		dirty := o.engine.DirtyAccounts()
		path, err := snapshot.WriteIncremental(o.snapshotDir, dirty, slot, cp.base.Slot, bankHash)
		if err != nil {
			return nil, err
		}
		rec = checkpoint.Record{
			Slot:         slot,
			BankHash:     bankHash,
			SnapshotPath: path,
			Kind:         snapshot.KindIncremental,
			BaseSlot:     cp.base.Slot,
			BasePath:     cp.base.SnapshotPath,
			Digest:       digestOf(slot, bankHash, dirty),
			RunID:        runID,
		}
		if err := o.checkpoints.Put(rec); err != nil {
			return nil, err
		}
	}

	cp.seq++
	monitoring.RecordCheckpoint(slot, time.Since(cpStart))
	logx.Info("CHECKPOINT", fmt.Sprintf("Checkpoint at slot %d (%s) -> %s", slot, rec.Kind, rec.SnapshotPath))
	return &rec, nil
}

// collectFullState merges the durable account store with the engine's
// unflushed overlay into the complete state picture.
func (o *Orchestrator) collectFullState() ([]*types.Account, error) {
	merged := make(map[string]*types.Account)
	err := o.accounts.IterateAll(func(acc *types.Account) bool {
		merged[acc.Address] = acc
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	for _, acc := range o.engine.DirtyAccounts() {
		merged[acc.Address] = acc
	}
	out := make([]*types.Account, 0, len(merged))
	for _, acc := range merged {
		out = append(out, acc)
	}
	return out, nil
}

func digestOf(slot uint64, bankHash [32]byte, accounts []*types.Account) string {
	values := make([]types.Account, len(accounts))
	for i, acc := range accounts {
		values[i] = *acc
	}
	return snapshot.ComputeDigest(slot, bankHash, values)
}
