package archival

import (
	"context"
	"fmt"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/exception"
	"github.com/mezonai/mmn-replay/faults"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
	"github.com/mezonai/mmn-replay/retry"
	"github.com/mezonai/mmn-replay/store"
	"github.com/mezonai/mmn-replay/utils"
)

const defaultRestoreBatchSize = 256

// Restorer pulls archived ranges back out of an archive server.
type Restorer struct {
	client    ArchiveClient
	batchSize uint64
	policy    retry.Policy
}

func NewRestorer(client ArchiveClient, batchSize uint64, policy retry.Policy) *Restorer {
	if batchSize == 0 {
		batchSize = defaultRestoreBatchSize
	}
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Restorer{client: client, batchSize: batchSize, policy: policy}
}

// Restore streams blocks with from <= slot <= to in slot order. The
// error channel delivers at most one terminal fault after the block
// channel closes.
func (r *Restorer) Restore(ctx context.Context, from, to uint64) (<-chan *block.Block, <-chan error) {
	out := make(chan *block.Block, 64)
	errc := make(chan error, 1)

	exception.SafeGo("archive_restore", func() {
		defer close(errc)
		defer close(out)

		for _, rng := range utils.ChunkSlotRange(from, to, r.batchSize) {
			var blocks []*block.Block
			attempts, err := r.policy.Do(ctx, fmt.Sprintf("restore range [%d,%d]", rng.From, rng.To), func() error {
				got, err := r.client.GetRange(ctx, rng.From, rng.To)
				if err != nil {
					monitoring.IncreaseArchiveRetryCount()
					return err
				}
				blocks = got
				return nil
			})
			if err != nil {
				errc <- &faults.ArchivalTransportError{
					Op:       "restore",
					FromSlot: rng.From,
					ToSlot:   rng.To,
					Attempts: attempts,
					Cause:    err,
				}
				return
			}

			for _, blk := range blocks {
				select {
				case out <- blk:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
	})

	return out, errc
}

// RestoreToStore drains a restored range into a local block store.
// Blocks are admitted as confirmed, never rooted: a restored range
// goes through the same verification as locally ingested data before
// anything marks it rooted again.
func (r *Restorer) RestoreToStore(ctx context.Context, from, to uint64, bs store.BlockStore) (int, error) {
	out, errc := r.Restore(ctx, from, to)

	count := 0
	for blk := range out {
		if !blk.VerifyHash() {
			return count, fmt.Errorf("restored block at slot %d does not match its hash", blk.Slot)
		}
		blk.Status = block.BlockConfirmed
		if err := bs.AddBlock(blk); err != nil {
			return count, fmt.Errorf("store restored block at slot %d: %w", blk.Slot, err)
		}
		count++
	}
	if err := <-errc; err != nil {
		return count, err
	}
	logx.Info("ARCHIVAL", fmt.Sprintf("Restored %d blocks in range [%d,%d]", count, from, to))
	return count, nil
}
