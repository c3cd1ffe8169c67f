package archival

import (
	"context"
	"fmt"
	"sort"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/faults"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
	"github.com/mezonai/mmn-replay/retry"
	"github.com/mezonai/mmn-replay/store"
)

const defaultUploadBatchSize = 64

// ArchiveClient is the transport surface the uploader and restorer
// need. *Client satisfies it; tests supply fakes.
type ArchiveClient interface {
	UploadBatch(ctx context.Context, blocks []*block.Block) (accepted, alreadyPresent int, err error)
	GetRange(ctx context.Context, from, to uint64) ([]*block.Block, error)
	Head(ctx context.Context) (uint64, uint64, error)
}

// BatchStatus records the outcome of one upload batch.
type BatchStatus struct {
	FromSlot       uint64 `json:"from_slot"`
	ToSlot         uint64 `json:"to_slot"`
	Count          int    `json:"count"`
	Attempts       int    `json:"attempts"`
	Accepted       int    `json:"accepted"`
	AlreadyPresent int    `json:"already_present"`
	Error          string `json:"error,omitempty"`
}

// ArchiveResult summarizes an upload run. Failed batches leave their
// slots unarchived without blocking the rest.
type ArchiveResult struct {
	Batches        []BatchStatus `json:"batches"`
	Uploaded       int           `json:"uploaded"`
	AlreadyPresent int           `json:"already_present"`
	FailedBatches  int           `json:"failed_batches"`
}

// Uploader pushes rooted-verified blocks into an archive in batches.
type Uploader struct {
	client    ArchiveClient
	batchSize int
	policy    retry.Policy
}

func NewUploader(client ArchiveClient, batchSize int, policy retry.Policy) *Uploader {
	if batchSize <= 0 {
		batchSize = defaultUploadBatchSize
	}
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Uploader{client: client, batchSize: batchSize, policy: policy}
}

// Archive uploads the given blocks in slot order. Every block must be
// rooted; archiving unverified data is refused outright. The returned
// error is the first transport fault when any batch failed for good,
// with the full per-batch picture in the result either way.
func (u *Uploader) Archive(ctx context.Context, blocks []*block.Block) (*ArchiveResult, error) {
	for _, blk := range blocks {
		if blk.Status != block.BlockRooted {
			return nil, fmt.Errorf("block at slot %d is %s, only rooted blocks are archivable", blk.Slot, blk.Status)
		}
	}

	sorted := append([]*block.Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })

	result := &ArchiveResult{}
	var firstErr error

	for start := 0; start < len(sorted); start += u.batchSize {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}

		end := start + u.batchSize
		if end > len(sorted) {
			end = len(sorted)
		}
		batch := sorted[start:end]
		status := BatchStatus{
			FromSlot: batch[0].Slot,
			ToSlot:   batch[len(batch)-1].Slot,
			Count:    len(batch),
		}

		attempts, err := u.policy.Do(ctx, fmt.Sprintf("archive batch [%d,%d]", status.FromSlot, status.ToSlot), func() error {
			accepted, present, err := u.client.UploadBatch(ctx, batch)
			if err != nil {
				monitoring.IncreaseArchiveRetryCount()
				return err
			}
			status.Accepted = accepted
			status.AlreadyPresent = present
			return nil
		})
		status.Attempts = attempts

		if err != nil {
			transportErr := &faults.ArchivalTransportError{
				Op:       "upload",
				FromSlot: status.FromSlot,
				ToSlot:   status.ToSlot,
				Attempts: attempts,
				Cause:    err,
			}
			status.Error = transportErr.Error()
			result.FailedBatches++
			monitoring.RecordArchiveBatch(false)
			logx.Error("ARCHIVAL", transportErr.Error())
			if firstErr == nil {
				firstErr = transportErr
			}
		} else {
			result.Uploaded += status.Accepted
			result.AlreadyPresent += status.AlreadyPresent
			monitoring.RecordArchiveBatch(true)
		}
		result.Batches = append(result.Batches, status)
	}

	return result, firstErr
}

// CollectRooted gathers the rooted blocks in [from,to] from a local
// block store, the usual feed for Archive.
func CollectRooted(bs store.BlockStore, from, to uint64) ([]*block.Block, error) {
	var out []*block.Block
	for slot := from; slot <= to; slot++ {
		blks, err := bs.BlocksAtSlot(slot)
		if err != nil {
			return nil, err
		}
		for _, blk := range blks {
			if blk.Status == block.BlockRooted {
				out = append(out, blk)
			}
		}
	}
	return out, nil
}
