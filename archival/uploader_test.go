package archival

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/faults"
	"github.com/mezonai/mmn-replay/retry"
)

// fakeClient is a scriptable ArchiveClient. failSlots makes UploadBatch
// and GetRange fail whenever the batch touches one of those slots.
type fakeClient struct {
	store       *MemoryArchiveStore
	failSlots   map[uint64]int
	uploadCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		store:     NewMemoryArchiveStore(),
		failSlots: make(map[uint64]int),
	}
}

func (f *fakeClient) UploadBatch(ctx context.Context, blocks []*block.Block) (int, int, error) {
	f.uploadCalls++
	for _, blk := range blocks {
		if remaining, ok := f.failSlots[blk.Slot]; ok && remaining != 0 {
			if remaining > 0 {
				f.failSlots[blk.Slot] = remaining - 1
			}
			return 0, 0, fmt.Errorf("injected transport failure at slot %d", blk.Slot)
		}
	}
	accepted, present := 0, 0
	for _, blk := range blocks {
		stored, err := f.store.Put(blk)
		if err != nil {
			return accepted, present, err
		}
		if stored {
			accepted++
		} else {
			present++
		}
	}
	return accepted, present, nil
}

func (f *fakeClient) GetRange(ctx context.Context, from, to uint64) ([]*block.Block, error) {
	for slot := from; slot <= to; slot++ {
		if remaining, ok := f.failSlots[slot]; ok && remaining != 0 {
			if remaining > 0 {
				f.failSlots[slot] = remaining - 1
			}
			return nil, fmt.Errorf("injected transport failure at slot %d", slot)
		}
	}
	return f.store.GetRange(from, to)
}

func (f *fakeClient) Head(ctx context.Context) (uint64, uint64, error) {
	return f.store.Head()
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func rootedBlock(slot uint64) *block.Block {
	prev := sha256.Sum256([]byte(fmt.Sprintf("prev-%d", slot)))
	blk := block.AssembleBlock(slot, slot-1, prev, "leader", nil)
	blk.Status = block.BlockRooted
	return blk
}

func TestArchiveRefusesUnrootedBlocks(t *testing.T) {
	client := newFakeClient()
	uploader := NewUploader(client, 8, fastPolicy())

	blk := rootedBlock(5)
	blk.Status = block.BlockConfirmed

	_, err := uploader.Archive(context.Background(), []*block.Block{blk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only rooted blocks")
	assert.Zero(t, client.uploadCalls, "nothing should reach the wire")
}

func TestArchiveUploadsInSlotOrderBatches(t *testing.T) {
	client := newFakeClient()
	uploader := NewUploader(client, 2, fastPolicy())

	// Out-of-order input covering slots 1..5.
	blocks := []*block.Block{rootedBlock(3), rootedBlock(1), rootedBlock(5), rootedBlock(2), rootedBlock(4)}

	result, err := uploader.Archive(context.Background(), blocks)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Uploaded)
	assert.Zero(t, result.FailedBatches)
	require.Len(t, result.Batches, 3)
	assert.Equal(t, uint64(1), result.Batches[0].FromSlot)
	assert.Equal(t, uint64(2), result.Batches[0].ToSlot)
	assert.Equal(t, uint64(5), result.Batches[2].FromSlot)

	head, count, err := client.store.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), head)
	assert.Equal(t, uint64(5), count)
}

func TestArchiveFailedBatchDoesNotBlockOthers(t *testing.T) {
	client := newFakeClient()
	client.failSlots[3] = -1 // permanent
	uploader := NewUploader(client, 2, fastPolicy())

	blocks := []*block.Block{rootedBlock(1), rootedBlock(2), rootedBlock(3), rootedBlock(4), rootedBlock(5)}
	result, err := uploader.Archive(context.Background(), blocks)

	require.Error(t, err)
	assert.True(t, faults.IsArchivalTransport(err))
	assert.Equal(t, 1, result.FailedBatches)
	// Batches [1,2] and [5,5] land, the batch containing slot 3 does not.
	assert.Equal(t, 3, result.Uploaded)
	assert.NotEmpty(t, result.Batches[1].Error)

	archived, err := client.store.GetRange(1, 5)
	require.NoError(t, err)
	slots := make([]uint64, 0, len(archived))
	for _, blk := range archived {
		slots = append(slots, blk.Slot)
	}
	assert.Equal(t, []uint64{1, 2, 5}, slots)
}

func TestArchiveRetriesTransientFailure(t *testing.T) {
	client := newFakeClient()
	client.failSlots[1] = 2 // fail twice, then succeed
	uploader := NewUploader(client, 8, fastPolicy())

	result, err := uploader.Archive(context.Background(), []*block.Block{rootedBlock(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 3, result.Batches[0].Attempts)
}

func TestArchiveIsIdempotentBySlot(t *testing.T) {
	client := newFakeClient()
	uploader := NewUploader(client, 8, fastPolicy())
	blocks := []*block.Block{rootedBlock(1), rootedBlock(2)}

	first, err := uploader.Archive(context.Background(), blocks)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Uploaded)

	second, err := uploader.Archive(context.Background(), blocks)
	require.NoError(t, err)
	assert.Zero(t, second.Uploaded)
	assert.Equal(t, 2, second.AlreadyPresent)
}
