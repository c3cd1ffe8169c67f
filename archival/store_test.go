package archival

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryArchiveStorePutIsIdempotent(t *testing.T) {
	s := NewMemoryArchiveStore()
	blk := rootedBlock(10)

	stored, err := s.Put(blk)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.Put(blk)
	require.NoError(t, err)
	assert.False(t, stored, "same block again is a no-op")
}

func TestMemoryArchiveStoreRejectsConflictingSlot(t *testing.T) {
	s := NewMemoryArchiveStore()
	_, err := s.Put(rootedBlock(10))
	require.NoError(t, err)

	other := rootedBlock(10)
	other.LeaderID = "other leader"
	other.Hash = other.ComputeHash()

	_, err = s.Put(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different block")
}

func TestMemoryArchiveStoreHeadAndRange(t *testing.T) {
	s := NewMemoryArchiveStore()
	for _, slot := range []uint64{12, 10, 14} {
		_, err := s.Put(rootedBlock(slot))
		require.NoError(t, err)
	}

	head, count, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(14), head)
	assert.Equal(t, uint64(3), count)

	blks, err := s.GetRange(11, 14)
	require.NoError(t, err)
	require.Len(t, blks, 2)
	assert.Equal(t, uint64(12), blks[0].Slot)
	assert.Equal(t, uint64(14), blks[1].Slot)
}
