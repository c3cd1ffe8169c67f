package utils

// IsCheckpointBoundary reports whether slot falls on a checkpoint cadence of
// every slots. A cadence of zero disables checkpointing.
func IsCheckpointBoundary(slot uint64, every uint64) bool {
	if every == 0 {
		return false
	}
	return slot%every == 0
}

// SlotRange is a contiguous inclusive range of slots.
type SlotRange struct {
	From uint64
	To   uint64
}

// ChunkSlotRange splits [from, to] into ranges of at most size slots each.
// Returns nil when the range is empty or size is zero.
func ChunkSlotRange(from, to, size uint64) []SlotRange {
	if from > to || size == 0 {
		return nil
	}
	ranges := make([]SlotRange, 0, (to-from)/size+1)
	for cur := from; cur <= to; {
		end := cur + size - 1
		if end > to || end < cur {
			end = to
		}
		ranges = append(ranges, SlotRange{From: cur, To: end})
		if end == to {
			break
		}
		cur = end + 1
	}
	return ranges
}
