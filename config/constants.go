package config

const (
	// DefaultCheckpointInterval persists a checkpoint every this many
	// verified slots when replay.ini does not say otherwise.
	DefaultCheckpointInterval uint64 = 256

	// DefaultFullSnapshotEvery writes a full snapshot every this many
	// checkpoints; the ones between are incremental.
	DefaultFullSnapshotEvery = 10

	DefaultArchiveBatchSize        = 64
	DefaultRestoreBatchSize uint64 = 256

	DefaultMaxAttempts = 3
	DefaultBaseDelayMs = 200
	DefaultMaxDelayMs  = 5000
	DefaultJitter      = 0.2
)
