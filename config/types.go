package config

// GenesisAccount is one pre-funded account from genesis.yml.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
	Nonce   uint64 `yaml:"nonce"`
}

// LeaderKey maps a leader identity to its block-signing public key
// (hex encoded). Present only when the deployment signs blocks.
type LeaderKey struct {
	LeaderID string `yaml:"leader_id"`
	PubKey   string `yaml:"pubkey"`
}

// GenesisConfig holds the configuration from genesis.yml: the seed of
// the slot-0 entry chain, the initial account allocation and, when
// available, the leader keys used to re-check block signatures.
type GenesisConfig struct {
	SeedHash string           `yaml:"seed_hash"`
	Alloc    []GenesisAccount `yaml:"alloc"`
	Leaders  []LeaderKey      `yaml:"leaders"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

// ReplayConfig is the [replay] section of replay.ini.
type ReplayConfig struct {
	CheckpointInterval uint64  `ini:"checkpoint_interval"`
	Workers            int     `ini:"workers"`
	FullSnapshotEvery  int     `ini:"full_snapshot_every"`
	VerifySignatures   bool    `ini:"verify_signatures"`
	FetchMaxAttempts   int     `ini:"fetch_max_attempts"`
	FetchBaseDelayMs   int     `ini:"fetch_base_delay_ms"`
	FetchMaxDelayMs    int     `ini:"fetch_max_delay_ms"`
	FetchJitter        float64 `ini:"fetch_jitter"`
}

// ArchivalConfig is the [archival] section of replay.ini.
type ArchivalConfig struct {
	Endpoint         string  `ini:"endpoint"`
	ListenAddr       string  `ini:"listen_addr"`
	Backend          string  `ini:"backend"`
	PostgresDSN      string  `ini:"postgres_dsn"`
	BatchSize        int     `ini:"batch_size"`
	RestoreBatchSize uint64  `ini:"restore_batch_size"`
	MaxAttempts      int     `ini:"max_attempts"`
	BaseDelayMs      int     `ini:"base_delay_ms"`
	MaxDelayMs       int     `ini:"max_delay_ms"`
	Jitter           float64 `ini:"jitter"`
}

// StorageConfig is the [storage] section of replay.ini.
type StorageConfig struct {
	Backend      string `ini:"backend"`
	DataDir      string `ini:"data_dir"`
	RedisAddr    string `ini:"redis_addr"`
	CheckpointDB string `ini:"checkpoint_db"`
	SnapshotDir  string `ini:"snapshot_dir"`
}
