package archival

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
)

// PgArchiveStore persists archived blocks in Postgres, one row per
// slot with the block serialized into the payload column.
type PgArchiveStore struct {
	db *sql.DB
}

func NewPgArchiveStore(dsn string) (*PgArchiveStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open archive database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "ping archive database")
	}

	store := &PgArchiveStore{db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logx.Info("ARCHIVAL", "Connected to archive database")
	return store, nil
}

func (p *PgArchiveStore) ensureSchema() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS archived_blocks (
		slot BIGINT PRIMARY KEY,
		hash TEXT NOT NULL,
		payload BYTEA NOT NULL
	)`)
	if err != nil {
		return pkgerrors.Wrap(err, "create archive schema")
	}
	return nil
}

func (p *PgArchiveStore) Put(blk *block.Block) (bool, error) {
	payload, err := jsonx.Marshal(blk)
	if err != nil {
		return false, fmt.Errorf("marshal block %d: %w", blk.Slot, err)
	}
	hash := fmt.Sprintf("%x", blk.Hash)

	res, err := p.db.Exec(
		`INSERT INTO archived_blocks(slot, hash, payload) VALUES($1, $2, $3) ON CONFLICT (slot) DO NOTHING`,
		int64(blk.Slot), hash, payload,
	)
	if err != nil {
		return false, pkgerrors.Wrapf(err, "archive slot %d", blk.Slot)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted > 0 {
		return true, nil
	}

	// Row existed. Idempotent success for the same block, conflict
	// otherwise.
	var existingHash string
	err = p.db.QueryRow(`SELECT hash FROM archived_blocks WHERE slot=$1`, int64(blk.Slot)).Scan(&existingHash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("slot %d vanished during upsert", blk.Slot)
	}
	if err != nil {
		return false, err
	}
	if existingHash != hash {
		return false, fmt.Errorf("slot %d already archived with a different block", blk.Slot)
	}
	return false, nil
}

func (p *PgArchiveStore) GetRange(from, to uint64) ([]*block.Block, error) {
	rows, err := p.db.Query(
		`SELECT payload FROM archived_blocks WHERE slot >= $1 AND slot <= $2 ORDER BY slot`,
		int64(from), int64(to),
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "query archive range [%d,%d]", from, to)
	}
	defer rows.Close()

	var out []*block.Block
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var blk block.Block
		if err := jsonx.Unmarshal(payload, &blk); err != nil {
			return nil, fmt.Errorf("unmarshal archived block: %w", err)
		}
		out = append(out, &blk)
	}
	return out, rows.Err()
}

func (p *PgArchiveStore) Head() (uint64, uint64, error) {
	var head, count int64
	err := p.db.QueryRow(`SELECT COALESCE(MAX(slot), 0), COUNT(*) FROM archived_blocks`).Scan(&head, &count)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "query archive head")
	}
	return uint64(head), uint64(count), nil
}

func (p *PgArchiveStore) Close() error {
	return p.db.Close()
}

var _ ArchiveStore = (*PgArchiveStore)(nil)
