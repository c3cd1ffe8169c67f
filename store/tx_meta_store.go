package store

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mezonai/mmn-replay/db"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/types"
	"github.com/mezonai/mmn-replay/utils"
)

// TxMetaStore persists per-transaction execution outcomes. Replay records a
// meta for every applied transaction so execution faults stay inspectable
// after the run.
type TxMetaStore interface {
	Store(txMeta *types.TransactionMeta) error
	StoreBatch(txMetas []*types.TransactionMeta) error
	GetByHash(txHash string) (*types.TransactionMeta, error)
	GetBatch(txHashes []string) (map[string]*types.TransactionMeta, error)
	MustClose()
}

// GenericTxMetaStore provides transaction meta storage operations
type GenericTxMetaStore struct {
	dbProvider db.DatabaseProvider
}

// NewGenericTxMetaStore creates a new transaction meta store
func NewGenericTxMetaStore(dbProvider db.DatabaseProvider) (*GenericTxMetaStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericTxMetaStore{
		dbProvider: dbProvider,
	}, nil
}

func (tms *GenericTxMetaStore) getDBKey(txHash string) []byte {
	return []byte(PrefixTxMeta + txHash)
}

func (tms *GenericTxMetaStore) Store(txMeta *types.TransactionMeta) error {
	return tms.StoreBatch([]*types.TransactionMeta{txMeta})
}

// StoreBatch stores a batch of transaction metas in the database
func (tms *GenericTxMetaStore) StoreBatch(txMetas []*types.TransactionMeta) error {
	if len(txMetas) == 0 {
		return nil
	}

	batch := tms.dbProvider.Batch()
	defer batch.Close()

	for _, txMeta := range txMetas {
		data, err := jsonx.Marshal(txMeta)
		if err != nil {
			return errors.Wrap(err, "failed to marshal transaction meta")
		}
		batch.Put(tms.getDBKey(txMeta.TxHash), data)
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "failed to write transaction meta to database")
	}

	logx.Debug("TX_META_STORE", fmt.Sprintf("stored %d transaction metas", len(txMetas)))
	return nil
}

// GetByHash retrieves a transaction meta by its transaction hash
func (tms *GenericTxMetaStore) GetByHash(txHash string) (*types.TransactionMeta, error) {
	data, err := tms.dbProvider.Get(tms.getDBKey(txHash))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get transaction meta %s from db", utils.ShortenLog(txHash))
	}
	if data == nil {
		return nil, nil
	}

	var txMeta types.TransactionMeta
	if err := jsonx.Unmarshal(data, &txMeta); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal transaction meta %s", utils.ShortenLog(txHash))
	}
	return &txMeta, nil
}

// GetBatch retrieves transaction metas keyed by hash; missing hashes are
// absent from the map.
func (tms *GenericTxMetaStore) GetBatch(txHashes []string) (map[string]*types.TransactionMeta, error) {
	keys := make([][]byte, len(txHashes))
	for i, txHash := range txHashes {
		keys[i] = tms.getDBKey(txHash)
	}

	raw, err := tms.dbProvider.GetBatch(keys)
	if err != nil {
		return nil, errors.Wrap(err, "could not get transaction meta batch from db")
	}

	result := make(map[string]*types.TransactionMeta, len(raw))
	for i, txHash := range txHashes {
		data, ok := raw[string(keys[i])]
		if !ok {
			continue
		}
		var txMeta types.TransactionMeta
		if err := jsonx.Unmarshal(data, &txMeta); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal transaction meta %s", utils.ShortenLog(txHash))
		}
		result[txHash] = &txMeta
	}
	return result, nil
}

// MustClose closes the underlying provider, logging on failure.
func (tms *GenericTxMetaStore) MustClose() {
	if err := tms.dbProvider.Close(); err != nil {
		logx.Error("TX_META_STORE", "Failed to close provider:", err)
	}
}
