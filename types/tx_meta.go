package types

const (
	TxStatusFailed    = 0
	TxStatusSuccess   = 1
	TxStatusProcessed = 2
)

type TransactionMeta struct {
	TxHash    string `json:"tx_hash"`
	Slot      uint64 `json:"slot"`
	BlockHash string `json:"block_hash"`
	Status    int32  `json:"status"`
	Error     string `json:"error"`
}

func NewTxMeta(txHash string, slot uint64, blockHash string, status int32, errMsg string) *TransactionMeta {
	return &TransactionMeta{
		TxHash:    txHash,
		Slot:      slot,
		BlockHash: blockHash,
		Status:    status,
		Error:     errMsg,
	}
}
