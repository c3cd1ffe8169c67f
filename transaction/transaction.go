package transaction

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/mmn-replay/common"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mr-tron/base58"
)

const (
	TxTypeTransfer    = 1
	TxTypeUserContent = 2
)

type Transaction struct {
	Type      int32        `json:"type"`
	Sender    string       `json:"sender"`
	Recipient string       `json:"recipient"`
	Amount    *uint256.Int `json:"amount"`
	Timestamp uint64       `json:"timestamp"`
	TextData  string       `json:"text_data"`
	Nonce     uint64       `json:"nonce,omitempty"`
	Signature string       `json:"signature,omitempty"`
	ExtraInfo string       `json:"extra_info,omitempty"`
}

// Limits to prevent DoS via oversized inputs
const (
	maxSignatureBase58Len  = 2048
	maxSignatureDecodedLen = 4096
)

func (tx *Transaction) Serialize() []byte {
	amountStr := uint256ToString(tx.Amount)
	metadata := fmt.Sprintf(
		"%d|%s|%s|%s|%s|%d|%s",
		tx.Type, tx.Sender, tx.Recipient, amountStr, tx.TextData, tx.Nonce, tx.ExtraInfo,
	)
	return []byte(metadata)
}

func (tx *Transaction) Verify() bool {
	if tx.Signature == "" {
		logx.Error("TransactionVerify", "missing signature")
		return false
	}

	if len(tx.Signature) > maxSignatureBase58Len {
		logx.Error("TransactionVerify", "signature too large")
		return false
	}

	signature, err := common.DecodeBase58ToBytes(tx.Signature)
	if err != nil {
		logx.Error("TransactionVerify", "failed to decode signature", err)
		return false
	}

	if len(signature) > maxSignatureDecodedLen {
		logx.Error("TransactionVerify", "decoded signature too large")
		return false
	}

	pub, err := common.DecodePubKey(tx.Sender)
	if err != nil {
		logx.Error("TransactionVerify", "failed to decode sender", err)
		return false
	}
	return ed25519.Verify(pub, tx.Serialize(), signature)
}

func (tx *Transaction) Bytes() []byte {
	b, _ := jsonx.Marshal(tx)
	return b
}

func (tx *Transaction) Hash() string {
	sum256 := sha256.Sum256(tx.Bytes())
	return hex.EncodeToString(sum256[:])
}

func (tx *Transaction) DedupHash() string {
	sum256 := sha256.Sum256(tx.Serialize())
	return base58.Encode(sum256[:])
}


// uint256ToString converts a *uint256.Int to string, returning "0" if nil
func uint256ToString(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
