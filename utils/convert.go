package utils

import (
	"github.com/holiman/uint256"

	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/transaction"
)

// -- Tx --

func ParseTx(data []byte) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	err := jsonx.Unmarshal(data, &tx)
	return &tx, err
}

// ParseAmount parses a balance string as decimal first, then as hex.
// Empty or unparsable inputs yield zero.
func ParseAmount(s string) *uint256.Int {
	if s == "" {
		return uint256.NewInt(0)
	}
	amount, err := uint256.FromDecimal(s)
	if err == nil {
		return amount
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		if amount, err = uint256.FromHex(s); err == nil {
			return amount
		}
	}
	return uint256.NewInt(0)
}

func AmountToString(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

const (
	// DecimalScale represents the scaling factor for amounts (10^6)
	DecimalScale = 1e6
)

// GetDecimalScale returns the decimal scale factor that clients should use
func GetDecimalScale() uint64 {
	return DecimalScale
}
