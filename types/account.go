package types

import (
	"github.com/holiman/uint256"
)

type Account struct {
	Address string       `json:"address"`
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
	History []string     `json:"history"` // tx hashes
}

// Clone returns a deep copy safe for concurrent readers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	balance := uint256.NewInt(0)
	if a.Balance != nil {
		balance = new(uint256.Int).Set(a.Balance)
	}
	history := make([]string, len(a.History))
	copy(history, a.History)
	return &Account{
		Address: a.Address,
		Balance: balance,
		Nonce:   a.Nonce,
		History: history,
	}
}

type SnapshotAccount struct {
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
}
