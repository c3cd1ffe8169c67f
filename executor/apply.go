package executor

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mezonai/mmn-replay/transaction"
	"github.com/mezonai/mmn-replay/types"
)

// applyTx applies a transfer to the in-memory state map. Missing accounts are
// created with zero balance. NOTE: this does not perform persisting
// operations into db.
func applyTx(state map[string]*types.Account, tx *transaction.Transaction) error {
	sender, ok := state[tx.Sender]
	if !ok {
		state[tx.Sender] = &types.Account{Address: tx.Sender, Balance: uint256.NewInt(0), Nonce: 0}
		sender = state[tx.Sender]
	}
	recipient, ok := state[tx.Recipient]
	if !ok {
		state[tx.Recipient] = &types.Account{Address: tx.Recipient, Balance: uint256.NewInt(0), Nonce: 0}
		recipient = state[tx.Recipient]
	}

	amount := tx.Amount
	if amount == nil {
		amount = uint256.NewInt(0)
	}

	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	// Strict nonce validation to prevent duplicate transactions
	if tx.Nonce != sender.Nonce+1 {
		return fmt.Errorf("invalid nonce: expected %d, got %d", sender.Nonce+1, tx.Nonce)
	}
	sender.Balance.Sub(sender.Balance, amount)
	recipient.Balance.Add(recipient.Balance, amount)
	sender.Nonce = tx.Nonce
	return nil
}

func addHistory(acc *types.Account, tx *transaction.Transaction) {
	acc.History = append(acc.History, tx.Hash())
}
