package executor

import (
	"context"
	"crypto/sha256"
	"fmt"
	"runtime"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/db"
	"github.com/mezonai/mmn-replay/poh"
	"github.com/mezonai/mmn-replay/store"
	"github.com/mezonai/mmn-replay/transaction"
	"github.com/mezonai/mmn-replay/types"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	provider := db.NewMemoryProvider()
	accounts, err := store.NewGenericAccountStore(provider)
	require.NoError(t, err)
	metas, err := store.NewGenericTxMetaStore(provider)
	require.NoError(t, err)
	return NewEngine(accounts, metas, opts...)
}

func seedBalances(t *testing.T, e *Engine, balances map[string]uint64) {
	t.Helper()
	accs := make([]*types.Account, 0, len(balances))
	for addr, bal := range balances {
		accs = append(accs, &types.Account{Address: addr, Balance: uint256.NewInt(bal), Nonce: 0})
	}
	require.NoError(t, e.SeedAccounts(accs))
}

func transferTx(sender, recipient string, amount, nonce uint64) *transaction.Transaction {
	return &transaction.Transaction{
		Type:      transaction.TxTypeTransfer,
		Sender:    sender,
		Recipient: recipient,
		Amount:    uint256.NewInt(amount),
		Nonce:     nonce,
	}
}

// txBlock wraps serialized transactions into a single-entry block. The entry
// hash is arbitrary: the engine never checks the tick chain, that belongs to
// structural verification.
func txBlock(slot uint64, txs ...*transaction.Transaction) *block.Block {
	raw := make([][]byte, len(txs))
	for i, tx := range txs {
		raw[i] = tx.Bytes()
	}
	tail := sha256.Sum256([]byte(fmt.Sprintf("entry-%d", slot)))
	entries := []poh.Entry{poh.NewTxEntry(1, tail, raw)}
	return block.AssembleBlock(slot, slot-1, sha256.Sum256([]byte("prev")), "leader", entries)
}

func TestApplyTransfersAndCommits(t *testing.T) {
	e := newTestEngine(t)
	seedBalances(t, e, map[string]uint64{"alice": 1000, "bob": 0})
	prior := e.BootstrapAt(0, sha256.Sum256([]byte("genesis")))

	blk := txBlock(1, transferTx("alice", "bob", 300, 1))
	next, commitment, metas, err := e.Apply(context.Background(), prior, blk)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, uint64(1), next.Slot())
	assert.Equal(t, commitment, next.BankHash())
	assert.NotEqual(t, prior.BankHash(), commitment)

	require.Len(t, metas, 1)
	assert.Equal(t, int32(types.TxStatusSuccess), metas[0].Status)

	dirty := map[string]*types.Account{}
	for _, acc := range e.DirtyAccounts() {
		dirty[acc.Address] = acc
	}
	require.Contains(t, dirty, "alice")
	require.Contains(t, dirty, "bob")
	assert.Equal(t, uint256.NewInt(700), dirty["alice"].Balance)
	assert.Equal(t, uint256.NewInt(300), dirty["bob"].Balance)
	assert.Equal(t, uint64(1), dirty["alice"].Nonce)
}

func TestApplyInsufficientBalanceStillAdvancesNonce(t *testing.T) {
	e := newTestEngine(t)
	seedBalances(t, e, map[string]uint64{"alice": 10})
	prior := e.BootstrapAt(0, [32]byte{})

	blk := txBlock(1, transferTx("alice", "bob", 500, 1))
	_, _, metas, err := e.Apply(context.Background(), prior, blk)
	require.NoError(t, err)

	require.Len(t, metas, 1)
	assert.Equal(t, int32(types.TxStatusFailed), metas[0].Status)
	assert.Contains(t, metas[0].Error, "insufficient balance")

	dirty := map[string]*types.Account{}
	for _, acc := range e.DirtyAccounts() {
		dirty[acc.Address] = acc
	}
	require.Contains(t, dirty, "alice")
	assert.Equal(t, uint256.NewInt(10), dirty["alice"].Balance, "failed transfer must not move funds")
	assert.Equal(t, uint64(1), dirty["alice"].Nonce, "failed transfer still consumes the nonce")
	assert.NotContains(t, dirty, "bob")
}

func TestApplyRejectsNonceGap(t *testing.T) {
	e := newTestEngine(t)
	seedBalances(t, e, map[string]uint64{"alice": 1000})
	prior := e.BootstrapAt(0, [32]byte{})

	blk := txBlock(1, transferTx("alice", "bob", 1, 5))
	_, _, metas, err := e.Apply(context.Background(), prior, blk)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, int32(types.TxStatusFailed), metas[0].Status)
	assert.Contains(t, metas[0].Error, "invalid nonce")
}

func TestApplyUnparsableTransactionFailsDeterministically(t *testing.T) {
	e := newTestEngine(t)
	prior := e.BootstrapAt(0, [32]byte{})

	tail := sha256.Sum256([]byte("garbage entry"))
	entries := []poh.Entry{poh.NewTxEntry(1, tail, [][]byte{[]byte("not json")})}
	blk := block.AssembleBlock(1, 0, sha256.Sum256([]byte("prev")), "leader", entries)

	_, _, metas, err := e.Apply(context.Background(), prior, blk)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, int32(types.TxStatusFailed), metas[0].Status)
}

func TestApplyRejectsStaleHandle(t *testing.T) {
	e := newTestEngine(t)
	seedBalances(t, e, map[string]uint64{"alice": 1000})
	first := e.BootstrapAt(0, [32]byte{})

	_, _, _, err := e.Apply(context.Background(), first, txBlock(1, transferTx("alice", "bob", 1, 1)))
	require.NoError(t, err)

	// Re-applying through the consumed handle must fail.
	_, _, _, err = e.Apply(context.Background(), first, txBlock(2, transferTx("alice", "bob", 1, 2)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale state handle")
}

func TestApplyRejectsNonAdvancingSlot(t *testing.T) {
	e := newTestEngine(t)
	prior := e.BootstrapAt(5, [32]byte{})
	_, _, _, err := e.Apply(context.Background(), prior, txBlock(5, transferTx("alice", "bob", 1, 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not advance")
}

func TestApplyHonorsCancelledContext(t *testing.T) {
	e := newTestEngine(t)
	prior := e.BootstrapAt(0, [32]byte{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err := e.Apply(ctx, prior, txBlock(1, transferTx("alice", "bob", 1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlushPersistsAndClearsOverlay(t *testing.T) {
	provider := db.NewMemoryProvider()
	accounts, err := store.NewGenericAccountStore(provider)
	require.NoError(t, err)
	e := NewEngine(accounts, nil)
	seedBalances(t, e, map[string]uint64{"alice": 100})
	prior := e.BootstrapAt(0, [32]byte{})

	_, _, _, err = e.Apply(context.Background(), prior, txBlock(1, transferTx("alice", "bob", 40, 1)))
	require.NoError(t, err)
	require.NotEmpty(t, e.DirtyAccounts())

	require.NoError(t, e.Flush())
	assert.Empty(t, e.DirtyAccounts())

	stored, err := accounts.GetByAddr("bob")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, uint256.NewInt(40), stored.Balance)
}

func TestResetToAccountsReplacesStateAndOverlay(t *testing.T) {
	provider := db.NewMemoryProvider()
	accounts, err := store.NewGenericAccountStore(provider)
	require.NoError(t, err)
	e := NewEngine(accounts, nil)
	seedBalances(t, e, map[string]uint64{"alice": 1000})
	prior := e.BootstrapAt(0, sha256.Sum256([]byte("genesis")))

	_, _, _, err = e.Apply(context.Background(), prior, txBlock(1, transferTx("alice", "carol", 25, 1)))
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	stored, err := accounts.GetByAddr("carol")
	require.NoError(t, err)
	require.NotNil(t, stored, "flush must land carol in the store")

	// Rewind to the pre-transfer state: carol must vanish from the store,
	// not just get shadowed by the overlay.
	require.NoError(t, e.ResetToAccounts([]*types.Account{
		{Address: "alice", Balance: uint256.NewInt(1000), Nonce: 0},
	}))

	assert.Empty(t, e.DirtyAccounts())
	gone, err := accounts.GetByAddr("carol")
	require.NoError(t, err)
	assert.Nil(t, gone)
	alice, err := accounts.GetByAddr("alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, uint256.NewInt(1000), alice.Balance)
	assert.Equal(t, uint64(0), alice.Nonce)
}

func TestWorkerPoolBounds(t *testing.T) {
	e := newTestEngine(t)
	want := runtime.NumCPU()
	if want > maxWorkerCount {
		want = maxWorkerCount
	}
	assert.Equal(t, want, e.workers)

	capped := newTestEngine(t, WithWorkers(1024))
	assert.Equal(t, maxWorkerCount, capped.workers)

	ignored := newTestEngine(t, WithWorkers(0))
	assert.Equal(t, want, ignored.workers, "non-positive counts keep the default")
}

// Replaying the same transactions through differently sized worker pools must
// land on the same commitment.
func TestParallelExecutionMatchesSequential(t *testing.T) {
	balances := map[string]uint64{}
	var txs []*transaction.Transaction
	// Ten independent sender/recipient pairs, then a conflicting chain on the
	// first pair so multiple dependency levels form.
	for i := 0; i < 10; i++ {
		sender := fmt.Sprintf("s%02d", i)
		balances[sender] = 1000
		txs = append(txs, transferTx(sender, fmt.Sprintf("r%02d", i), uint64(10+i), 1))
	}
	txs = append(txs,
		transferTx("s00", "r05", 20, 2),
		transferTx("s00", "r07", 30, 3),
		transferTx("r00", "s01", 5, 1),
	)

	run := func(workers int) [32]byte {
		e := newTestEngine(t, WithWorkers(workers))
		seedBalances(t, e, balances)
		prior := e.BootstrapAt(0, sha256.Sum256([]byte("base")))
		_, commitment, metas, err := e.Apply(context.Background(), prior, txBlock(1, txs...))
		require.NoError(t, err)
		require.Len(t, metas, len(txs))
		return commitment
	}

	sequential := run(1)
	for _, workers := range []int{2, 8, 32} {
		assert.Equal(t, sequential, run(workers), "workers=%d diverged from sequential", workers)
	}
}
