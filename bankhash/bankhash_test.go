package bankhash

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/holiman/uint256"

	"github.com/mezonai/mmn-replay/types"
)

func account(addr string, balance, nonce uint64) *types.Account {
	return &types.Account{Address: addr, Balance: uint256.NewInt(balance), Nonce: nonce}
}

func TestComputeAccountsDeltaHashIgnoresInsertionOrder(t *testing.T) {
	a := map[string]*types.Account{
		"alice": account("alice", 100, 1),
		"bob":   account("bob", 50, 2),
		"carol": account("carol", 0, 0),
	}
	b := map[string]*types.Account{
		"carol": account("carol", 0, 0),
		"alice": account("alice", 100, 1),
		"bob":   account("bob", 50, 2),
	}
	if ComputeAccountsDeltaHash(a) != ComputeAccountsDeltaHash(b) {
		t.Error("Delta hash must be independent of map iteration order")
	}
}

func TestComputeAccountsDeltaHashSensitivity(t *testing.T) {
	base := map[string]*types.Account{"alice": account("alice", 100, 1)}
	h := ComputeAccountsDeltaHash(base)

	changedBalance := map[string]*types.Account{"alice": account("alice", 101, 1)}
	if ComputeAccountsDeltaHash(changedBalance) == h {
		t.Error("Balance change must change the delta hash")
	}

	changedNonce := map[string]*types.Account{"alice": account("alice", 100, 2)}
	if ComputeAccountsDeltaHash(changedNonce) == h {
		t.Error("Nonce change must change the delta hash")
	}

	extraAccount := map[string]*types.Account{
		"alice": account("alice", 100, 1),
		"bob":   account("bob", 0, 0),
	}
	if ComputeAccountsDeltaHash(extraAccount) == h {
		t.Error("Added account must change the delta hash")
	}
}

func TestComputeAccountsDeltaHashEmpty(t *testing.T) {
	if !IsZeroHash(ComputeAccountsDeltaHash(nil)) {
		t.Error("Empty update set must hash to zero")
	}
}

func TestCombineBankHash(t *testing.T) {
	var zero [32]byte
	delta := ComputeAccountsDeltaHash(map[string]*types.Account{"a": account("a", 1, 1)})

	if CombineBankHash(zero, delta) != delta {
		t.Error("Combining with a zero previous hash must yield the delta")
	}

	prev := delta
	combined := CombineBankHash(prev, delta)
	if combined == delta || IsZeroHash(combined) {
		t.Error("Chained combination must produce a fresh hash")
	}
	if CombineBankHash(prev, delta) != combined {
		t.Error("Combination must be deterministic")
	}
}

// Randomized account sets must hash identically regardless of which of two
// independently-built maps carries them.
func TestComputeAccountsDeltaHashFuzzedDeterminism(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 64)

	for round := 0; round < 20; round++ {
		var seeds []struct {
			Addr    string
			Balance uint64
			Nonce   uint64
		}
		f.Fuzz(&seeds)

		canonical := make(map[string]*types.Account, len(seeds))
		for _, s := range seeds {
			if s.Addr == "" {
				continue
			}
			canonical[s.Addr] = account(s.Addr, s.Balance, s.Nonce)
		}
		if len(canonical) == 0 {
			continue
		}

		// Rebuild the same set from cloned values into a fresh map.
		rebuilt := make(map[string]*types.Account, len(canonical))
		for addr, acc := range canonical {
			rebuilt[addr] = acc.Clone()
		}

		if ComputeAccountsDeltaHash(canonical) != ComputeAccountsDeltaHash(rebuilt) {
			t.Fatalf("Round %d: same account set hashed differently", round)
		}
	}
}
