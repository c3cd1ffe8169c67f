package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mezonai/mmn-replay/bankhash"
	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/config"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/poh"
	"github.com/mezonai/mmn-replay/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize replay storage from a genesis configuration",
	Long: `Initialize the local replay stores by:
- Seeding the account store with the genesis allocation
- Creating the rooted slot-0 block whose bank hash commits to that allocation
The resulting (slot, hash) pair is the trusted root for verify runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initializeStorage()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initializeStorage is idempotent: a second run against an existing
// genesis block is refused instead of overwriting it.
func initializeStorage() error {
	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis config: %w", err)
	}
	seed, err := genesis.SeedHashBytes()
	if err != nil {
		return err
	}

	stores, err := openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	if exists, err := stores.blocks.HasCompleteBlock(0); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("slot 0 already holds a block; refusing to re-initialize")
	}

	accounts := genesis.GenesisAccounts()
	if err := stores.accounts.StoreBatch(accounts); err != nil {
		return fmt.Errorf("seed genesis accounts: %w", err)
	}

	byAddr := make(map[string]*types.Account, len(accounts))
	for _, acc := range accounts {
		byAddr[acc.Address] = acc
	}
	genesisBankHash := bankhash.ComputeAccountsDeltaHash(byAddr)

	// The genesis block has no parent; its PrevHash stays zero so the
	// children index never links it under its own entry tail. Its tick
	// entry advances the seed once, like every later block must.
	blk := block.AssembleBlock(0, 0, [32]byte{}, "genesis", poh.GenerateEntryChain(seed, 1))
	blk.BankHash = genesisBankHash
	blk.Status = block.BlockRooted
	if err := stores.blocks.AddBlock(blk); err != nil {
		return fmt.Errorf("store genesis block: %w", err)
	}

	logx.Info("INIT", fmt.Sprintf("Seeded %d genesis accounts", len(accounts)))
	logx.Info("INIT", fmt.Sprintf("Genesis block: slot=0 hash=%s bank_hash=%s",
		hex.EncodeToString(blk.Hash[:]), hex.EncodeToString(blk.BankHash[:])))
	fmt.Printf("root-slot: 0\nroot-hash: %s\n", hex.EncodeToString(blk.Hash[:]))
	return nil
}
