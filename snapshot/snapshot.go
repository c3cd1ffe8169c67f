package snapshot

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mezonai/mmn-replay/bankhash"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/types"
)

// Kind distinguishes full account captures from incremental ones that
// only carry accounts dirtied since their base full snapshot.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

type Meta struct {
	Slot     uint64   `json:"slot"`
	BankHash [32]byte `json:"bank_hash"`
	Kind     Kind     `json:"kind"`
	// BaseSlot is the slot of the full snapshot an incremental one was
	// built on. Zero for full snapshots.
	BaseSlot uint64 `json:"base_slot,omitempty"`
	Digest   string `json:"digest"`
}

type File struct {
	Meta     Meta            `json:"meta"`
	Accounts []types.Account `json:"accounts"`
}

func FullFileName(slot uint64) string {
	return fmt.Sprintf("snapshot-full-%d.json", slot)
}

func IncrementalFileName(baseSlot, slot uint64) string {
	return fmt.Sprintf("snapshot-incr-%d-%d.json", baseSlot, slot)
}

func EnsureDirectory(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// ComputeDigest hashes the snapshot content: slot, bank hash and the
// canonical account-set hash. Stored in Meta.Digest and recomputed on
// load so a torn or tampered file is rejected.
func ComputeDigest(slot uint64, bankHash [32]byte, accounts []types.Account) string {
	byAddr := make(map[string]*types.Account, len(accounts))
	for i := range accounts {
		byAddr[accounts[i].Address] = &accounts[i]
	}
	setHash := bankhash.ComputeAccountsDeltaHash(byAddr)

	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], slot)
	h.Write(buf[:])
	h.Write(bankHash[:])
	h.Write(setHash[:])
	return hex.EncodeToString(h.Sum(nil))
}

// WriteFull writes a full snapshot of all accounts at the given slot.
func WriteFull(dir string, accounts []*types.Account, slot uint64, bankHash [32]byte) (string, error) {
	return write(dir, FullFileName(slot), accounts, Meta{
		Slot:     slot,
		BankHash: bankHash,
		Kind:     KindFull,
	})
}

// WriteIncremental writes only the accounts dirtied since the full
// snapshot at baseSlot.
func WriteIncremental(dir string, accounts []*types.Account, slot, baseSlot uint64, bankHash [32]byte) (string, error) {
	if slot <= baseSlot {
		return "", fmt.Errorf("incremental snapshot slot %d must be beyond base slot %d", slot, baseSlot)
	}
	return write(dir, IncrementalFileName(baseSlot, slot), accounts, Meta{
		Slot:     slot,
		BankHash: bankHash,
		Kind:     KindIncremental,
		BaseSlot: baseSlot,
	})
}

func write(dir, name string, accounts []*types.Account, meta Meta) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	accountList := make([]types.Account, len(accounts))
	for i, acc := range accounts {
		accountList[i] = *acc
	}
	sort.Slice(accountList, func(i, j int) bool { return accountList[i].Address < accountList[j].Address })

	meta.Digest = ComputeDigest(meta.Slot, meta.BankHash, accountList)
	file := File{Meta: meta, Accounts: accountList}

	data, err := jsonx.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename snapshot file: %w", err)
	}
	return path, nil
}

// Read loads a snapshot file and verifies its digest.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := jsonx.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", path, err)
	}
	if got := ComputeDigest(f.Meta.Slot, f.Meta.BankHash, f.Accounts); got != f.Meta.Digest {
		return nil, fmt.Errorf("snapshot digest mismatch in %s: recorded %s, computed %s", path, f.Meta.Digest, got)
	}
	return &f, nil
}

// Collapse merges an optional incremental snapshot into its base full
// snapshot. With no incremental the full file stands alone. Otherwise
// the result takes slot and bank hash from the incremental and the
// union of both account sets with the incremental winning per address.
// The incremental must have been built on exactly this full snapshot;
// one at or below the full slot carries nothing newer and is dropped.
func Collapse(full, incr *File) (*File, error) {
	if full == nil {
		return nil, fmt.Errorf("full snapshot is required")
	}
	if full.Meta.Kind != KindFull {
		return nil, fmt.Errorf("base snapshot at slot %d is not a full snapshot", full.Meta.Slot)
	}
	if incr == nil {
		return full, nil
	}
	if incr.Meta.Kind != KindIncremental {
		return nil, fmt.Errorf("snapshot at slot %d is not an incremental snapshot", incr.Meta.Slot)
	}
	if incr.Meta.BaseSlot != full.Meta.Slot {
		return nil, fmt.Errorf("incompatible snapshots: incremental built on full slot %d, have full slot %d",
			incr.Meta.BaseSlot, full.Meta.Slot)
	}
	if incr.Meta.Slot <= full.Meta.Slot {
		logx.Warn("SNAPSHOT", fmt.Sprintf("Discarding incremental snapshot at slot %d at or below full slot %d",
			incr.Meta.Slot, full.Meta.Slot))
		return full, nil
	}

	merged := make(map[string]types.Account, len(full.Accounts)+len(incr.Accounts))
	for _, acc := range full.Accounts {
		merged[acc.Address] = acc
	}
	for _, acc := range incr.Accounts {
		merged[acc.Address] = acc
	}

	accounts := make([]types.Account, 0, len(merged))
	for _, acc := range merged {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Address < accounts[j].Address })

	out := &File{
		Meta: Meta{
			Slot:     incr.Meta.Slot,
			BankHash: incr.Meta.BankHash,
			Kind:     KindFull,
		},
		Accounts: accounts,
	}
	out.Meta.Digest = ComputeDigest(out.Meta.Slot, out.Meta.BankHash, out.Accounts)
	return out, nil
}

// AccountPointers returns the accounts as a pointer slice for store
// seeding.
func (f *File) AccountPointers() []*types.Account {
	out := make([]*types.Account, len(f.Accounts))
	for i := range f.Accounts {
		out[i] = &f.Accounts[i]
	}
	return out
}

// Cleanup removes snapshot JSON files in dir not listed in keep.
func Cleanup(dir string, keep ...string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read snapshot dir: %w", err)
	}

	keepSet := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		keepSet[filepath.Clean(p)] = struct{}{}
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		path := filepath.Clean(filepath.Join(dir, file.Name()))
		if _, ok := keepSet[path]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			logx.Error("SNAPSHOT", "Failed to remove old snapshot:", path, err)
		}
	}
	return nil
}
