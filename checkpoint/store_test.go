package checkpoint

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"github.com/mezonai/mmn-replay/snapshot"
	"github.com/mezonai/mmn-replay/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFullSnapshot(t *testing.T, dir string, slot uint64) (string, string, [32]byte) {
	t.Helper()
	bankHash := sha256.Sum256([]byte{byte(slot)})
	accounts := []*types.Account{{Address: "alice", Balance: uint256.NewInt(slot), Nonce: slot}}
	path, err := snapshot.WriteFull(dir, accounts, slot, bankHash)
	if err != nil {
		t.Fatalf("WriteFull failed: %v", err)
	}
	f, err := snapshot.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return path, f.Meta.Digest, bankHash
}

func fullRecord(t *testing.T, dir string, slot uint64) Record {
	t.Helper()
	path, digest, bankHash := writeFullSnapshot(t, dir, slot)
	return Record{
		Slot:         slot,
		BankHash:     bankHash,
		SnapshotPath: path,
		Kind:         snapshot.KindFull,
		Digest:       digest,
		RunID:        "run-1",
	}
}

func TestPutRejectsNonAdvancingSlot(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	if err := s.Put(fullRecord(t, dir, 100)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(fullRecord(t, dir, 100)); err == nil {
		t.Error("Expected rejection of duplicate slot")
	}
	if err := s.Put(fullRecord(t, dir, 50)); err == nil {
		t.Error("Expected rejection of earlier slot")
	}
	if err := s.Put(fullRecord(t, dir, 101)); err != nil {
		t.Errorf("Advancing slot should append: %v", err)
	}
}

func TestPutValidatesRecordShape(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(Record{Slot: 1, Kind: snapshot.KindFull}); err == nil {
		t.Error("Expected rejection of record without snapshot path")
	}
	if err := s.Put(Record{Slot: 1, Kind: snapshot.KindIncremental, SnapshotPath: "x.json"}); err == nil {
		t.Error("Expected rejection of incremental record without base path")
	}
}

func TestLatestSkipsUnusableRecords(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	good := fullRecord(t, dir, 10)
	if err := s.Put(good); err != nil {
		t.Fatal(err)
	}

	// Later record whose snapshot file disappears before restart.
	missing := fullRecord(t, dir, 20)
	if err := s.Put(missing); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(missing.SnapshotPath); err != nil {
		t.Fatal(err)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Slot != 10 {
		t.Fatalf("Expected fallback to slot 10, got %+v", latest)
	}
}

func TestLatestSkipsDriftedDigest(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	if err := s.Put(fullRecord(t, dir, 10)); err != nil {
		t.Fatal(err)
	}
	drifted := fullRecord(t, dir, 20)
	drifted.Digest = "0000"
	if err := s.Put(drifted); err != nil {
		t.Fatal(err)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Slot != 10 {
		t.Fatalf("Expected drifted record skipped, got %+v", latest)
	}
}

func TestLatestEmptyStore(t *testing.T) {
	s := openTestStore(t)
	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil record from empty store, got %+v", latest)
	}
}

func TestLatestFullIgnoresIncrementals(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	base := fullRecord(t, dir, 10)
	if err := s.Put(base); err != nil {
		t.Fatal(err)
	}

	incrHash := sha256.Sum256([]byte("incr"))
	incrAccounts := []*types.Account{{Address: "bob", Balance: uint256.NewInt(7), Nonce: 1}}
	incrPath, err := snapshot.WriteIncremental(dir, incrAccounts, 20, 10, incrHash)
	if err != nil {
		t.Fatal(err)
	}
	incrFile, err := snapshot.Read(incrPath)
	if err != nil {
		t.Fatal(err)
	}
	incr := Record{
		Slot:         20,
		BankHash:     incrHash,
		SnapshotPath: incrPath,
		Kind:         snapshot.KindIncremental,
		BaseSlot:     10,
		BasePath:     base.SnapshotPath,
		Digest:       incrFile.Meta.Digest,
		RunID:        "run-1",
	}
	if err := s.Put(incr); err != nil {
		t.Fatal(err)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Slot != 20 {
		t.Fatalf("Latest should be the incremental at 20, got %+v", latest)
	}

	latestFull, err := s.LatestFull()
	if err != nil {
		t.Fatal(err)
	}
	if latestFull == nil || latestFull.Slot != 10 {
		t.Fatalf("LatestFull should be the full at 10, got %+v", latestFull)
	}

	// Restoring through the incremental collapses onto its base.
	state, err := LoadState(latest)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state.Meta.Slot != 20 {
		t.Errorf("Expected collapsed state at slot 20, got %d", state.Meta.Slot)
	}
	byAddr := map[string]bool{}
	for _, acc := range state.Accounts {
		byAddr[acc.Address] = true
	}
	if !byAddr["alice"] || !byAddr["bob"] {
		t.Errorf("Collapsed state missing accounts: %v", byAddr)
	}
}

func TestAllReturnsRecordsInSlotOrder(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	for _, slot := range []uint64{5, 10, 15} {
		if err := s.Put(fullRecord(t, dir, slot)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(all))
	}
	for i, want := range []uint64{5, 10, 15} {
		if all[i].Slot != want {
			t.Errorf("Record %d: expected slot %d, got %d", i, want, all[i].Slot)
		}
	}
}
