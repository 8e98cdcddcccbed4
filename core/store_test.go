package core

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func openTestStore(t *testing.T, dir string, snapshotInterval int) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s, err := OpenStore(StoreConfig{Dir: dir, SnapshotInterval: snapshotInterval, Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestStoreUpdateAndGet(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, 0)
	defer s.Close()

	pub, _ := genKey(t)
	box := &PolyBox{Prop: pub, NonceVal: 1, Value: 100}
	v1 := H([]byte("v1"))
	if err := s.Update(v1, nil, map[Hash][]byte{box.ID(): box.Encode()}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok, err := s.Get(box.ID())
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != string(box.Encode()) {
		t.Fatalf("get returned different bytes than stored")
	}

	last, ok := s.LastVersionID()
	if !ok || last != v1 {
		t.Fatalf("expected last version %x, got %x (ok=%v)", v1, last, ok)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	pub, _ := genKey(t)
	box := &PolyBox{Prop: pub, NonceVal: 1, Value: 100}
	v1 := H([]byte("v1"))

	s := openTestStore(t, dir, 0)
	if err := s.Update(v1, nil, map[Hash][]byte{box.ID(): box.Encode()}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestStore(t, dir, 0)
	defer reopened.Close()
	_, ok, err := reopened.Get(box.ID())
	if err != nil || !ok {
		t.Fatalf("expected box to survive reopen: ok=%v err=%v", ok, err)
	}
	last, ok := reopened.LastVersionID()
	if !ok || last != v1 {
		t.Fatalf("expected reopened store to recover last version")
	}
}

func TestStoreSnapshotRecovery(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, 2)
	pub, _ := genKey(t)

	for i := uint64(1); i <= 3; i++ {
		box := &PolyBox{Prop: pub, NonceVal: i, Value: 100}
		if err := s.Update(H(u64be(i)), nil, map[Hash][]byte{box.ID(): box.Encode()}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := filepath.Glob(filepath.Join(dir, "snapshot-*.json"))
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected at least one snapshot file, got %v (err=%v)", entries, err)
	}

	reopened := openTestStore(t, dir, 2)
	defer reopened.Close()
	box3 := &PolyBox{Prop: pub, NonceVal: 3, Value: 100}
	if _, ok, err := reopened.Get(box3.ID()); err != nil || !ok {
		t.Fatalf("expected box from version 3 to survive snapshot+WAL replay: ok=%v err=%v", ok, err)
	}
}

func TestStoreRollbackInvertsUpdate(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, 0)
	defer s.Close()
	pub, _ := genKey(t)

	box1 := &PolyBox{Prop: pub, NonceVal: 1, Value: 100}
	v1 := H([]byte("v1"))
	if err := s.Update(v1, nil, map[Hash][]byte{box1.ID(): box1.Encode()}); err != nil {
		t.Fatalf("update 1: %v", err)
	}

	box2 := &PolyBox{Prop: pub, NonceVal: 2, Value: 50}
	v2 := H([]byte("v2"))
	if err := s.Update(v2, []Hash{box1.ID()}, map[Hash][]byte{box2.ID(): box2.Encode()}); err != nil {
		t.Fatalf("update 2: %v", err)
	}

	if _, ok, _ := s.Get(box1.ID()); ok {
		t.Fatalf("box1 should be spent after update 2")
	}

	if err := s.Rollback(v1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, ok, _ := s.Get(box1.ID()); !ok {
		t.Fatalf("box1 should be restored after rollback to v1")
	}
	if _, ok, _ := s.Get(box2.ID()); ok {
		t.Fatalf("box2 should not exist after rollback to v1")
	}
	last, ok := s.LastVersionID()
	if !ok || last != v1 {
		t.Fatalf("expected last version to be v1 after rollback")
	}
}

func TestStoreRollbackUnknownVersionFails(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, 0)
	defer s.Close()
	if err := s.Rollback(H([]byte("never existed"))); err == nil {
		t.Fatalf("expected rollback to an unknown version to fail")
	}
}
