package storage

import "testing"

func TestCheckpointManager_CreateAndLoadLatest(t *testing.T) {
	cm := NewCheckpointManager(t.TempDir())

	entries := []manifestEntry{
		{Path: "/notes/a.md", DocID: [16]byte{1}, HeadPage: 3},
		{Path: "/notes/b.md", DocID: [16]byte{2}, HeadPage: 7},
	}
	if err := cm.Create(entries, 42); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, lsn, ok, err := cm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if !ok {
		t.Fatal("expected a checkpoint to be found")
	}
	if lsn != 42 {
		t.Fatalf("got lsn %d, want 42", lsn)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d entries, want 2", len(loaded))
	}
}

func TestCheckpointManager_LoadLatestKeepsOnlyNewest(t *testing.T) {
	dir := t.TempDir()
	cm := NewCheckpointManager(dir)

	if err := cm.Create([]manifestEntry{{Path: "/a", HeadPage: 1}}, 1); err != nil {
		t.Fatalf("Create lsn=1: %v", err)
	}
	if err := cm.Create([]manifestEntry{{Path: "/b", HeadPage: 2}}, 2); err != nil {
		t.Fatalf("Create lsn=2: %v", err)
	}

	loaded, lsn, ok, err := cm.LoadLatest()
	if err != nil || !ok {
		t.Fatalf("LoadLatest: ok=%v err=%v", ok, err)
	}
	if lsn != 2 {
		t.Fatalf("got lsn %d, want 2 (newest)", lsn)
	}
	if len(loaded) != 1 || loaded[0].Path != "/b" {
		t.Fatalf("got %+v, want single /b entry", loaded)
	}
}

func TestCheckpointManager_LoadLatestEmptyDirIsNotAnError(t *testing.T) {
	cm := NewCheckpointManager(t.TempDir())
	_, _, ok, err := cm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest on empty dir: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on empty dir")
	}
}
