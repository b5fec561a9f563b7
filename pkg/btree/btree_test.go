package btree

import (
	"sync"
	"testing"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
	"github.com/kotadb/kotadb/pkg/types"
)

func TestBPlusTree_InsertAndGet(t *testing.T) {
	tree := NewTree[int64](3)

	for i := 0; i < 100; i++ {
		if err := tree.Insert(types.IntKey(i), int64(i*10)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := 0; i < 100; i++ {
		v, ok := tree.Get(types.IntKey(i))
		if !ok {
			t.Fatalf("Get(%d): not found", i)
		}
		if v != int64(i*10) {
			t.Fatalf("Get(%d) = %d, want %d", i, v, i*10)
		}
	}

	if _, ok := tree.Get(types.IntKey(1000)); ok {
		t.Fatal("expected Get of absent key to report false")
	}
}

func TestUniqueTree_RejectsDuplicateInsert(t *testing.T) {
	tree := NewUniqueTree[int64](3)

	if err := tree.Insert(types.IntKey(1), 100); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := tree.Insert(types.IntKey(1), 200)
	if !kerrors.Is(err, kerrors.AlreadyExist) {
		t.Fatalf("expected AlreadyExist inserting duplicate key, got %v", err)
	}

	v, _ := tree.Get(types.IntKey(1))
	if v != 100 {
		t.Fatalf("rejected insert must not overwrite, got %d", v)
	}
}

func TestTree_AllowsDuplicateOverwrite(t *testing.T) {
	tree := NewTree[int64](3)

	if err := tree.Insert(types.IntKey(1), 100); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tree.Insert(types.IntKey(1), 200); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	v, _ := tree.Get(types.IntKey(1))
	if v != 200 {
		t.Fatalf("expected overwrite to 200, got %d", v)
	}
}

func TestBPlusTree_Replace(t *testing.T) {
	tree := NewUniqueTree[int64](3)

	if err := tree.Replace(types.IntKey(5), 50); err != nil {
		t.Fatalf("Replace on absent key: %v", err)
	}
	if err := tree.Replace(types.IntKey(5), 51); err != nil {
		t.Fatalf("Replace on present key: %v", err)
	}

	v, _ := tree.Get(types.IntKey(5))
	if v != 51 {
		t.Fatalf("Replace should overwrite even on a unique tree, got %d", v)
	}
}

func TestBPlusTree_Delete(t *testing.T) {
	tree := NewUniqueTree[int64](3)
	for i := 0; i < 50; i++ {
		tree.Insert(types.IntKey(i), int64(i))
	}

	for i := 0; i < 50; i += 2 {
		if !tree.Delete(types.IntKey(i)) {
			t.Fatalf("Delete(%d): expected true", i)
		}
	}

	for i := 0; i < 50; i++ {
		_, ok := tree.Get(types.IntKey(i))
		if i%2 == 0 && ok {
			t.Fatalf("key %d should have been deleted", i)
		}
		if i%2 == 1 && !ok {
			t.Fatalf("key %d should still be present", i)
		}
	}
}

func TestBPlusTree_ConcurrentInserts(t *testing.T) {
	tree := NewUniqueTree[int64](4)
	var wg sync.WaitGroup

	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			if err := tree.Insert(types.IntKey(k), int64(k)); err != nil {
				t.Errorf("concurrent insert %d: %v", k, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, ok := tree.Get(types.IntKey(i))
		if !ok || v != int64(i) {
			t.Fatalf("after concurrent inserts, Get(%d) = (%d, %v)", i, v, ok)
		}
	}
}

func TestBPlusTree_Upsert_ReadModifyWrite(t *testing.T) {
	tree := NewUniqueTree[int64](3)

	accumulate := func(oldValue int64, exists bool) (int64, error) {
		if !exists {
			return 1, nil
		}
		return oldValue + 1, nil
	}

	for i := 0; i < 10; i++ {
		if err := tree.Upsert(types.IntKey(1), accumulate); err != nil {
			t.Fatalf("Upsert iteration %d: %v", i, err)
		}
	}

	v, _ := tree.Get(types.IntKey(1))
	if v != 10 {
		t.Fatalf("expected accumulated value 10, got %d", v)
	}
}
