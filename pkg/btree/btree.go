package btree

import (
	"sort"
	"sync"

	"github.com/kotadb/kotadb/pkg/types"
)

// BPlusTree is a concurrent B+ tree keyed by types.Comparable, with values
// of type V stored only in leaves. UniqueKey controls whether Insert
// rejects a colliding key (as the primary path index requires) or
// silently overwrites it.
type BPlusTree[V any] struct {
	T         int
	Root      *Node[V]
	UniqueKey bool
	mu        sync.RWMutex
}

// NewTree creates a tree that allows duplicate keys (later inserts overwrite).
func NewTree[V any](t int) *BPlusTree[V] {
	return &BPlusTree[V]{
		T:    t,
		Root: NewNode[V](t, true),
	}
}

// NewUniqueTree creates a tree that rejects inserts of an already-present key.
func NewUniqueTree[V any](t int) *BPlusTree[V] {
	return &BPlusTree[V]{
		T:         t,
		Root:      NewNode[V](t, true),
		UniqueKey: true,
	}
}

// Insert adds key/value, honoring UniqueKey.
func (b *BPlusTree[V]) Insert(key types.Comparable, value V) error {
	return b.insertHelper(key, value, b.UniqueKey)
}

// Replace unconditionally sets key's value, inserting it if absent.
func (b *BPlusTree[V]) Replace(key types.Comparable, value V) error {
	return b.Upsert(key, func(oldValue V, exists bool) (V, error) {
		return value, nil
	})
}

// Upsert runs fn against the current value for key (if any) and stores its
// result. fn runs while the leaf latch is held, so the read-modify-write is atomic.
func (b *BPlusTree[V]) Upsert(key types.Comparable, fn func(oldValue V, exists bool) (newValue V, err error)) error {
	return b.upsertHelper(key, fn)
}

func (b *BPlusTree[V]) insertHelper(key types.Comparable, value V, uniqueKey bool) error {
	return b.Upsert(key, func(oldValue V, exists bool) (V, error) {
		if exists && uniqueKey {
			var zero V
			return zero, duplicateKeyError(key)
		}
		return value, nil
	})
}

func (b *BPlusTree[V]) upsertHelper(key types.Comparable, fn func(oldValue V, exists bool) (newValue V, err error)) error {
	b.mu.Lock()
	root := b.Root
	root.Lock()

	if root.IsFull() {
		newRoot := NewNode[V](b.T, false)
		newRoot.Children = append(newRoot.Children, root)
		newRoot.SplitChild(0)
		b.Root = newRoot
		b.mu.Unlock()

		newRoot.Lock()
		root.Unlock()

		return b.upsertTopDown(newRoot, key, fn)
	}

	b.mu.Unlock()
	return b.upsertTopDown(root, key, fn)
}

// upsertTopDown descends the tree, splitting full nodes preventively so the
// leaf it lands on is guaranteed not to need a split. curr must already be
// locked by the caller.
func (b *BPlusTree[V]) upsertTopDown(curr *Node[V], key types.Comparable, fn func(oldValue V, exists bool) (newValue V, err error)) error {
	defer func() {
		if curr != nil {
			curr.Unlock()
		}
	}()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}

		child := curr.Children[i]
		child.Lock()

		if child.IsFull() {
			curr.SplitChild(i)

			if key.Compare(curr.Keys[i]) >= 0 {
				child.Unlock()
				child = curr.Children[i+1]
				child.Lock()
			}
		}

		curr.Unlock()
		curr = child
	}

	return curr.UpsertNonFull(key, fn)
}

// Search walks the tree with read-lock coupling (crab latching) and reports
// the leaf holding key, if present.
func (b *BPlusTree[V]) Search(key types.Comparable) (*Node[V], bool) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()

		curr.RUnlock()
		curr = child
	}

	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if key.Compare(curr.Keys[j]) == 0 {
			return curr, true
		}
	}
	return nil, false
}

// Get returns the value for key, read-lock-coupled end to end.
func (b *BPlusTree[V]) Get(key types.Comparable) (V, bool) {
	var zero V
	if b == nil {
		return zero, false
	}
	b.mu.RLock()
	curr := b.Root
	if curr == nil {
		b.mu.RUnlock()
		return zero, false
	}
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && key.Compare(curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()

		curr.RUnlock()
		curr = child
	}

	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if key.Compare(curr.Keys[j]) == 0 {
			return curr.Values[j], true
		}
	}
	return zero, false
}

// Delete removes key, returning whether it was present.
func (b *BPlusTree[V]) Delete(key types.Comparable) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Root == nil {
		return false
	}
	return b.Root.Remove(key)
}

// FindLeafLowerBound returns, with its RLock held, the leaf that key routes
// to (or the leftmost leaf if key is nil) and the index of the first key >=
// key in it. That index may equal the leaf's key count, in which case the
// bound is the first key of the next leaf. The caller must RUnlock the
// returned node.
func (b *BPlusTree[V]) FindLeafLowerBound(key types.Comparable) (*Node[V], int) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		var i int
		if key == nil {
			i = 0
		} else {
			i = sort.Search(curr.N, func(i int) bool {
				return curr.Keys[i].Compare(key) >= 0
			})
		}

		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}

	var idx int
	if key == nil {
		idx = 0
	} else {
		idx = sort.Search(curr.N, func(i int) bool {
			return curr.Keys[i].Compare(key) >= 0
		})
	}

	return curr, idx
}

func (b *BPlusTree[V]) findLeafLowerBound(key types.Comparable) (*Node[V], int) {
	node, idx := b.FindLeafLowerBound(key)
	if node != nil {
		node.RUnlock()
	}
	return node, idx
}

// Entry is one key/value pair returned by Scan or ListAll.
type Entry[V any] struct {
	Key   types.Comparable
	Value V
}

// Scan walks the leaf chain starting at the smallest key >= lowerBound (or
// the leftmost leaf if lowerBound is nil), collecting entries for which
// matches returns true, and stops at the first non-matching key or once
// limit entries have been collected (limit <= 0 means unbounded). A
// path-prefix scan is implemented this way: the caller passes a matches
// func built from types.Path.HasPrefix.
func (b *BPlusTree[V]) Scan(lowerBound types.Comparable, matches func(key types.Comparable) bool, limit int) []Entry[V] {
	node, idx := b.FindLeafLowerBound(lowerBound)
	var results []Entry[V]

	for node != nil {
		for ; idx < node.N; idx++ {
			if matches != nil && !matches(node.Keys[idx]) {
				node.RUnlock()
				return results
			}
			results = append(results, Entry[V]{Key: node.Keys[idx], Value: node.Values[idx]})
			if limit > 0 && len(results) >= limit {
				node.RUnlock()
				return results
			}
		}

		next := node.Next
		if next != nil {
			next.RLock()
		}
		node.RUnlock()
		node = next
		idx = 0
	}

	return results
}

// ListAll returns up to limit entries in key order (limit <= 0 means unbounded).
func (b *BPlusTree[V]) ListAll(limit int) []Entry[V] {
	return b.Scan(nil, nil, limit)
}
