package btree

import (
	"math/rand"
	"testing"

	"github.com/franzigeiger/moderndbs/internal/buffer"
	"github.com/franzigeiger/moderndbs/internal/segment"
)

const testPageSize = 256

func newTestTree(t *testing.T) *Tree[uint64, uint64] {
	t.Helper()
	pool := buffer.New(testPageSize, 4096, buffer.NewMemSegmentFiles())
	seg := &segment.Base{ID: 0, Pool: pool}
	return New[uint64, uint64](seg, testPageSize, Uint64Codec{}, Uint64Codec{}, CmpUint64)
}

func TestLookupMissingOnEmptyTree(t *testing.T) {
	tree := newTestTree(t)
	if _, found := tree.Lookup(42); found {
		t.Fatalf("expected no value in an empty tree")
	}
}

func TestInsertLookupOverwrite(t *testing.T) {
	tree := newTestTree(t)
	tree.Insert(1, 100)
	tree.Insert(1, 200)
	v, found := tree.Lookup(1)
	if !found || v != 200 {
		t.Fatalf("Lookup(1) = (%d, %v), want (200, true)", v, found)
	}
}

// TestInsertLookupRandomOrder inserts (i, 2*i) for i = 0..10*leafCap in
// random order; lookup of each i must return 2*i.
func TestInsertLookupRandomOrder(t *testing.T) {
	tree := newTestTree(t)
	n := 10 * tree.leafCap
	if n < 100 {
		n = 100
	}

	order := rand.New(rand.NewSource(1)).Perm(n)
	for _, i := range order {
		tree.Insert(uint64(i), uint64(2*i))
	}

	for i := 0; i < n; i++ {
		v, found := tree.Lookup(uint64(i))
		if !found {
			t.Fatalf("Lookup(%d): not found", i)
		}
		if v != uint64(2*i) {
			t.Fatalf("Lookup(%d) = %d, want %d", i, v, 2*i)
		}
	}

	if _, found := tree.Lookup(uint64(n) + 1000); found {
		t.Fatalf("expected key never inserted to be absent")
	}
}

func TestEraseRemovesKeyButToleratesUnderfill(t *testing.T) {
	tree := newTestTree(t)
	for i := uint64(0); i < 50; i++ {
		tree.Insert(i, i*i)
	}
	tree.Erase(25)
	if _, found := tree.Lookup(25); found {
		t.Fatalf("expected key 25 to be gone after Erase")
	}
	for _, i := range []uint64{0, 24, 26, 49} {
		if v, found := tree.Lookup(i); !found || v != i*i {
			t.Fatalf("Lookup(%d) = (%d, %v), want (%d, true)", i, v, found, i*i)
		}
	}
}

func TestSplitsKeepLeavesAtEqualDepth(t *testing.T) {
	tree := newTestTree(t)
	before := tree.Depth()
	if before != 0 {
		t.Fatalf("empty tree depth = %d, want 0", before)
	}

	for i := uint64(0); i < uint64(20*tree.leafCap); i++ {
		tree.Insert(i, i)
	}
	// Depth follows child 0 at every level, so this measures the path to
	// the leftmost leaf only; the other paths share it because splits always
	// add a sibling at the same level and only a root split adds a level.
	if d := tree.Depth(); d < 2 {
		t.Fatalf("expected tree to have split into multiple levels, depth = %d", d)
	}
}

func TestCharKeyedTree(t *testing.T) {
	pool := buffer.New(testPageSize, 4096, buffer.NewMemSegmentFiles())
	seg := &segment.Base{ID: 0, Pool: pool}
	tree := New[string, uint64](seg, testPageSize, Char16Codec{}, Uint64Codec{}, CmpChar16)

	tree.Insert("banana", 2)
	tree.Insert("apple", 1)
	tree.Insert("cherry", 3)

	for k, want := range map[string]uint64{"apple": 1, "banana": 2, "cherry": 3} {
		v, found := tree.Lookup(k)
		if !found || v != want {
			t.Fatalf("Lookup(%q) = (%d, %v), want (%d, true)", k, v, found, want)
		}
	}
}
