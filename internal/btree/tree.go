package btree

import (
	"sync"

	"github.com/franzigeiger/moderndbs/internal/buffer"
)

// Segment is the narrow slice of segment behaviour the tree needs: a
// dedicated page segment to allocate inner/leaf pages from, addressed
// through the shared buffer pool.
type Segment interface {
	Fix(pageNo uint64, exclusive bool) (*buffer.FrameGuard, error)
}

// Tree is a clustered, latch-coupled B-tree over fixed-size keys and
// values. Root management lives in the tree handle itself: root is a
// plain page number (0 meaning empty), guarded by rootMu rather than
// exposed as an owning field.
type Tree[K any, V any] struct {
	seg      Segment
	pageSize int
	keyCodec Codec[K]
	valCodec Codec[V]
	cmp      Cmp[K]

	rootMu sync.RWMutex
	root   uint64 // 0 means empty; page numbers are otherwise 1-based

	allocMu sync.Mutex
	nextPage uint64

	leafCap  int
	innerCap int
}

// New returns an empty tree backed by seg, whose pages are pageSize bytes,
// using keyCodec/valCodec to lay out K/V as flat bytes and cmp to order
// keys.
func New[K any, V any](seg Segment, pageSize int, keyCodec Codec[K], valCodec Codec[V], cmp Cmp[K]) *Tree[K, V] {
	ks := keyCodec.Size()
	leafCap := (pageSize - pageHeaderSize) / (ks + valCodec.Size())
	innerCap := (pageSize - pageHeaderSize - pageIDSize) / (ks + pageIDSize)
	return &Tree[K, V]{
		seg:      seg,
		pageSize: pageSize,
		keyCodec: keyCodec,
		valCodec: valCodec,
		cmp:      cmp,
		nextPage: 1,
		leafCap:  leafCap,
		innerCap: innerCap,
	}
}

func (t *Tree[K, V]) allocPage() uint64 {
	t.allocMu.Lock()
	defer t.allocMu.Unlock()
	p := t.nextPage
	t.nextPage++
	return p
}

func (t *Tree[K, V]) fixExclusive(page uint64) (*buffer.FrameGuard, nodeView) {
	g, err := t.seg.Fix(page, true)
	if err != nil {
		buffer.Invariant("btree: fix page %d exclusive: %v", page, err)
	}
	return g, nodeView{buf: g.Data()}
}

func (t *Tree[K, V]) fixShared(page uint64) (*buffer.FrameGuard, nodeView) {
	g, err := t.seg.Fix(page, false)
	if err != nil {
		buffer.Invariant("btree: fix page %d shared: %v", page, err)
	}
	return g, nodeView{buf: g.Data()}
}

func (t *Tree[K, V]) newLeaf() (uint64, *buffer.FrameGuard, nodeView) {
	page := t.allocPage()
	g, n := t.fixExclusive(page)
	n.setLeaf(true)
	n.setCount(0)
	return page, g, n
}

func (t *Tree[K, V]) newInner() (uint64, *buffer.FrameGuard, nodeView) {
	page := t.allocPage()
	g, n := t.fixExclusive(page)
	n.setLeaf(false)
	n.setCount(0)
	return page, g, n
}

// keyAt/valueAt/childAt below thinly wrap nodeView with this tree's codec
// sizes, so callers never repeat size arithmetic.

func (t *Tree[K, V]) keyAt(n nodeView, i int, leaf bool) K {
	return t.keyCodec.Decode(n.keyAt(i, t.keyCodec.Size()))
}

func (t *Tree[K, V]) setKeyAt(n nodeView, i int, k K) {
	t.keyCodec.Encode(k, n.keyAt(i, t.keyCodec.Size()))
}

func (t *Tree[K, V]) leafValueAt(n nodeView, i int) V {
	return t.valCodec.Decode(n.valueAt(i, t.leafCap, t.keyCodec.Size(), t.valCodec.Size()))
}

func (t *Tree[K, V]) setLeafValueAt(n nodeView, i int, v V) {
	t.valCodec.Encode(v, n.valueAt(i, t.leafCap, t.keyCodec.Size(), t.valCodec.Size()))
}

func (t *Tree[K, V]) innerChildAt(n nodeView, i int) uint64 {
	return getPageID(n.childAt(i, t.innerCap, t.keyCodec.Size()))
}

func (t *Tree[K, V]) setInnerChildAt(n nodeView, i int, child uint64) {
	putPageID(n.childAt(i, t.innerCap, t.keyCodec.Size()), child)
}

// findInsertionIndex returns the first index i in [0, count) with
// key(i) >= k, or count if no such index exists (binary search, the node
// is kept strictly sorted by cmp).
func (t *Tree[K, V]) findInsertionIndex(n nodeView, count int, k K) int {
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(t.keyAt(n, mid, false), k) == Less {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup latch-couples root-to-leaf under shared latches and returns the
// leaf's value for k, or found=false if k was never inserted.
func (t *Tree[K, V]) Lookup(k K) (v V, found bool) {
	t.rootMu.RLock()
	root := t.root
	if root == 0 {
		t.rootMu.RUnlock()
		return v, false
	}

	g, n := t.fixShared(root)
	t.rootMu.RUnlock()

	for {
		if n.isLeaf() {
			count := int(n.count())
			i := t.findInsertionIndex(n, count, k)
			if i < count && t.cmp(t.keyAt(n, i, true), k) == Equal {
				v = t.leafValueAt(n, i)
				found = true
			}
			g.Unfix(false)
			return v, found
		}
		count := int(n.count())
		i := t.findInsertionIndex(n, count, k)
		if i > count {
			i = count
		}
		child := t.innerChildAt(n, i)
		childG, childN := t.fixShared(child)
		g.Unfix(false)
		g, n = childG, childN
	}
}

// pathEntry records one exclusively-held page on an insert's root-to-leaf
// path, so split propagation can walk back up it.
type pathEntry struct {
	page  uint64
	guard *buffer.FrameGuard
	node  nodeView
}

// Insert places (k, v) in the tree, overwriting v if k already exists.
// The whole root-to-leaf path, including the root pointer itself, is
// held exclusively for the duration, the simple alternative to optimistic
// descent. Holding rootMu across the entire
// call (rather than just long enough to read root) serializes concurrent
// inserts that would otherwise both believe they own the root split: two
// inserts reading the same root, each splitting it, must not race to
// install two different new roots.
func (t *Tree[K, V]) Insert(k K, v V) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	if t.root == 0 {
		page, g, n := t.newLeaf()
		n.setCount(1)
		t.setKeyAt(n, 0, k)
		t.setLeafValueAt(n, 0, v)
		g.Unfix(true)
		t.root = page
		return
	}
	root := t.root

	var path []pathEntry
	page := root
	for {
		g, n := t.fixExclusive(page)
		path = append(path, pathEntry{page: page, guard: g, node: n})
		if n.isLeaf() {
			break
		}
		count := int(n.count())
		i := t.findInsertionIndex(n, count, k)
		if i > count {
			i = count
		}
		page = t.innerChildAt(n, i)
	}

	leaf := path[len(path)-1]
	count := int(leaf.node.count())
	i := t.findInsertionIndex(leaf.node, count, k)
	if count < t.leafCap || (i < count && t.cmp(t.keyAt(leaf.node, i, true), k) == Equal) {
		// Room to insert, or an overwrite of an existing key.
		t.insertIntoLeaf(leaf.node, k, v)
		t.unfixPath(path)
		return
	}

	// Leaf is full: split it first, insert into whichever half now owns k,
	// and propagate the separator upward.
	sepKey, rightPage := t.splitLeaf(leaf.page, leaf.node)
	if t.cmp(k, sepKey) == Less {
		t.insertIntoLeaf(leaf.node, k, v)
	} else {
		rg, rn := t.fixExclusive(rightPage)
		t.insertIntoLeaf(rn, k, v)
		rg.Unfix(true)
	}
	t.unfixOne(leaf)
	path = path[:len(path)-1]
	t.propagateSplit(path, sepKey, rightPage)
}

func (t *Tree[K, V]) unfixPath(path []pathEntry) {
	for i := len(path) - 1; i >= 0; i-- {
		t.unfixOne(path[i])
	}
}

func (t *Tree[K, V]) unfixOne(e pathEntry) { e.guard.Unfix(true) }

// insertIntoLeaf inserts (k, v) into n in sorted order, overwriting the
// value if k is already present. Unless overwriting, n must have room.
func (t *Tree[K, V]) insertIntoLeaf(n nodeView, k K, v V) {
	count := int(n.count())
	i := t.findInsertionIndex(n, count, k)
	if i < count && t.cmp(t.keyAt(n, i, true), k) == Equal {
		t.setLeafValueAt(n, i, v)
		return
	}
	for j := count; j > i; j-- {
		t.setKeyAt(n, j, t.keyAt(n, j-1, true))
		t.setLeafValueAt(n, j, t.leafValueAt(n, j-1))
	}
	t.setKeyAt(n, i, k)
	t.setLeafValueAt(n, i, v)
	n.setCount(uint16(count + 1))
}

// splitLeaf splits an overflowed leaf in half, writing the upper half into
// a freshly allocated right sibling, and returns the separator key (the
// left half's last key, so a key equal to the separator descends left,
// where it lives) and the right sibling's page number.
func (t *Tree[K, V]) splitLeaf(leftPage uint64, left nodeView) (K, uint64) {
	count := int(left.count())
	mid := count / 2

	rightPage, rg, right := t.newLeaf()
	for j := mid; j < count; j++ {
		t.setKeyAt(right, j-mid, t.keyAt(left, j, true))
		t.setLeafValueAt(right, j-mid, t.leafValueAt(left, j))
	}
	right.setCount(uint16(count - mid))
	left.setCount(uint16(mid))
	rg.Unfix(true)

	return t.keyAt(left, mid-1, true), rightPage
}

// propagateSplit inserts (sepKey -> rightPage) into path's innermost
// remaining ancestor, splitting it in turn if it overflows, up to and
// including allocating a new root.
func (t *Tree[K, V]) propagateSplit(path []pathEntry, sepKey K, rightPage uint64) {
	if len(path) == 0 {
		// Root split: allocate a new inner root over the old root and the
		// new right sibling. Caller (Insert) holds rootMu for the whole
		// call, so this read-modify-write of t.root is race-free.
		oldRoot := t.root
		newRootPage, g, n := t.newInner()
		n.setCount(1)
		t.setKeyAt(n, 0, sepKey)
		t.setInnerChildAt(n, 0, oldRoot)
		t.setInnerChildAt(n, 1, rightPage)
		g.Unfix(true)
		t.root = newRootPage
		return
	}

	parent := path[len(path)-1]
	n := parent.node
	if int(n.count()) < t.innerCap {
		t.insertIntoInner(n, sepKey, rightPage)
		t.unfixPath(path)
		return
	}

	// Parent is full: split it first, then place the separator in whichever
	// half now owns it, and keep propagating.
	sepKey2, rightPage2 := t.splitInner(parent.page, n)
	if t.cmp(sepKey, sepKey2) == Less {
		t.insertIntoInner(n, sepKey, rightPage)
	} else {
		rg, rn := t.fixExclusive(rightPage2)
		t.insertIntoInner(rn, sepKey, rightPage)
		rg.Unfix(true)
	}
	t.unfixOne(parent)
	t.propagateSplit(path[:len(path)-1], sepKey2, rightPage2)
}

// insertIntoInner inserts (sepKey -> rightPage) into inner node n, shifting
// keys and children right of the insertion point. n must have room.
func (t *Tree[K, V]) insertIntoInner(n nodeView, sepKey K, rightPage uint64) {
	count := int(n.count())
	i := t.findInsertionIndex(n, count, sepKey)
	for j := count; j > i; j-- {
		t.setKeyAt(n, j, t.keyAt(n, j-1, false))
		t.setInnerChildAt(n, j+1, t.innerChildAt(n, j))
	}
	t.setKeyAt(n, i, sepKey)
	t.setInnerChildAt(n, i+1, rightPage)
	n.setCount(uint16(count + 1))
}

// splitInner splits an overflowed inner node in half. The median key moves
// up (is not duplicated into either half) per standard B-tree split.
func (t *Tree[K, V]) splitInner(leftPage uint64, left nodeView) (K, uint64) {
	count := int(left.count())
	mid := count / 2
	sep := t.keyAt(left, mid, false)

	rightPage, rg, right := t.newInner()
	for j := mid + 1; j < count; j++ {
		t.setKeyAt(right, j-mid-1, t.keyAt(left, j, false))
	}
	for j := mid + 1; j <= count; j++ {
		t.setInnerChildAt(right, j-mid-1, t.innerChildAt(left, j))
	}
	right.setCount(uint16(count - mid - 1))
	left.setCount(uint16(mid))
	rg.Unfix(true)

	return sep, rightPage
}

// Erase removes k's entry from its leaf in place. No merge or
// redistribution is performed; underfull nodes are tolerated and lookups
// remain correct.
func (t *Tree[K, V]) Erase(k K) {
	t.rootMu.RLock()
	root := t.root
	if root == 0 {
		t.rootMu.RUnlock()
		return
	}
	g, n := t.fixExclusive(root)
	t.rootMu.RUnlock()

	for !n.isLeaf() {
		count := int(n.count())
		i := t.findInsertionIndex(n, count, k)
		if i > count {
			i = count
		}
		child := t.innerChildAt(n, i)
		childG, childN := t.fixExclusive(child)
		g.Unfix(false)
		g, n = childG, childN
	}

	count := int(n.count())
	i := t.findInsertionIndex(n, count, k)
	if i < count && t.cmp(t.keyAt(n, i, true), k) == Equal {
		for j := i; j < count-1; j++ {
			t.setKeyAt(n, j, t.keyAt(n, j+1, true))
			t.setLeafValueAt(n, j, t.leafValueAt(n, j+1))
		}
		n.setCount(uint16(count - 1))
		g.Unfix(true)
		return
	}
	g.Unfix(false)
}

// Depth returns the number of levels from root to leaf inclusive, for
// tests asserting every leaf is at equal depth. Returns 0 for an empty
// tree.
func (t *Tree[K, V]) Depth() int {
	t.rootMu.RLock()
	root := t.root
	t.rootMu.RUnlock()
	if root == 0 {
		return 0
	}
	depth := 0
	page := root
	for {
		g, n := t.fixShared(page)
		depth++
		if n.isLeaf() {
			g.Unfix(false)
			return depth
		}
		child := t.innerChildAt(n, 0)
		g.Unfix(false)
		page = child
	}
}
