// Package btree implements the clustered, latch-coupled B-tree index:
// fixed-size keys and values, split propagation on insert, no rebalance on
// erase.
package btree

import "encoding/binary"

// Codec fixes a type's on-disk encoding, so the tree can lay out keys and
// values as flat byte arrays inside a page.
type Codec[T any] interface {
	Size() int
	Encode(v T, dst []byte)
	Decode(src []byte) T
}

// Ordering is the result of a comparison.
type Ordering int

const (
	Less Ordering = -1
	Equal Ordering = 0
	Greater Ordering = 1
)

// Cmp orders two keys.
type Cmp[K any] func(a, b K) Ordering

const (
	pageHeaderSize = 8
	pageIDSize     = 8
)

// nodeView is a thin layout over a page buffer: {is_leaf, count, keys[cap],
// children_or_values[cap(+1 for inner)]}. It owns no memory of its own.
type nodeView struct {
	buf []byte
}

func (n nodeView) isLeaf() bool      { return n.buf[0] != 0 }
func (n nodeView) setLeaf(v bool) {
	if v {
		n.buf[0] = 1
	} else {
		n.buf[0] = 0
	}
}
func (n nodeView) count() uint16     { return binary.LittleEndian.Uint16(n.buf[1:3]) }
func (n nodeView) setCount(v uint16) { binary.LittleEndian.PutUint16(n.buf[1:3], v) }

func (n nodeView) keyAt(i int, keySize int) []byte {
	off := pageHeaderSize + i*keySize
	return n.buf[off : off+keySize]
}

func (n nodeView) valuesOffset(cap, keySize int) int {
	return pageHeaderSize + cap*keySize
}

func (n nodeView) valueAt(i, cap, keySize, valSize int) []byte {
	off := n.valuesOffset(cap, keySize) + i*valSize
	return n.buf[off : off+valSize]
}

func (n nodeView) childAt(i, cap, keySize int) []byte {
	off := n.valuesOffset(cap, keySize) + i*pageIDSize
	return n.buf[off : off+pageIDSize]
}

func getPageID(b []byte) uint64      { return binary.LittleEndian.Uint64(b) }
func putPageID(b []byte, v uint64)   { binary.LittleEndian.PutUint64(b, v) }
