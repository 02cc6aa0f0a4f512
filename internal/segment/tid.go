// Package segment implements the L2 segments that sit directly on the
// buffer pool: the slotted-page (SP) segment, the free-space index (FSI)
// segment, and the schema segment.
package segment

import "encoding/binary"

// TID is a stable tuple identifier: the high 48 bits are the page number
// within the SP segment, the low 16 bits are the slot number on that page.
// TIDs never change across resize or forward.
type TID uint64

const slotBits = 16

// NewTID packs a page number and slot number into a TID.
func NewTID(pageNo uint64, slotNo uint16) TID {
	return TID(pageNo<<slotBits | uint64(slotNo))
}

// PageNo returns the page number component of the TID.
func (t TID) PageNo() uint64 { return uint64(t) >> slotBits }

// SlotNo returns the slot number component of the TID.
func (t TID) SlotNo() uint16 { return uint16(uint64(t)) }

// Bytes encodes the TID as 8 little-endian bytes, the wire form used for
// forward pointers and back-pointers on a slotted page.
func (t TID) Bytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(t))
	return b
}

// TIDFromBytes decodes the 8 little-endian bytes written by Bytes.
func TIDFromBytes(b []byte) TID {
	return TID(binary.LittleEndian.Uint64(b))
}
