package segment

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Slotted page layout
// ───────────────────────────────────────────────────────────────────────────
//
// Header (16 bytes, little-endian):
//   [0:4]   page size      (uint32)
//   [4:6]   slot count     (uint16)
//   [6:8]   first free slot (uint16, advisory; recomputed on allocate/erase)
//   [8:12]  data_start     (uint32)
//   [12:16] free_space     (uint32)
//
// Slot directory grows upward from the header, 8 bytes per slot, each
// bit-packed (T:8, S:8, offset:24, length:24). Record heap grows downward
// from page_end. A slot with length 0 is free (available for reuse).

const (
	headerSize = 16
	slotSize   = 8
	tidSize    = 8 // wire size of a forward/back-pointer TID

	slotTOnPage  = 0xFF // T == 0xFF: data lives on this page at offset.
	slotSTarget  = 0xFF // S == 0xFF: this slot is the target of a forward.
	slotTForward = 0x00 // T != 0xFF: slot is forwarded; any non-0xFF works.
)

// SlottedPage is a thin view over a page buffer (typically a
// buffer.FrameGuard's Data()). It owns no memory of its own.
type SlottedPage struct {
	buf []byte
}

// NewSlottedPage wraps an existing, already-initialized page buffer.
func NewSlottedPage(buf []byte) *SlottedPage { return &SlottedPage{buf: buf} }

// InitPage writes a fresh, empty slotted-page header into buf.
func InitPage(buf []byte) *SlottedPage {
	p := &SlottedPage{buf: buf}
	p.setPageSize(uint32(len(buf)))
	p.setSlotCount(0)
	p.setFirstFreeSlot(0)
	p.setDataStart(uint32(len(buf)))
	p.setFreeSpace(uint32(len(buf) - headerSize))
	return p
}

func (p *SlottedPage) pageSize() uint32      { return binary.LittleEndian.Uint32(p.buf[0:4]) }
func (p *SlottedPage) setPageSize(v uint32)  { binary.LittleEndian.PutUint32(p.buf[0:4], v) }
func (p *SlottedPage) SlotCount() uint16     { return binary.LittleEndian.Uint16(p.buf[4:6]) }
func (p *SlottedPage) setSlotCount(v uint16) { binary.LittleEndian.PutUint16(p.buf[4:6], v) }
func (p *SlottedPage) firstFreeSlot() uint16 { return binary.LittleEndian.Uint16(p.buf[6:8]) }
func (p *SlottedPage) setFirstFreeSlot(v uint16) {
	binary.LittleEndian.PutUint16(p.buf[6:8], v)
}
func (p *SlottedPage) dataStart() uint32     { return binary.LittleEndian.Uint32(p.buf[8:12]) }
func (p *SlottedPage) setDataStart(v uint32) { binary.LittleEndian.PutUint32(p.buf[8:12], v) }
func (p *SlottedPage) FreeSpace() uint32     { return binary.LittleEndian.Uint32(p.buf[12:16]) }
func (p *SlottedPage) setFreeSpace(v uint32) { binary.LittleEndian.PutUint32(p.buf[12:16], v) }

type slot struct {
	t, s          uint8
	offset, length uint32
}

func (p *SlottedPage) slotOffset(i uint16) int {
	return headerSize + int(i)*slotSize
}

func (p *SlottedPage) getSlot(i uint16) slot {
	off := p.slotOffset(i)
	v := binary.LittleEndian.Uint64(p.buf[off : off+8])
	return slot{
		t:      uint8(v >> 56),
		s:      uint8(v >> 48),
		offset: uint32(v>>24) & 0xFFFFFF,
		length: uint32(v) & 0xFFFFFF,
	}
}

func (p *SlottedPage) setSlot(i uint16, s slot) {
	off := p.slotOffset(i)
	v := uint64(s.t)<<56 | uint64(s.s)<<48 | uint64(s.offset&0xFFFFFF)<<24 | uint64(s.length&0xFFFFFF)
	binary.LittleEndian.PutUint64(p.buf[off:off+8], v)
}

func (p *SlottedPage) isFree(i uint16) bool {
	return p.getSlot(i).length == 0
}

// ContiguousFree returns the bytes between the end of the slot directory
// and data_start: the space AddNewEntry can actually carve a record from.
// FreeSpace additionally counts fragmented holes left by erased records,
// so it can exceed this.
func (p *SlottedPage) ContiguousFree() uint32 {
	used := uint32(headerSize) + uint32(p.SlotCount())*slotSize
	ds := p.dataStart()
	if ds < used {
		return 0
	}
	return ds - used
}

// CanFit reports whether a record of size bytes can actually be placed on
// this page, accounting for AddNewEntry's minimum reservation and a
// possible new slot-directory entry.
func (p *SlottedPage) CanFit(size uint32) bool {
	needed := size
	if needed < tidSize {
		needed = tidSize
	}
	if p.firstFreeSlotIndex() == p.SlotCount() {
		needed += slotSize
	}
	return p.ContiguousFree() >= needed
}

// firstFreeSlotIndex returns the lowest slot index available for reuse,
// scanning existing free (erased) slots before falling back to appending a
// brand new directory entry at SlotCount().
func (p *SlottedPage) firstFreeSlotIndex() uint16 {
	for i := uint16(0); i < p.SlotCount(); i++ {
		if p.isFree(i) {
			return i
		}
	}
	return p.SlotCount()
}

// AddNewEntry reserves size bytes on this page and returns the new slot's
// index within the page's directory. The heap reservation is never smaller
// than tidSize: converting the slot to a forward later writes an 8-byte
// TID at its offset, which must not reach into the neighboring record.
func (p *SlottedPage) AddNewEntry(size uint32) uint16 {
	idx := p.firstFreeSlotIndex()
	grew := idx == p.SlotCount()
	reserve := size
	if reserve < tidSize {
		reserve = tidSize
	}
	offset := p.dataStart() - reserve

	p.setSlot(idx, slot{t: slotTOnPage, s: 0, offset: offset, length: size})
	p.setDataStart(offset)

	consumed := reserve
	if grew {
		p.setSlotCount(idx + 1)
		consumed += slotSize
	}
	p.setFreeSpace(p.FreeSpace() - consumed)
	p.setFirstFreeSlot(p.firstFreeSlotIndex())
	return idx
}

// Payload returns the raw bytes backing slot i, exactly as stored (callers
// interpret forward/back-pointer framing themselves).
func (p *SlottedPage) Payload(i uint16) []byte {
	s := p.getSlot(i)
	return p.buf[s.offset : s.offset+s.length]
}

// Zero clears the bytes backing slot i without changing the slot entry.
func (p *SlottedPage) Zero(i uint16) {
	s := p.getSlot(i)
	for j := range p.buf[s.offset : s.offset+s.length] {
		p.buf[s.offset+uint32(j)] = 0
	}
}

// Erase marks slot i free: its directory entry reports zero length so it
// can be reused by a future AddNewEntry. A record sitting at data_start is
// reclaimed into the contiguous region; holes deeper in the heap only grow
// the free-space counter until the heap boundary reaches them.
func (p *SlottedPage) Erase(i uint16) {
	s := p.getSlot(i)
	p.Zero(i)
	if s.offset == p.dataStart() {
		p.setDataStart(p.dataStart() + s.length)
	}
	p.setSlot(i, slot{})
	p.setFreeSpace(p.FreeSpace() + s.length)
	if i < p.firstFreeSlot() {
		p.setFirstFreeSlot(i)
	}
}

// IsForward reports whether slot i's T byte marks it as forwarded.
func (p *SlottedPage) IsForward(i uint16) bool {
	return p.getSlot(i).t != slotTOnPage
}

// IsTarget reports whether slot i's S byte marks it as a forward target.
func (p *SlottedPage) IsTarget(i uint16) bool {
	return p.getSlot(i).s == slotSTarget
}

// Length returns slot i's recorded length.
func (p *SlottedPage) Length(i uint16) uint32 { return p.getSlot(i).length }

// Offset returns slot i's recorded heap offset.
func (p *SlottedPage) Offset(i uint16) uint32 { return p.getSlot(i).offset }

// MarkForward converts slot i into a forward: T is set to a non-0xFF
// sentinel and the 8-byte encoding of target (the forwarded TID) is
// written at the slot's offset. AddNewEntry's minimum reservation
// guarantees those 8 bytes fit inside the slot's own heap region even
// when the record itself was shorter; any reservation beyond the pointer
// is returned to the free-space counter.
func (p *SlottedPage) MarkForward(i uint16, target [8]byte) {
	s := p.getSlot(i)
	if s.length > tidSize {
		p.setFreeSpace(p.FreeSpace() + (s.length - tidSize))
	}
	s.t = slotTForward
	s.length = tidSize
	p.setSlot(i, s)
	copy(p.buf[s.offset:s.offset+tidSize], target[:])
}

// MarkTarget sets slot i's S byte to flag it as an incoming forward's
// target, without otherwise touching its content.
func (p *SlottedPage) MarkTarget(i uint16) {
	s := p.getSlot(i)
	s.s = slotSTarget
	p.setSlot(i, s)
}

// WriteAt copies data into the page's byte heap starting at offset.
func (p *SlottedPage) WriteAt(offset uint32, data []byte) {
	copy(p.buf[offset:offset+uint32(len(data))], data)
}

// ReadAt returns length bytes from the page's byte heap starting at offset.
func (p *SlottedPage) ReadAt(offset, length uint32) []byte {
	return p.buf[offset : offset+length]
}
