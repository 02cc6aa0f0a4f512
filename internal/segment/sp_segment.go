package segment

import (
	"github.com/franzigeiger/moderndbs/internal/buffer"
)

// SPSegment is the slotted-page segment: variable-length record storage
// with TID-stable forwarding on resize.
type SPSegment struct {
	Base
	pageSize uint32
	schema   *SchemaSegment
	fsi      *FSISegment
}

// NewSPSegment returns an SP segment backed by pool under segmentID,
// consulting fsi for allocation and schema for its page-count allocator.
func NewSPSegment(segmentID uint16, pool *buffer.Pool, pageSize uint32, schema *SchemaSegment, fsi *FSISegment) *SPSegment {
	schema.SetSPSegment(segmentID)
	return &SPSegment{
		Base:     Base{ID: segmentID, Pool: pool},
		pageSize: pageSize,
		schema:   schema,
		fsi:      fsi,
	}
}

// Allocate reserves size bytes for a new record and returns its TID.
func (s *SPSegment) Allocate(size uint32) (TID, error) {
	maxPage := s.schema.SPPageCount()
	page, found, err := s.fsi.Find(size+slotSize, maxPage)
	if err != nil {
		return 0, err
	}

	if found {
		g, err := s.Fix(page, true)
		if err != nil {
			return 0, err
		}
		sp := NewSlottedPage(g.Data())
		if sp.CanFit(size) {
			idx := sp.AddNewEntry(size)
			free := sp.FreeSpace()
			g.Unfix(true)
			if err := s.fsi.Update(page, free); err != nil {
				return 0, err
			}
			return NewTID(page, idx), nil
		}
		// The free-space counter behind the FSI bucket includes fragmented
		// holes this page can't actually serve contiguously; fall through to
		// a fresh page.
		g.Unfix(false)
	}

	page = s.schema.IncrementSPPageCount() - 1
	g, err := s.Fix(page, true)
	if err != nil {
		return 0, err
	}
	sp := InitPage(g.Data())
	idx := sp.AddNewEntry(size)
	free := sp.FreeSpace()
	g.Unfix(true)
	if err := s.fsi.Update(page, free); err != nil {
		return 0, err
	}
	return NewTID(page, idx), nil
}

// Read copies up to len(dst) bytes of tid's record into dst and returns
// the record's full length, regardless of how much was copied.
func (s *SPSegment) Read(tid TID, dst []byte) (uint32, error) {
	g, err := s.Fix(tid.PageNo(), false)
	if err != nil {
		return 0, err
	}
	sp := NewSlottedPage(g.Data())
	slotNo := tid.SlotNo()

	if sp.IsForward(slotNo) {
		fwd := TIDFromBytes(sp.Payload(slotNo))
		g.Unfix(false)
		return s.Read(fwd, dst)
	}

	length := sp.Length(slotNo)
	offset := sp.Offset(slotNo)
	payload := sp.ReadAt(offset, length)
	if sp.IsTarget(slotNo) {
		payload = payload[8:]
	}
	copy(dst, payload)
	g.Unfix(false)
	return uint32(len(payload)), nil
}

// Write ensures tid's slot holds at least len(src) bytes, then copies src
// into it.
func (s *SPSegment) Write(tid TID, src []byte) error {
	if err := s.Resize(tid, uint32(len(src))); err != nil {
		return err
	}

	g, err := s.Fix(tid.PageNo(), true)
	if err != nil {
		return err
	}
	sp := NewSlottedPage(g.Data())
	slotNo := tid.SlotNo()

	if sp.IsForward(slotNo) {
		fwd := TIDFromBytes(sp.Payload(slotNo))
		g.Unfix(false)
		return s.writeResolved(fwd, src)
	}
	return s.writeResolvedOnPage(g, sp, slotNo, src)
}

func (s *SPSegment) writeResolved(tid TID, src []byte) error {
	g, err := s.Fix(tid.PageNo(), true)
	if err != nil {
		return err
	}
	sp := NewSlottedPage(g.Data())
	return s.writeResolvedOnPage(g, sp, tid.SlotNo(), src)
}

func (s *SPSegment) writeResolvedOnPage(g *buffer.FrameGuard, sp *SlottedPage, slotNo uint16, src []byte) error {
	offset := sp.Offset(slotNo)
	length := sp.Length(slotNo)
	if sp.IsTarget(slotNo) {
		if length < uint32(len(src))+8 {
			g.Unfix(false)
			buffer.Invariant("forward target slot too small: have %d, want %d", length, len(src)+8)
		}
		sp.WriteAt(offset+8, src)
	} else {
		if length < uint32(len(src)) {
			g.Unfix(false)
			buffer.Invariant("slot too small: have %d, want %d", length, len(src))
		}
		sp.WriteAt(offset, src)
	}
	g.Unfix(true)
	return nil
}

// Resize ensures tid's slot can hold newSize bytes, forwarding the record
// to a new, larger slot if necessary.
func (s *SPSegment) Resize(tid TID, newSize uint32) error {
	g, err := s.Fix(tid.PageNo(), true)
	if err != nil {
		return err
	}
	sp := NewSlottedPage(g.Data())
	slotNo := tid.SlotNo()

	if sp.IsForward(slotNo) {
		fwd := TIDFromBytes(sp.Payload(slotNo))
		g.Unfix(false)
		return s.resizeForwarded(fwd, newSize)
	}

	length := sp.Length(slotNo)
	if newSize <= length {
		// Case A: in place, zero the now-unused tail.
		offset := sp.Offset(slotNo)
		tail := sp.ReadAt(offset+newSize, length-newSize)
		for i := range tail {
			tail[i] = 0
		}
		g.Unfix(true)
		return nil
	}

	// Case B: must forward. Release this page before allocating, since the
	// new slot may land back on this very page.
	g.Unfix(false)

	newTID, err := s.Allocate(newSize + 8)
	if err != nil {
		return err
	}

	g, err = s.Fix(tid.PageNo(), true)
	if err != nil {
		return err
	}
	sp = NewSlottedPage(g.Data())
	sp.MarkForward(slotNo, newTID.Bytes())
	free := sp.FreeSpace()
	g.Unfix(true)
	if err := s.fsi.Update(tid.PageNo(), free); err != nil {
		return err
	}

	g2, err := s.Fix(newTID.PageNo(), true)
	if err != nil {
		return err
	}
	sp2 := NewSlottedPage(g2.Data())
	sp2.MarkTarget(newTID.SlotNo())
	back := tid.Bytes()
	sp2.WriteAt(sp2.Offset(newTID.SlotNo()), back[:])
	g2.Unfix(true)
	return nil
}

func (s *SPSegment) resizeForwarded(target TID, newSize uint32) error {
	g, err := s.Fix(target.PageNo(), true)
	if err != nil {
		return err
	}
	sp := NewSlottedPage(g.Data())
	slotNo := target.SlotNo()
	targetLen := sp.Length(slotNo)
	capacity := targetLen - 8

	if newSize > capacity {
		// A second level of forwarding is not permitted.
		g.Unfix(false)
		buffer.Invariant("resize beyond an already-forwarded slot's capacity: want %d, have %d", newSize, capacity)
	}

	// Case C: target fits; zero the unused portion beyond the back-pointer
	// and the new payload.
	offset := sp.Offset(slotNo)
	tail := sp.ReadAt(offset+8+newSize, targetLen-8-newSize)
	for i := range tail {
		tail[i] = 0
	}
	g.Unfix(true)
	return nil
}

// Erase frees tid's slot (and its forward target, if any) and updates the
// free-space index.
func (s *SPSegment) Erase(tid TID) error {
	g, err := s.Fix(tid.PageNo(), true)
	if err != nil {
		return err
	}
	sp := NewSlottedPage(g.Data())
	slotNo := tid.SlotNo()

	if sp.IsForward(slotNo) {
		fwd := TIDFromBytes(sp.Payload(slotNo))
		sp.Erase(slotNo)
		free := sp.FreeSpace()
		g.Unfix(true)
		if err := s.fsi.Update(tid.PageNo(), free); err != nil {
			return err
		}
		return s.eraseOnPage(fwd)
	}

	sp.Erase(slotNo)
	free := sp.FreeSpace()
	g.Unfix(true)
	return s.fsi.Update(tid.PageNo(), free)
}

func (s *SPSegment) eraseOnPage(tid TID) error {
	g, err := s.Fix(tid.PageNo(), true)
	if err != nil {
		return err
	}
	sp := NewSlottedPage(g.Data())
	sp.Erase(tid.SlotNo())
	free := sp.FreeSpace()
	g.Unfix(true)
	return s.fsi.Update(tid.PageNo(), free)
}
