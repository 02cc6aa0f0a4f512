package segment

import "github.com/franzigeiger/moderndbs/internal/buffer"

// FSISegment is the free-space index: a densely packed array of 4-bit
// buckets, two per byte (high nibble = even-indexed SP page, low nibble =
// odd-indexed), spread across as many pages as needed.
type FSISegment struct {
	Base
	pageSize uint32
}

// NewFSISegment returns an FSI segment backed by pool under segmentID.
func NewFSISegment(segmentID uint16, pool *buffer.Pool, pageSize uint32) *FSISegment {
	return &FSISegment{Base: Base{ID: segmentID, Pool: pool}, pageSize: pageSize}
}

// storedBucket computes the bucket written for an actual free-byte count:
// floor(free*15/pageSize). A stored bucket v guarantees that the page has
// at least ceil(pageSize*v/15) free bytes; that only holds if the stored
// value rounds DOWN from the true free count, so the store side floors
// while the query side (requiredBucket) ceils.
func storedBucket(free, pageSize uint32) uint8 {
	if pageSize == 0 {
		return 0
	}
	v := free * 15 / pageSize
	if v > 15 {
		v = 15
	}
	return uint8(v)
}

// requiredBucket computes the minimum stored-bucket value that guarantees
// at least `required` free bytes: ceil(required*15/pageSize). Pairing a
// floor on the store side with a ceiling on the query side is what makes
// Find's "stored >= required" comparison conservative (see storedBucket).
func requiredBucket(required, pageSize uint32) uint8 {
	if pageSize == 0 {
		return 0
	}
	v := (required*15 + pageSize - 1) / pageSize
	if v > 15 {
		v = 15
	}
	return uint8(v)
}

// location returns which FSI page and byte offset within it holds sppage's
// nibble, and whether it is the high (even sppage) or low (odd) nibble.
func (f *FSISegment) location(sppage uint64) (fsiPage uint64, byteOff uint32, high bool) {
	byteIndex := sppage / 2
	fsiPage = byteIndex / uint64(f.pageSize)
	byteOff = uint32(byteIndex % uint64(f.pageSize))
	high = sppage%2 == 0
	return
}

// Update stores the free-space bucket for sppage, computed from its
// current free byte count.
func (f *FSISegment) Update(sppage uint64, free uint32) error {
	fsiPage, byteOff, high := f.location(sppage)
	g, err := f.Fix(fsiPage, true)
	if err != nil {
		return err
	}
	defer g.Unfix(true)

	bucket := storedBucket(free, f.pageSize)
	b := g.Data()[byteOff]
	if high {
		b = (b & 0x0F) | (bucket << 4)
	} else {
		b = (b & 0xF0) | (bucket & 0x0F)
	}
	g.Data()[byteOff] = b
	return nil
}

// Find scans buckets in page order, 0..maxPage-1, and returns the first SP
// page whose bucket meets required; found is false if none qualifies.
func (f *FSISegment) Find(required uint32, maxPage uint64) (page uint64, found bool, err error) {
	reqBucket := requiredBucket(required, f.pageSize)
	var curFSIPage uint64 = ^uint64(0)
	var g *buffer.FrameGuard

	defer func() {
		if g != nil {
			g.Unfix(false)
		}
	}()

	for sp := uint64(0); sp < maxPage; sp++ {
		fsiPage, byteOff, high := f.location(sp)
		if fsiPage != curFSIPage {
			if g != nil {
				g.Unfix(false)
			}
			g, err = f.Fix(fsiPage, false)
			if err != nil {
				return 0, false, err
			}
			curFSIPage = fsiPage
		}
		b := g.Data()[byteOff]
		var bucket uint8
		if high {
			bucket = b >> 4
		} else {
			bucket = b & 0x0F
		}
		if bucket >= reqBucket {
			return sp, true, nil
		}
	}
	return 0, false, nil
}
