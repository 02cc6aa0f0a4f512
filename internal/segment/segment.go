package segment

import "github.com/franzigeiger/moderndbs/internal/buffer"

// Base is embedded by every concrete segment. It maps a segment-local page
// number to a global buffer.PageID and forwards fix/unfix to the pool.
type Base struct {
	ID   uint16
	Pool *buffer.Pool
}

// PageID returns the global page id for the segment-local page number no.
func (b *Base) PageID(no uint64) buffer.PageID {
	return buffer.NewPageID(b.ID, no)
}

// Fix pins the segment-local page no through the shared buffer pool.
func (b *Base) Fix(no uint64, exclusive bool) (*buffer.FrameGuard, error) {
	return b.Pool.Fix(b.PageID(no), exclusive)
}
