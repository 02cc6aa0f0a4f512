package buffer

import (
	"sync"
	"testing"
)

func TestPoolFixUnfixBufferFull(t *testing.T) {
	p := New(1024, 10, NewMemSegmentFiles())

	var guards []*FrameGuard
	for i := uint64(1); i <= 10; i++ {
		g, err := p.Fix(NewPageID(0, i), false)
		if err != nil {
			t.Fatalf("fix page %d: %v", i, err)
		}
		guards = append(guards, g)
	}

	if _, err := p.Fix(NewPageID(0, 11), false); err == nil {
		t.Fatalf("expected BufferFull fixing page 11 while all 10 frames pinned")
	}

	guards[0].Unfix(false) // unpin page 1

	g11, err := p.Fix(NewPageID(0, 11), false)
	if err != nil {
		t.Fatalf("fix page 11 after freeing a frame: %v", err)
	}
	defer g11.Unfix(false)

	fifo := p.GetFIFOList()
	if len(fifo) == 0 || fifo[len(fifo)-1] != NewPageID(0, 11) {
		t.Fatalf("expected page 11 at FIFO tail, got %v", fifo)
	}
	for _, id := range fifo {
		if id == NewPageID(0, 1) {
			t.Fatalf("page 1 should have been evicted, still present in %v", fifo)
		}
	}

	for _, g := range guards[1:] {
		g.Unfix(false)
	}
}

func TestPoolFIFOtoLRUPromotion(t *testing.T) {
	// Fix pages 1..5 once each then again; after the second round all of
	// 1..5 must be in LRU and FIFO must be empty.
	p := New(1024, 10, NewMemSegmentFiles())

	for i := uint64(1); i <= 5; i++ {
		g, err := p.Fix(NewPageID(0, i), false)
		if err != nil {
			t.Fatalf("fix page %d: %v", i, err)
		}
		g.Unfix(false)
	}
	if got := len(p.GetFIFOList()); got != 5 {
		t.Fatalf("expected 5 pages in FIFO after first round, got %d", got)
	}

	for i := uint64(1); i <= 5; i++ {
		g, err := p.Fix(NewPageID(0, i), false)
		if err != nil {
			t.Fatalf("re-fix page %d: %v", i, err)
		}
		g.Unfix(false)
	}

	if got := p.GetFIFOList(); len(got) != 0 {
		t.Fatalf("expected FIFO empty after second round, got %v", got)
	}
	if got := len(p.GetLRUList()); got != 5 {
		t.Fatalf("expected 5 pages in LRU after second round, got %d", got)
	}
}

func TestPoolResidencyInvariant(t *testing.T) {
	p := New(512, 4, NewMemSegmentFiles())
	seen := make(map[PageID]bool)
	for i := uint64(1); i <= 4; i++ {
		g, err := p.Fix(NewPageID(0, i), false)
		if err != nil {
			t.Fatalf("fix page %d: %v", i, err)
		}
		g.Unfix(true)
		seen[NewPageID(0, i)] = true
	}
	if total := len(p.GetFIFOList()) + len(p.GetLRUList()); total > 4 {
		t.Fatalf("|FIFO|+|LRU| = %d exceeds page_count", total)
	}
	for _, id := range p.GetFIFOList() {
		for _, other := range p.GetLRUList() {
			if id == other {
				t.Fatalf("page %d present in both FIFO and LRU", id)
			}
		}
	}
}

func TestPoolDirtyDurability(t *testing.T) {
	files := NewMemSegmentFiles()
	p := New(512, 4, files)

	g, err := p.Fix(NewPageID(0, 1), true)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	copy(g.Data(), []byte("hello"))
	g.Unfix(true)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, _ := files.Open(0)
	buf := make([]byte, 5)
	// Page 1 of a 512-byte-page pool starts at byte 1*512.
	if err := f.ReadBlock(512, buf); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("dirty page not durable: got %q", buf)
	}
}

// TestPoolConcurrentSharedFixSamePage hammers one resident page with
// parallel shared fixes. Every hit splices the frame to the LRU tail, so
// the queues must stay intact: afterwards the page is resident exactly
// once and the two lists together never exceed page_count.
func TestPoolConcurrentSharedFixSamePage(t *testing.T) {
	p := New(512, 8, NewMemSegmentFiles())
	id := NewPageID(0, 1)

	g, err := p.Fix(id, false)
	if err != nil {
		t.Fatalf("initial fix: %v", err)
	}
	g.Unfix(false)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				g, err := p.Fix(id, false)
				if err != nil {
					t.Errorf("concurrent fix: %v", err)
					return
				}
				g.Unfix(false)
			}
		}()
	}
	wg.Wait()

	residency := 0
	for _, got := range append(p.GetFIFOList(), p.GetLRUList()...) {
		if got == id {
			residency++
		}
	}
	if residency != 1 {
		t.Fatalf("page resident %d times across FIFO+LRU, want exactly 1", residency)
	}
	if total := len(p.GetFIFOList()) + len(p.GetLRUList()); total > 8 {
		t.Fatalf("|FIFO|+|LRU| = %d exceeds page_count", total)
	}
}
