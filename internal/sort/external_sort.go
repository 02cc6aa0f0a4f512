// Package sort implements the external K-way merge sort: sorting arrays of
// 64-bit values vastly larger than available memory, using a caller-
// supplied scratch directory to hold intermediate runs.
package sort

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/franzigeiger/moderndbs/internal/dbfile"
	"github.com/google/uuid"
)

const valueSize = 8

// Config bundles the knobs External takes from its caller.
type Config struct {
	// MemBytes is the memory budget for in-memory runs and merge buffers.
	MemBytes int
	// ScratchDir holds temporary run files; it must already exist.
	ScratchDir string
}

// External sorts numValues 64-bit little-endian values read from input and
// writes them in ascending order to output. Same input and mem_bytes
// produce identical output bytes; stability across equal values is not
// required.
func External(input dbfile.File, numValues int64, output dbfile.File, cfg Config) error {
	if numValues == 0 {
		return output.Resize(0)
	}

	totalBytes := numValues * valueSize
	if totalBytes <= int64(cfg.MemBytes) {
		return sortFastPath(input, numValues, output)
	}

	valuesPerRun := cfg.MemBytes / valueSize
	if valuesPerRun < 1 {
		valuesPerRun = 1
	}
	k := int((numValues + int64(valuesPerRun) - 1) / int64(valuesPerRun))

	runs, err := generateRuns(input, numValues, valuesPerRun, cfg.ScratchDir)
	defer cleanupRuns(runs)
	if err != nil {
		return err
	}

	return mergeRuns(runs, output, cfg.MemBytes, k)
}

func sortFastPath(input dbfile.File, numValues int64, output dbfile.File) error {
	buf := make([]byte, numValues*valueSize)
	if err := input.ReadBlock(0, buf); err != nil {
		return fmt.Errorf("external sort: read input: %w", err)
	}
	values := decodeValues(buf)
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	encodeValuesInto(buf, values)

	if err := output.Resize(int64(len(buf))); err != nil {
		return fmt.Errorf("external sort: resize output: %w", err)
	}
	if err := output.WriteBlock(buf, 0); err != nil {
		return fmt.Errorf("external sort: write output: %w", err)
	}
	return nil
}

// run is one initially-sorted run spilled to its own scratch file.
type run struct {
	path string
	file *os.File
	// numValues is how many 64-bit values this run holds in total.
	numValues int64
}

func generateRuns(input dbfile.File, numValues int64, valuesPerRun int, scratchDir string) ([]*run, error) {
	var runs []*run
	remaining := numValues
	var offset int64

	for remaining > 0 {
		n := int64(valuesPerRun)
		if n > remaining {
			n = remaining
		}
		buf := make([]byte, n*valueSize)
		if err := input.ReadBlock(offset, buf); err != nil {
			return runs, fmt.Errorf("external sort: read run at %d: %w", offset, err)
		}
		values := decodeValues(buf)
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		encodeValuesInto(buf, values)

		r, err := newRunFile(scratchDir)
		if err != nil {
			return runs, err
		}
		if _, err := r.file.Write(buf); err != nil {
			return runs, fmt.Errorf("external sort: write run %s: %w", r.path, err)
		}
		r.numValues = n
		runs = append(runs, r)

		offset += n * valueSize
		remaining -= n
	}
	return runs, nil
}

func newRunFile(scratchDir string) (*run, error) {
	name := filepath.Join(scratchDir, "sortrun-"+uuid.NewString())
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("external sort: create run file: %w", err)
	}
	return &run{path: name, file: f}, nil
}

func cleanupRuns(runs []*run) {
	for _, r := range runs {
		r.file.Close()
		os.Remove(r.path)
	}
}

// runCursor tracks one run's in-memory buffer window over its on-disk
// file during the merge phase.
type runCursor struct {
	r         *run
	loadSize  int
	buf       []uint64
	pos       int   // index of the next unread value in buf
	diskRead  int64 // values already consumed from the file (including buf)
}

func newRunCursor(r *run, loadSize int) (*runCursor, error) {
	c := &runCursor{r: r, loadSize: loadSize}
	if err := c.refill(); err != nil {
		return nil, err
	}
	return c, nil
}

// refill reads the next loadSize (or fewer, at EOF) values from the run's
// file into buf, resetting pos to 0. Returns io.EOF-equivalent by leaving
// buf empty when the run is exhausted.
func (c *runCursor) refill() error {
	remaining := c.r.numValues - c.diskRead
	if remaining <= 0 {
		c.buf = nil
		c.pos = 0
		return nil
	}
	n := int64(c.loadSize)
	if n > remaining {
		n = remaining
	}
	raw := make([]byte, n*valueSize)
	if _, err := c.r.file.ReadAt(raw, c.diskRead*valueSize); err != nil {
		return fmt.Errorf("external sort: refill run %s: %w", c.r.path, err)
	}
	c.buf = decodeValues(raw)
	c.pos = 0
	c.diskRead += n
	return nil
}

func (c *runCursor) exhausted() bool {
	return c.pos >= len(c.buf) && c.diskRead >= c.r.numValues
}

// peek returns the current head value without advancing.
func (c *runCursor) peek() uint64 { return c.buf[c.pos] }

// advance consumes the head value, refilling from disk if the in-memory
// buffer has drained.
func (c *runCursor) advance() error {
	c.pos++
	if c.pos >= len(c.buf) && c.diskRead < c.r.numValues {
		return c.refill()
	}
	return nil
}

// heapItem is one (value, run) pair living in the merge min-heap.
type heapItem struct {
	value  uint64
	cursor *runCursor
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].value < h[j].value }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeRuns performs the K-way merge phase over runs, writing ascending
// output to output. If mem_bytes is so small that loadSize would fall
// below 1, it first iteratively applies 2-way merges to halve k until
// loadSize reaches at least 64 or a single run remains.
func mergeRuns(runs []*run, output dbfile.File, memBytes, k int) error {
	outBufValues := memBytes / valueSize / 2
	if outBufValues < 1 {
		outBufValues = 1
	}

	loadSize := outBufValues / k
	reduced := false
	// reduceRunsPairwise replaces runs with its own merged-run files, which
	// the caller's cleanup of the original pre-reduction slice doesn't
	// cover; clean up whatever the slice ends up holding once done.
	defer func() {
		if reduced {
			cleanupRuns(runs)
		}
	}()
	if loadSize < 1 {
		// Not even one buffered value per run: halve k by merging run pairs
		// until each remaining run gets a usefully large load buffer.
		for loadSize < 64 && len(runs) > 1 {
			next, err := reduceRunsPairwise(runs, memBytes)
			if err != nil {
				return err
			}
			runs = next
			reduced = true
			k = len(runs)
			loadSize = outBufValues / k
		}
	}
	if loadSize < 1 {
		loadSize = 1
	}

	h := make(mergeHeap, 0, len(runs))
	for _, r := range runs {
		if r.numValues == 0 {
			continue
		}
		c, err := newRunCursor(r, loadSize)
		if err != nil {
			return err
		}
		if len(c.buf) > 0 {
			heap.Push(&h, heapItem{value: c.peek(), cursor: c})
		}
	}

	if err := output.Resize(0); err != nil {
		return fmt.Errorf("external sort: truncate output: %w", err)
	}

	outBuf := make([]uint64, 0, outBufValues)
	var written int64

	flush := func() error {
		if len(outBuf) == 0 {
			return nil
		}
		raw := make([]byte, len(outBuf)*valueSize)
		encodeValuesInto(raw, outBuf)
		if err := output.WriteBlock(raw, written*valueSize); err != nil {
			return fmt.Errorf("external sort: write output at %d: %w", written, err)
		}
		written += int64(len(outBuf))
		outBuf = outBuf[:0]
		return nil
	}

	for h.Len() > 0 {
		top := heap.Pop(&h).(heapItem)
		outBuf = append(outBuf, top.value)
		if len(outBuf) == cap(outBuf) {
			if err := flush(); err != nil {
				return err
			}
		}

		if err := top.cursor.advance(); err != nil {
			return err
		}
		if !top.cursor.exhausted() {
			heap.Push(&h, heapItem{value: top.cursor.peek(), cursor: top.cursor})
		}
	}

	return flush()
}

// reduceRunsPairwise merges adjacent pairs of runs into new, larger runs,
// halving the run count: the fallback when mem_bytes is too small to
// give every run a usefully large load buffer directly.
func reduceRunsPairwise(runs []*run, memBytes int) ([]*run, error) {
	var next []*run
	for i := 0; i < len(runs); i += 2 {
		if i+1 >= len(runs) {
			next = append(next, runs[i])
			continue
		}
		merged, err := merge2(runs[i], runs[i+1], memBytes)
		if err != nil {
			return nil, err
		}
		cleanupRuns([]*run{runs[i], runs[i+1]})
		next = append(next, merged)
	}
	return next, nil
}

// merge2 does a straightforward 2-way merge of a and b into a new run
// file, buffering half of mem_bytes per side.
func merge2(a, b *run, memBytes int) (*run, error) {
	half := memBytes / valueSize / 2
	if half < 1 {
		half = 1
	}
	ac, err := newRunCursor(a, half)
	if err != nil {
		return nil, err
	}
	bc, err := newRunCursor(b, half)
	if err != nil {
		return nil, err
	}

	scratchDir := filepath.Dir(a.path)
	out, err := newRunFile(scratchDir)
	if err != nil {
		return nil, err
	}
	out.numValues = a.numValues + b.numValues

	var buf []byte
	write := func(v uint64) error {
		var tmp [valueSize]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:]...)
		if len(buf) >= 1<<16 {
			if _, err := out.file.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
		return nil
	}

	for !ac.exhausted() && !bc.exhausted() {
		var v uint64
		if ac.peek() <= bc.peek() {
			v = ac.peek()
			if err := ac.advance(); err != nil {
				return nil, err
			}
		} else {
			v = bc.peek()
			if err := bc.advance(); err != nil {
				return nil, err
			}
		}
		if err := write(v); err != nil {
			return nil, fmt.Errorf("external sort: merge2 write: %w", err)
		}
	}
	for !ac.exhausted() {
		v := ac.peek()
		if err := ac.advance(); err != nil {
			return nil, err
		}
		if err := write(v); err != nil {
			return nil, err
		}
	}
	for !bc.exhausted() {
		v := bc.peek()
		if err := bc.advance(); err != nil {
			return nil, err
		}
		if err := write(v); err != nil {
			return nil, err
		}
	}
	if len(buf) > 0 {
		if _, err := out.file.Write(buf); err != nil {
			return nil, fmt.Errorf("external sort: merge2 flush: %w", err)
		}
	}
	return out, nil
}

func decodeValues(buf []byte) []uint64 {
	n := len(buf) / valueSize
	values := make([]uint64, n)
	for i := range values {
		values[i] = binary.LittleEndian.Uint64(buf[i*valueSize : i*valueSize+valueSize])
	}
	return values
}

func encodeValuesInto(buf []byte, values []uint64) {
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*valueSize:i*valueSize+valueSize], v)
	}
}
