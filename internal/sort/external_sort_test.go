package sort

import (
	"testing"

	"github.com/franzigeiger/moderndbs/internal/dbfile"
)

func encode(values []uint64) []byte {
	buf := make([]byte, len(values)*valueSize)
	encodeValuesInto(buf, values)
	return buf
}

func readOutput(t *testing.T, f dbfile.File) []uint64 {
	t.Helper()
	size, err := f.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	buf := make([]byte, size)
	if err := f.ReadBlock(0, buf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	return decodeValues(buf)
}

func isSorted(values []uint64) bool {
	for i := 1; i < len(values); i++ {
		if values[i-1] > values[i] {
			return false
		}
	}
	return true
}

func isPermutation(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	count := make(map[uint64]int, len(a))
	for _, v := range a {
		count[v]++
	}
	for _, v := range b {
		count[v]--
	}
	for _, c := range count {
		if c != 0 {
			return false
		}
	}
	return true
}

// TestExternalSortEmpty checks that num_values == 0 truncates output to
// length 0, with no partial output left behind.
func TestExternalSortEmpty(t *testing.T) {
	in := dbfile.NewMemFile()
	out := dbfile.NewMemFile()
	out.WriteBlock(make([]byte, 64), 0)

	if err := External(in, 0, out, Config{MemBytes: 1024, ScratchDir: t.TempDir()}); err != nil {
		t.Fatalf("External: %v", err)
	}
	size, _ := out.Size()
	if size != 0 {
		t.Fatalf("output size = %d, want 0", size)
	}
}

// TestExternalSortFastPath checks that an input fitting in mem_bytes is
// sorted directly in memory.
func TestExternalSortFastPath(t *testing.T) {
	values := []uint64{5, 4, 3, 2, 1}
	in := dbfile.NewMemFile()
	in.WriteBlock(encode(values), 0)
	out := dbfile.NewMemFile()

	if err := External(in, int64(len(values)), out, Config{MemBytes: 1024, ScratchDir: t.TempDir()}); err != nil {
		t.Fatalf("External: %v", err)
	}
	got := readOutput(t, out)
	want := []uint64{1, 2, 3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestExternalSortMultiRun feeds an input much larger than mem_bytes,
// forcing run generation and a genuine K-way merge.
func TestExternalSortMultiRun(t *testing.T) {
	n := 20000
	values := make([]uint64, n)
	for i := range values {
		values[i] = uint64(n - i)
	}
	in := dbfile.NewMemFile()
	in.WriteBlock(encode(values), 0)
	out := dbfile.NewMemFile()

	if err := External(in, int64(n), out, Config{MemBytes: 4096, ScratchDir: t.TempDir()}); err != nil {
		t.Fatalf("External: %v", err)
	}
	got := readOutput(t, out)
	if len(got) != n {
		t.Fatalf("output length = %d, want %d", len(got), n)
	}
	if !isSorted(got) {
		t.Fatalf("output not sorted: %v", got[:20])
	}
	if !isPermutation(got, values) {
		t.Fatalf("output is not a permutation of the input")
	}
}

// TestExternalSortTinyMemBudget exercises the loadSize < 1 edge case: a
// mem_bytes budget so small the K-way merge must fall back to iterative
// 2-way merges before it can proceed.
func TestExternalSortTinyMemBudget(t *testing.T) {
	n := 2000
	values := make([]uint64, n)
	for i := range values {
		values[i] = uint64(n - i)
	}
	in := dbfile.NewMemFile()
	in.WriteBlock(encode(values), 0)
	out := dbfile.NewMemFile()

	if err := External(in, int64(n), out, Config{MemBytes: 256, ScratchDir: t.TempDir()}); err != nil {
		t.Fatalf("External: %v", err)
	}
	got := readOutput(t, out)
	if !isSorted(got) || !isPermutation(got, values) {
		t.Fatalf("tiny-budget sort incorrect")
	}
}

// TestExternalSortDeterministic checks that repeated runs over the same
// input and mem_bytes produce byte-identical output.
func TestExternalSortDeterministic(t *testing.T) {
	n := 5000
	values := make([]uint64, n)
	for i := range values {
		values[i] = uint64((i * 7919) % 100000)
	}

	run := func() []byte {
		in := dbfile.NewMemFile()
		in.WriteBlock(encode(values), 0)
		out := dbfile.NewMemFile()
		if err := External(in, int64(n), out, Config{MemBytes: 2048, ScratchDir: t.TempDir()}); err != nil {
			t.Fatalf("External: %v", err)
		}
		size, _ := out.Size()
		buf := make([]byte, size)
		out.ReadBlock(0, buf)
		return buf
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("length mismatch between runs")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("output differs between runs at byte %d", i)
		}
	}
}
