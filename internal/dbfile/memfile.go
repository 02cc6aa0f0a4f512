package dbfile

import (
	"fmt"
	"sync"
)

// MemFile is an in-memory File, used by tests that don't want to touch the
// filesystem. It mirrors OpenSegmentFile's byte-block contract exactly;
// callers cannot tell the two apart.
type MemFile struct {
	mu   sync.Mutex
	buf  []byte
	mode Mode
}

// NewMemFile returns an empty in-memory File opened for read-write.
func NewMemFile() *MemFile {
	return &MemFile{mode: ReadWrite}
}

func (m *MemFile) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.buf)), nil
}

func (m *MemFile) Resize(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case size < int64(len(m.buf)):
		m.buf = m.buf[:size]
	case size > int64(len(m.buf)):
		grown := make([]byte, size)
		copy(grown, m.buf)
		m.buf = grown
	}
	return nil
}

func (m *MemFile) ReadBlock(offset int64, dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + int64(len(dst))
	if offset < 0 || end > int64(len(m.buf)) {
		return fmt.Errorf("dbfile: read_block at %d (%d bytes) out of bounds (size %d)", offset, len(dst), len(m.buf))
	}
	copy(dst, m.buf[offset:end])
	return nil
}

func (m *MemFile) WriteBlock(src []byte, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := offset + int64(len(src))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[offset:end], src)
	return nil
}

func (m *MemFile) Mode() Mode { return m.mode }

func (m *MemFile) Close() error { return nil }
