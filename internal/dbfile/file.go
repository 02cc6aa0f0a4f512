// Package dbfile implements the narrow byte-block file abstraction that the
// buffer pool and segments address pages through: size/resize/read_block/
// write_block over a segment file named by the decimal segment id.
package dbfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mode selects how a File is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// File is the external collaborator the storage core addresses pages
// through. Segments never touch *os.File directly; everything funnels
// through this interface so tests can swap in an in-memory backing.
type File interface {
	Size() (int64, error)
	Resize(size int64) error
	ReadBlock(offset int64, dst []byte) error
	WriteBlock(src []byte, offset int64) error
	Mode() Mode
	Close() error
}

// osFile is the concrete File backed directly by the OS filesystem.
type osFile struct {
	f    *os.File
	mode Mode
}

// OpenSegmentFile opens (creating if absent) the file that stores the
// segment identified by segID, named by its decimal representation inside
// dir, per the segment-file naming rule in the external interfaces.
func OpenSegmentFile(dir string, segID uint16, mode Mode) (File, error) {
	name := filepath.Join(dir, fmt.Sprintf("%d", segID))
	flag := os.O_RDONLY
	if mode == ReadWrite {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(name, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dbfile: open segment file %s: %w", name, err)
	}
	return &osFile{f: f, mode: mode}, nil
}

func (o *osFile) Size() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("dbfile: stat: %w", err)
	}
	return fi.Size(), nil
}

func (o *osFile) Resize(size int64) error {
	if err := o.f.Truncate(size); err != nil {
		return fmt.Errorf("dbfile: resize to %d: %w", size, err)
	}
	return nil
}

func (o *osFile) ReadBlock(offset int64, dst []byte) error {
	n, err := o.f.ReadAt(dst, offset)
	if err != nil && n != len(dst) {
		return fmt.Errorf("dbfile: read_block at %d (%d bytes): %w", offset, len(dst), err)
	}
	return nil
}

func (o *osFile) WriteBlock(src []byte, offset int64) error {
	if o.mode != ReadWrite {
		return fmt.Errorf("dbfile: write_block on read-only file")
	}
	if _, err := o.f.WriteAt(src, offset); err != nil {
		return fmt.Errorf("dbfile: write_block at %d (%d bytes): %w", offset, len(src), err)
	}
	return nil
}

func (o *osFile) Mode() Mode { return o.mode }

func (o *osFile) Close() error {
	if err := o.f.Close(); err != nil {
		return fmt.Errorf("dbfile: close: %w", err)
	}
	return nil
}
