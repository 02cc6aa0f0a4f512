package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/franzigeiger/moderndbs/internal/buffer"
)

// schemaHeaderSize is the fixed header every schema segment page 0 begins
// with: payload_len(u64) + sp_segment_id(u16) + fsi_segment_id(u16) +
// sp_page_count(u64), padded to the 22 bytes this format commits to on
// disk (2 reserved bytes after sp_page_count; the four named fields alone
// sum to 20; see DESIGN.md).
const schemaHeaderSize = 22

// SchemaSegment persists the catalog across a contiguous prefix of its own
// pages, and additionally tracks the segment ids of its companion SP and
// FSI segments plus the SP segment's page count, so a process restart can
// re-open all three from this segment alone.
type SchemaSegment struct {
	Base
	pageSize uint32

	schema       *Schema
	spSegmentID  uint16
	fsiSegmentID uint16
	spPageCount  uint64
}

// NewSchemaSegment returns an empty schema segment backed by pool under
// segmentID.
func NewSchemaSegment(segmentID uint16, pool *buffer.Pool, pageSize uint32) *SchemaSegment {
	return &SchemaSegment{
		Base:     Base{ID: segmentID, Pool: pool},
		pageSize: pageSize,
		schema:   &Schema{},
	}
}

func (s *SchemaSegment) SetSchema(sc *Schema)    { s.schema = sc }
func (s *SchemaSegment) Schema() *Schema          { return s.schema }
func (s *SchemaSegment) SetSPSegment(id uint16)   { s.spSegmentID = id }
func (s *SchemaSegment) SPSegment() uint16        { return s.spSegmentID }
func (s *SchemaSegment) SetFSISegment(id uint16)  { s.fsiSegmentID = id }
func (s *SchemaSegment) FSISegment() uint16       { return s.fsiSegmentID }
func (s *SchemaSegment) SPPageCount() uint64      { return s.spPageCount }

// IncrementSPPageCount adds one SP page and returns the new page count;
// the added page's number is that count minus one.
func (s *SchemaSegment) IncrementSPPageCount() uint64 {
	s.spPageCount++
	return s.spPageCount
}

// Write serializes the catalog, prepends the fixed header, and writes it
// page by page across the segment's leading pages.
func (s *SchemaSegment) Write() error {
	payload, err := json.Marshal(s.schema)
	if err != nil {
		return fmt.Errorf("%w: marshal schema: %v", buffer.ErrSchemaParse, err)
	}

	header := make([]byte, schemaHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], uint64(len(payload)))
	binary.LittleEndian.PutUint16(header[8:10], s.spSegmentID)
	binary.LittleEndian.PutUint16(header[10:12], s.fsiSegmentID)
	binary.LittleEndian.PutUint64(header[12:20], s.spPageCount)

	firstPageCap := int(s.pageSize) - schemaHeaderSize
	g, err := s.Fix(0, true)
	if err != nil {
		return err
	}
	copy(g.Data(), header)
	n := len(payload)
	if n <= firstPageCap {
		copy(g.Data()[schemaHeaderSize:], payload)
		g.Unfix(true)
		return nil
	}
	copy(g.Data()[schemaHeaderSize:], payload[:firstPageCap])
	g.Unfix(true)

	written := firstPageCap
	for page := uint64(1); written < n; page++ {
		g, err := s.Fix(page, true)
		if err != nil {
			return err
		}
		end := written + int(s.pageSize)
		if end > n {
			end = n
		}
		copy(g.Data(), payload[written:end])
		g.Unfix(true)
		written = end
	}
	return nil
}

// Read performs the reverse of Write, reconstructing the catalog and the
// companion segment ids in memory.
func (s *SchemaSegment) Read() error {
	g, err := s.Fix(0, false)
	if err != nil {
		return err
	}
	header := make([]byte, schemaHeaderSize)
	copy(header, g.Data()[:schemaHeaderSize])
	payloadLen := binary.LittleEndian.Uint64(header[0:8])
	s.spSegmentID = binary.LittleEndian.Uint16(header[8:10])
	s.fsiSegmentID = binary.LittleEndian.Uint16(header[10:12])
	s.spPageCount = binary.LittleEndian.Uint64(header[12:20])

	firstPageCap := int(s.pageSize) - schemaHeaderSize
	payload := make([]byte, 0, payloadLen)
	n := int(payloadLen)
	take := n
	if take > firstPageCap {
		take = firstPageCap
	}
	payload = append(payload, g.Data()[schemaHeaderSize:schemaHeaderSize+take]...)
	g.Unfix(false)

	for read := take; read < n; {
		page := uint64(1 + (read-firstPageCap)/int(s.pageSize))
		g, err := s.Fix(page, false)
		if err != nil {
			return err
		}
		remaining := n - read
		chunk := int(s.pageSize)
		if chunk > remaining {
			chunk = remaining
		}
		payload = append(payload, g.Data()[:chunk]...)
		g.Unfix(false)
		read += chunk
	}

	var sc Schema
	if err := json.Unmarshal(payload, &sc); err != nil {
		return fmt.Errorf("%w: unmarshal schema: %v", buffer.ErrSchemaParse, err)
	}
	s.schema = &sc
	return nil
}
