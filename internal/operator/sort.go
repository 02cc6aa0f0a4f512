package operator

import "sort"

// Criterion is one multi-key sort key: an attribute index and whether it
// sorts descending.
type Criterion struct {
	Attr       int
	Descending bool
}

// Sort drains its child in Open, materializing every tuple, then sorts by
// a multi-key comparator and emits in sorted order. Ties are broken by
// input order: sort.SliceStable gives deterministic output for equal keys.
type Sort struct {
	UnaryChild
	criteria []Criterion
	rows     []Tuple
	pos      int
}

// NewSort returns a Sort over child ordered by criteria, applied in order
// (criteria[0] is the primary key).
func NewSort(child Operator, criteria []Criterion) *Sort {
	return &Sort{UnaryChild: UnaryChild{child: child}, criteria: criteria}
}

func (s *Sort) Open() error {
	if err := s.child.Open(); err != nil {
		return err
	}
	rows, err := drainAll(s.child)
	if err != nil {
		return err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, c := range s.criteria {
			cmp := rows[i][c.Attr].Compare(rows[j][c.Attr])
			if cmp == 0 {
				continue
			}
			if c.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	s.rows = rows
	s.pos = -1
	return nil
}

func (s *Sort) Next() (bool, error) {
	s.pos++
	return s.pos < len(s.rows), nil
}

func (s *Sort) Close() error { return s.child.Close() }
func (s *Sort) Output() Tuple { return s.rows[s.pos] }
