package operator

import "fmt"

// CompareOp is one of the six comparison operators a Select predicate uses.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// evalOp applies op to the three-way result of comparing two registers.
func evalOp(op CompareOp, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	default:
		panic(fmt.Sprintf("operator: unknown compare op %d", op))
	}
}

// Predicate compares an attribute against either a constant register or a
// second attribute. AttrRight is ignored when Constant is set (RightIsAttr
// is false).
type Predicate struct {
	Attr        int
	Op          CompareOp
	RightIsAttr bool
	AttrRight   int
	Constant    Register
}

// Eval reports whether t satisfies p.
func (p Predicate) Eval(t Tuple) bool {
	left := t[p.Attr]
	var right Register
	if p.RightIsAttr {
		right = t[p.AttrRight]
	} else {
		right = p.Constant
	}
	return evalOp(p.Op, left.Compare(right))
}

// Select skips tuples that don't satisfy predicate, in Next.
type Select struct {
	UnaryChild
	predicate Predicate
}

// NewSelect returns a Select over child, filtering by predicate.
func NewSelect(child Operator, predicate Predicate) *Select {
	return &Select{UnaryChild: UnaryChild{child: child}, predicate: predicate}
}

func (s *Select) Open() error { return s.child.Open() }

func (s *Select) Next() (bool, error) {
	for {
		ok, err := s.child.Next()
		if err != nil || !ok {
			return false, err
		}
		if s.predicate.Eval(s.child.Output()) {
			return true, nil
		}
	}
}

func (s *Select) Close() error     { return s.child.Close() }
func (s *Select) Output() Tuple     { return s.child.Output() }
