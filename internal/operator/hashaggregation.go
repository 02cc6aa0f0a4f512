package operator

import "fmt"

// AggFunc selects one of the four supported aggregate functions.
type AggFunc int

const (
	AggMin AggFunc = iota
	AggMax
	AggSum
	AggCount
)

// Aggregate names one output aggregate column: a function applied to an
// input attribute index.
type Aggregate struct {
	Func AggFunc
	Attr int
}

// aggState accumulates one Aggregate's running value across a group.
type aggState struct {
	spec    Aggregate
	count   int64
	sum     int64
	min     Register
	max     Register
	hasVal  bool
}

func newAggState(spec Aggregate) *aggState { return &aggState{spec: spec} }

func (a *aggState) add(t Tuple) {
	a.count++
	if a.spec.Func == AggCount {
		return
	}
	v := t[a.spec.Attr]
	if a.spec.Func == AggSum {
		if v.Kind != Int64 {
			panic("operator: SUM requires an integer attribute")
		}
		a.sum += v.I
		return
	}
	if !a.hasVal {
		a.min, a.max = v, v
		a.hasVal = true
		return
	}
	if v.Compare(a.min) < 0 {
		a.min = v
	}
	if v.Compare(a.max) > 0 {
		a.max = v
	}
}

func (a *aggState) result() Register {
	switch a.spec.Func {
	case AggCount:
		return NewInt(a.count)
	case AggSum:
		return NewInt(a.sum)
	case AggMin:
		return a.min
	case AggMax:
		return a.max
	default:
		panic(fmt.Sprintf("operator: unknown aggregate func %d", a.spec.Func))
	}
}

// group holds one group's key registers plus its running aggregate state,
// in insertion order so output order is deterministic for a given input
// order (set/grouping semantics don't otherwise promise an order, but
// determinism for a fixed input is still useful for tests).
type group struct {
	keys  Tuple
	aggs  []*aggState
}

// HashAggregation drains its child in Open, hashing by the projection on
// groupBy, and maintains running aggregate state per group. An empty
// groupBy means a single implicit group; COUNT of empty input is 0.
type HashAggregation struct {
	UnaryChild
	groupBy    []int
	aggregates []Aggregate

	groups []*group
	pos    int
	out    Tuple
}

// NewHashAggregation returns a HashAggregation over child, grouping by
// groupBy attribute indices and computing aggregates per group.
func NewHashAggregation(child Operator, groupBy []int, aggregates []Aggregate) *HashAggregation {
	return &HashAggregation{UnaryChild: UnaryChild{child: child}, groupBy: groupBy, aggregates: aggregates}
}

func (h *HashAggregation) Open() error {
	if err := h.child.Open(); err != nil {
		return err
	}
	rows, err := drainAll(h.child)
	if err != nil {
		return err
	}

	index := make(map[string]*group)
	var order []*group

	ensureGroup := func(keys Tuple) *group {
		k := keys.key()
		g, ok := index[k]
		if ok {
			return g
		}
		g = &group{keys: keys}
		for _, spec := range h.aggregates {
			g.aggs = append(g.aggs, newAggState(spec))
		}
		index[k] = g
		order = append(order, g)
		return g
	}

	if len(rows) == 0 && len(h.groupBy) == 0 {
		// COUNT of empty input is 0; the single implicit group still emits.
		ensureGroup(Tuple{})
	}
	for _, row := range rows {
		keys := make(Tuple, len(h.groupBy))
		for i, idx := range h.groupBy {
			keys[i] = row[idx]
		}
		g := ensureGroup(keys)
		for _, a := range g.aggs {
			a.add(row)
		}
	}

	h.groups = order
	h.pos = -1
	return nil
}

func (h *HashAggregation) Next() (bool, error) {
	h.pos++
	if h.pos >= len(h.groups) {
		return false, nil
	}
	g := h.groups[h.pos]
	out := make(Tuple, 0, len(g.keys)+len(g.aggs))
	out = append(out, g.keys...)
	for _, a := range g.aggs {
		out = append(out, a.result())
	}
	h.out = out
	return true, nil
}

func (h *HashAggregation) Close() error { return h.child.Close() }
func (h *HashAggregation) Output() Tuple { return h.out }
