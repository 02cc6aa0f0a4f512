package operator

// Projection passes Next straight through to its child and narrows/
// reorders Output to the given attribute indices.
type Projection struct {
	UnaryChild
	indices []int
	out     Tuple
}

// NewProjection returns a Projection over child emitting, for each child
// tuple, the registers at indices in order.
func NewProjection(child Operator, indices []int) *Projection {
	return &Projection{UnaryChild: UnaryChild{child: child}, indices: indices}
}

func (p *Projection) Open() error { return p.child.Open() }

func (p *Projection) Next() (bool, error) {
	ok, err := p.child.Next()
	if err != nil || !ok {
		return false, err
	}
	in := p.child.Output()
	p.out = make(Tuple, len(p.indices))
	for i, idx := range p.indices {
		p.out[i] = in[idx]
	}
	return true, nil
}

func (p *Projection) Close() error { return p.child.Close() }
func (p *Projection) Output() Tuple { return p.out }
