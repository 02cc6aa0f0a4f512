package operator

import (
	"fmt"
	"io"
	"strings"
)

// Print consumes one child tuple per Next and writes it to stream as
// comma-separated attribute values terminated by a newline. It is a
// terminal (sink) operator: its own Output is the tuple it just printed,
// unchanged, so it still composes as an ordinary Operator.
type Print struct {
	UnaryChild
	stream io.Writer
}

// NewPrint returns a Print over child, writing to stream.
func NewPrint(child Operator, stream io.Writer) *Print {
	return &Print{UnaryChild: UnaryChild{child: child}, stream: stream}
}

func (p *Print) Open() error { return p.child.Open() }

func (p *Print) Next() (bool, error) {
	ok, err := p.child.Next()
	if err != nil || !ok {
		return false, err
	}
	row := p.child.Output()
	parts := make([]string, len(row))
	for i, r := range row {
		parts[i] = r.String()
	}
	if _, err := fmt.Fprintln(p.stream, strings.Join(parts, ",")); err != nil {
		return false, fmt.Errorf("operator: print write: %w", err)
	}
	return true, nil
}

func (p *Print) Close() error { return p.child.Close() }
func (p *Print) Output() Tuple { return p.child.Output() }
