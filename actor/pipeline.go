package actor

import "slices"

// PipeLine is an immutable ordered list of references.
// Index 0 is the network side, the last index is the application side.
type PipeLine struct {
	refs []Ref
}

// NewPipeLine creates a pipeline from the references ordered from the network side.
func NewPipeLine(refs ...Ref) PipeLine {
	return PipeLine{refs: slices.Clone(refs)}
}

func (p PipeLine) Len() int { return len(p.refs) }

// At returns the reference at the position.
func (p PipeLine) At(pos int) (Ref, bool) {
	if pos < 0 || pos >= len(p.refs) {
		return nil, false
	}
	return p.refs[pos], true
}

// Upstream returns the neighbour of pos towards the application.
func (p PipeLine) Upstream(pos int) (Ref, bool) { return p.At(pos + 1) }

// Downstream returns the neighbour of pos towards the network.
func (p PipeLine) Downstream(pos int) (Ref, bool) { return p.At(pos - 1) }

func (p PipeLine) indexOf(c *Cell) int {
	return slices.IndexFunc(p.refs, func(r Ref) bool {
		rc, ok := r.(*Cell)
		return ok && rc == c
	})
}
