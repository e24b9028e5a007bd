// SPDX-License-Identifier: MIT

package relax

import (
	"github.com/katalvlaran/parqg/tree"
)

// Relaxer keeps one worker's relaxation in step with the node it processes.
//
// Moving to a child of the node whose bounds are installed applies only the
// child's own bound changes. Any other move restores the root bounds and
// replays the ancestor path.
type Relaxer struct {
	rel     *Relaxation
	current *tree.Node
	applied int // bound changes applied since the last full reset
}

// NewRelaxer returns a Relaxer over a private copy of root.
func NewRelaxer(root *Relaxation) *Relaxer {
	return &Relaxer{rel: root.Clone()}
}

// Relaxation returns the worker's relaxation.
func (r *Relaxer) Relaxation() *Relaxation { return r.rel }

// CreateRootRelaxation installs the root bounds for n.
func (r *Relaxer) CreateRootRelaxation(n *tree.Node) *Relaxation {
	r.rel.ResetBounds()
	r.current = n
	r.applied = 0

	return r.rel
}

// CreateNodeRelaxation installs the bounds of n. dived tells that n is a
// child the worker kept from its previous node.
func (r *Relaxer) CreateNodeRelaxation(n *tree.Node, dived bool) (*Relaxation, error) {
	if n.Parent == nil {
		return r.CreateRootRelaxation(n), nil
	}
	if dived && r.current != nil && r.current == n.Parent && n.Branch != nil {
		for _, c := range n.Branch.Changes {
			if err := r.rel.SetBound(c); err != nil {
				return nil, err
			}
			r.applied++
		}
		r.current = n
		return r.rel, nil
	}

	r.rel.ResetBounds()
	r.applied = 0
	for _, c := range n.Changes() {
		if err := r.rel.SetBound(c); err != nil {
			return nil, err
		}
		r.applied++
	}
	r.current = n

	return r.rel, nil
}

// Reset releases n. With partial the installed bounds are kept so the next
// dived child is applied incrementally; otherwise the root bounds return.
func (r *Relaxer) Reset(n *tree.Node, partial bool) {
	if partial && r.current == n {
		return
	}
	r.rel.ResetBounds()
	r.current = nil
	r.applied = 0
}

// Applied returns the number of bound changes applied since the last full
// reset.
func (r *Relaxer) Applied() int { return r.applied }
