package sapling

import "fmt"

// SetMask makes mask clip this node: only the pixels the mask covers are
// drawn, and HitTest ignores points outside it. A mask node is never drawn on
// its own and is skipped by normal hit-testing. It may be a child in the tree
// or a detached node, in which case its pose is relative to this node.
//
// A node masks at most one target; SetMask fails with ErrMaskInUse when mask
// already masks another node and with ErrCycle when mask is this node or an
// ancestor of it. Passing nil removes the current mask.
func (n *Node) SetMask(mask *Node) error {
	if mask == nil {
		n.ClearMask()
		return nil
	}
	if n.disposed || mask.disposed {
		return fmt.Errorf("sapling: mask %q with %q: %w", n.Name, mask.Name, ErrDisposed)
	}
	if isAncestor(mask, n) {
		return fmt.Errorf("sapling: mask %q with %q: %w", n.Name, mask.Name, ErrCycle)
	}
	if mask.maskOf != nil && mask.maskOf != n {
		return fmt.Errorf("sapling: mask %q with %q (masks %q): %w", n.Name, mask.Name, mask.maskOf.Name, ErrMaskInUse)
	}
	if n.mask != nil && n.mask != mask {
		n.mask.maskOf = nil
	}
	n.mask = mask
	mask.maskOf = n
	return nil
}

// ClearMask removes the mask from this node. The former mask node becomes a
// regular node again.
func (n *Node) ClearMask() {
	if n.mask == nil {
		return
	}
	n.mask.maskOf = nil
	n.mask = nil
}

// Mask returns the current mask node, or nil if no mask is set.
func (n *Node) Mask() *Node { return n.mask }

// MaskOf returns the node this node masks, or nil.
func (n *Node) MaskOf() *Node { return n.maskOf }

// SetMaskInverted selects an inverted mask: the pixels the mask covers are
// cut away instead of kept.
func (n *Node) SetMaskInverted(inverted bool) { n.maskInverted = inverted }

// MaskInverted reports whether the mask is inverted.
func (n *Node) MaskInverted() bool { return n.maskInverted }

// maskMatrix maps the mask's space into this node's space.
func (n *Node) maskMatrix() Matrix {
	if commonAncestor(n.mask, n) != nil {
		if m, err := n.mask.MatrixTo(n); err == nil {
			return m
		}
	}
	return n.mask.LocalMatrix()
}

// maskBounds returns the bounds of the mask in target space.
func (n *Node) maskBounds(target *Node) (Rect, error) {
	if commonAncestor(n.mask, n) != nil {
		return n.mask.Bounds(target)
	}
	local, err := n.mask.Bounds(n.mask)
	if err != nil {
		return Rect{}, err
	}
	return n.rectTo(target, transformRect(n.mask.LocalMatrix(), local))
}

// hitMask reports whether p, in this node's space, falls inside the mask.
// An inverted mask reverses the result.
func (n *Node) hitMask(p Vec2) bool {
	var mp Vec2
	if commonAncestor(n.mask, n) != nil {
		x, y, err := n.pointTo(n.mask, p.X, p.Y)
		if err != nil {
			return false
		}
		mp = Vec2{x, y}
	} else {
		x, y := n.mask.LocalMatrix().Invert().TransformPoint(p.X, p.Y)
		mp = Vec2{x, y}
	}
	hit := n.mask.hitTest(mp, false, true) != nil
	return hit != n.maskInverted
}
