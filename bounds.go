package sapling

import "math"

// --- Bounds ---

// Bounds returns the axis-aligned bounds of n's content in target space. A
// nil target means root space. A container's bounds are the union of its
// children's; an empty container yields a zero-size rectangle at its own
// origin. A mask limits the bounds to the area it covers; an inverted mask
// does not. It fails with
// ErrNotConnected when n and target are in different trees.
func (n *Node) Bounds(target *Node) (Rect, error) {
	r, err := n.contentBounds(target)
	if err != nil {
		return Rect{}, err
	}
	if n.mask != nil && !n.maskInverted {
		mr, err := n.maskBounds(target)
		if err != nil {
			return Rect{}, err
		}
		r = r.Intersection(mr)
	}
	return r, nil
}

func (n *Node) contentBounds(target *Node) (Rect, error) {
	switch n.Type {
	case NodeTypeContainer:
		if len(n.children) == 0 {
			return n.originIn(target)
		}
		var out Rect
		for i, c := range n.children {
			r, err := c.Bounds(target)
			if err != nil {
				return Rect{}, err
			}
			if i == 0 {
				out = r
			} else {
				out = out.Union(r)
			}
		}
		return out, nil

	case NodeTypeQuad, NodeTypeImage:
		return n.vertexBounds(target, n.renderVertexData(), 4)

	case NodeTypeBatch:
		if n.batch == nil || n.batch.NumQuads() == 0 {
			return n.originIn(target)
		}
		return n.vertexBounds(target, n.batch.vertexData, n.batch.NumQuads()*4)
	}
	return Rect{}, nil
}

// originIn returns a zero-size rectangle at n's origin in target space.
func (n *Node) originIn(target *Node) (Rect, error) {
	x, y, err := n.pointTo(target, 0, 0)
	if err != nil {
		return Rect{}, err
	}
	return Rect{X: x, Y: y}, nil
}

// vertexBounds returns the bounds of the first count vertices of vd, which
// live in n's space, in target space.
func (n *Node) vertexBounds(target *Node, vd *VertexData, count int) (Rect, error) {
	if target == n {
		return vd.Bounds(IdentityMatrix, 0, count), nil
	}
	if n.Is3D() || (target != nil && target.Is3D()) {
		return n.rectTo(target, vd.Bounds(IdentityMatrix, 0, count))
	}
	m, err := n.MatrixTo(target)
	if err != nil {
		return Rect{}, err
	}
	return vd.Bounds(m, 0, count), nil
}

// rectTo maps the corners of r, given in n's space, into target space and
// returns their bounds. 3D subtrees are projected through the camera.
func (n *Node) rectTo(target *Node, r Rect) (Rect, error) {
	if target == n {
		return r, nil
	}
	corners := [4][2]float64{
		{r.X, r.Y},
		{r.X + r.Width, r.Y},
		{r.X, r.Y + r.Height},
		{r.X + r.Width, r.Y + r.Height},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y, err := n.pointTo(target, c[0], c[1])
		if err != nil {
			return Rect{}, err
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

// --- Hit testing ---

// HitShape is a custom hit area in a node's local coordinates.
type HitShape interface {
	Contains(x, y float64) bool
}

// HitRect is an axis-aligned rectangular hit area in local coordinates.
type HitRect struct {
	X, Y, Width, Height float64
}

// Contains reports whether (x, y) lies inside the rectangle.
func (r HitRect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// HitCircle is a circular hit area in local coordinates.
type HitCircle struct {
	CenterX, CenterY, Radius float64
}

// Contains reports whether (x, y) lies inside or on the circle.
func (c HitCircle) Contains(x, y float64) bool {
	dx := x - c.CenterX
	dy := y - c.CenterY
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

// HitPolygon is a convex polygon hit area in local coordinates.
// Points must define a convex polygon in either winding order.
type HitPolygon struct {
	Points []Vec2
}

// Contains reports whether (x, y) lies inside a convex polygon using cross-product sign test.
func (p HitPolygon) Contains(x, y float64) bool {
	n := len(p.Points)
	if n < 3 {
		return false
	}

	// The point must be on the same side of every edge.
	var positive, negative bool
	for i := range n {
		x1, y1 := p.Points[i].X, p.Points[i].Y
		j := (i + 1) % n
		x2, y2 := p.Points[j].X, p.Points[j].Y

		cross := (x2-x1)*(y-y1) - (y2-y1)*(x-x1)
		if cross > 0 {
			positive = true
		} else if cross < 0 {
			negative = true
		}
		if positive && negative {
			return false
		}
	}
	return true
}

// HitTest returns the topmost node under p, given in n's local space, or nil.
// Children are tested back to front so the last drawn child wins. With
// forTouch set, invisible or untouchable nodes and their whole subtrees are
// skipped. Mask nodes never hit on their own, and a masked node only hits
// inside its mask.
func (n *Node) HitTest(p Vec2, forTouch bool) *Node {
	return n.hitTest(p, forTouch, false)
}

func (n *Node) hitTest(p Vec2, forTouch, asMask bool) *Node {
	if n.maskOf != nil && !asMask {
		return nil
	}
	if forTouch && (!n.Visible || !n.Touchable) {
		return nil
	}
	if n.mask != nil && !n.hitMask(p) {
		return nil
	}

	if n.Type == NodeTypeContainer {
		for i := len(n.children) - 1; i >= 0; i-- {
			c := n.children[i]
			if hit := c.hitTest(childPoint(c, p), forTouch, false); hit != nil {
				return hit
			}
		}
		if n.HitArea != nil && n.HitArea.Contains(p.X, p.Y) {
			return n
		}
		return nil
	}

	if n.HitArea != nil {
		if n.HitArea.Contains(p.X, p.Y) {
			return n
		}
		return nil
	}
	r, _ := n.contentBounds(n)
	if r.Contains(p.X, p.Y) {
		return n
	}
	return nil
}

// childPoint converts p from a container's space into child c's space.
func childPoint(c *Node, p Vec2) Vec2 {
	if c.is3D {
		return hitPoint3D(c, p)
	}
	x, y := c.LocalMatrix().Invert().TransformPoint(p.X, p.Y)
	return Vec2{x, y}
}
