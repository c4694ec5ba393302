package sapling

import (
	"fmt"
	"math"
)

// Matrix is a 2D affine transform stored as [a, b, c, d, tx, ty]:
//
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
type Matrix [6]float64

// IdentityMatrix is the identity affine matrix.
var IdentityMatrix = Matrix{1, 0, 0, 1, 0, 0}

// TranslationMatrix returns a matrix that translates by (x, y).
func TranslationMatrix(x, y float64) Matrix {
	return Matrix{1, 0, 0, 1, x, y}
}

// multiplyAffine multiplies two 2D affine matrices: result = parent * child.
// The child is applied first.
func multiplyAffine(p, c Matrix) Matrix {
	return Matrix{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// Concat returns the matrix that applies m first and then other.
func (m Matrix) Concat(other Matrix) Matrix {
	return multiplyAffine(other, m)
}

// Invert returns the inverse of m.
// Returns the identity matrix if m is singular (determinant ≈ 0).
func (m Matrix) Invert() Matrix {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return IdentityMatrix
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return Matrix{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// TransformPoint applies m to the point (x, y).
func (m Matrix) TransformPoint(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// IsIdentity reports whether m is exactly the identity.
func (m Matrix) IsIdentity() bool {
	return m == IdentityMatrix
}

// computeLocalMatrix derives the local affine matrix from a node's pose.
//
// Without skew the matrix has a closed form: rotate and scale, then shift the
// translation so the pivot lands on (X, Y). With skew the matrix is composed
// step by step:
//
//	Scale -> Skew -> Rotate -> Translate(X, Y)
//
// and the translation is re-derived afterwards to honor the pivot.
func computeLocalMatrix(n *Node) Matrix {
	sx, sy := n.scaleX, n.scaleY
	px, py := n.pivotX, n.pivotY

	if n.skewX == 0 && n.skewY == 0 {
		if n.rotation == 0 {
			return Matrix{sx, 0, 0, sy, n.x - px*sx, n.y - py*sy}
		}
		sin, cos := math.Sincos(n.rotation)
		a := sx * cos
		b := sx * sin
		c := sy * -sin
		d := sy * cos
		return Matrix{a, b, c, d, n.x - px*a - py*c, n.y - px*b - py*d}
	}

	// Scale then skew.
	a := sx
	b := math.Tan(n.skewY) * sx
	c := math.Tan(n.skewX) * sy
	d := sy

	// Rotate.
	sin, cos := math.Sincos(n.rotation)
	ra := cos*a - sin*b
	rb := sin*a + cos*b
	rc := cos*c - sin*d
	rd := sin*c + cos*d

	// Translate, then move the pivot onto (X, Y).
	return Matrix{ra, rb, rc, rd, n.x - ra*px - rc*py, n.y - rb*px - rd*py}
}

// LocalMatrix returns the node's transform relative to its parent. The
// result is cached and recomputed only after a pose change.
//
// For 3D nodes this is the affine part of LocalMatrix3D with Z dropped; it is
// exact only while the node has no X/Y rotation.
func (n *Node) LocalMatrix() Matrix {
	if n.localDirty {
		if n.is3D {
			n.local = affineFrom3D(n.LocalMatrix3D())
		} else {
			n.local = computeLocalMatrix(n)
		}
		n.localDirty = false
	}
	return n.local
}

// MatrixTo returns the matrix that maps points from this node's local space
// into target's local space. A nil target means the space of the tree root's
// parent (root-inclusive). It fails with ErrNotConnected when the two nodes
// are in different trees.
func (n *Node) MatrixTo(target *Node) (Matrix, error) {
	switch {
	case target == n:
		return IdentityMatrix, nil
	case target == n.parent || (target == nil && n.parent == nil):
		return n.LocalMatrix(), nil
	case target == nil || target == n.Root():
		return n.matrixUpTo(target), nil
	case target.parent == n:
		return target.LocalMatrix().Invert(), nil
	}

	ancestor := commonAncestor(n, target)
	if ancestor == nil {
		return Matrix{}, fmt.Errorf("sapling: matrix from %q to %q: %w", n.Name, target.Name, ErrNotConnected)
	}
	up := n.matrixUpTo(ancestor)
	down := target.matrixUpTo(ancestor).Invert()
	return up.Concat(down), nil
}

// matrixUpTo concatenates local matrices from n up to (excluding) ancestor.
// A nil ancestor walks through the root.
func (n *Node) matrixUpTo(ancestor *Node) Matrix {
	m := IdentityMatrix
	for cur := n; cur != ancestor && cur != nil; cur = cur.parent {
		m = m.Concat(cur.LocalMatrix())
	}
	return m
}

// commonAncestor returns the nearest node that is an ancestor of (or equal
// to) both a and b, or nil if they are not connected.
func commonAncestor(a, b *Node) *Node {
	seen := make(map[*Node]struct{}, 8)
	for p := a; p != nil; p = p.parent {
		seen[p] = struct{}{}
	}
	for p := b; p != nil; p = p.parent {
		if _, ok := seen[p]; ok {
			return p
		}
	}
	return nil
}

// --- Pose accessors ---

// X returns the node's x position in parent space.
func (n *Node) X() float64 { return n.x }

// Y returns the node's y position in parent space.
func (n *Node) Y() float64 { return n.y }

// PivotX returns the x of the pivot, in local space. Scale, skew and
// rotation happen around the pivot.
func (n *Node) PivotX() float64 { return n.pivotX }

// PivotY returns the y of the pivot, in local space.
func (n *Node) PivotY() float64 { return n.pivotY }

// ScaleX returns the horizontal scale factor.
func (n *Node) ScaleX() float64 { return n.scaleX }

// ScaleY returns the vertical scale factor.
func (n *Node) ScaleY() float64 { return n.scaleY }

// SkewX returns the horizontal skew angle in radians.
func (n *Node) SkewX() float64 { return n.skewX }

// SkewY returns the vertical skew angle in radians.
func (n *Node) SkewY() float64 { return n.skewY }

// Rotation returns the rotation in radians, normalised to (-Pi, Pi].
func (n *Node) Rotation() float64 { return n.rotation }

// Alpha returns the node's own opacity in [0, 1].
func (n *Node) Alpha() float64 { return n.alpha }

// SetX sets the node's x position and marks the transform dirty.
func (n *Node) SetX(x float64) {
	n.x = x
	n.markDirty()
}

// SetY sets the node's y position and marks the transform dirty.
func (n *Node) SetY(y float64) {
	n.y = y
	n.markDirty()
}

// SetPosition sets the node's local X and Y and marks the transform dirty.
func (n *Node) SetPosition(x, y float64) {
	n.x = x
	n.y = y
	n.markDirty()
}

// SetScale sets both scale factors and marks the transform dirty.
func (n *Node) SetScale(sx, sy float64) {
	n.scaleX = sx
	n.scaleY = sy
	n.markDirty()
}

// SetScaleX sets the horizontal scale factor.
func (n *Node) SetScaleX(sx float64) {
	n.scaleX = sx
	n.markDirty()
}

// SetScaleY sets the vertical scale factor.
func (n *Node) SetScaleY(sy float64) {
	n.scaleY = sy
	n.markDirty()
}

// SetRotation sets the rotation in radians, normalized to (-π, π].
func (n *Node) SetRotation(r float64) {
	n.rotation = normalizeAngle(r)
	n.markDirty()
}

// SetSkew sets SkewX and SkewY (radians, normalized to (-π, π]).
func (n *Node) SetSkew(sx, sy float64) {
	n.skewX = normalizeAngle(sx)
	n.skewY = normalizeAngle(sy)
	n.markDirty()
}

// SetPivot sets the transform origin in local coordinates.
func (n *Node) SetPivot(px, py float64) {
	n.pivotX = px
	n.pivotY = py
	n.markDirty()
}

// AlignPivot moves the pivot to a corner, edge or the center of the node's
// local bounds.
func (n *Node) AlignPivot(h HAlign, v VAlign) {
	b, err := n.Bounds(n)
	if err != nil {
		return
	}
	px, py := b.X, b.Y
	switch h {
	case AlignCenter:
		px += b.Width / 2
	case AlignRight:
		px += b.Width
	}
	switch v {
	case AlignMiddle:
		py += b.Height / 2
	case AlignBottom:
		py += b.Height
	}
	n.SetPivot(px, py)
}

// SetAlpha sets the node's opacity, clamped to [0, 1].
func (n *Node) SetAlpha(a float64) {
	n.alpha = clamp01(a)
}

// markDirty invalidates the cached local matrices.
func (n *Node) markDirty() {
	n.localDirty = true
	n.local3DDirty = true
}

// normalizeAngle maps any angle into (-π, π].
func normalizeAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- Coordinate conversion ---

// LocalToGlobal converts a point in this node's space into root space. Nodes
// inside a 3D subtree are projected onto the stage plane through the camera.
func (n *Node) LocalToGlobal(p Vec2) Vec2 {
	if n.Is3D() {
		return n.Local3DToGlobal(Vec3{p.X, p.Y, 0})
	}
	m := n.matrixUpTo(nil)
	x, y := m.TransformPoint(p.X, p.Y)
	return Vec2{x, y}
}

// GlobalToLocal converts a root-space point into this node's space.
func (n *Node) GlobalToLocal(p Vec2) Vec2 {
	if n.Is3D() {
		l := n.GlobalToLocal3D(p)
		return Vec2{l[0], l[1]}
	}
	m := n.matrixUpTo(nil).Invert()
	x, y := m.TransformPoint(p.X, p.Y)
	return Vec2{x, y}
}

// pointTo maps a local point into target space, projecting through the 3D
// camera when either side lives in a 3D subtree.
func (n *Node) pointTo(target *Node, x, y float64) (float64, float64, error) {
	if n.Is3D() || (target != nil && target.Is3D()) {
		if target != nil && commonAncestor(n, target) == nil {
			return 0, 0, fmt.Errorf("sapling: point from %q to %q: %w", n.Name, target.Name, ErrNotConnected)
		}
		g := n.LocalToGlobal(Vec2{x, y})
		if target == nil {
			return g.X, g.Y, nil
		}
		l := target.GlobalToLocal(g)
		return l.X, l.Y, nil
	}
	m, err := n.MatrixTo(target)
	if err != nil {
		return 0, 0, err
	}
	px, py := m.TransformPoint(x, y)
	return px, py, nil
}
