package sapling

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is a point or direction in 3D space.
type Vec3 = mgl64.Vec3

// toMat4 embeds a 2D affine matrix into a 4x4 matrix (column-major).
func toMat4(m Matrix) mgl64.Mat4 {
	return mgl64.Mat4{
		m[0], m[1], 0, 0,
		m[2], m[3], 0, 0,
		0, 0, 1, 0,
		m[4], m[5], 0, 1,
	}
}

// affineFrom3D drops the Z row and column of a 4x4 matrix.
func affineFrom3D(m mgl64.Mat4) Matrix {
	return Matrix{m[0], m[1], m[4], m[5], m[12], m[13]}
}

// computeLocalMatrix3D composes a 3D node's pose:
//
//	Translate(X, Y, Z) * RotZ * RotY * RotX * Scale * Translate(-pivot)
//
// Skew is ignored for 3D nodes.
func computeLocalMatrix3D(n *Node) mgl64.Mat4 {
	m := mgl64.Translate3D(n.x, n.y, n.z)
	if n.rotation != 0 {
		m = m.Mul4(mgl64.HomogRotate3DZ(n.rotation))
	}
	if n.rotationY != 0 {
		m = m.Mul4(mgl64.HomogRotate3DY(n.rotationY))
	}
	if n.rotationX != 0 {
		m = m.Mul4(mgl64.HomogRotate3DX(n.rotationX))
	}
	m = m.Mul4(mgl64.Scale3D(n.scaleX, n.scaleY, n.scaleZ))
	if n.pivotX != 0 || n.pivotY != 0 || n.pivotZ != 0 {
		m = m.Mul4(mgl64.Translate3D(-n.pivotX, -n.pivotY, -n.pivotZ))
	}
	return m
}

// LocalMatrix3D returns the node's 4x4 transform relative to its parent.
// Plain 2D nodes return their affine matrix embedded in 4x4 form.
func (n *Node) LocalMatrix3D() mgl64.Mat4 {
	if !n.is3D {
		return toMat4(n.LocalMatrix())
	}
	if n.local3DDirty {
		n.local3D = computeLocalMatrix3D(n)
		n.local3DDirty = false
	}
	return n.local3D
}

// Matrix3DTo is the 3D counterpart of MatrixTo. Use it whenever Is3D reports
// true for either node.
func (n *Node) Matrix3DTo(target *Node) (mgl64.Mat4, error) {
	switch {
	case target == n:
		return mgl64.Ident4(), nil
	case target == n.parent || (target == nil && n.parent == nil):
		return n.LocalMatrix3D(), nil
	case target == nil || target == n.Root():
		return n.matrix3DUpTo(target), nil
	case target.parent == n:
		return target.LocalMatrix3D().Inv(), nil
	}

	ancestor := commonAncestor(n, target)
	if ancestor == nil {
		return mgl64.Mat4{}, fmt.Errorf("sapling: 3D matrix from %q to %q: %w", n.Name, target.Name, ErrNotConnected)
	}
	up := n.matrix3DUpTo(ancestor)
	down := target.matrix3DUpTo(ancestor).Inv()
	return down.Mul4(up), nil
}

func (n *Node) matrix3DUpTo(ancestor *Node) mgl64.Mat4 {
	m := mgl64.Ident4()
	for cur := n; cur != ancestor && cur != nil; cur = cur.parent {
		m = cur.LocalMatrix3D().Mul4(m)
	}
	return m
}

// Set3D switches the node between the 2D pose and the full 3D pose. Any node
// type may be 3D. A 3D leaf whose pose leaves the plane is drawn in a batch
// of its own.
func (n *Node) Set3D(on bool) {
	if n.is3D == on {
		return
	}
	n.is3D = on
	if on && n.scaleZ == 0 {
		n.scaleZ = 1
	}
	n.markDirty()
}

// Is3D reports whether this node or any ancestor uses a 3D pose.
func (n *Node) Is3D() bool {
	for p := n; p != nil; p = p.parent {
		if p.is3D {
			return true
		}
	}
	return false
}

// Z returns the depth position.
func (n *Node) Z() float64 { return n.z }

// PivotZ returns the depth component of the pivot.
func (n *Node) PivotZ() float64 { return n.pivotZ }

// ScaleZ returns the depth scale.
func (n *Node) ScaleZ() float64 { return n.scaleZ }

// RotationX returns the rotation around the x axis, in radians.
func (n *Node) RotationX() float64 { return n.rotationX }

// RotationY returns the rotation around the y axis, in radians.
func (n *Node) RotationY() float64 { return n.rotationY }

// SetZ sets the depth position. Only meaningful on 3D nodes.
func (n *Node) SetZ(z float64) {
	n.z = z
	n.markDirty()
}

// SetPivotZ sets the depth component of the pivot.
func (n *Node) SetPivotZ(pz float64) {
	n.pivotZ = pz
	n.markDirty()
}

// SetScaleZ sets the depth scale factor.
func (n *Node) SetScaleZ(sz float64) {
	n.scaleZ = sz
	n.markDirty()
}

// SetRotationX sets the rotation around the X axis (radians, normalized).
func (n *Node) SetRotationX(r float64) {
	n.rotationX = normalizeAngle(r)
	n.markDirty()
}

// SetRotationY sets the rotation around the Y axis (radians, normalized).
func (n *Node) SetRotationY(r float64) {
	n.rotationY = normalizeAngle(r)
	n.markDirty()
}

// --- Projection onto the stage plane ---

// cameraPosition returns the 3D camera position expressed in space's
// coordinate system.
func cameraPosition(space *Node) Vec3 {
	eye := space.camera().Position()
	if space == nil {
		return eye
	}
	m, _ := space.Matrix3DTo(nil)
	return m.Inv().Mul4x1(eye.Vec4(1)).Vec3()
}

// camera returns the camera of the stage owning n's tree, or the default
// orthographic camera for detached trees.
func (n *Node) camera() *Camera {
	if n != nil {
		if s := n.Root().stage; s != nil {
			return s.camera
		}
	}
	return defaultCamera
}

// intersectLineWithXYPlane returns where the line through a and b crosses
// z = 0. A line parallel to the plane yields b's x/y.
func intersectLineWithXYPlane(a, b Vec3) Vec2 {
	v := b.Sub(a)
	if v.Z() == 0 {
		return Vec2{b.X(), b.Y()}
	}
	lambda := -a.Z() / v.Z()
	return Vec2{a.X() + lambda*v.X(), a.Y() + lambda*v.Y()}
}

// Local3DToGlobal projects a point in this node's 3D space onto the root
// plane as seen from the stage camera.
func (n *Node) Local3DToGlobal(p Vec3) Vec2 {
	m, _ := n.Matrix3DTo(nil)
	t := m.Mul4x1(p.Vec4(1))
	if w := t.W(); w != 0 && w != 1 {
		t = t.Mul(1 / w)
	}
	return intersectLineWithXYPlane(n.camera().Position(), t.Vec3())
}

// GlobalToLocal3D finds the point on this node's z = 0 plane that the camera
// sees at global point p.
func (n *Node) GlobalToLocal3D(p Vec2) Vec3 {
	eye := cameraPosition(n)
	m, _ := n.Matrix3DTo(nil)
	pt := m.Inv().Mul4x1(mgl64.Vec4{p.X, p.Y, 0, 1}).Vec3()
	l := intersectLineWithXYPlane(eye, pt)
	return Vec3{l.X, l.Y, 0}
}

// hitPoint3D converts a point from the parent's 2D space into a 3D child's
// local plane.
func hitPoint3D(child *Node, parentPoint Vec2) Vec2 {
	var eye Vec3
	if child.parent != nil {
		eye = cameraPosition(child.parent)
	} else {
		eye = child.camera().Position()
	}
	inv := child.LocalMatrix3D().Inv()
	eyeLocal := inv.Mul4x1(eye.Vec4(1)).Vec3()
	pt := inv.Mul4x1(mgl64.Vec4{parentPoint.X, parentPoint.Y, 0, 1}).Vec3()
	return intersectLineWithXYPlane(eyeLocal, pt)
}
