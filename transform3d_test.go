package sapling

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestToMat4RoundTrip(t *testing.T) {
	m := Matrix{2, 0.5, -1, 3, 7, -4}
	assertMatrix(t, "round trip", affineFrom3D(toMat4(m)), m)

	x, y := m.TransformPoint(3, 5)
	v := toMat4(m).Mul4x1(mgl64.Vec4{3, 5, 0, 1})
	assertNear(t, "x", v.X(), x)
	assertNear(t, "y", v.Y(), y)
}

func TestLocalMatrix3DFlatMatches2D(t *testing.T) {
	n := NewContainer("n")
	n.SetPosition(10, 20)
	n.SetRotation(0.4)
	n.SetScale(2, 3)
	n.SetPivot(5, 6)
	flat := n.LocalMatrix()

	n.Set3D(true)
	assertMatrix(t, "affine part", affineFrom3D(n.LocalMatrix3D()), flat)
	if !n.isPlanar() {
		t.Error("node without depth pose should be planar")
	}
}

func TestLocalMatrix3DRotationY(t *testing.T) {
	n := NewContainer("n")
	n.Set3D(true)
	n.SetRotationY(math.Pi / 2)
	// X axis rotates into -Z.
	v := n.LocalMatrix3D().Mul4x1(mgl64.Vec4{1, 0, 0, 1})
	assertNear(t, "x", v.X(), 0)
	assertNear(t, "z", v.Z(), -1)
	if n.isPlanar() {
		t.Error("rotated node reported planar")
	}
}

func TestMatrix3DToRoundTrip(t *testing.T) {
	root := NewContainer("root")
	a := NewContainer("a")
	b := NewContainer("b")
	_ = root.AddChild(a)
	_ = root.AddChild(b)
	a.Set3D(true)
	a.SetZ(50)
	a.SetRotationX(0.3)
	b.SetPosition(20, 30)

	there, err := a.Matrix3DTo(b)
	if err != nil {
		t.Fatal(err)
	}
	back, err := b.Matrix3DTo(a)
	if err != nil {
		t.Fatal(err)
	}
	if !there.Mul4(back).ApproxEqualThreshold(mgl64.Ident4(), 1e-9) {
		t.Errorf("there*back = %v, want identity", there.Mul4(back))
	}
}

func TestIs3DInherited(t *testing.T) {
	root := NewContainer("root")
	child := NewQuad("q", 10, 10, ColorWhite)
	_ = root.AddChild(child)
	if child.Is3D() {
		t.Fatal("2D tree reported 3D")
	}
	root.Set3D(true)
	if !child.Is3D() {
		t.Error("child of a 3D node should report 3D")
	}
}

func TestCameraProjectionKeepsPlane(t *testing.T) {
	cam := newCamera(400, 300, 1)
	p := cam.Projection3D().Mul4x1(mgl64.Vec4{50, 80, 0, 1})
	assertNear(t, "x", p.X()/p.W(), 50)
	assertNear(t, "y", p.Y()/p.W(), 80)
}

func TestCameraProjectionDepth(t *testing.T) {
	cam := newCamera(400, 300, 1)
	eye := cam.Position()
	assertNear(t, "eye.x", eye.X(), 200)
	assertNear(t, "eye.y", eye.Y(), 150)
	assertNear(t, "eye.z", eye.Z(), -cam.FocalLength())

	// A point pushed away from the eye moves toward the stage center.
	p := cam.Projection3D().Mul4x1(mgl64.Vec4{300, 150, 100, 1})
	x := p.X() / p.W()
	if x >= 300 || x <= 200 {
		t.Errorf("projected x = %v, want in (200, 300)", x)
	}
	// Projection agrees with the ray intersection used for hit tests.
	want := intersectLineWithXYPlane(eye, Vec3{300, 150, 100})
	assertNear(t, "ray x", x, want.X)
}

func TestLocal3DToGlobalRoundTrip(t *testing.T) {
	s, _ := newTestStage(t)
	card := NewContainer("card")
	_ = s.Root().AddChild(card)
	card.Set3D(true)
	card.SetPosition(100, 100)
	card.SetZ(40)
	card.SetRotationY(0.6)

	g := card.Local3DToGlobal(Vec3{10, 20, 0})
	l := card.GlobalToLocal3D(g)
	assertNearTol(t, "x", l.X(), 10, 1e-6)
	assertNearTol(t, "y", l.Y(), 20, 1e-6)
}

func TestHitTest3DChild(t *testing.T) {
	s, _ := newTestStage(t)
	card := NewContainer("card")
	_ = s.Root().AddChild(card)
	card.Set3D(true)
	card.SetPosition(320, 240)
	card.SetRotationY(0.5)
	q := NewQuad("face", 100, 100, ColorWhite)
	q.SetPosition(-50, -50)
	_ = card.AddChild(q)

	if hit := s.Root().HitTest(Vec2{320, 240}, true); hit != q {
		t.Errorf("center hit = %v, want face", nameOf(hit))
	}
	if hit := s.Root().HitTest(Vec2{10, 10}, true); hit != nil {
		t.Errorf("corner hit = %v, want nil", nameOf(hit))
	}
}

func TestPose3DAccessors(t *testing.T) {
	n := NewContainer("n")
	n.Set3D(true)
	assertNear(t, "default scale z", n.ScaleZ(), 1)
	n.SetZ(5)
	n.SetPivotZ(2)
	n.SetScaleZ(3)
	n.SetRotationX(0.5)
	n.SetRotationY(-0.25)
	assertNear(t, "z", n.Z(), 5)
	assertNear(t, "pivot z", n.PivotZ(), 2)
	assertNear(t, "scale z", n.ScaleZ(), 3)
	assertNear(t, "rotation x", n.RotationX(), 0.5)
	assertNear(t, "rotation y", n.RotationY(), -0.25)
}
