package sapling

import (
	"math"
	"testing"
)

// --- computeLocalMatrix ---

func TestLocalMatrixIdentity(t *testing.T) {
	n := NewContainer("test")
	assertMatrix(t, "identity", n.LocalMatrix(), IdentityMatrix)
}

func TestLocalMatrixTranslation(t *testing.T) {
	n := NewContainer("test")
	n.SetPosition(10, 20)
	assertMatrix(t, "translation", n.LocalMatrix(), Matrix{1, 0, 0, 1, 10, 20})
}

func TestLocalMatrixScale(t *testing.T) {
	n := NewContainer("test")
	n.SetScale(2, 3)
	assertMatrix(t, "scale", n.LocalMatrix(), Matrix{2, 0, 0, 3, 0, 0})
}

func TestLocalMatrixRotation90(t *testing.T) {
	n := NewContainer("test")
	n.SetRotation(math.Pi / 2)
	// cos(90)=0, sin(90)=1 → a=0, b=1, c=-1, d=0
	assertMatrix(t, "rot90", n.LocalMatrix(), Matrix{0, 1, -1, 0, 0, 0})
}

func TestLocalMatrixPivot(t *testing.T) {
	n := NewContainer("test")
	n.SetPosition(100, 100)
	n.SetPivot(50, 50)
	n.SetRotation(math.Pi / 2)
	// The pivot lands on (X, Y).
	x, y := n.LocalMatrix().TransformPoint(50, 50)
	assertNear(t, "pivot.x", x, 100)
	assertNear(t, "pivot.y", y, 100)
	// (0,0) rotates around the pivot.
	x, y = n.LocalMatrix().TransformPoint(0, 0)
	assertNear(t, "origin.x", x, 150)
	assertNear(t, "origin.y", y, 50)
}

func TestLocalMatrixSkewUsesTangent(t *testing.T) {
	n := NewContainer("test")
	n.SetSkew(math.Pi/4, 0)
	m := n.LocalMatrix()
	// tan(45°) = 1 shears x by y.
	assertMatrix(t, "skewX", m, Matrix{1, 0, 1, 1, 0, 0})

	n.SetSkew(0, math.Pi/4)
	assertMatrix(t, "skewY", n.LocalMatrix(), Matrix{1, 1, 0, 1, 0, 0})
}

func TestLocalMatrixSkewWithPivot(t *testing.T) {
	n := NewContainer("test")
	n.SetPosition(10, 20)
	n.SetPivot(5, 5)
	n.SetSkew(0.3, -0.2)
	n.SetRotation(0.7)
	x, y := n.LocalMatrix().TransformPoint(5, 5)
	assertNear(t, "pivot.x", x, 10)
	assertNear(t, "pivot.y", y, 20)
}

func TestLocalMatrixCached(t *testing.T) {
	n := NewContainer("test")
	n.SetPosition(1, 2)
	_ = n.LocalMatrix()
	if n.localDirty {
		t.Fatal("matrix still dirty after LocalMatrix")
	}
	n.SetX(5)
	if !n.localDirty {
		t.Fatal("SetX did not invalidate the matrix")
	}
	assertNear(t, "tx", n.LocalMatrix()[4], 5)
}

func TestSetRotationNormalizes(t *testing.T) {
	n := NewContainer("test")
	n.SetRotation(2.5 * math.Pi)
	assertNear(t, "rotation", n.Rotation(), math.Pi/2)
	n.SetRotation(-3 * math.Pi / 2)
	assertNear(t, "rotation", n.Rotation(), math.Pi/2)
	n.SetRotation(-math.Pi)
	assertNear(t, "rotation", n.Rotation(), math.Pi)
}

// --- Matrix helpers ---

func TestMultiplyAffineAppliesChildFirst(t *testing.T) {
	parent := TranslationMatrix(10, 0)
	child := Matrix{2, 0, 0, 2, 0, 0}
	m := multiplyAffine(parent, child)
	x, y := m.TransformPoint(1, 1)
	assertNear(t, "x", x, 12)
	assertNear(t, "y", y, 2)
}

func TestConcatOrder(t *testing.T) {
	scale := Matrix{2, 0, 0, 2, 0, 0}
	move := TranslationMatrix(10, 0)
	x, _ := scale.Concat(move).TransformPoint(1, 0)
	assertNear(t, "scale then move", x, 12)
	x, _ = move.Concat(scale).TransformPoint(1, 0)
	assertNear(t, "move then scale", x, 22)
}

func TestInvert(t *testing.T) {
	m := Matrix{2, 1, -1, 3, 5, 7}
	assertMatrix(t, "m*inv", multiplyAffine(m, m.Invert()), IdentityMatrix)
	assertMatrix(t, "singular", Matrix{0, 0, 0, 0, 1, 1}.Invert(), IdentityMatrix)
}

// --- MatrixTo ---

func buildChain() (root, a, b, c *Node) {
	root = NewContainer("root")
	a = NewContainer("a")
	b = NewContainer("b")
	c = NewContainer("c")
	_ = root.AddChild(a)
	_ = a.AddChild(b)
	_ = root.AddChild(c)
	a.SetPosition(10, 20)
	a.SetRotation(0.5)
	b.SetScale(2, 0.5)
	b.SetPosition(-3, 4)
	c.SetPosition(100, 0)
	c.SetSkew(0.1, 0.2)
	return
}

func TestMatrixToSelf(t *testing.T) {
	_, a, _, _ := buildChain()
	m, err := a.MatrixTo(a)
	if err != nil {
		t.Fatal(err)
	}
	assertMatrix(t, "self", m, IdentityMatrix)
}

func TestMatrixToParentIsLocal(t *testing.T) {
	_, a, b, _ := buildChain()
	m, err := b.MatrixTo(a)
	if err != nil {
		t.Fatal(err)
	}
	assertMatrix(t, "to parent", m, b.LocalMatrix())
}

func TestMatrixToRoundTrip(t *testing.T) {
	_, _, b, c := buildChain()
	there, err := b.MatrixTo(c)
	if err != nil {
		t.Fatal(err)
	}
	back, err := c.MatrixTo(b)
	if err != nil {
		t.Fatal(err)
	}
	assertMatrix(t, "there*back", multiplyAffine(there, back), IdentityMatrix)
}

func TestMatrixToMatchesGlobalPoints(t *testing.T) {
	_, _, b, c := buildChain()
	m, err := b.MatrixTo(c)
	if err != nil {
		t.Fatal(err)
	}
	x, y := m.TransformPoint(3, 4)
	g := b.LocalToGlobal(Vec2{3, 4})
	want := c.GlobalToLocal(g)
	assertNear(t, "x", x, want.X)
	assertNear(t, "y", y, want.Y)
}

func TestMatrixToNilIncludesRoot(t *testing.T) {
	root, a, _, _ := buildChain()
	root.SetPosition(7, 0)
	m, err := a.MatrixTo(nil)
	if err != nil {
		t.Fatal(err)
	}
	assertMatrix(t, "to nil", m, multiplyAffine(root.LocalMatrix(), a.LocalMatrix()))

	m, err = a.MatrixTo(root)
	if err != nil {
		t.Fatal(err)
	}
	assertMatrix(t, "to root", m, a.LocalMatrix())
}

func TestMatrixToNotConnected(t *testing.T) {
	a := NewContainer("a")
	b := NewContainer("b")
	_ = NewContainer("p").AddChild(a)
	if _, err := a.MatrixTo(b); err == nil {
		t.Fatal("expected ErrNotConnected")
	}
}

func TestLocalToGlobalRoundTrip(t *testing.T) {
	_, _, b, _ := buildChain()
	p := Vec2{12.5, -7}
	back := b.GlobalToLocal(b.LocalToGlobal(p))
	assertNear(t, "x", back.X, p.X)
	assertNear(t, "y", back.Y, p.Y)
}

func TestAlignPivot(t *testing.T) {
	q := NewQuad("q", 40, 20, ColorWhite)
	q.AlignPivot(AlignCenter, AlignMiddle)
	assertNear(t, "px", q.PivotX(), 20)
	assertNear(t, "py", q.PivotY(), 10)
	q.AlignPivot(AlignRight, AlignBottom)
	assertNear(t, "px", q.PivotX(), 40)
	assertNear(t, "py", q.PivotY(), 20)
	q.AlignPivot(AlignLeft, AlignTop)
	assertNear(t, "px", q.PivotX(), 0)
	assertNear(t, "py", q.PivotY(), 0)
}
