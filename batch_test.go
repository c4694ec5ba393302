package sapling

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
)

func addQuads(t *testing.T, b *QuadBatch, n int, blend BlendMode) {
	t.Helper()
	for i := range n {
		q := NewQuad("q", 10, 10, ColorWhite)
		if err := b.AddQuad(q, 1, nil, SmoothingBilinear, TranslationMatrix(float64(i*10), 0), blend); err != nil {
			t.Fatalf("AddQuad %d: %v", i, err)
		}
	}
}

func TestQuadBatchRenderSingleDrawCall(t *testing.T) {
	dev := newFakeDevice()
	p := NewPainter(dev, DefaultConfig())
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 40, BlendNormal)

	if err := b.Render(p, mgl64.Ident4(), 1, BlendAuto); err != nil {
		t.Fatal(err)
	}
	if len(dev.draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(dev.draws))
	}
	call := dev.draws[0]
	if call.Triangles != 80 {
		t.Errorf("triangles = %d, want 80", call.Triangles)
	}
	if call.Texture != nil {
		t.Error("untextured batch drew with a texture")
	}
	if call.Blend != BlendNormal {
		t.Errorf("blend = %v, want normal", call.Blend)
	}
	if got := len(call.Vertices.(*fakeVB).verts); got != 160 {
		t.Errorf("uploaded %d vertices, want 160", got)
	}
}

func TestQuadBatchGrowsByDoubling(t *testing.T) {
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 1, BlendNormal)
	if b.Capacity() != minBatchCapacity {
		t.Fatalf("capacity = %d, want %d", b.Capacity(), minBatchCapacity)
	}
	addQuads(t, b, minBatchCapacity, BlendNormal)
	if b.Capacity() != 2*minBatchCapacity {
		t.Errorf("capacity = %d, want %d", b.Capacity(), 2*minBatchCapacity)
	}
	// Indices follow the (0,1,2) (1,3,2) pattern.
	want := []uint16{4, 5, 6, 5, 7, 6}
	if diff := cmp.Diff(want, b.indices[6:12]); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}
}

func TestQuadBatchFullLeavesBatchUntouched(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchMinCapacity = 2
	cfg.BatchMaxQuads = 4
	b := NewQuadBatch(cfg)
	addQuads(t, b, 4, BlendNormal)

	before := b.VertexData().Clone()
	err := b.AddQuad(NewQuad("extra", 1, 1, ColorWhite), 1, nil, SmoothingBilinear, IdentityMatrix, BlendNormal)
	if !errors.Is(err, ErrBatchFull) {
		t.Fatalf("err = %v, want ErrBatchFull", err)
	}
	if b.NumQuads() != 4 {
		t.Errorf("NumQuads = %d, want 4", b.NumQuads())
	}
	if diff := cmp.Diff(before.Vertices(), b.VertexData().Vertices()); diff != "" {
		t.Errorf("vertices changed (-before +after):\n%s", diff)
	}
}

func TestQuadBatchTransformsVertices(t *testing.T) {
	b := NewQuadBatch(DefaultConfig())
	q := NewQuad("q", 10, 20, ColorWhite)
	if err := b.AddQuad(q, 1, nil, 0, Matrix{2, 0, 0, 2, 5, 5}, BlendNormal); err != nil {
		t.Fatal(err)
	}
	x, y := b.VertexData().Position(3)
	assertNear(t, "x", x, 25)
	assertNear(t, "y", y, 45)
	assertNear(t, "bounds.w", b.Bounds(IdentityMatrix).Width, 20)
}

func TestQuadBatchAppliesAlpha(t *testing.T) {
	b := NewQuadBatch(DefaultConfig())
	q := NewQuad("q", 1, 1, ColorWhite)
	q.SetAlpha(0.5)
	if err := b.AddQuad(q, 0.5, nil, 0, IdentityMatrix, BlendNormal); err != nil {
		t.Fatal(err)
	}
	assertNearTol(t, "alpha", b.VertexData().Alpha(0), 0.25, 1e-6)
	// Premultiplied: color scales with alpha.
	assertNearTol(t, "red", float64(b.VertexData().Vertices()[0].R), 0.25, 1e-6)
}

func TestIsStateChangeSymmetric(t *testing.T) {
	dev := newFakeDevice()
	texA := newTestTexture(t, dev, 64, 64)
	texB := newTestTexture(t, dev, 64, 64)
	subA := NewSubTexture(texA, Rect{Width: 32, Height: 32}, nil, false)

	type state struct {
		name  string
		tex   *Texture
		tint  bool
		blend BlendMode
	}
	states := []state{
		{"untextured normal", nil, false, BlendNormal},
		{"untextured add", nil, false, BlendAdd},
		{"texA", texA, false, BlendNormal},
		{"subA", subA, false, BlendNormal},
		{"texA tinted", texA, true, BlendNormal},
		{"texB", texB, false, BlendNormal},
		{"texA add", texA, false, BlendAdd},
	}
	fill := func(s state) *QuadBatch {
		b := NewQuadBatch(DefaultConfig())
		var q *Node
		if s.tex == nil {
			q = NewQuad("q", 1, 1, ColorWhite)
		} else {
			q = NewImage("i", s.tex)
			if s.tint {
				q.SetColor(Color{1, 0, 0, 1})
			}
		}
		if err := b.AddQuad(q, 1, s.tex, SmoothingBilinear, IdentityMatrix, s.blend); err != nil {
			t.Fatal(err)
		}
		return b
	}
	for _, x := range states {
		for _, y := range states {
			bx, by := fill(x), fill(y)
			xy := bx.IsStateChange(by.tinted, 1, by.texture, by.smoothing, by.blend, 1)
			yx := by.IsStateChange(bx.tinted, 1, bx.texture, bx.smoothing, bx.blend, 1)
			if xy != yx {
				t.Errorf("IsStateChange(%s, %s) = %v but reverse = %v", x.name, y.name, xy, yx)
			}
		}
	}

	// Same root texture, different views: compatible.
	b := fill(states[2])
	if b.IsStateChange(false, 1, subA, SmoothingBilinear, BlendNormal, 1) {
		t.Error("sub-texture of the batch texture forced a state change")
	}
	if !b.IsStateChange(false, 1, texB, SmoothingBilinear, BlendNormal, 1) {
		t.Error("different texture did not force a state change")
	}
	if !b.IsStateChange(false, 1, texA, SmoothingNone, BlendNormal, 1) {
		t.Error("different smoothing did not force a state change")
	}
	if !b.IsStateChange(false, 0.5, texA, SmoothingBilinear, BlendNormal, 1) {
		t.Error("translucent parent did not force the tinted path")
	}
}

func TestIsStateChangeEmptyAcceptsAnything(t *testing.T) {
	b := NewQuadBatch(DefaultConfig())
	if b.IsStateChange(true, 0.3, nil, SmoothingNone, BlendErase, 1) {
		t.Error("empty batch reported a state change")
	}
}

func TestIsStateChangeCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchMinCapacity = 2
	cfg.BatchMaxQuads = 3
	b := NewQuadBatch(cfg)
	addQuads(t, b, 2, BlendNormal)
	if b.IsStateChange(false, 1, nil, 0, BlendNormal, 1) {
		t.Error("one more quad fits")
	}
	if !b.IsStateChange(false, 1, nil, 0, BlendNormal, 2) {
		t.Error("two more quads do not fit")
	}
}

func TestQuadBatchReset(t *testing.T) {
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 3, BlendAdd)
	capacity := b.Capacity()
	b.Reset()
	if b.NumQuads() != 0 || b.BlendMode() != BlendAuto || b.Texture() != nil {
		t.Error("Reset kept state")
	}
	if b.Capacity() != capacity {
		t.Errorf("Reset dropped capacity: %d -> %d", capacity, b.Capacity())
	}
}

func TestQuadBatchBufferReuse(t *testing.T) {
	dev := newFakeDevice()
	p := NewPainter(dev, DefaultConfig())
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 4, BlendNormal)
	if err := b.Render(p, mgl64.Ident4(), 1, BlendAuto); err != nil {
		t.Fatal(err)
	}
	vb := b.vb
	b.Reset()
	addQuads(t, b, 2, BlendNormal)
	if err := b.Render(p, mgl64.Ident4(), 1, BlendAuto); err != nil {
		t.Fatal(err)
	}
	if b.vb != vb {
		t.Error("buffers recreated although capacity did not change")
	}
	if got := len(vb.(*fakeVB).verts); got != 8 {
		t.Errorf("uploaded %d vertices, want 8", got)
	}
}

func TestQuadBatchRenderLostContext(t *testing.T) {
	dev := newFakeDevice()
	p := NewPainter(dev, DefaultConfig())
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 1, BlendNormal)
	dev.lost = true
	if err := b.Render(p, mgl64.Ident4(), 1, BlendAuto); !errors.Is(err, ErrMissingContext) {
		t.Errorf("err = %v, want ErrMissingContext", err)
	}
}

func TestQuadBatchDisposed(t *testing.T) {
	dev := newFakeDevice()
	p := NewPainter(dev, DefaultConfig())
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 1, BlendNormal)
	b.Dispose()
	if err := b.Render(p, mgl64.Ident4(), 1, BlendAuto); !errors.Is(err, ErrDisposed) {
		t.Errorf("err = %v, want ErrDisposed", err)
	}
}

func TestQuadBatchClone(t *testing.T) {
	b := NewQuadBatch(DefaultConfig())
	addQuads(t, b, 2, BlendAdd)
	c := b.Clone()
	c.VertexData().SetPosition(0, 99, 99)
	x, _ := b.VertexData().Position(0)
	if x == 99 {
		t.Error("clone shares vertex data")
	}
	if c.NumQuads() != 2 || c.BlendMode() != BlendAdd {
		t.Error("clone lost state")
	}
}

func TestAddQuadBatchMerges(t *testing.T) {
	src := NewQuadBatch(DefaultConfig())
	addQuads(t, src, 3, BlendNormal)
	dst := NewQuadBatch(DefaultConfig())
	addQuads(t, dst, 1, BlendNormal)
	if err := dst.AddQuadBatch(src, 1, TranslationMatrix(0, 100), BlendNormal); err != nil {
		t.Fatal(err)
	}
	if dst.NumQuads() != 4 {
		t.Fatalf("NumQuads = %d, want 4", dst.NumQuads())
	}
	_, y := dst.VertexData().Position(4)
	assertNear(t, "y", y, 100)
}
