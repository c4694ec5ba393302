package sapling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFilter remembers the targets it was applied to.
type recordingFilter struct {
	pad      float64
	err      error
	calls    int
	src, dst TextureResource
}

func (f *recordingFilter) Apply(_ Device, src, dst TextureResource) error {
	f.calls++
	f.src, f.dst = src, dst
	return f.err
}

func (f *recordingFilter) Padding() float64 { return f.pad }

// --- Padding ---

func TestFilterPadding(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		want float64
	}{
		{"color matrix", NewColorMatrixFilter(), 0},
		{"blur", NewBlurFilter(8), 8},
		{"outline", NewOutlineFilter(3, ColorWhite), 3},
		{"pixel perfect outline", NewPixelPerfectOutlineFilter(ColorWhite), 1},
		{"custom", NewCustomShaderFilter(nil, 5), 5},
		{"chain", NewFilterChain(NewBlurFilter(4), NewOutlineFilter(2, ColorWhite)), 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Padding())
		})
	}
}

func TestBlurFilterNegativeRadius(t *testing.T) {
	f := NewBlurFilter(-5)
	if f.Radius != 0 {
		t.Errorf("negative radius should clamp to 0, got %d", f.Radius)
	}
}

// --- Color matrix ---

func TestColorMatrixFilterIdentity(t *testing.T) {
	f := NewColorMatrixFilter()
	c := Color{0.2, 0.4, 0.6, 0.8}
	assert.Equal(t, c, f.Transform(c))
}

func TestColorMatrixBrightness(t *testing.T) {
	f := NewColorMatrixFilter()
	f.SetBrightness(0.2)
	got := f.Transform(Color{0.5, 0.5, 0.9, 1})
	assertNear(t, "r", got.R, 0.7)
	assertNear(t, "b", got.B, 1) // clamped
	assertNear(t, "a", got.A, 1)
}

func TestColorMatrixSaturationZeroIsGray(t *testing.T) {
	f := NewColorMatrixFilter()
	f.SetSaturation(0)
	got := f.Transform(Color{1, 0, 0, 1})
	assertNear(t, "r", got.R, 0.299)
	assertNear(t, "g", got.G, 0.299)
	assertNear(t, "b", got.B, 0.299)
}

func TestColorMatrixContrastAndTint(t *testing.T) {
	f := NewColorMatrixFilter()
	f.SetContrast(0)
	assertNear(t, "gray", f.Transform(Color{0.1, 0.9, 0.4, 1}).G, 0.5)

	f.SetTint(Color{1, 0, 0, 1}, 0.5)
	got := f.Transform(Color{0, 0, 1, 1})
	assertNear(t, "r", got.R, 0.5)
	assertNear(t, "b", got.B, 0.5)
}

// --- Painter integration ---

func TestRenderFilteredNode(t *testing.T) {
	s, dev := newTestStage(t)
	f := &recordingFilter{pad: 2}
	q := NewQuad("q", 10, 10, ColorWhite)
	q.SetPosition(5, 5)
	q.SetFilter(f)
	require.NoError(t, s.Root().AddChild(q))

	renderRoot(t, s)
	require.Equal(t, 1, f.calls)
	require.Len(t, dev.draws, 2)

	// Content goes into the filter source, the filter output is composited.
	assert.Same(t, f.src, dev.drawTargets[0])
	assert.Nil(t, dev.drawTargets[1])
	assert.Same(t, f.dst, dev.draws[1].Texture)

	w, h := f.src.Size()
	assert.Equal(t, []int{16, 16}, []int{w, h}, "padded 14x14 area rounds to a power of two")

	st := s.Stats()
	assert.Equal(t, 2, st.RenderTargets)
	assert.Equal(t, 3, st.DrawCalls)

	// The composite covers the padded area in target pixels.
	verts := dev.draws[1].Vertices.(*fakeVB).verts
	assertNear(t, "x0", float64(verts[0].X), 3)
	assertNear(t, "x3", float64(verts[3].X), 17)
	assertNear(t, "u3", float64(verts[3].U), 14.0/16.0)
}

func TestRenderFilterReusesPooledTargets(t *testing.T) {
	s, dev := newTestStage(t)
	q := NewQuad("q", 10, 10, ColorWhite)
	q.SetFilter(&recordingFilter{})
	require.NoError(t, s.Root().AddChild(q))

	renderRoot(t, s)
	created := len(dev.textures)
	assert.Equal(t, 2, s.painter.targets.size())

	renderRoot(t, s)
	assert.Equal(t, created, len(dev.textures), "second frame allocated targets")
}

func TestRenderFilterError(t *testing.T) {
	s, _ := newTestStage(t)
	boom := errors.New("shader failed")
	q := NewQuad("q", 10, 10, ColorWhite)
	q.SetFilter(&recordingFilter{err: boom})
	require.NoError(t, s.Root().AddChild(q))

	err := s.Render(IdentityMatrix, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, s.painter.targets.size(), "targets leaked on error")
}

func TestRenderFilterAlpha(t *testing.T) {
	s, dev := newTestStage(t)
	q := NewQuad("q", 10, 10, ColorWhite)
	q.SetFilter(&recordingFilter{})
	q.SetAlpha(0.5)
	require.NoError(t, s.Root().AddChild(q))
	renderRoot(t, s)

	require.Len(t, dev.draws, 2)
	// Content is drawn opaque; the node's alpha applies to the composite.
	assertNearTol(t, "content alpha", float64(dev.draws[0].Vertices.(*fakeVB).verts[0].A), 1, 1e-6)
	assertNear(t, "composite alpha", dev.draws[1].Alpha, 0.5)
}

// --- Chain ---

func TestFilterChainPingPong(t *testing.T) {
	dev := newFakeDevice()
	src := &fakeTexture{w: 32, h: 32, rt: true}
	dst := &fakeTexture{w: 32, h: 32, rt: true}
	f1 := &recordingFilter{}
	f2 := &recordingFilter{}
	chain := NewFilterChain(f1, f2)

	require.NoError(t, chain.Apply(dev, src, dst))
	require.Len(t, dev.textures, 1)
	scratch := dev.textures[0]

	assert.Same(t, src, f1.src)
	assert.Same(t, scratch, f1.dst)
	assert.Same(t, scratch, f2.src)
	assert.Same(t, dst, f2.dst)
	assert.Same(t, dst, dev.target)
	assert.Len(t, dev.clears, 2)

	chain.Dispose()
	assert.True(t, scratch.disposed)
}

func TestFilterChainSingle(t *testing.T) {
	dev := newFakeDevice()
	src := &fakeTexture{w: 8, h: 8}
	dst := &fakeTexture{w: 8, h: 8}
	f := &recordingFilter{}
	require.NoError(t, NewFilterChain(f).Apply(dev, src, dst))
	assert.Same(t, dst, f.dst)
	assert.Empty(t, dev.textures)
	assert.NoError(t, NewFilterChain().Apply(dev, src, dst))
}

func TestEbitenFiltersRejectForeignResources(t *testing.T) {
	src := &fakeTexture{w: 8, h: 8}
	dst := &fakeTexture{w: 8, h: 8}
	err := NewBlurFilter(2).Apply(nil, src, dst)
	assert.ErrorIs(t, err, ErrUnsupportedResource)
}
