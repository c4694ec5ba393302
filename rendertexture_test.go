package sapling

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderTexture(t *testing.T) {
	s, dev := newTestStage(t)
	rt, err := s.NewRenderTexture(64, 32, 1)
	require.NoError(t, err)
	assert.Equal(t, 64, rt.Width())
	assert.Equal(t, 32, rt.Height())

	res := rt.Texture().Base().(*fakeTexture)
	assert.True(t, res.rt)
	assert.Same(t, res, dev.target)
	assert.Equal(t, []Color{{}}, dev.clears, "new render texture not cleared")

	img := rt.NewImage("canvas")
	w, h := img.Size()
	assert.Equal(t, 64.0, w)
	assert.Equal(t, 32.0, h)
}

func TestNewRenderTextureInvalidSize(t *testing.T) {
	s, _ := newTestStage(t)
	_, err := s.NewRenderTexture(0, 10, 1)
	assert.Error(t, err)
	assert.Empty(t, s.renderTextures)
}

func TestRenderTextureDraw(t *testing.T) {
	s, dev := newTestStage(t)
	rt, err := s.NewRenderTexture(64, 64, 1)
	require.NoError(t, err)

	brush := NewQuad("brush", 4, 4, ColorWhite)
	brush.SetPosition(10, 10)
	require.NoError(t, rt.Draw(brush, TranslationMatrix(5, 0), 1))
	require.Len(t, dev.draws, 1)
	assert.Same(t, rt.Texture().Base(), dev.drawTargets[0])
	assert.Nil(t, s.painter.baseTarget, "painter target not restored")

	call := dev.draws[0]
	verts := call.Vertices.(*fakeVB).verts
	v := call.MVP.Mul4x1(mgl64.Vec4{float64(verts[0].X), float64(verts[0].Y), 0, 1})
	assertNear(t, "x", v.X()/v.W(), 15)
	assertNear(t, "y", v.Y()/v.W(), 10)

	// Contents accumulate: drawing does not clear.
	clears := len(dev.clears)
	require.NoError(t, rt.Draw(brush, IdentityMatrix, 1))
	assert.Equal(t, clears, len(dev.clears))
}

func TestRenderTextureDrawNodeInTree(t *testing.T) {
	s, dev := newTestStage(t)
	rt, err := s.NewRenderTexture(16, 16, 1)
	require.NoError(t, err)
	parent := NewContainer("parent")
	parent.SetPosition(100, 100)
	child := NewQuad("child", 2, 2, ColorWhite)
	require.NoError(t, parent.AddChild(child))
	require.NoError(t, s.Root().AddChild(parent))

	// Ancestors are ignored.
	require.NoError(t, rt.Draw(child, IdentityMatrix, 1))
	verts := dev.draws[0].Vertices.(*fakeVB).verts
	v := dev.draws[0].MVP.Mul4x1(mgl64.Vec4{float64(verts[3].X), float64(verts[3].Y), 0, 1})
	assertNear(t, "x", v.X()/v.W(), 2)
}

func TestRenderTextureResize(t *testing.T) {
	s, dev := newTestStage(t)
	rt, err := s.NewRenderTexture(16, 16, 1)
	require.NoError(t, err)
	old := dev.textures[len(dev.textures)-1]

	require.NoError(t, rt.Resize(32, 8))
	assert.True(t, old.disposed)
	assert.Equal(t, 32, rt.Width())
	assert.Equal(t, 8, rt.Height())
	w, h := rt.Texture().Base().Size()
	assert.Equal(t, []int{32, 8}, []int{w, h})
	assert.Error(t, rt.Resize(-1, 8))
}

func TestRenderTextureLostContext(t *testing.T) {
	s, dev := newTestStage(t)
	rt, err := s.NewRenderTexture(16, 16, 1)
	require.NoError(t, err)

	s.ContextLost()
	assert.ErrorIs(t, rt.Clear(Color{}), ErrMissingContext)
	assert.ErrorIs(t, rt.Draw(NewQuad("q", 1, 1, ColorWhite), IdentityMatrix, 1), ErrMissingContext)

	var got *RenderTexture
	rt.OnRestore = func(r *RenderTexture) { got = r }
	dev.reset()
	s.ContextRestored()
	assert.Same(t, rt, got)
	require.NotNil(t, rt.Texture().Base())
	assert.Same(t, rt.Texture().Base(), dev.target)
	assert.Equal(t, []Color{{}}, dev.clears, "restored texture not cleared")
}

func TestRenderTextureDispose(t *testing.T) {
	s, _ := newTestStage(t)
	rt, err := s.NewRenderTexture(16, 16, 1)
	require.NoError(t, err)
	rt.Dispose()
	assert.Empty(t, s.renderTextures)
	assert.Nil(t, rt.Texture().Base())
}

// --- Light layer ---

func TestLightLayerRedraw(t *testing.T) {
	s, dev := newTestStage(t)
	ll, err := s.NewLightLayer(64, 64, 0.8)
	require.NoError(t, err)
	assert.Equal(t, BlendMultiply, ll.Node().BlendMode)
	assert.False(t, ll.Node().Touchable)

	ll.AddLight(&Light{X: 10, Y: 10, Radius: 8, Intensity: 1, Enabled: true})
	ll.AddLight(&Light{X: 30, Y: 30, Radius: 8, Intensity: 1, Enabled: true, Color: Color{1, 0, 0, 1}})
	ll.AddLight(&Light{X: 50, Y: 50, Radius: 8, Intensity: 1})

	dev.reset()
	require.NoError(t, ll.Redraw())
	assert.Equal(t, []Color{{A: 0.8}}, dev.clears)

	// Two erase passes share state, the tint pass is additive.
	assert.Equal(t, []int{4, 2}, dev.triangles())
	assert.Equal(t, BlendErase, dev.draws[0].Blend)
	assert.Equal(t, BlendAdd, dev.draws[1].Blend)
	for i, target := range dev.drawTargets {
		assert.Same(t, ll.RenderTexture().Texture().Base(), target, "draw %d", i)
	}
	assert.Len(t, ll.circles, 1, "equal radii share one circle texture")
}

func TestLightLayerNoLights(t *testing.T) {
	s, dev := newTestStage(t)
	ll, err := s.NewLightLayer(32, 32, 2)
	require.NoError(t, err)
	ll.AddLight(&Light{Radius: 0, Enabled: true})
	dev.reset()
	require.NoError(t, ll.Redraw())
	assert.Empty(t, dev.draws)
	assert.Equal(t, []Color{{A: 1}}, dev.clears, "ambient alpha not clamped")
}

func TestLightLayerFollowsTarget(t *testing.T) {
	s, _ := newTestStage(t)
	ll, err := s.NewLightLayer(64, 64, 0.5)
	require.NoError(t, err)
	require.NoError(t, s.Root().AddChild(ll.Node()))
	hero := NewQuad("hero", 4, 4, ColorWhite)
	hero.SetPosition(30, 40)
	hero.SetPivot(2, 2)
	require.NoError(t, s.Root().AddChild(hero))

	l := &Light{Radius: 4, Intensity: 1, Enabled: true, Target: hero, OffsetX: 1}
	ll.AddLight(l)
	require.NoError(t, ll.Redraw())
	assertNear(t, "x", l.X, 31)
	assertNear(t, "y", l.Y, 40)
}

func TestLightLayerLightList(t *testing.T) {
	s, _ := newTestStage(t)
	ll, err := s.NewLightLayer(8, 8, 1)
	require.NoError(t, err)
	a, b := &Light{}, &Light{}
	ll.AddLight(a)
	ll.AddLight(b)
	ll.RemoveLight(a)
	assert.Equal(t, []*Light{b}, ll.Lights())
	ll.ClearLights()
	assert.Empty(t, ll.Lights())
	ll.SetAmbientAlpha(0.3)
	assert.Equal(t, 0.3, ll.AmbientAlpha())
}

func TestLightLayerRestore(t *testing.T) {
	s, dev := newTestStage(t)
	ll, err := s.NewLightLayer(32, 32, 0.5)
	require.NoError(t, err)
	ll.AddLight(&Light{X: 16, Y: 16, Radius: 4, Intensity: 1, Enabled: true})
	require.NoError(t, ll.Redraw())
	circle := ll.circles[4]
	oldRes := circle.Base()

	s.ContextLost()
	dev.reset()
	s.ContextRestored()
	assert.NotSame(t, oldRes, circle.Base(), "circle texture not recreated")
	assert.Equal(t, 1, circle.Base().(*fakeTexture).uploads)
	assert.Len(t, dev.draws, 1, "light layer not redrawn after restore")
}

func TestLightLayerDispose(t *testing.T) {
	s, dev := newTestStage(t)
	ll, err := s.NewLightLayer(32, 32, 0.5)
	require.NoError(t, err)
	ll.AddLight(&Light{Radius: 4, Intensity: 1, Enabled: true})
	require.NoError(t, ll.Redraw())
	ll.Dispose()
	for i, tex := range dev.textures {
		assert.True(t, tex.disposed, "texture %d", i)
	}
	assert.Empty(t, s.renderTextures)
}
