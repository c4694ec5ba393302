package sapling

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextureUploads(t *testing.T) {
	dev := newFakeDevice()
	tex := newTestTexture(t, dev, 64, 32)
	assert.Equal(t, TextureOwned, tex.Kind())
	assertNear(t, "width", tex.Width(), 64)
	assertNear(t, "height", tex.Height(), 32)
	require.Len(t, dev.textures, 1)
	assert.Equal(t, 1, dev.textures[0].uploads)
	assert.Same(t, tex, tex.Root())
}

func TestTextureScale(t *testing.T) {
	dev := newFakeDevice()
	tex, err := NewTexture(dev, image.NewRGBA(image.Rect(0, 0, 64, 32)), 2, TextureOptions{})
	require.NoError(t, err)
	assertNear(t, "width", tex.Width(), 32)
	assertNear(t, "height", tex.Height(), 16)
	assert.Equal(t, 64, tex.NativeWidth())
}

func TestNewTextureLostContext(t *testing.T) {
	dev := newFakeDevice()
	dev.lost = true
	_, err := NewTexture(dev, image.NewRGBA(image.Rect(0, 0, 1, 1)), 1, TextureOptions{})
	assert.ErrorIs(t, err, ErrMissingContext)
	_, err = NewEmptyTexture(nil, 4, 4, 1, TextureOptions{})
	assert.ErrorIs(t, err, ErrMissingContext)
}

func TestNewTextureSourceError(t *testing.T) {
	dev := newFakeDevice()
	boom := errors.New("decode failed")
	_, err := NewTextureFromSource(dev, PixelSourceFunc(func() (image.Image, error) {
		return nil, boom
	}), 1, TextureOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestSubTextureRegion(t *testing.T) {
	dev := newFakeDevice()
	atlas := newTestTexture(t, dev, 100, 100)
	sub := NewSubTexture(atlas, Rect{X: 10, Y: 20, Width: 30, Height: 40}, nil, false)
	assert.Equal(t, TextureView, sub.Kind())
	assert.Same(t, atlas, sub.Root())
	assert.Same(t, atlas.Base(), sub.Base())
	assertNear(t, "width", sub.Width(), 30)
	assertNear(t, "height", sub.Height(), 40)

	u, v := sub.UVMatrix().TransformPoint(0, 0)
	assertNear(t, "u0", u, 0.1)
	assertNear(t, "v0", v, 0.2)
	u, v = sub.UVMatrix().TransformPoint(1, 1)
	assertNear(t, "u1", u, 0.4)
	assertNear(t, "v1", v, 0.6)
}

func TestSubTextureRotated(t *testing.T) {
	dev := newFakeDevice()
	atlas := newTestTexture(t, dev, 100, 100)
	frame := Rect{Width: 50, Height: 30}
	sub := NewSubTexture(atlas, Rect{Width: 30, Height: 50}, &frame, true)

	assertNear(t, "width", sub.Width(), 50)
	assertNear(t, "height", sub.Height(), 30)
	assertNear(t, "frame width", sub.FrameWidth(), 50)
	assertNear(t, "frame height", sub.FrameHeight(), 30)
	assert.True(t, sub.Rotated())

	img := NewImage("rotated", sub)
	w, h := img.Size()
	assertNear(t, "image w", w, 50)
	assertNear(t, "image h", h, 30)

	want := [4][2]float64{{0.3, 0}, {0.3, 0.5}, {0, 0}, {0, 0.5}}
	vd := img.renderVertexData()
	for i, uv := range want {
		u, v := vd.TexCoords(i)
		assertNearTol(t, "u", u, uv[0], 1e-6)
		assertNearTol(t, "v", v, uv[1], 1e-6)
	}
}

func TestNestedSubTexture(t *testing.T) {
	dev := newFakeDevice()
	atlas := newTestTexture(t, dev, 100, 100)
	outer := NewSubTexture(atlas, Rect{X: 50, Y: 0, Width: 50, Height: 50}, nil, false)
	inner := NewSubTexture(outer, Rect{X: 25, Y: 25, Width: 25, Height: 25}, nil, false)
	assert.Same(t, atlas, inner.Root())
	assert.Same(t, outer, inner.Parent())
	u, v := inner.UVMatrix().TransformPoint(0, 0)
	assertNear(t, "u", u, 0.75)
	assertNear(t, "v", v, 0.25)
}

func TestTrimFrameShiftsVertices(t *testing.T) {
	dev := newFakeDevice()
	atlas := newTestTexture(t, dev, 64, 64)
	sub := NewSubTexture(atlas, Rect{Width: 20, Height: 20}, TrimFrame(5, 6, 32, 32), false)
	img := NewImage("trimmed", sub)
	w, h := img.Size()
	assertNear(t, "w", w, 32)
	assertNear(t, "h", h, 32)

	vd := img.renderVertexData()
	x, y := vd.Position(0)
	assertNear(t, "x0", x, 5)
	assertNear(t, "y0", y, 6)
	x, y = vd.Position(3)
	assertNear(t, "x3", x, 25)
	assertNear(t, "y3", y, 26)

	b, err := img.Bounds(img)
	require.NoError(t, err)
	assert.Equal(t, Rect{X: 5, Y: 6, Width: 20, Height: 20}, b)
}

func TestFramedTextureNeedsSingleQuad(t *testing.T) {
	dev := newFakeDevice()
	atlas := newTestTexture(t, dev, 64, 64)
	sub := NewSubTexture(atlas, Rect{Width: 20, Height: 20}, TrimFrame(1, 1, 22, 22), false)
	vd := NewVertexData(8, true)
	assert.ErrorIs(t, sub.AdjustVertexData(vd, 0, 8), ErrFramedTexture)
}

func TestTextureContextRestore(t *testing.T) {
	dev := newFakeDevice()
	calls := 0
	src := PixelSourceFunc(func() (image.Image, error) {
		calls++
		return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
	})
	tex, err := NewTextureFromSource(dev, src, 1, TextureOptions{})
	require.NoError(t, err)
	old := tex.Base()

	tex.OnContextLost()
	assert.Nil(t, tex.Base())
	require.NoError(t, tex.OnContextRestored(dev))
	assert.NotNil(t, tex.Base())
	assert.NotSame(t, old, tex.Base())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, tex.Base().(*fakeTexture).uploads)
}

func TestTextureDispose(t *testing.T) {
	dev := newFakeDevice()
	tex := newTestTexture(t, dev, 4, 4)
	res := dev.textures[0]
	tex.Dispose()
	assert.True(t, res.disposed)
	assert.Nil(t, tex.Base())
	// A disposed texture is not brought back.
	require.NoError(t, tex.OnContextRestored(dev))
	assert.Nil(t, tex.Base())
}

func TestImageSetTextureKeepsColor(t *testing.T) {
	dev := newFakeDevice()
	a := newTestTexture(t, dev, 8, 8)
	b := newTestTexture(t, dev, 16, 16)
	img := NewImage("img", a)
	img.SetColor(Color{1, 0, 0, 0.5})
	img.SetTexture(b)
	assert.Same(t, b, img.Texture())
	c := img.Color()
	assertNearTol(t, "r", c.R, 1, 1e-6)
	assertNearTol(t, "a", c.A, 0.5, 1e-6)

	// Size follows the texture only on ReadjustSize.
	w, _ := img.Size()
	assertNear(t, "w", w, 8)
	img.ReadjustSize()
	w, _ = img.Size()
	assertNear(t, "w", w, 16)
}

// --- Atlas ---

func newTestAtlas(t *testing.T) (*TextureAtlas, *fakeDevice) {
	dev := newFakeDevice()
	tex := newTestTexture(t, dev, 128, 128)
	return NewTextureAtlas(tex,
		AtlasRegion{Name: "run_01", Region: Rect{X: 32, Width: 32, Height: 32}},
		AtlasRegion{Name: "run_00", Region: Rect{Width: 32, Height: 32}},
		AtlasRegion{Name: "idle", Region: Rect{Y: 32, Width: 32, Height: 64}, Rotated: true},
	), dev
}

func TestAtlasLookupCaches(t *testing.T) {
	a, _ := newTestAtlas(t)
	t1, ok := a.Lookup("run_00")
	require.True(t, ok)
	t2, _ := a.Lookup("run_00")
	assert.Same(t, t1, t2)
	assert.Same(t, a.Texture(), t1.Root())

	idle := a.SubTexture("idle")
	require.NotNil(t, idle)
	assertNear(t, "idle width", idle.Width(), 64)

	assert.Nil(t, a.SubTexture("missing"))
}

func TestAtlasPrefix(t *testing.T) {
	a, _ := newTestAtlas(t)
	assert.Equal(t, []string{"run_00", "run_01"}, a.Names("run_"))
	frames := a.SubTextures("run_")
	require.Len(t, frames, 2)
	assertNear(t, "first frame x", frames[0].Region().X, 0)
	assertNear(t, "second frame x", frames[1].Region().X, 32)
}

func TestAtlasReplaceRegion(t *testing.T) {
	a, _ := newTestAtlas(t)
	before := a.SubTexture("run_00")
	a.AddRegion(AtlasRegion{Name: "run_00", Region: Rect{X: 64, Width: 16, Height: 16}})
	after := a.SubTexture("run_00")
	assert.NotSame(t, before, after)
	assertNear(t, "width", after.Width(), 16)

	a.RemoveRegion("run_00")
	_, ok := a.Region("run_00")
	assert.False(t, ok)
}

// --- Assets ---

func TestAssetsLookupOrder(t *testing.T) {
	a, dev := newTestAtlas(t)
	assets := NewAssets()
	plain := newTestTexture(t, dev, 4, 4)
	assets.AddTexture("hero", plain)
	assets.AddAtlas("sprites", a)
	assets.AddData("level", []int{1, 2, 3})

	got, ok := assets.Texture("hero")
	require.True(t, ok)
	assert.Same(t, plain, got)

	frame, ok := assets.Texture("run_01")
	require.True(t, ok)
	assert.Same(t, a.Texture(), frame.Root())

	_, err := assets.MustTexture("nope")
	assert.Error(t, err)

	v, ok := assets.Data("level")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, v)

	var p AssetProvider = assets
	_, ok = p.Texture("idle")
	assert.True(t, ok)
}

func TestAssetsRemoveDisposes(t *testing.T) {
	dev := newFakeDevice()
	assets := NewAssets()
	tex := newTestTexture(t, dev, 4, 4)
	assets.AddTexture("t", tex)
	assets.RemoveTexture("t")
	_, ok := assets.Texture("t")
	assert.False(t, ok)
	assert.True(t, dev.textures[0].disposed)
}

func TestAssetsContextRestore(t *testing.T) {
	a, dev := newTestAtlas(t)
	assets := NewAssets()
	assets.AddAtlas("sprites", a)
	assets.onContextLost()
	assert.Nil(t, a.Texture().Base())
	assets.onContextRestored(dev)
	require.NotNil(t, a.Texture().Base())
	assert.Equal(t, 1, a.Texture().Base().(*fakeTexture).uploads)
}
