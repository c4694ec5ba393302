package sapling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageErrors(t *testing.T) {
	_, err := NewStage(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrMissingContext)

	cfg := DefaultConfig()
	cfg.Smoothing = "cubic"
	_, err = NewStage(cfg, newFakeDevice())
	assert.Error(t, err)
}

func TestStageRootBelongsToStage(t *testing.T) {
	s, _ := newTestStage(t)
	q := NewQuad("q", 1, 1, ColorWhite)
	require.NoError(t, s.Root().AddChild(q))
	assert.Same(t, s, q.Stage())
	assert.Same(t, s.Camera(), q.camera())
}

func TestStageNewImageUsesDefaultSmoothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing = "none"
	dev := newFakeDevice()
	s, err := NewStage(cfg, dev)
	require.NoError(t, err)
	img := s.NewImage("img", newTestTexture(t, dev, 4, 4))
	assert.Equal(t, SmoothingNone, img.Smoothing)
}

func TestStageDrawClearsBackBuffer(t *testing.T) {
	s, dev := newTestStage(t)
	require.NoError(t, s.Root().AddChild(NewQuad("q", 1, 1, ColorWhite)))
	dev.target = &fakeTexture{}

	require.NoError(t, s.Draw())
	require.NotEmpty(t, dev.clears)
	assert.Equal(t, s.Config().Clear(), dev.clears[0])
	assert.Nil(t, dev.drawTargets[0])
	assert.Equal(t, 1, s.Stats().DrawCalls)
}

// countingUpdater returns ErrDisposed after its budget runs out.
type countingUpdater struct {
	calls, budget int
	err           error
}

func (u *countingUpdater) Update(float32) error {
	u.calls++
	if u.calls >= u.budget {
		return ErrDisposed
	}
	return u.err
}

func TestStageUpdaters(t *testing.T) {
	s, _ := newTestStage(t)
	short := &countingUpdater{budget: 2}
	long := &countingUpdater{budget: 100, err: errors.New("hiccup")}
	s.AddUpdater(short)
	s.AddUpdater(long)
	s.AddUpdater(nil)

	s.Update(0.1)
	s.Update(0.1)
	s.Update(0.1)
	assert.Equal(t, 2, short.calls, "disposed updater kept running")
	assert.Equal(t, 3, long.calls, "failing updater dropped")
	assert.Len(t, s.updaters, 1)
}

func TestStageContextLossAndRestore(t *testing.T) {
	s, dev := newTestStage(t)

	shared := newTestTexture(t, dev, 16, 16)
	s.Assets().AddTexture("shared", shared)
	solo := newTestTexture(t, dev, 8, 8)

	box := NewContainer("box")
	require.NoError(t, box.AddChild(NewImage("a", shared)))
	require.NoError(t, box.AddChild(NewImage("b", solo)))
	require.NoError(t, s.Root().AddChild(box))

	frozen := NewContainer("frozen")
	require.NoError(t, frozen.AddChild(NewQuad("q", 4, 4, ColorWhite)))
	require.NoError(t, s.Root().AddChild(frozen))
	require.NoError(t, frozen.Flatten())

	static := NewQuadBatch(DefaultConfig())
	addQuads(t, static, 2, BlendNormal)
	require.NoError(t, s.Root().AddChild(NewBatchNode("static", static)))

	rt, err := s.NewRenderTexture(32, 32, 1)
	require.NoError(t, err)
	restored := 0
	rt.OnRestore = func(*RenderTexture) { restored++ }
	require.NoError(t, s.Root().AddChild(rt.NewImage("canvas")))

	renderRoot(t, s)
	liveDraws := len(dev.draws)
	require.NotNil(t, static.vb)

	// Loss: every resource is dropped, handles survive.
	dev.lost = true
	assert.ErrorIs(t, s.Render(IdentityMatrix, 1), ErrMissingContext)
	assert.True(t, s.IsContextLost())
	assert.Nil(t, shared.Base())
	assert.Nil(t, solo.Base())
	assert.Nil(t, rt.Texture().Base())
	assert.Nil(t, static.vb)
	assert.ErrorIs(t, s.Draw(), ErrMissingContext)

	// Restore on the next frame.
	dev.lost = false
	dev.reset()
	before := len(dev.textures)
	renderRoot(t, s)
	assert.False(t, s.IsContextLost())

	assert.Equal(t, 3, len(dev.textures)-before, "shared, solo and canvas recreated once each")
	require.NotNil(t, shared.Base())
	assert.Equal(t, 1, shared.Base().(*fakeTexture).uploads)
	assert.Equal(t, 1, solo.Base().(*fakeTexture).uploads)
	assert.True(t, rt.Texture().Base().(*fakeTexture).rt)
	assert.Equal(t, 1, restored)
	assert.True(t, frozen.IsFlattened())
	assert.NotEmpty(t, frozen.FlattenedBatches())
	assert.NotNil(t, static.vb)
	assert.Equal(t, liveDraws, len(dev.draws))
}

func TestStageContextRestoreSkipsDisposedTextures(t *testing.T) {
	s, dev := newTestStage(t)
	tex := newTestTexture(t, dev, 4, 4)
	require.NoError(t, s.Root().AddChild(NewImage("img", tex)))
	tex.Dispose()

	s.ContextLost()
	s.ContextLost()
	before := len(dev.textures)
	s.ContextRestored()
	assert.Equal(t, before, len(dev.textures))
	assert.Nil(t, tex.Base())
}

func TestStageDispose(t *testing.T) {
	s, dev := newTestStage(t)
	tex := newTestTexture(t, dev, 4, 4)
	s.Assets().AddTexture("t", tex)
	rt, err := s.NewRenderTexture(8, 8, 1)
	require.NoError(t, err)

	s.Dispose()
	assert.True(t, dev.textures[0].disposed)
	assert.True(t, dev.textures[1].disposed)
	assert.Nil(t, rt.Texture().Base())
	assert.True(t, s.Root().IsDisposed())
}
