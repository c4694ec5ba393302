package sapling

import (
	"errors"
	"fmt"
	"time"
)

// Stage is the top-level object. It owns the root container, the painter,
// the camera and the asset registry, and it drives the GPU context protocol:
// when the device reports a lost context, every batch and texture drops its
// resources; when the device comes back, they are recreated before the next
// frame is drawn.
type Stage struct {
	root    *Node
	cfg     Config
	dev     Device
	painter *Painter
	camera  *Camera
	assets  *Assets
	tweens  tweenList

	updaters       []Updater
	renderTextures []*RenderTexture

	lost  bool
	stats FrameStats
}

// NewStage validates cfg and creates a stage drawing through dev.
func NewStage(cfg Config, dev Device) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("sapling: new stage: %w", ErrMissingContext)
	}
	if cfg.Debug {
		SetDebug(true)
	}
	root := NewContainer("root")
	s := &Stage{
		root:    root,
		cfg:     cfg,
		dev:     dev,
		painter: NewPainter(dev, cfg),
		camera:  newCamera(cfg.StageWidth, cfg.StageHeight, cfg.FieldOfView),
		assets:  NewAssets(),
	}
	root.stage = s
	return s, nil
}

// Root returns the stage's root container.
func (s *Stage) Root() *Node { return s.root }

// Camera returns the stage camera. It supplies both the 2D view used by Draw
// and the 3D eye used for every 3D node in the tree.
func (s *Stage) Camera() *Camera { return s.camera }

// Assets returns the stage's asset registry. Textures registered here are
// restored after a context loss.
func (s *Stage) Assets() *Assets { return s.assets }

// Painter returns the painter used by Render.
func (s *Stage) Painter() *Painter { return s.painter }

// Config returns the validated stage config.
func (s *Stage) Config() Config { return s.cfg }

// Device returns the device the stage draws through.
func (s *Stage) Device() Device { return s.dev }

// NewImage creates an image node using the stage's default smoothing.
func (s *Stage) NewImage(name string, tex *Texture) *Node {
	n := NewImage(name, tex)
	n.Smoothing = s.cfg.DefaultSmoothing()
	return n
}

// AddTween registers a tween group to be advanced by Update. Finished groups
// are dropped automatically.
func (s *Stage) AddTween(g *TweenGroup) { s.tweens.add(g) }

// Updater is anything the stage advances once per tick, such as a
// ParticleEmitter or a TileLayer. Returning ErrDisposed unregisters it.
type Updater interface {
	Update(dt float32) error
}

// AddUpdater registers u to be advanced by Update.
func (s *Stage) AddUpdater(u Updater) {
	if u != nil {
		s.updaters = append(s.updaters, u)
	}
}

// Update advances the camera, the registered tweens and the updaters by dt
// seconds.
func (s *Stage) Update(dt float32) {
	s.camera.update(dt)
	s.tweens.update(dt)

	live := s.updaters[:0]
	for _, u := range s.updaters {
		err := u.Update(dt)
		if errors.Is(err, ErrDisposed) {
			continue
		}
		if err != nil {
			Logger().Warn("update failed", "err", err)
		}
		live = append(live, u)
	}
	clear(s.updaters[len(live):])
	s.updaters = live
}

// Render draws the tree into the painter's bound target. vp maps stage space
// to target pixels; alpha multiplies the whole tree.
//
// If the device has lost its context, Render releases every GPU object and
// returns ErrMissingContext. The first Render after the device is back
// restores textures and batches before drawing.
func (s *Stage) Render(vp Matrix, alpha float64) error {
	if s.dev.IsLost() {
		if !s.lost {
			s.ContextLost()
		}
		return ErrMissingContext
	}
	if s.lost {
		s.ContextRestored()
	}

	var t0 time.Time
	if s.cfg.Debug {
		t0 = time.Now()
	}
	err := s.painter.Render(s.root, vp, alpha)
	s.stats = s.painter.Stats()
	if s.cfg.Debug {
		debugLog(s.stats, time.Since(t0))
	}
	return err
}

// Draw clears the back buffer to the configured color and renders the tree
// through the camera.
func (s *Stage) Draw() error {
	if s.dev.IsLost() {
		return s.Render(IdentityMatrix, 1)
	}
	s.painter.BindTarget(nil)
	if err := s.dev.SetRenderTarget(nil); err != nil {
		return fmt.Errorf("sapling: bind back buffer: %w", err)
	}
	s.dev.Clear(s.cfg.Clear())
	return s.Render(s.camera.ViewMatrix(), 1)
}

// Stats returns the counters of the last rendered frame.
func (s *Stage) Stats() FrameStats { return s.stats }

// ContextLost releases every GPU object the stage knows about without
// touching the dead context. Handles stay valid; ContextRestored recreates
// their resources. Render calls it automatically.
func (s *Stage) ContextLost() {
	if s.lost {
		return
	}
	s.lost = true
	Logger().Info("GPU context lost")

	s.painter.onContextLost()
	s.assets.onContextLost()
	for _, rt := range s.renderTextures {
		rt.onContextLost()
	}
	walk(s.root, func(n *Node) {
		if n.texture != nil {
			n.texture.Root().OnContextLost()
		}
		if n.filterResult != nil {
			n.filterResult.Root().OnContextLost()
			n.filterResult = nil
		}
		if n.batch != nil {
			n.batch.OnContextLost()
		}
		for _, b := range n.flattened {
			b.OnContextLost()
		}
	})
}

// ContextRestored recreates the resources dropped by ContextLost. Assets are
// restored first so that tree textures they own are not uploaded twice;
// flattened containers are compiled again since filter output cannot be
// recovered. Failures are logged and do not stop the remaining restores.
func (s *Stage) ContextRestored() {
	if !s.lost {
		return
	}
	s.lost = false
	Logger().Info("GPU context restored")

	s.assets.onContextRestored(s.dev)
	walk(s.root, func(n *Node) {
		if n.texture != nil {
			if root := n.texture.Root(); root.resource == nil && !root.disposed {
				if err := root.OnContextRestored(s.dev); err != nil {
					Logger().Warn("texture restore failed", "node", n.Name, "err", err)
				}
			}
		}
		if n.batch != nil {
			n.batch.OnContextRestored()
		}
	})
	// Flatten rewrites descendants, so collect first.
	var flat []*Node
	walk(s.root, func(n *Node) {
		if n.isFlat {
			flat = append(flat, n)
		}
	})
	for _, n := range flat {
		if err := n.Flatten(); err != nil {
			Logger().Warn("re-flatten failed", "node", n.Name, "err", err)
		}
	}
	// Last, so that OnRestore callbacks can draw restored trees.
	for _, rt := range s.renderTextures {
		if err := rt.onContextRestored(s.dev); err != nil {
			Logger().Warn("render texture restore failed", "err", err)
		}
	}
}

// IsContextLost reports whether the stage is waiting for the device to come
// back.
func (s *Stage) IsContextLost() bool { return s.lost }

// Dispose releases the tree, the painter's GPU objects and every registered
// asset.
func (s *Stage) Dispose() {
	s.root.Dispose()
	rts := s.renderTextures
	s.renderTextures = nil
	for _, rt := range rts {
		rt.Dispose()
	}
	s.painter.Dispose()
	s.assets.Dispose()
}

// walk visits n and its descendants depth-first, masks included.
func walk(n *Node, fn func(*Node)) {
	fn(n)
	if n.mask != nil && n.mask.parent == nil {
		walk(n.mask, fn)
	}
	for _, c := range n.children {
		walk(c, fn)
	}
}
