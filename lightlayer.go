package sapling

import (
	"fmt"
	"image"
	"math"
)

// Light represents a light source in a LightLayer.
type Light struct {
	// X and Y are the light's position in the light layer's local coordinate space.
	X, Y float64
	// Radius controls the drawn size (diameter = Radius*2 points).
	Radius float64
	// Rotation is the light's rotation in radians; useful for directional shapes.
	Rotation float64
	// Intensity controls light brightness in the range [0, 1].
	Intensity float64
	// Enabled determines whether this light is drawn during Redraw.
	Enabled bool
	// Color is the tint color. Zero value or white means neutral (no tint).
	Color Color
	// Texture, if set, is drawn instead of the default feathered circle.
	Texture *Texture
	// Target, if set, makes the light follow this node's pivot point each Redraw.
	Target *Node
	// OffsetX and OffsetY offset the light from the target's pivot in
	// light-layer space.
	OffsetX float64
	OffsetY float64
}

// LightLayer provides a 2D lighting effect using erase blending. It fills a
// RenderTexture with ambient darkness and erases a feathered shape at each
// light. The texture is shown by an image node with BlendMultiply, so it
// darkens the scene everywhere except where lights shine.
//
// The lights themselves are drawn as a small private tree through the
// stage painter, so all lights sharing a texture cost one draw call per
// pass.
type LightLayer struct {
	stage        *Stage
	rt           *RenderTexture
	node         *Node
	lights       []*Light
	ambientAlpha float64
	circles      map[int]*Texture // keyed by quantized radius

	passRoot *Node
	passes   []*Node
}

// NewLightLayer creates a light layer covering width x height pixels.
// ambientAlpha controls the base darkness (0 = fully transparent, 1 = fully
// opaque black).
func (s *Stage) NewLightLayer(width, height int, ambientAlpha float64) (*LightLayer, error) {
	rt, err := s.NewRenderTexture(width, height, 1)
	if err != nil {
		return nil, fmt.Errorf("sapling: light layer: %w", err)
	}
	node := rt.NewImage("light_layer")
	node.BlendMode = BlendMultiply
	node.Touchable = false

	ll := &LightLayer{
		stage:        s,
		rt:           rt,
		node:         node,
		ambientAlpha: ambientAlpha,
		passRoot:     NewContainer("lights"),
	}
	rt.OnRestore = ll.restore
	return ll, nil
}

// Node returns the image node that displays the light layer.
// Add this to the scene graph to render the lighting effect.
func (ll *LightLayer) Node() *Node {
	return ll.node
}

// RenderTexture returns the underlying RenderTexture.
func (ll *LightLayer) RenderTexture() *RenderTexture {
	return ll.rt
}

// AddLight adds a light to the layer.
func (ll *LightLayer) AddLight(l *Light) {
	ll.lights = append(ll.lights, l)
}

// RemoveLight removes a light from the layer.
func (ll *LightLayer) RemoveLight(l *Light) {
	for i, existing := range ll.lights {
		if existing == l {
			ll.lights = append(ll.lights[:i], ll.lights[i+1:]...)
			return
		}
	}
}

// ClearLights removes all lights from the layer.
func (ll *LightLayer) ClearLights() {
	ll.lights = ll.lights[:0]
}

// Lights returns the current light list. The returned slice MUST NOT be mutated.
func (ll *LightLayer) Lights() []*Light {
	return ll.lights
}

// SetAmbientAlpha sets the base darkness level.
func (ll *LightLayer) SetAmbientAlpha(a float64) {
	ll.ambientAlpha = a
}

// AmbientAlpha returns the current ambient darkness level.
func (ll *LightLayer) AmbientAlpha() float64 {
	return ll.ambientAlpha
}

// circle returns a cached circle texture for the given radius, generating
// one if it doesn't exist. Radius is quantized to the nearest integer to
// avoid generating separate textures for tiny differences.
func (ll *LightLayer) circle(radius float64) (*Texture, error) {
	key := max(int(math.Ceil(radius)), 1)
	if ll.circles == nil {
		ll.circles = make(map[int]*Texture)
	}
	if t, ok := ll.circles[key]; ok {
		return t, nil
	}
	src := PixelSourceFunc(func() (image.Image, error) {
		return generateCircle(float64(key)), nil
	})
	t, err := NewTextureFromSource(ll.stage.dev, src, 1, TextureOptions{})
	if err != nil {
		return nil, err
	}
	ll.circles[key] = t
	return t, nil
}

// Redraw clears the texture, fills it with ambient darkness, and erases
// light shapes at each enabled light position. Lights with a Texture use
// it; lights without fall back to a generated feathered circle. Call this
// every frame (or whenever lights change) before drawing the scene.
func (ll *LightLayer) Redraw() error {
	// Sync attached lights to their target node positions.
	for _, l := range ll.lights {
		if l.Target == nil || l.Target.IsDisposed() {
			continue
		}
		g := l.Target.LocalToGlobal(Vec2{l.Target.PivotX(), l.Target.PivotY()})
		p := ll.node.GlobalToLocal(g)
		l.X = p.X + l.OffsetX
		l.Y = p.Y + l.OffsetY
	}

	a := clamp01(ll.ambientAlpha)
	if err := ll.rt.Clear(Color{A: a}); err != nil {
		return err
	}

	ll.passRoot.RemoveChildren(false)
	used := 0
	for _, l := range ll.lights {
		if !l.Enabled || l.Radius <= 0 {
			continue
		}
		tex := l.Texture
		if tex == nil {
			var err error
			if tex, err = ll.circle(l.Radius); err != nil {
				return err
			}
		}
		intensity := clamp01(l.Intensity)

		// Erase pass: punch a hole in the darkness.
		erase := ll.pass(used, l, tex)
		erase.BlendMode = BlendErase
		erase.SetColor(ColorWhite)
		erase.SetAlpha(intensity)
		used++

		// Color tint pass: additive tint if the light has a non-white/non-zero color.
		if c := l.Color; c != (Color{}) && c != ColorWhite {
			tint := ll.pass(used, l, tex)
			tint.BlendMode = BlendAdd
			tint.SetColor(Color{R: c.R, G: c.G, B: c.B, A: 1})
			tint.SetAlpha(intensity * 0.3)
			used++
		}
	}
	if used == 0 {
		return nil
	}
	return ll.rt.Draw(ll.passRoot, IdentityMatrix, 1)
}

// pass returns pooled image node i posed for l and attached to the pass tree.
func (ll *LightLayer) pass(i int, l *Light, tex *Texture) *Node {
	if i == len(ll.passes) {
		ll.passes = append(ll.passes, NewImage("light", tex))
	}
	n := ll.passes[i]
	n.SetTexture(tex)
	d := l.Radius * 2
	n.SetSize(d, d)
	n.SetPivot(l.Radius, l.Radius)
	n.SetPosition(l.X, l.Y)
	n.SetRotation(l.Rotation)
	_ = ll.passRoot.AddChild(n)
	return n
}

// restore brings the circle textures back after a context loss and redraws.
func (ll *LightLayer) restore(*RenderTexture) {
	for _, t := range ll.circles {
		t.OnContextLost()
		if err := t.OnContextRestored(ll.stage.dev); err != nil {
			Logger().Warn("light texture restore failed", "err", err)
		}
	}
	if err := ll.Redraw(); err != nil {
		Logger().Warn("light layer redraw failed", "err", err)
	}
}

// Dispose releases all resources owned by the light layer.
func (ll *LightLayer) Dispose() {
	if ll.rt != nil {
		ll.rt.Dispose()
		ll.rt = nil
	}
	for _, t := range ll.circles {
		t.Dispose()
	}
	ll.circles = nil
	ll.passRoot.Dispose()
	ll.passes = nil
	ll.lights = nil
}

// generateCircle creates a feathered white circle image with the given radius.
// Uses smoothstep falloff and premultiplied alpha.
func generateCircle(radius float64) *image.RGBA {
	size := max(int(math.Ceil(radius*2)), 1)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	pix := img.Pix

	cx, cy := radius, radius
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			dist := math.Sqrt(dx*dx+dy*dy) / radius

			var alpha float64
			if dist < 1 {
				// smoothstep: 1 at center, 0 at edge
				t := 1 - dist
				alpha = t * t * (3 - 2*t)
			}

			a := uint8(alpha * 255)
			off := y*img.Stride + x*4
			pix[off+0] = a // premultiplied white
			pix[off+1] = a
			pix[off+2] = a
			pix[off+3] = a
		}
	}
	return img
}
