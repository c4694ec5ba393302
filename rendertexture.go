package sapling

import (
	"fmt"
	"slices"
)

// RenderTexture is a persistent drawable texture. Trees drawn into it
// accumulate until Clear, so it can serve as a canvas, a trail buffer or a
// cached snapshot. Unlike the pooled targets used for masks and filters, a
// RenderTexture is owned by the caller and is not recycled between frames.
//
// Its contents cannot be recovered after a context loss. The texture comes
// back transparent and OnRestore, if set, is called to redraw it.
type RenderTexture struct {
	stage *Stage
	tex   *Texture

	// OnRestore is called after the texture has been recreated following a
	// context loss.
	OnRestore func(rt *RenderTexture)
}

// NewRenderTexture creates a transparent render texture of width x height
// pixels. scale converts pixels to points, as for any texture.
func (s *Stage) NewRenderTexture(width, height int, scale float64) (*RenderTexture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("sapling: render texture %dx%d: invalid size", width, height)
	}
	tex, err := NewEmptyTexture(s.dev, width, height, scale, TextureOptions{RenderTarget: true})
	if err != nil {
		return nil, err
	}
	rt := &RenderTexture{stage: s, tex: tex}
	s.renderTextures = append(s.renderTextures, rt)
	if err := rt.Clear(Color{}); err != nil {
		rt.Dispose()
		return nil, err
	}
	return rt, nil
}

// Texture returns the texture, for use with NewImage or as a filter input.
func (rt *RenderTexture) Texture() *Texture { return rt.tex }

// Width returns the texture width in pixels.
func (rt *RenderTexture) Width() int { return rt.tex.nativeW }

// Height returns the texture height in pixels.
func (rt *RenderTexture) Height() int { return rt.tex.nativeH }

// NewImage creates an image node displaying the texture.
func (rt *RenderTexture) NewImage(name string) *Node {
	return rt.stage.NewImage(name, rt.tex)
}

// Clear fills the texture with c.
func (rt *RenderTexture) Clear(c Color) error {
	dev := rt.stage.dev
	if dev.IsLost() || rt.tex.resource == nil {
		return ErrMissingContext
	}
	if err := dev.SetRenderTarget(rt.tex.resource); err != nil {
		return fmt.Errorf("sapling: bind render texture: %w", err)
	}
	dev.Clear(c)
	return nil
}

// Draw renders n into the texture, on top of the current contents. m maps
// n's parent space to texture pixels; n's own pose and alpha still apply, and
// alpha multiplies the whole subtree. n may be part of another tree, in which
// case its ancestors are ignored.
func (rt *RenderTexture) Draw(n *Node, m Matrix, alpha float64) error {
	if rt.tex.resource == nil {
		return ErrMissingContext
	}
	p := rt.stage.painter
	prev := p.baseTarget
	p.BindTarget(rt.tex.resource)
	defer p.BindTarget(prev)

	if err := p.Render(n, m, alpha); err != nil {
		return fmt.Errorf("sapling: draw %q into render texture: %w", nameOf(n), err)
	}
	return nil
}

// Resize recreates the texture at the given pixel size. The contents are
// discarded; nodes showing the texture pick up the new size on
// ReadjustSize.
func (rt *RenderTexture) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("sapling: render texture %dx%d: invalid size", width, height)
	}
	t := rt.tex
	if t.resource != nil {
		t.resource.Dispose()
		t.resource = nil
	}
	t.nativeW, t.nativeH = width, height
	if err := t.create(rt.stage.dev); err != nil {
		return err
	}
	return rt.Clear(Color{})
}

func (rt *RenderTexture) onContextLost() {
	rt.tex.OnContextLost()
}

func (rt *RenderTexture) onContextRestored(dev Device) error {
	if rt.tex.resource == nil {
		if err := rt.tex.OnContextRestored(dev); err != nil {
			return err
		}
	}
	if err := rt.Clear(Color{}); err != nil {
		return err
	}
	if rt.OnRestore != nil {
		rt.OnRestore(rt)
	}
	return nil
}

// Dispose releases the texture and unregisters it from the stage.
func (rt *RenderTexture) Dispose() {
	rt.tex.Dispose()
	if s := rt.stage; s != nil {
		if i := slices.Index(s.renderTextures, rt); i >= 0 {
			s.renderTextures = slices.Delete(s.renderTextures, i, i+1)
		}
	}
}
