package sapling

import (
	"fmt"
	"image"
	"math"
)

// TextureKind distinguishes a texture that owns a GPU resource from a view
// into another texture.
type TextureKind uint8

const (
	TextureOwned TextureKind = iota // owns a TextureResource
	TextureView                     // rectangular view into a parent texture
)

// PixelSource re-produces a texture's pixels after the GPU context was lost.
type PixelSource interface {
	Pixels() (image.Image, error)
}

// PixelSourceFunc adapts a function to PixelSource.
type PixelSourceFunc func() (image.Image, error)

func (f PixelSourceFunc) Pixels() (image.Image, error) { return f() }

// ImageSource is a PixelSource that always returns the same decoded image.
type ImageSource struct{ Image image.Image }

func (s ImageSource) Pixels() (image.Image, error) { return s.Image, nil }

// Texture is a handle to an image on the GPU. An owned texture holds the
// resource; a view describes a region (optionally rotated and trimmed) of a
// parent texture and shares its resource.
type Texture struct {
	kind TextureKind

	// Owned
	resource   TextureResource
	nativeW    int
	nativeH    int
	scale      float64
	format     TextureFormat
	pma        bool
	mipmaps    bool
	repeat     bool
	source     PixelSource
	renderable bool

	// View
	parent  *Texture
	region  Rect
	frame   *Rect
	rotated bool
	uv      Matrix // maps view texcoords into parent texcoords

	disposed bool
}

// NewTexture creates an owned texture from img, uploading it through dev. The
// image is kept as the restore source. scale converts pixels to points.
func NewTexture(dev Device, img image.Image, scale float64, opts TextureOptions) (*Texture, error) {
	return NewTextureFromSource(dev, ImageSource{img}, scale, opts)
}

// NewTextureFromSource creates an owned texture whose pixels come from src,
// both now and after a context restore.
func NewTextureFromSource(dev Device, src PixelSource, scale float64, opts TextureOptions) (*Texture, error) {
	if dev == nil || dev.IsLost() {
		return nil, ErrMissingContext
	}
	img, err := src.Pixels()
	if err != nil {
		return nil, fmt.Errorf("sapling: texture pixels: %w", err)
	}
	b := img.Bounds()
	t := &Texture{
		kind:    TextureOwned,
		nativeW: b.Dx(),
		nativeH: b.Dy(),
		scale:   scaleOrOne(scale),
		format:  opts.Format,
		pma:     true,
		mipmaps: opts.Mipmaps,
		repeat:  opts.Repeat,
		source:  src,
	}
	t.uv = IdentityMatrix
	if err := t.create(dev); err != nil {
		return nil, err
	}
	if err := dev.UploadTexture(t.resource, img); err != nil {
		t.resource.Dispose()
		return nil, fmt.Errorf("sapling: upload texture: %w", err)
	}
	return t, nil
}

// NewEmptyTexture creates an owned texture of the given pixel size without
// content. With opts.RenderTarget it can be drawn into.
func NewEmptyTexture(dev Device, width, height int, scale float64, opts TextureOptions) (*Texture, error) {
	if dev == nil || dev.IsLost() {
		return nil, ErrMissingContext
	}
	t := &Texture{
		kind:       TextureOwned,
		nativeW:    width,
		nativeH:    height,
		scale:      scaleOrOne(scale),
		format:     opts.Format,
		pma:        true,
		mipmaps:    opts.Mipmaps,
		repeat:     opts.Repeat,
		renderable: opts.RenderTarget,
		uv:         IdentityMatrix,
	}
	if err := t.create(dev); err != nil {
		return nil, err
	}
	return t, nil
}

// WrapTexture builds an owned texture around an existing resource. The
// texture has no restore source.
func WrapTexture(res TextureResource, scale float64, pma bool) *Texture {
	w, h := res.Size()
	return &Texture{
		kind:     TextureOwned,
		resource: res,
		nativeW:  w,
		nativeH:  h,
		scale:    scaleOrOne(scale),
		pma:      pma,
		uv:       IdentityMatrix,
	}
}

// NewSubTexture returns a view of region within parent. region is in the
// parent's points. frame, if non-nil, describes where the trimmed region sits
// inside the untrimmed sprite. A rotated region is stored 90° clockwise in
// the parent.
func NewSubTexture(parent *Texture, region Rect, frame *Rect, rotated bool) *Texture {
	t := &Texture{
		kind:    TextureView,
		parent:  parent,
		region:  region,
		rotated: rotated,
	}
	if frame != nil {
		f := *frame
		t.frame = &f
	}

	m := IdentityMatrix
	if rotated {
		// (u, v) -> (1-v, u)
		m = m.Concat(TranslationMatrix(0, -1))
		m = m.Concat(Matrix{0, 1, -1, 0, 0, 0})
	}
	pw, ph := parent.Width(), parent.Height()
	m = m.Concat(Matrix{region.Width / pw, 0, 0, region.Height / ph, 0, 0})
	m = m.Concat(TranslationMatrix(region.X/pw, region.Y/ph))
	t.uv = m
	return t
}

func scaleOrOne(s float64) float64 {
	if s <= 0 {
		return 1
	}
	return s
}

func (t *Texture) create(dev Device) error {
	res, err := dev.CreateTexture(t.nativeW, t.nativeH, TextureOptions{
		Format:       t.format,
		Mipmaps:      t.mipmaps,
		Repeat:       t.repeat,
		RenderTarget: t.renderable,
	})
	if err != nil {
		return fmt.Errorf("sapling: create texture %dx%d: %w", t.nativeW, t.nativeH, err)
	}
	t.resource = res
	return nil
}

// Kind reports whether t owns its resource or is a view.
func (t *Texture) Kind() TextureKind { return t.kind }

// Root returns the owned texture at the bottom of a view chain.
func (t *Texture) Root() *Texture {
	r := t
	for r.kind == TextureView {
		r = r.parent
	}
	return r
}

// Parent returns the texture a view was cut from, or nil for owned textures.
func (t *Texture) Parent() *Texture { return t.parent }

// Base returns the GPU resource backing t. It is nil while the context is lost.
func (t *Texture) Base() TextureResource { return t.Root().resource }

// Width returns the logical width in points.
func (t *Texture) Width() float64 {
	if t.kind == TextureView {
		if t.rotated {
			return t.region.Height
		}
		return t.region.Width
	}
	return float64(t.nativeW) / t.scale
}

// Height returns the logical height in points.
func (t *Texture) Height() float64 {
	if t.kind == TextureView {
		if t.rotated {
			return t.region.Width
		}
		return t.region.Height
	}
	return float64(t.nativeH) / t.scale
}

// FrameWidth and FrameHeight return the untrimmed size: the frame size when
// a frame is set, otherwise Width/Height.
func (t *Texture) FrameWidth() float64 {
	if t.frame != nil {
		return t.frame.Width
	}
	return t.Width()
}

func (t *Texture) FrameHeight() float64 {
	if t.frame != nil {
		return t.frame.Height
	}
	return t.Height()
}

// NativeWidth returns the width in pixels.
func (t *Texture) NativeWidth() int { return int(math.Round(t.Width() * t.Scale())) }

// NativeHeight returns the height in pixels.
func (t *Texture) NativeHeight() int { return int(math.Round(t.Height() * t.Scale())) }

func (t *Texture) Scale() float64           { return t.Root().scale }
func (t *Texture) Format() TextureFormat    { return t.Root().format }
func (t *Texture) PremultipliedAlpha() bool { return t.Root().pma }
func (t *Texture) Mipmaps() bool            { return t.Root().mipmaps }
func (t *Texture) Repeat() bool             { return t.Root().repeat }

// Region returns a view's region within its parent.
func (t *Texture) Region() Rect { return t.region }

// Frame returns a copy of the trim frame, or nil.
func (t *Texture) Frame() *Rect {
	if t.frame == nil {
		return nil
	}
	f := *t.frame
	return &f
}

// Rotated reports whether a view's region is stored rotated in its parent.
func (t *Texture) Rotated() bool { return t.rotated }

// UVMatrix maps texture coordinates of t into texture coordinates of its root.
func (t *Texture) UVMatrix() Matrix {
	m := IdentityMatrix
	for cur := t; cur.kind == TextureView; cur = cur.parent {
		m = m.Concat(cur.uv)
	}
	return m
}

// AdjustVertexData maps count vertices starting at start onto this texture:
// texture coordinates are converted into root space and, if a frame is set,
// positions are shifted to honor the trim. Frames are only valid on a single
// quad (count 4).
func (t *Texture) AdjustVertexData(vd *VertexData, start, count int) error {
	if t.frame != nil {
		if count != 4 {
			return ErrFramedTexture
		}
		f := t.frame
		deltaRight := f.Width + f.X - t.Width()
		deltaBottom := f.Height + f.Y - t.Height()
		vd.TranslateVertex(start, -f.X, -f.Y)
		vd.TranslateVertex(start+1, -deltaRight, -f.Y)
		vd.TranslateVertex(start+2, -f.X, -deltaBottom)
		vd.TranslateVertex(start+3, -deltaRight, -deltaBottom)
	}
	if t.kind == TextureOwned {
		return nil
	}
	m := t.UVMatrix()
	for i := start; i < start+count; i++ {
		u, v := vd.TexCoords(i)
		u, v = m.TransformPoint(u, v)
		vd.SetTexCoords(i, u, v)
	}
	return nil
}

// SetPixelSource installs the supplier used to re-upload content after a
// context restore. Views delegate to their root.
func (t *Texture) SetPixelSource(src PixelSource) {
	t.Root().source = src
}

// OnContextLost drops the GPU resource. The handle stays valid and is
// recreated by OnContextRestored.
func (t *Texture) OnContextLost() {
	if t.kind == TextureOwned {
		t.resource = nil
	}
}

// OnContextRestored recreates the resource on dev and re-uploads its pixels
// through the pixel source, if one is installed. Views are a no-op.
func (t *Texture) OnContextRestored(dev Device) error {
	if t.kind != TextureOwned || t.disposed {
		return nil
	}
	if err := t.create(dev); err != nil {
		return err
	}
	if t.source == nil {
		return nil
	}
	img, err := t.source.Pixels()
	if err != nil {
		return fmt.Errorf("sapling: restore texture pixels: %w", err)
	}
	if err := dev.UploadTexture(t.resource, img); err != nil {
		return fmt.Errorf("sapling: restore texture upload: %w", err)
	}
	return nil
}

// Dispose releases the GPU resource of an owned texture. Disposing a view
// does nothing; nodes still referencing a disposed texture are a caller error.
func (t *Texture) Dispose() {
	if t.kind != TextureOwned || t.disposed {
		return
	}
	t.disposed = true
	if t.resource != nil {
		t.resource.Dispose()
		t.resource = nil
	}
	t.source = nil
}
