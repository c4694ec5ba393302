package sapling

import (
	"fmt"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Filter is a visual effect applied to a node's rendered output. The painter
// draws the node into src, binds dst and calls Apply; the result in dst is
// composited in place of the node.
type Filter interface {
	// Apply renders src into dst with the filter effect.
	Apply(dev Device, src, dst TextureResource) error
	// Padding returns the extra pixels needed around the source to accommodate
	// the effect (e.g. blur radius, outline thickness). Zero means no padding.
	Padding() float64
}

// SetFilter attaches f to the node; nil removes it. A flattened ancestor must
// be flattened again to pick up the change.
func (n *Node) SetFilter(f Filter) {
	n.filter = f
	if f == nil {
		n.releaseOwnFilterResult()
	}
}

// Filter returns the attached filter, or nil.
func (n *Node) Filter() Filter { return n.filter }

// filterImages resolves src and dst to Ebitengine images.
func filterImages(src, dst TextureResource) (*ebiten.Image, *ebiten.Image, error) {
	s, ok := EbitenImage(src)
	if !ok {
		return nil, nil, fmt.Errorf("sapling: filter source %T: %w", src, ErrUnsupportedResource)
	}
	d, ok := EbitenImage(dst)
	if !ok {
		return nil, nil, fmt.Errorf("sapling: filter target %T: %w", dst, ErrUnsupportedResource)
	}
	return s, d, nil
}

// --- Kage shader sources ---
// All shaders use //kage:unit pixels as required by Ebitengine.
// Ebitengine uses premultiplied alpha; shaders un-premultiply before processing
// and re-premultiply output where needed.

const colorMatrixShaderSrc = `//kage:unit pixels
package main

var Matrix [20]float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	// Un-premultiply alpha.
	if c.a > 0 {
		c.rgb /= c.a
	}
	// Apply 4x5 color matrix (row-major, offset in elements 4,9,14,19).
	r := Matrix[0]*c.r + Matrix[1]*c.g + Matrix[2]*c.b + Matrix[3]*c.a + Matrix[4]
	g := Matrix[5]*c.r + Matrix[6]*c.g + Matrix[7]*c.b + Matrix[8]*c.a + Matrix[9]
	b := Matrix[10]*c.r + Matrix[11]*c.g + Matrix[12]*c.b + Matrix[13]*c.a + Matrix[14]
	a := Matrix[15]*c.r + Matrix[16]*c.g + Matrix[17]*c.b + Matrix[18]*c.a + Matrix[19]
	r = clamp(r, 0, 1)
	g = clamp(g, 0, 1)
	b = clamp(b, 0, 1)
	a = clamp(a, 0, 1)
	return vec4(r*a, g*a, b*a, a)
}
`

const pixelPerfectOutlineShaderSrc = `//kage:unit pixels
package main

var OutlineColor vec4

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	if c.a > 0 {
		return c
	}
	if imageSrc0At(src + vec2(1, 0)).a > 0 ||
		imageSrc0At(src + vec2(-1, 0)).a > 0 ||
		imageSrc0At(src + vec2(0, 1)).a > 0 ||
		imageSrc0At(src + vec2(0, -1)).a > 0 {
		return OutlineColor
	}
	return vec4(0)
}
`

// --- Lazy shader compilation (single-threaded, no sync.Once) ---

var (
	colorMatrixShader *ebiten.Shader
	ppOutlineShader   *ebiten.Shader
)

func ensureShader(slot **ebiten.Shader, name, src string) (*ebiten.Shader, error) {
	if *slot == nil {
		s, err := ebiten.NewShader([]byte(src))
		if err != nil {
			return nil, fmt.Errorf("sapling: compile %s shader: %w", name, err)
		}
		*slot = s
	}
	return *slot, nil
}

// --- ColorMatrixFilter ---

// ColorMatrixFilter applies a 4x5 color matrix transformation using a Kage shader.
// The matrix is stored in row-major order: [R_r, R_g, R_b, R_a, R_offset, G_r, ...].
type ColorMatrixFilter struct {
	Matrix      [20]float64
	uniforms    map[string]any
	matrixF32   [20]float32
	matrixSlice []float32
	shaderOp    ebiten.DrawRectShaderOptions
}

// NewColorMatrixFilter creates a color matrix filter initialized to the identity.
func NewColorMatrixFilter() *ColorMatrixFilter {
	f := &ColorMatrixFilter{
		uniforms: make(map[string]any, 1),
	}
	f.matrixSlice = f.matrixF32[:]
	f.uniforms["Matrix"] = f.matrixSlice
	f.Reset()
	return f
}

// Reset restores the identity matrix.
func (f *ColorMatrixFilter) Reset() {
	f.Matrix = [20]float64{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// SetBrightness sets the matrix to adjust brightness by the given offset [-1, 1].
func (f *ColorMatrixFilter) SetBrightness(b float64) {
	f.Matrix = [20]float64{
		1, 0, 0, 0, b,
		0, 1, 0, 0, b,
		0, 0, 1, 0, b,
		0, 0, 0, 1, 0,
	}
}

// SetContrast sets the matrix to adjust contrast. c=1 is normal, 0=gray, >1 is higher.
func (f *ColorMatrixFilter) SetContrast(c float64) {
	t := (1.0 - c) / 2.0
	f.Matrix = [20]float64{
		c, 0, 0, 0, t,
		0, c, 0, 0, t,
		0, 0, c, 0, t,
		0, 0, 0, 1, 0,
	}
}

// SetSaturation sets the matrix to adjust saturation. s=1 is normal, 0=grayscale.
func (f *ColorMatrixFilter) SetSaturation(s float64) {
	sr := (1 - s) * 0.299
	sg := (1 - s) * 0.587
	sb := (1 - s) * 0.114
	f.Matrix = [20]float64{
		sr + s, sg, sb, 0, 0,
		sr, sg + s, sb, 0, 0,
		sr, sg, sb + s, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// SetTint blends every pixel towards c by amount in [0, 1], keeping alpha.
func (f *ColorMatrixFilter) SetTint(c Color, amount float64) {
	k := 1 - amount
	f.Matrix = [20]float64{
		k, 0, 0, 0, c.R * amount,
		0, k, 0, 0, c.G * amount,
		0, 0, k, 0, c.B * amount,
		0, 0, 0, 1, 0,
	}
}

// Transform returns the color the filter produces for a straight-alpha input.
func (f *ColorMatrixFilter) Transform(c Color) Color {
	m := &f.Matrix
	row := func(i int) float64 {
		return clamp01(m[i]*c.R + m[i+1]*c.G + m[i+2]*c.B + m[i+3]*c.A + m[i+4])
	}
	return Color{row(0), row(5), row(10), row(15)}
}

// Apply renders the color matrix transformation from src into dst.
func (f *ColorMatrixFilter) Apply(_ Device, src, dst TextureResource) error {
	s, d, err := filterImages(src, dst)
	if err != nil {
		return err
	}
	shader, err := ensureShader(&colorMatrixShader, "color matrix", colorMatrixShaderSrc)
	if err != nil {
		return err
	}
	for i, v := range f.Matrix {
		f.matrixF32[i] = float32(v)
	}
	b := s.Bounds()
	f.shaderOp.Images[0] = s
	f.shaderOp.Uniforms = f.uniforms
	d.DrawRectShader(b.Dx(), b.Dy(), shader, &f.shaderOp)
	return nil
}

// Padding returns 0; color matrix transforms don't expand the image bounds.
func (f *ColorMatrixFilter) Padding() float64 { return 0 }

// --- BlurFilter ---

// BlurFilter applies a Kawase iterative blur using downscale/upscale passes.
// No Kage shader needed: bilinear filtering during DrawImage does the work.
type BlurFilter struct {
	Radius int
	temps  []*ebiten.Image
	imgOp  ebiten.DrawImageOptions
}

// NewBlurFilter creates a blur filter with the given radius (in pixels).
func NewBlurFilter(radius int) *BlurFilter {
	return &BlurFilter{Radius: max(radius, 0)}
}

// Apply renders a Kawase blur from src into dst using iterative downscale/upscale.
func (f *BlurFilter) Apply(_ Device, src, dst TextureResource) error {
	s, d, err := filterImages(src, dst)
	if err != nil {
		return err
	}
	op := &f.imgOp
	if f.Radius <= 0 {
		op.GeoM.Reset()
		op.ColorScale.Reset()
		op.Filter = ebiten.FilterNearest
		d.DrawImage(s, op)
		return nil
	}

	passes := max(int(math.Ceil(math.Log2(float64(f.Radius)))), 1)
	w, h := s.Bounds().Dx(), s.Bounds().Dy()

	for len(f.temps) < passes {
		f.temps = append(f.temps, nil)
	}
	for i := passes; i < len(f.temps); i++ {
		if f.temps[i] != nil {
			f.temps[i].Deallocate()
			f.temps[i] = nil
		}
	}
	f.temps = f.temps[:passes]

	current := s
	for i := range passes {
		w = max(w/2, 1)
		h = max(h/2, 1)
		if f.temps[i] == nil || f.temps[i].Bounds().Dx() != w || f.temps[i].Bounds().Dy() != h {
			if f.temps[i] != nil {
				f.temps[i].Deallocate()
			}
			f.temps[i] = ebiten.NewImage(w, h)
		} else {
			f.temps[i].Clear()
		}
		f.scaleInto(f.temps[i], current)
		current = f.temps[i]
	}
	for i := passes - 2; i >= 0; i-- {
		f.temps[i].Clear()
		f.scaleInto(f.temps[i], current)
		current = f.temps[i]
	}
	f.scaleInto(d, current)
	return nil
}

func (f *BlurFilter) scaleInto(dst, src *ebiten.Image) {
	op := &f.imgOp
	op.GeoM.Reset()
	op.ColorScale.Reset()
	op.GeoM.Scale(
		float64(dst.Bounds().Dx())/float64(src.Bounds().Dx()),
		float64(dst.Bounds().Dy())/float64(src.Bounds().Dy()),
	)
	op.Filter = ebiten.FilterLinear
	dst.DrawImage(src, op)
}

// Padding returns the blur radius; the offscreen buffer is expanded to avoid clipping.
func (f *BlurFilter) Padding() float64 { return float64(f.Radius) }

// --- OutlineFilter ---

// OutlineFilter draws the source in 8 cardinal/diagonal offsets with the outline
// color, then draws the original on top. Works at any thickness.
type OutlineFilter struct {
	Thickness int
	Color     Color
	imgOp     ebiten.DrawImageOptions
}

// NewOutlineFilter creates an outline filter.
func NewOutlineFilter(thickness int, c Color) *OutlineFilter {
	return &OutlineFilter{Thickness: thickness, Color: c}
}

// Apply draws an 8-direction offset outline behind the source image.
func (f *OutlineFilter) Apply(_ Device, src, dst TextureResource) error {
	s, d, err := filterImages(src, dst)
	if err != nil {
		return err
	}
	t := float64(f.Thickness)
	offsets := [8][2]float64{
		{-t, 0}, {t, 0}, {0, -t}, {0, t},
		{-t, -t}, {t, -t}, {-t, t}, {t, t},
	}

	op := &f.imgOp
	for _, off := range offsets {
		op.GeoM.Reset()
		op.ColorScale.Reset()
		op.GeoM.Translate(off[0], off[1])
		op.ColorScale.Scale(
			float32(f.Color.R*f.Color.A),
			float32(f.Color.G*f.Color.A),
			float32(f.Color.B*f.Color.A),
			float32(f.Color.A),
		)
		d.DrawImage(s, op)
	}
	op.GeoM.Reset()
	op.ColorScale.Reset()
	d.DrawImage(s, op)
	return nil
}

// Padding returns the outline thickness; the offscreen buffer is expanded by this amount.
func (f *OutlineFilter) Padding() float64 { return float64(f.Thickness) }

// --- PixelPerfectOutlineFilter ---

// PixelPerfectOutlineFilter uses a Kage shader to draw a 1-pixel outline
// around non-transparent pixels by testing cardinal neighbors.
type PixelPerfectOutlineFilter struct {
	Color      Color
	uniforms   map[string]any
	colorF32   [4]float32
	colorSlice []float32
	shaderOp   ebiten.DrawRectShaderOptions
}

// NewPixelPerfectOutlineFilter creates a pixel-perfect outline filter.
func NewPixelPerfectOutlineFilter(c Color) *PixelPerfectOutlineFilter {
	f := &PixelPerfectOutlineFilter{
		Color:    c,
		uniforms: make(map[string]any, 1),
	}
	f.colorSlice = f.colorF32[:]
	f.uniforms["OutlineColor"] = f.colorSlice
	return f
}

// Apply draws a 1-pixel outline around non-transparent pixels.
func (f *PixelPerfectOutlineFilter) Apply(_ Device, src, dst TextureResource) error {
	s, d, err := filterImages(src, dst)
	if err != nil {
		return err
	}
	shader, err := ensureShader(&ppOutlineShader, "outline", pixelPerfectOutlineShaderSrc)
	if err != nil {
		return err
	}
	f.colorF32 = [4]float32{
		float32(f.Color.R * f.Color.A),
		float32(f.Color.G * f.Color.A),
		float32(f.Color.B * f.Color.A),
		float32(f.Color.A),
	}
	b := s.Bounds()
	f.shaderOp.Images[0] = s
	f.shaderOp.Uniforms = f.uniforms
	d.DrawRectShader(b.Dx(), b.Dy(), shader, &f.shaderOp)
	return nil
}

// Padding returns 1 for the outline pixel.
func (f *PixelPerfectOutlineFilter) Padding() float64 { return 1 }

// --- CustomShaderFilter ---

// CustomShaderFilter wraps a user-provided Kage shader, exposing Ebitengine's
// shader system directly. Images[0] is auto-filled with the source texture;
// the user may set Images[1] and Images[2] for additional textures.
type CustomShaderFilter struct {
	Shader   *ebiten.Shader
	Uniforms map[string]any
	Images   [3]*ebiten.Image
	padding  float64
	shaderOp ebiten.DrawRectShaderOptions
}

// NewCustomShaderFilter creates a custom shader filter with the given shader and padding.
func NewCustomShaderFilter(shader *ebiten.Shader, padding float64) *CustomShaderFilter {
	return &CustomShaderFilter{
		Shader:   shader,
		Uniforms: make(map[string]any),
		padding:  padding,
	}
}

// Apply runs the user-provided Kage shader with src as Images[0].
func (f *CustomShaderFilter) Apply(_ Device, src, dst TextureResource) error {
	s, d, err := filterImages(src, dst)
	if err != nil {
		return err
	}
	b := s.Bounds()
	f.shaderOp.Images[0] = s
	f.shaderOp.Images[1] = f.Images[1]
	f.shaderOp.Images[2] = f.Images[2]
	f.shaderOp.Uniforms = f.Uniforms
	d.DrawRectShader(b.Dx(), b.Dy(), f.Shader, &f.shaderOp)
	return nil
}

// Padding returns the padding value set at construction time.
func (f *CustomShaderFilter) Padding() float64 { return f.padding }

// --- FilterChain ---

// FilterChain runs several filters in order, ping-ponging between dst and a
// scratch target of the same size.
type FilterChain struct {
	Filters []Filter
	scratch TextureResource
}

// NewFilterChain returns a chain of the given filters.
func NewFilterChain(filters ...Filter) *FilterChain {
	return &FilterChain{Filters: filters}
}

// Apply runs every filter, leaving the final result in dst.
func (c *FilterChain) Apply(dev Device, src, dst TextureResource) error {
	switch len(c.Filters) {
	case 0:
		return nil
	case 1:
		return c.Filters[0].Apply(dev, src, dst)
	}
	w, h := dst.Size()
	if c.scratch != nil {
		if sw, sh := c.scratch.Size(); sw != w || sh != h {
			c.scratch.Dispose()
			c.scratch = nil
		}
	}
	if c.scratch == nil {
		res, err := dev.CreateTexture(w, h, TextureOptions{RenderTarget: true})
		if err != nil {
			return fmt.Errorf("sapling: filter chain scratch: %w", err)
		}
		c.scratch = res
	}

	// Pick the first output so that the last filter writes into dst.
	out, other := dst, c.scratch
	if len(c.Filters)%2 == 0 {
		out, other = other, out
	}
	in := src
	for _, f := range c.Filters {
		if err := dev.SetRenderTarget(out); err != nil {
			return err
		}
		dev.Clear(Color{})
		if err := f.Apply(dev, in, out); err != nil {
			return err
		}
		in = out
		out, other = other, out
	}
	return dev.SetRenderTarget(dst)
}

// Padding returns the cumulative padding of the chain.
func (c *FilterChain) Padding() float64 {
	pad := 0.0
	for _, f := range c.Filters {
		pad += f.Padding()
	}
	return pad
}

// Dispose releases the scratch target.
func (c *FilterChain) Dispose() {
	if c.scratch != nil {
		c.scratch.Dispose()
		c.scratch = nil
	}
}
