package sapling

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	xdraw "golang.org/x/image/draw"
)

// ebitenMaxTextureSize matches the atlas page size Ebitengine handles on
// every backend.
const ebitenMaxTextureSize = 4096

// EbitenDevice is a Device drawing through Ebitengine. Textures are
// ebiten.Images; buffers live on the CPU and are handed to DrawTriangles32 at
// draw time with positions already mapped through the call's MVP.
//
// Ebitengine restores its own GPU state, so the device is never lost on its
// own. Lose and Restore let hosts and tests drive the context-loss protocol.
type EbitenDevice struct {
	screen *ebiten.Image
	target *ebiten.Image
	lost   bool

	white *ebiten.Image
	verts []ebiten.Vertex
	triOp ebiten.DrawTrianglesOptions
}

// NewEbitenDevice returns a device with no screen bound. Call SetScreen at
// the start of every frame.
func NewEbitenDevice() *EbitenDevice {
	d := &EbitenDevice{}
	d.triOp.ColorScaleMode = ebiten.ColorScaleModePremultipliedAlpha
	return d
}

// SetScreen binds the back buffer for the coming frame.
func (d *EbitenDevice) SetScreen(screen *ebiten.Image) {
	d.screen = screen
	d.target = screen
}

// Lose simulates a lost context: every call fails with ErrMissingContext
// until Restore.
func (d *EbitenDevice) Lose() {
	d.lost = true
	d.white = nil
}

// Restore ends a simulated context loss.
func (d *EbitenDevice) Restore() { d.lost = false }

func (d *EbitenDevice) Capabilities() Capabilities {
	return Capabilities{
		MaxTextureSize: ebitenMaxTextureSize,
		Mipmaps:        true,
		RepeatNPOT:     true,
	}
}

func (d *EbitenDevice) IsLost() bool { return d.lost }

func (d *EbitenDevice) CreateVertexBuffer(numVertices int) (VertexBuffer, error) {
	if d.lost {
		return nil, ErrMissingContext
	}
	return &ebitenVertexBuffer{verts: make([]Vertex, numVertices)}, nil
}

func (d *EbitenDevice) CreateIndexBuffer(numIndices int) (IndexBuffer, error) {
	if d.lost {
		return nil, ErrMissingContext
	}
	return &ebitenIndexBuffer{indices: make([]uint32, numIndices)}, nil
}

func (d *EbitenDevice) CreateProgram(key ProgramKey) (Program, error) {
	if d.lost {
		return nil, ErrMissingContext
	}
	return ebitenProgram{key: key}, nil
}

func (d *EbitenDevice) CreateTexture(width, height int, opts TextureOptions) (TextureResource, error) {
	if d.lost {
		return nil, ErrMissingContext
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("sapling: texture size %dx%d", width, height)
	}
	if opts.Format != FormatRGBA {
		return nil, fmt.Errorf("sapling: texture format %d: %w", opts.Format, ErrUnsupportedResource)
	}
	img := ebiten.NewImageWithOptions(
		image.Rect(0, 0, width, height),
		&ebiten.NewImageOptions{Unmanaged: opts.RenderTarget},
	)
	return &ebitenTexture{img: img, w: width, h: height}, nil
}

// UploadTexture writes img into tex. An image of a different size is
// resampled to fit.
func (d *EbitenDevice) UploadTexture(tex TextureResource, img image.Image) error {
	if d.lost {
		return ErrMissingContext
	}
	t, ok := tex.(*ebitenTexture)
	if !ok || t.img == nil {
		return ErrUnsupportedResource
	}
	rgba := image.NewRGBA(image.Rect(0, 0, t.w, t.h))
	b := img.Bounds()
	if b.Dx() == t.w && b.Dy() == t.h {
		xdraw.Copy(rgba, image.Point{}, img, b, xdraw.Src, nil)
	} else {
		xdraw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), img, b, xdraw.Src, nil)
	}
	t.img.WritePixels(rgba.Pix)
	return nil
}

func (d *EbitenDevice) SetRenderTarget(tex TextureResource) error {
	if d.lost {
		return ErrMissingContext
	}
	if tex == nil {
		d.target = d.screen
		return nil
	}
	t, ok := tex.(*ebitenTexture)
	if !ok || t.img == nil {
		return ErrUnsupportedResource
	}
	d.target = t.img
	return nil
}

func (d *EbitenDevice) Clear(c Color) {
	if d.lost || d.target == nil {
		return
	}
	if c == (Color{}) {
		d.target.Clear()
		return
	}
	d.target.Fill(color.NRGBA64{
		R: uint16(clamp01(c.R) * 0xffff),
		G: uint16(clamp01(c.G) * 0xffff),
		B: uint16(clamp01(c.B) * 0xffff),
		A: uint16(clamp01(c.A) * 0xffff),
	})
}

// Draw maps the call's vertices to target pixels and submits them as one
// DrawTriangles32 call.
func (d *EbitenDevice) Draw(call DrawCall) error {
	if d.lost {
		return ErrMissingContext
	}
	dst := d.target
	if dst == nil {
		return fmt.Errorf("sapling: no render target bound: %w", ErrMissingContext)
	}
	vb, ok := call.Vertices.(*ebitenVertexBuffer)
	if !ok {
		return fmt.Errorf("sapling: vertex buffer %T: %w", call.Vertices, ErrUnsupportedResource)
	}
	ib, ok := call.Indices.(*ebitenIndexBuffer)
	if !ok {
		return fmt.Errorf("sapling: index buffer %T: %w", call.Indices, ErrUnsupportedResource)
	}
	numIndices := call.Triangles * 3
	if numIndices > ib.n {
		return fmt.Errorf("sapling: draw %d triangles from %d indices", call.Triangles, ib.n)
	}

	if call.Scissor != nil {
		s := call.Scissor
		r := image.Rect(
			int(math.Floor(s.X)), int(math.Floor(s.Y)),
			int(math.Ceil(s.X+s.Width)), int(math.Ceil(s.Y+s.Height)),
		).Intersect(dst.Bounds())
		if r.Empty() {
			return nil
		}
		dst = dst.SubImage(r).(*ebiten.Image)
	}

	src := d.whitePixel()
	var sw, sh float32
	textured := call.Texture != nil
	if textured {
		t, ok := call.Texture.(*ebitenTexture)
		if !ok || t.img == nil {
			return fmt.Errorf("sapling: texture %T: %w", call.Texture, ErrUnsupportedResource)
		}
		src, sw, sh = t.img, float32(t.w), float32(t.h)
	}

	m := call.MVP
	alpha := float32(call.Alpha)
	verts := d.verts[:0]
	for _, v := range vb.verts[:vb.n] {
		x, y := float64(v.X), float64(v.Y)
		w := m[3]*x + m[7]*y + m[15]
		if w == 0 {
			w = 1
		}
		r, g, b, a := v.R, v.G, v.B, v.A
		if !call.Premultiplied {
			r, g, b = r*a, g*a, b*a
		}
		ev := ebiten.Vertex{
			DstX:   float32((m[0]*x + m[4]*y + m[12]) / w),
			DstY:   float32((m[1]*x + m[5]*y + m[13]) / w),
			SrcX:   0.5,
			SrcY:   0.5,
			ColorR: r * alpha,
			ColorG: g * alpha,
			ColorB: b * alpha,
			ColorA: a * alpha,
		}
		if textured {
			ev.SrcX, ev.SrcY = v.U*sw, v.V*sh
		}
		verts = append(verts, ev)
	}
	d.verts = verts

	op := &d.triOp
	op.Blend = call.Blend.EbitenBlend()
	op.Filter = ebiten.FilterLinear
	op.Address = ebiten.AddressUnsafe
	if call.Program != nil {
		key := call.Program.Key()
		if key.Smoothing() == SmoothingNone {
			op.Filter = ebiten.FilterNearest
		}
		if key.Repeat() {
			op.Address = ebiten.AddressRepeat
		}
	}
	dst.DrawTriangles32(verts, ib.indices[:numIndices], src, op)
	return nil
}

// whitePixel returns the 1x1 white source used for untextured geometry.
func (d *EbitenDevice) whitePixel() *ebiten.Image {
	if d.white == nil {
		d.white = ebiten.NewImage(1, 1)
		d.white.Fill(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}
	return d.white
}

// NewEbitenTexture wraps an existing Ebitengine image as an owned texture.
// The image is its own restore source.
func NewEbitenTexture(img *ebiten.Image, scale float64) *Texture {
	b := img.Bounds()
	t := WrapTexture(&ebitenTexture{img: img, w: b.Dx(), h: b.Dy()}, scale, true)
	t.SetPixelSource(ImageSource{img})
	return t
}

// EbitenImage returns the Ebitengine image behind a resource created by an
// EbitenDevice.
func EbitenImage(res TextureResource) (*ebiten.Image, bool) {
	t, ok := res.(*ebitenTexture)
	if !ok || t.img == nil {
		return nil, false
	}
	return t.img, true
}

// --- Resources ---

type ebitenTexture struct {
	img  *ebiten.Image
	w, h int
}

func (t *ebitenTexture) Size() (int, int) { return t.w, t.h }

func (t *ebitenTexture) Dispose() {
	if t.img != nil {
		t.img.Deallocate()
		t.img = nil
	}
}

type ebitenVertexBuffer struct {
	verts []Vertex
	n     int
}

func (b *ebitenVertexBuffer) Upload(verts []Vertex) error {
	if len(verts) > len(b.verts) {
		return fmt.Errorf("sapling: upload %d vertices into buffer of %d", len(verts), len(b.verts))
	}
	b.n = copy(b.verts, verts)
	return nil
}

func (b *ebitenVertexBuffer) Len() int { return len(b.verts) }
func (b *ebitenVertexBuffer) Dispose() { b.verts, b.n = nil, 0 }

type ebitenIndexBuffer struct {
	indices []uint32
	n       int
}

func (b *ebitenIndexBuffer) Upload(indices []uint16) error {
	if len(indices) > len(b.indices) {
		return fmt.Errorf("sapling: upload %d indices into buffer of %d", len(indices), len(b.indices))
	}
	for i, idx := range indices {
		b.indices[i] = uint32(idx)
	}
	b.n = len(indices)
	return nil
}

func (b *ebitenIndexBuffer) Len() int { return len(b.indices) }
func (b *ebitenIndexBuffer) Dispose() { b.indices, b.n = nil, 0 }

type ebitenProgram struct{ key ProgramKey }

func (p ebitenProgram) Key() ProgramKey { return p.key }
func (p ebitenProgram) Dispose()        {}
