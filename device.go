package sapling

import (
	"image"

	"github.com/go-gl/mathgl/mgl64"
)

// TextureFormat identifies the pixel layout of a texture resource.
type TextureFormat uint8

const (
	FormatRGBA            TextureFormat = iota // 8-bit RGBA
	FormatCompressed                           // block-compressed, no alpha
	FormatCompressedAlpha                      // block-compressed with alpha
)

// TextureOptions configures a texture resource at creation time.
type TextureOptions struct {
	Format  TextureFormat
	Mipmaps bool
	Repeat  bool
	// RenderTarget marks the resource as drawable (offscreen targets, render
	// textures).
	RenderTarget bool
}

// Capabilities describes what a Device supports. It is queried once when a
// Painter or Stage is created.
type Capabilities struct {
	MaxTextureSize    int
	CompressedFormats bool
	Mipmaps           bool
	RepeatNPOT        bool
}

// TextureResource is a GPU image owned by a Device.
type TextureResource interface {
	Size() (width, height int)
	Dispose()
}

// VertexBuffer holds uploaded vertex data.
type VertexBuffer interface {
	Upload(verts []Vertex) error
	Len() int
	Dispose()
}

// IndexBuffer holds uploaded triangle indices.
type IndexBuffer interface {
	Upload(indices []uint16) error
	Len() int
	Dispose()
}

// Program is a compiled draw configuration selected by ProgramKey.
type Program interface {
	Key() ProgramKey
	Dispose()
}

// DrawCall is one submission of indexed triangles.
type DrawCall struct {
	Program  Program
	Vertices VertexBuffer
	Indices  IndexBuffer
	// Texture is nil for untextured geometry.
	Texture TextureResource
	// MVP maps vertex positions into pixel coordinates of the bound target.
	MVP mgl64.Mat4
	// Alpha multiplies every vertex color.
	Alpha float64
	Blend BlendMode
	// Premultiplied reports whether vertex colors are premultiplied.
	Premultiplied bool
	Triangles     int
	// Scissor, if non-nil, clips drawing to a rectangle in target pixels.
	Scissor *Rect
}

// Device is the GPU context boundary. Implementations report context loss
// through IsLost; the Stage fans the event out to batches and textures.
type Device interface {
	Capabilities() Capabilities
	IsLost() bool

	CreateVertexBuffer(numVertices int) (VertexBuffer, error)
	CreateIndexBuffer(numIndices int) (IndexBuffer, error)
	CreateProgram(key ProgramKey) (Program, error)
	CreateTexture(width, height int, opts TextureOptions) (TextureResource, error)
	UploadTexture(tex TextureResource, img image.Image) error

	// SetRenderTarget binds an offscreen target; nil binds the back buffer.
	SetRenderTarget(tex TextureResource) error
	Clear(c Color)
	Draw(call DrawCall) error
}

// ProgramKey is a bit-packed program signature. Programs are cached by key so
// the number of distinct programs stays small.
type ProgramKey uint32

const (
	programTinted   ProgramKey = 1 << 0
	programMipmap   ProgramKey = 1 << 1
	programRepeat   ProgramKey = 1 << 2
	programTextured ProgramKey = 1 << 7

	programSmoothingShift = 3
	programFormatShift    = 5
)

// NewProgramKey packs a program signature. Untextured programs ignore every
// texture-related bit.
func NewProgramKey(textured, tinted, mipmap, repeat bool, smoothing Smoothing, format TextureFormat) ProgramKey {
	var k ProgramKey
	if tinted {
		k |= programTinted
	}
	if !textured {
		return k
	}
	k |= programTextured
	if mipmap {
		k |= programMipmap
	}
	if repeat {
		k |= programRepeat
	}
	k |= ProgramKey(smoothing&3) << programSmoothingShift
	k |= ProgramKey(format&3) << programFormatShift
	return k
}

func (k ProgramKey) Textured() bool        { return k&programTextured != 0 }
func (k ProgramKey) Tinted() bool          { return k&programTinted != 0 }
func (k ProgramKey) Mipmap() bool          { return k&programMipmap != 0 }
func (k ProgramKey) Repeat() bool          { return k&programRepeat != 0 }
func (k ProgramKey) Smoothing() Smoothing  { return Smoothing(k>>programSmoothingShift) & 3 }
func (k ProgramKey) Format() TextureFormat { return TextureFormat(k>>programFormatShift) & 3 }
