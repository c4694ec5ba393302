package sapling

import (
	"slices"

	"github.com/chewxy/math32"
)

// minPremultipliedAlpha is the smallest alpha stored in premultiplied vertex
// data. A true zero would erase the color and make it unrecoverable.
const minPremultipliedAlpha = 0.001

// Vertex is one quad corner: position, texture coordinate and color. Color
// channels are premultiplied when the owning VertexData says so.
type Vertex struct {
	X, Y       float32
	U, V       float32
	R, G, B, A float32
}

// VertexData is a growable array of vertices sharing one premultiplied-alpha
// convention.
type VertexData struct {
	verts         []Vertex
	premultiplied bool
}

// NewVertexData returns n vertices at the origin, opaque white.
func NewVertexData(n int, premultiplied bool) *VertexData {
	vd := &VertexData{premultiplied: premultiplied}
	vd.Resize(n)
	return vd
}

// Len returns the number of vertices.
func (vd *VertexData) Len() int { return len(vd.verts) }

// Vertices exposes the backing slice. Callers must not retain it across
// mutations.
func (vd *VertexData) Vertices() []Vertex { return vd.verts }

// PremultipliedAlpha reports whether colors are stored premultiplied.
func (vd *VertexData) PremultipliedAlpha() bool { return vd.premultiplied }

// Resize grows or shrinks the vertex count. New vertices are opaque white.
func (vd *VertexData) Resize(n int) {
	old := len(vd.verts)
	if n <= cap(vd.verts) {
		vd.verts = vd.verts[:n]
	} else {
		grown := make([]Vertex, n, max(n, 2*cap(vd.verts)))
		copy(grown, vd.verts)
		vd.verts = grown
	}
	for i := old; i < n; i++ {
		vd.verts[i] = Vertex{R: 1, G: 1, B: 1, A: 1}
	}
}

// SetPosition sets the local position of vertex i.
func (vd *VertexData) SetPosition(i int, x, y float64) {
	vd.verts[i].X = float32(x)
	vd.verts[i].Y = float32(y)
}

// Position returns the local position of vertex i.
func (vd *VertexData) Position(i int) (float64, float64) {
	v := &vd.verts[i]
	return float64(v.X), float64(v.Y)
}

// TranslateVertex moves vertex i by (dx, dy).
func (vd *VertexData) TranslateVertex(i int, dx, dy float64) {
	vd.verts[i].X += float32(dx)
	vd.verts[i].Y += float32(dy)
}

// SetTexCoords sets the texture coordinate of vertex i.
func (vd *VertexData) SetTexCoords(i int, u, v float64) {
	vd.verts[i].U = float32(u)
	vd.verts[i].V = float32(v)
}

// TexCoords returns the texture coordinate of vertex i.
func (vd *VertexData) TexCoords(i int) (float64, float64) {
	v := &vd.verts[i]
	return float64(v.U), float64(v.V)
}

// SetColor sets the RGB of vertex i, keeping its alpha. c.A is ignored.
func (vd *VertexData) SetColor(i int, c Color) {
	v := &vd.verts[i]
	m := float32(1)
	if vd.premultiplied {
		m = v.A
	}
	v.R = float32(c.R) * m
	v.G = float32(c.G) * m
	v.B = float32(c.B) * m
}

// Color returns vertex i's straight (non-premultiplied) color.
func (vd *VertexData) Color(i int) Color {
	v := vd.verts[i]
	if vd.premultiplied && v.A != 0 {
		return Color{float64(v.R / v.A), float64(v.G / v.A), float64(v.B / v.A), float64(v.A)}
	}
	return Color{float64(v.R), float64(v.G), float64(v.B), float64(v.A)}
}

// SetAlpha sets the alpha of vertex i. Premultiplied data never stores an
// alpha below 0.001 so the color survives.
func (vd *VertexData) SetAlpha(i int, a float64) {
	alpha := float32(clamp01(a))
	if !vd.premultiplied {
		vd.verts[i].A = alpha
		return
	}
	alpha = math32.Max(alpha, minPremultipliedAlpha)
	c := vd.Color(i)
	v := &vd.verts[i]
	v.A = alpha
	v.R = float32(c.R) * alpha
	v.G = float32(c.G) * alpha
	v.B = float32(c.B) * alpha
}

// Alpha returns the alpha of vertex i.
func (vd *VertexData) Alpha(i int) float64 {
	return float64(vd.verts[i].A)
}

// SetUniformColor sets the RGB of every vertex.
func (vd *VertexData) SetUniformColor(c Color) {
	for i := range vd.verts {
		vd.SetColor(i, c)
	}
}

// SetUniformAlpha sets the alpha of every vertex.
func (vd *VertexData) SetUniformAlpha(a float64) {
	for i := range vd.verts {
		vd.SetAlpha(i, a)
	}
}

// ScaleAlpha multiplies the alpha of count vertices starting at start.
// Premultiplied data scales the color channels with it.
func (vd *VertexData) ScaleAlpha(start, count int, factor float64) {
	if factor == 1 {
		return
	}
	f := float32(factor)
	vs := vd.verts[start : start+count]
	if vd.premultiplied {
		for i := range vs {
			vs[i].R *= f
			vs[i].G *= f
			vs[i].B *= f
			vs[i].A *= f
		}
		return
	}
	for i := range vs {
		vs[i].A *= f
	}
}

// Tinted reports whether any vertex differs from opaque white.
func (vd *VertexData) Tinted() bool {
	for _, v := range vd.verts {
		if v.R != 1 || v.G != 1 || v.B != 1 || v.A != 1 {
			return true
		}
	}
	return false
}

// SetPremultipliedAlpha switches the convention. With updateData the stored
// colors are converted so they keep their appearance.
func (vd *VertexData) SetPremultipliedAlpha(pma, updateData bool) {
	if pma == vd.premultiplied {
		return
	}
	if updateData {
		for i := range vd.verts {
			v := &vd.verts[i]
			switch {
			case pma:
				v.A = math32.Max(v.A, minPremultipliedAlpha)
				v.R *= v.A
				v.G *= v.A
				v.B *= v.A
			case v.A != 0:
				v.R /= v.A
				v.G /= v.A
				v.B /= v.A
			}
		}
	}
	vd.premultiplied = pma
}

// CopyTransformedTo writes count vertices starting at start into dst at
// dstIndex, transforming positions by m. dst must already be large enough.
func (vd *VertexData) CopyTransformedTo(dst *VertexData, dstIndex int, m Matrix, start, count int) {
	a, b, c, d := float32(m[0]), float32(m[1]), float32(m[2]), float32(m[3])
	tx, ty := float32(m[4]), float32(m[5])
	src := vd.verts[start : start+count]
	out := dst.verts[dstIndex : dstIndex+count]
	for i, v := range src {
		out[i] = v
		out[i].X = a*v.X + c*v.Y + tx
		out[i].Y = b*v.X + d*v.Y + ty
	}
}

// CopyTo writes all vertices into dst at dstIndex without transforming them.
func (vd *VertexData) CopyTo(dst *VertexData, dstIndex int) {
	copy(dst.verts[dstIndex:], vd.verts)
}

// TransformVertices transforms count positions starting at start in place.
func (vd *VertexData) TransformVertices(m Matrix, start, count int) {
	vd.CopyTransformedTo(vd, start, m, start, count)
}

// Bounds returns the axis-aligned bounds of count vertices starting at start
// after transforming them by m. An empty range yields an empty Rect at m's
// translation.
func (vd *VertexData) Bounds(m Matrix, start, count int) Rect {
	if count <= 0 {
		return Rect{X: m[4], Y: m[5]}
	}
	var minX, minY float32 = math32.MaxFloat32, math32.MaxFloat32
	var maxX, maxY float32 = -math32.MaxFloat32, -math32.MaxFloat32
	a, b, c, d := float32(m[0]), float32(m[1]), float32(m[2]), float32(m[3])
	tx, ty := float32(m[4]), float32(m[5])
	for _, v := range vd.verts[start : start+count] {
		x := a*v.X + c*v.Y + tx
		y := b*v.X + d*v.Y + ty
		minX = math32.Min(minX, x)
		maxX = math32.Max(maxX, x)
		minY = math32.Min(minY, y)
		maxY = math32.Max(maxY, y)
	}
	return Rect{X: float64(minX), Y: float64(minY), Width: float64(maxX - minX), Height: float64(maxY - minY)}
}

// Clone returns an independent copy.
func (vd *VertexData) Clone() *VertexData {
	return &VertexData{verts: slices.Clone(vd.verts), premultiplied: vd.premultiplied}
}
