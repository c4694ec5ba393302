package sapling

// Quad vertices are laid out as
//
//	0 - 1
//	| / |
//	2 - 3
//
// and drawn as triangles (0,1,2) and (1,3,2).

// NewQuad creates an untextured rectangle of size w x h filled with c.
func NewQuad(name string, w, h float64, c Color) *Node {
	n := &Node{Name: name, Type: NodeTypeQuad}
	nodeDefaults(n)
	n.vertexData = NewVertexData(4, true)
	n.setQuadSize(w, h)
	n.vertexData.SetUniformAlpha(c.A)
	n.vertexData.SetUniformColor(c)
	return n
}

// NewImage creates a textured rectangle sized to the texture's untrimmed
// frame.
func NewImage(name string, tex *Texture) *Node {
	n := &Node{Name: name, Type: NodeTypeImage}
	nodeDefaults(n)
	pma := true
	if tex != nil {
		pma = tex.PremultipliedAlpha()
	}
	n.vertexData = NewVertexData(4, pma)
	n.vertexData.SetTexCoords(0, 0, 0)
	n.vertexData.SetTexCoords(1, 1, 0)
	n.vertexData.SetTexCoords(2, 0, 1)
	n.vertexData.SetTexCoords(3, 1, 1)
	n.texture = tex
	n.ReadjustSize()
	return n
}

func (n *Node) setQuadSize(w, h float64) {
	n.width, n.height = w, h
	vd := n.vertexData
	vd.SetPosition(0, 0, 0)
	vd.SetPosition(1, w, 0)
	vd.SetPosition(2, 0, h)
	vd.SetPosition(3, w, h)
	n.invalidateVertexCache()
}

// SetSize resizes a quad or image in its local space.
func (n *Node) SetSize(w, h float64) {
	if n.vertexData == nil {
		return
	}
	n.setQuadSize(w, h)
}

// Size returns the local, untransformed size of a quad or image.
func (n *Node) Size() (w, h float64) { return n.width, n.height }

// ReadjustSize resizes an image to its texture's frame size. Call it after
// SetTexture when the new texture has different dimensions.
func (n *Node) ReadjustSize() {
	if n.texture == nil {
		n.setQuadSize(0, 0)
		return
	}
	n.setQuadSize(n.texture.FrameWidth(), n.texture.FrameHeight())
}

// Texture returns the texture of an image, or nil.
func (n *Node) Texture() *Texture { return n.texture }

// SetTexture swaps an image's texture. The vertex colors are converted if the
// premultiplied-alpha convention changes.
func (n *Node) SetTexture(tex *Texture) {
	if n.Type != NodeTypeImage || tex == n.texture {
		return
	}
	n.texture = tex
	if tex != nil {
		n.vertexData.SetPremultipliedAlpha(tex.PremultipliedAlpha(), true)
	}
	n.invalidateVertexCache()
}

// SetVertexColor sets the RGB of corner i (0..3).
func (n *Node) SetVertexColor(i int, c Color) {
	n.vertexData.SetColor(i, c)
	n.invalidateVertexCache()
}

// VertexColor returns the straight color of corner i.
func (n *Node) VertexColor(i int) Color { return n.vertexData.Color(i) }

// SetVertexAlpha sets the alpha of corner i.
func (n *Node) SetVertexAlpha(i int, a float64) {
	n.vertexData.SetAlpha(i, a)
	n.invalidateVertexCache()
}

// VertexAlpha returns the alpha of corner i.
func (n *Node) VertexAlpha(i int) float64 { return n.vertexData.Alpha(i) }

// SetColor sets every corner to c, alpha included.
func (n *Node) SetColor(c Color) {
	n.vertexData.SetUniformAlpha(c.A)
	n.vertexData.SetUniformColor(c)
	n.invalidateVertexCache()
}

// Color returns the color of the first corner.
func (n *Node) Color() Color {
	if n.vertexData == nil {
		return ColorWhite
	}
	return n.vertexData.Color(0)
}

// SetTexCoords sets the texture coordinate of corner i, relative to the
// image's texture (before any sub-texture mapping).
func (n *Node) SetTexCoords(i int, u, v float64) {
	n.vertexData.SetTexCoords(i, u, v)
	n.invalidateVertexCache()
}

// TexCoords returns the texture coordinate of corner i relative to the
// image's texture.
func (n *Node) TexCoords(i int) (u, v float64) { return n.vertexData.TexCoords(i) }

// Tinted reports whether the quad needs the color-multiply path: any corner
// is not opaque white, or the node itself is translucent.
func (n *Node) Tinted() bool {
	return n.alpha != 1 || (n.vertexData != nil && n.vertexData.Tinted())
}

// PremultipliedAlpha reports the vertex color convention of a quad or image.
func (n *Node) PremultipliedAlpha() bool {
	return n.vertexData == nil || n.vertexData.PremultipliedAlpha()
}

func (n *Node) invalidateVertexCache() {
	n.vertexCacheValid = false
}

// renderVertexData returns the vertex data as drawn: for images the texture
// mapping and trim frame are applied.
func (n *Node) renderVertexData() *VertexData {
	if n.texture == nil {
		return n.vertexData
	}
	if !n.vertexCacheValid {
		if n.vertexCache == nil || n.vertexCache.Len() != n.vertexData.Len() {
			n.vertexCache = n.vertexData.Clone()
		} else {
			n.vertexData.CopyTo(n.vertexCache, 0)
			n.vertexCache.premultiplied = n.vertexData.premultiplied
		}
		// A frame on a four-vertex quad is always valid.
		_ = n.texture.AdjustVertexData(n.vertexCache, 0, 4)
		n.vertexCacheValid = true
	}
	return n.vertexCache
}

// copyVertexDataTransformedTo writes the four drawn vertices into dst at
// dstIndex, transformed by m.
func (n *Node) copyVertexDataTransformedTo(dst *VertexData, dstIndex int, m Matrix) {
	n.renderVertexData().CopyTransformedTo(dst, dstIndex, m, 0, 4)
}
