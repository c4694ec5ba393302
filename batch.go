package sapling

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// QuadBatch collects quads that share one GPU state (texture, smoothing,
// tint, blend mode) in a single vertex and index buffer pair, so they can be
// drawn with one draw call.
//
// A batch adopts its state from the first quad added after a reset. Callers
// must check IsStateChange before adding; AddQuad does not re-validate state.
type QuadBatch struct {
	vertexData  *VertexData
	indices     []uint16
	numQuads    int
	capacity    int
	minCapacity int
	maxQuads    int

	texture   *Texture
	smoothing Smoothing
	tinted    bool
	blend     BlendMode

	vb           VertexBuffer
	ib           IndexBuffer
	syncRequired bool

	disposed bool
}

// NewQuadBatch returns an empty batch sized by cfg.
func NewQuadBatch(cfg Config) *QuadBatch {
	maxQuads := cfg.BatchMaxQuads
	if maxQuads <= 0 || maxQuads > MaxQuads {
		maxQuads = MaxQuads
	}
	minCap := cfg.BatchMinCapacity
	if minCap <= 0 {
		minCap = minBatchCapacity
	}
	return &QuadBatch{
		vertexData:  NewVertexData(0, true),
		minCapacity: min(minCap, maxQuads),
		maxQuads:    maxQuads,
	}
}

// NumQuads returns the number of quads in the batch.
func (b *QuadBatch) NumQuads() int { return b.numQuads }

// Capacity returns the number of quad slots currently allocated.
func (b *QuadBatch) Capacity() int { return b.capacity }

// MaxQuads returns the hard capacity ceiling.
func (b *QuadBatch) MaxQuads() int { return b.maxQuads }

// Texture returns the batch texture, or nil for an untextured batch.
func (b *QuadBatch) Texture() *Texture { return b.texture }

// BlendMode returns the blend mode adopted from the first quad.
func (b *QuadBatch) BlendMode() BlendMode { return b.blend }

// Smoothing returns the texture filter adopted from the first quad.
func (b *QuadBatch) Smoothing() Smoothing { return b.smoothing }

// Tinted reports whether the batch needs the color-multiply path.
func (b *QuadBatch) Tinted() bool { return b.tinted }

// VertexData exposes the batch vertices. Only the first 4*NumQuads are used.
func (b *QuadBatch) VertexData() *VertexData { return b.vertexData }

// IsStateChange reports whether adding numQuads quads with the given state
// would require drawing this batch first. An empty batch accepts anything.
func (b *QuadBatch) IsStateChange(tinted bool, parentAlpha float64, tex *Texture, smoothing Smoothing, blend BlendMode, numQuads int) bool {
	switch {
	case b.numQuads == 0:
		return false
	case b.numQuads+numQuads > b.maxQuads:
		return true
	case b.texture == nil && tex == nil:
		return b.blend != blend
	case b.texture != nil && tex != nil:
		return b.texture.Root() != tex.Root() ||
			b.texture.Repeat() != tex.Repeat() ||
			b.smoothing != smoothing ||
			b.tinted != (tinted || parentAlpha != 1) ||
			b.blend != blend
	default:
		return true
	}
}

// AddQuad appends a quad or image node, transforming its vertices by m and
// scaling their alpha by parentAlpha times the node's alpha. It fails with
// ErrBatchFull, leaving the batch untouched, when the batch is at MaxQuads.
func (b *QuadBatch) AddQuad(q *Node, parentAlpha float64, tex *Texture, smoothing Smoothing, m Matrix, blend BlendMode) error {
	if q.vertexData == nil {
		return fmt.Errorf("sapling: batch %s %q: %w", q.Type, q.Name, ErrUnsupportedNode)
	}
	if err := b.reserve(1); err != nil {
		return err
	}
	if b.numQuads == 0 {
		b.blend = blend
		b.texture = tex
		b.tinted = tex != nil && (q.Tinted() || parentAlpha != 1)
		b.smoothing = smoothing
		b.vertexData.SetPremultipliedAlpha(q.PremultipliedAlpha(), false)
	}

	vertexID := b.numQuads * 4
	q.copyVertexDataTransformedTo(b.vertexData, vertexID, m)
	if alpha := parentAlpha * q.alpha; alpha != 1 {
		b.vertexData.ScaleAlpha(vertexID, 4, alpha)
	}
	b.numQuads++
	b.syncRequired = true
	return nil
}

// AddQuadBatch appends every quad of src, transformed by m, with their alpha
// scaled by alpha.
func (b *QuadBatch) AddQuadBatch(src *QuadBatch, alpha float64, m Matrix, blend BlendMode) error {
	n := src.numQuads
	if n == 0 {
		return nil
	}
	if err := b.reserve(n); err != nil {
		return err
	}
	if b.numQuads == 0 {
		b.blend = blend
		b.texture = src.texture
		b.tinted = src.tinted || alpha != 1
		b.smoothing = src.smoothing
		b.vertexData.SetPremultipliedAlpha(src.vertexData.PremultipliedAlpha(), false)
	}

	vertexID := b.numQuads * 4
	src.vertexData.CopyTransformedTo(b.vertexData, vertexID, m, 0, n*4)
	if alpha != 1 {
		b.vertexData.ScaleAlpha(vertexID, n*4, alpha)
	}
	b.numQuads += n
	b.syncRequired = true
	return nil
}

// reserve makes room for n more quads, doubling the capacity as needed.
func (b *QuadBatch) reserve(n int) error {
	need := b.numQuads + n
	if need > b.maxQuads {
		return fmt.Errorf("sapling: batch needs %d quads, max %d: %w", need, b.maxQuads, ErrBatchFull)
	}
	if need <= b.capacity {
		return nil
	}
	newCap := max(b.capacity, b.minCapacity)
	for newCap < need {
		newCap *= 2
	}
	b.setCapacity(min(newCap, b.maxQuads))
	return nil
}

func (b *QuadBatch) setCapacity(c int) {
	old := b.capacity
	b.capacity = c
	b.vertexData.Resize(c * 4)
	if cap(b.indices) < c*6 {
		grown := make([]uint16, len(b.indices), c*6)
		copy(grown, b.indices)
		b.indices = grown
	}
	b.indices = b.indices[:c*6]
	for q := old; q < c; q++ {
		v := uint16(q * 4)
		i := q * 6
		b.indices[i+0] = v
		b.indices[i+1] = v + 1
		b.indices[i+2] = v + 2
		b.indices[i+3] = v + 1
		b.indices[i+4] = v + 3
		b.indices[i+5] = v + 2
	}
	b.releaseBuffers()
	b.syncRequired = true
}

// Reset empties the batch and forgets its state. Capacity and live GPU
// buffers are kept for reuse.
func (b *QuadBatch) Reset() {
	b.numQuads = 0
	b.texture = nil
	b.smoothing = SmoothingBilinear
	b.tinted = false
	b.blend = BlendAuto
	b.syncRequired = true
	b.disposed = false
}

// Bounds returns the bounds of the batch's quads transformed by m.
func (b *QuadBatch) Bounds(m Matrix) Rect {
	return b.vertexData.Bounds(m, 0, b.numQuads*4)
}

// programKey returns the signature of the program needed to draw the batch
// at the given alpha.
func (b *QuadBatch) programKey(alpha float64) ProgramKey {
	if b.texture == nil {
		return NewProgramKey(false, true, false, false, 0, 0)
	}
	return NewProgramKey(true, b.tinted || alpha != 1, b.texture.Mipmaps(), b.texture.Repeat(), b.smoothing, b.texture.Format())
}

// Render draws the batch with one draw call of 2*NumQuads triangles. mvp maps
// batch vertices into target pixels; blend overrides the batch's own mode
// unless it is BlendAuto. An empty batch is a no-op.
func (b *QuadBatch) Render(p *Painter, mvp mgl64.Mat4, alpha float64, blend BlendMode) error {
	if b.numQuads == 0 {
		return nil
	}
	if b.disposed {
		return fmt.Errorf("sapling: render batch: %w", ErrDisposed)
	}
	dev := p.dev
	if dev == nil || dev.IsLost() {
		return ErrMissingContext
	}
	if err := b.syncBuffers(dev); err != nil {
		return err
	}

	call := DrawCall{
		Vertices:      b.vb,
		Indices:       b.ib,
		MVP:           mvp,
		Alpha:         alpha,
		Blend:         blend.resolve(b.blend).resolve(BlendNormal),
		Premultiplied: b.vertexData.PremultipliedAlpha(),
		Triangles:     b.numQuads * 2,
		Scissor:       p.scissor(),
	}
	if b.texture != nil {
		call.Texture = b.texture.Base()
		if call.Texture == nil {
			return ErrMissingContext
		}
	}
	prog, err := p.program(b.programKey(alpha))
	if err != nil {
		return err
	}
	call.Program = prog
	if err := dev.Draw(call); err != nil {
		return fmt.Errorf("sapling: draw batch: %w", err)
	}
	p.recordDraw(b.numQuads)
	return nil
}

// syncBuffers (re)creates GPU buffers sized to capacity and uploads the used
// vertex range when a mutation made them stale.
func (b *QuadBatch) syncBuffers(dev Device) error {
	if b.vb == nil || b.vb.Len() < b.capacity*4 {
		b.releaseBuffers()
		vb, err := dev.CreateVertexBuffer(b.capacity * 4)
		if err != nil {
			return fmt.Errorf("sapling: create vertex buffer: %w", err)
		}
		ib, err := dev.CreateIndexBuffer(b.capacity * 6)
		if err != nil {
			vb.Dispose()
			return fmt.Errorf("sapling: create index buffer: %w", err)
		}
		if err := ib.Upload(b.indices); err != nil {
			vb.Dispose()
			ib.Dispose()
			return fmt.Errorf("sapling: upload indices: %w", err)
		}
		b.vb, b.ib = vb, ib
		b.syncRequired = true
	}
	if !b.syncRequired {
		return nil
	}
	if err := b.vb.Upload(b.vertexData.verts[:b.numQuads*4]); err != nil {
		return fmt.Errorf("sapling: upload vertices: %w", err)
	}
	b.syncRequired = false
	return nil
}

func (b *QuadBatch) releaseBuffers() {
	if b.vb != nil {
		b.vb.Dispose()
		b.vb = nil
	}
	if b.ib != nil {
		b.ib.Dispose()
		b.ib = nil
	}
}

// OnContextLost forgets the GPU buffers without touching the dead context.
func (b *QuadBatch) OnContextLost() {
	b.vb = nil
	b.ib = nil
	b.syncRequired = true
}

// OnContextRestored marks the batch for upload. Buffers are recreated on the
// next Render.
func (b *QuadBatch) OnContextRestored() {
	b.syncRequired = true
}

// Clone returns an independent copy of the batch contents without GPU
// buffers.
func (b *QuadBatch) Clone() *QuadBatch {
	c := *b
	c.vertexData = b.vertexData.Clone()
	c.indices = append([]uint16(nil), b.indices...)
	c.vb, c.ib = nil, nil
	c.syncRequired = true
	return &c
}

// adopt takes over the contents and state of src, keeping b's GPU buffers.
// src must not be used afterwards.
func (b *QuadBatch) adopt(src *QuadBatch) {
	b.vertexData = src.vertexData
	b.indices = src.indices
	b.numQuads = src.numQuads
	b.capacity = src.capacity
	b.minCapacity = src.minCapacity
	b.maxQuads = src.maxQuads
	b.texture = src.texture
	b.smoothing = src.smoothing
	b.tinted = src.tinted
	b.blend = src.blend
	b.syncRequired = true
	b.disposed = false
	src.vertexData, src.indices = nil, nil
}

// Dispose releases the GPU buffers. The batch cannot be rendered until Reset.
func (b *QuadBatch) Dispose() {
	if b.disposed {
		return
	}
	b.disposed = true
	b.releaseBuffers()
}

// NewBatchNode places a batch in the tree as a leaf. The node's pose and
// alpha apply on top of the batch contents. With Batchable set the painter
// merges it into the open batch; otherwise it is drawn on its own.
func NewBatchNode(name string, batch *QuadBatch) *Node {
	n := &Node{Name: name, Type: NodeTypeBatch, batch: batch}
	nodeDefaults(n)
	return n
}

// Batch returns the batch of a batch node.
func (n *Node) Batch() *QuadBatch { return n.batch }
