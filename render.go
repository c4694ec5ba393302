package sapling

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// FrameStats counts the GPU work of one frame.
type FrameStats struct {
	DrawCalls     int
	Quads         int
	RenderTargets int // offscreen passes for masks and filters
}

// renderState is the part of the painter state saved by PushState.
type renderState struct {
	modelView Matrix
	blend     BlendMode
}

// Painter walks a tree depth-first and turns it into as few draw calls as
// possible. Consecutive quads that share GPU state are merged into the
// current QuadBatch; a state change, a 3D boundary, a clip change or an
// offscreen pass closes the batch and draws it.
//
// All vertex positions end up in pixels of the bound render target:
// projection maps stage space there, modelView3D carries the 3D pose of the
// innermost 3D ancestor and modelView the 2D pose below it.
type Painter struct {
	dev  Device
	cfg  Config
	caps Capabilities

	projection  mgl64.Mat4
	modelView3D mgl64.Mat4
	modelView   Matrix
	blend       BlendMode

	stateStack []renderState
	stack3D    []mgl64.Mat4
	clipStack  []Rect

	batches []*QuadBatch
	current int

	programs map[ProgramKey]Program

	baseTarget  TextureResource // nil is the back buffer
	targetStack []TextureResource
	targets     targetPool

	scratch   *QuadBatch // offscreen composites
	composite *Node

	stats FrameStats
}

// NewPainter creates a painter drawing through dev.
func NewPainter(dev Device, cfg Config) *Painter {
	p := &Painter{
		dev:         dev,
		cfg:         cfg,
		projection:  mgl64.Ident4(),
		modelView3D: mgl64.Ident4(),
		modelView:   IdentityMatrix,
		blend:       BlendNormal,
		batches:     []*QuadBatch{NewQuadBatch(cfg)},
		programs:    make(map[ProgramKey]Program),
		targets:     targetPool{dev: dev},
		scratch:     NewQuadBatch(cfg),
		composite:   newCompositeQuad(),
	}
	if dev != nil {
		p.caps = dev.Capabilities()
	}
	return p
}

func newCompositeQuad() *Node {
	n := &Node{Name: "composite", Type: NodeTypeImage}
	nodeDefaults(n)
	n.vertexData = NewVertexData(4, true)
	return n
}

// Device returns the device the painter draws through.
func (p *Painter) Device() Device { return p.dev }

// BindTarget makes res the target that Render draws into. nil selects the
// back buffer.
func (p *Painter) BindTarget(res TextureResource) { p.baseTarget = res }

// Stats returns the counters of the frame in progress (or the last one).
func (p *Painter) Stats() FrameStats { return p.stats }

// DrawCount returns the number of draw calls issued since NextFrame.
func (p *Painter) DrawCount() int { return p.stats.DrawCalls }

// NextFrame resets the per-frame state: batches, stacks and counters.
func (p *Painter) NextFrame() {
	p.current = 0
	p.batches[0].Reset()
	p.stateStack = p.stateStack[:0]
	p.stack3D = p.stack3D[:0]
	p.clipStack = p.clipStack[:0]
	p.targetStack = p.targetStack[:0]
	p.modelView = IdentityMatrix
	p.modelView3D = mgl64.Ident4()
	p.blend = BlendNormal
	p.stats = FrameStats{}
}

// Render draws root, including its own pose and alpha, into the bound
// target. vp maps stage space to target pixels (usually the camera view).
func (p *Painter) Render(root *Node, vp Matrix, alpha float64) error {
	if root == nil {
		return ErrNilNode
	}
	if p.dev == nil || p.dev.IsLost() {
		return ErrMissingContext
	}
	p.NextFrame()
	p.projection = toMat4(vp).Mul4(root.camera().Projection3D())
	if err := p.dev.SetRenderTarget(p.baseTarget); err != nil {
		return fmt.Errorf("sapling: bind target: %w", err)
	}
	err := p.renderChild(root, alpha)
	if ferr := p.FinishQuadBatch(); err == nil {
		err = ferr
	}
	return err
}

// --- State ---

// PushState saves the model-view matrix and blend mode.
func (p *Painter) PushState() {
	p.stateStack = append(p.stateStack, renderState{modelView: p.modelView, blend: p.blend})
}

// PopState restores the state saved by the matching PushState.
func (p *Painter) PopState() {
	s := p.stateStack[len(p.stateStack)-1]
	p.stateStack = p.stateStack[:len(p.stateStack)-1]
	p.modelView = s.modelView
	p.blend = s.blend
}

// ModelView returns the current 2D model-view matrix.
func (p *Painter) ModelView() Matrix { return p.modelView }

// Blend returns the current blend mode.
func (p *Painter) Blend() BlendMode { return p.blend }

// MVP returns the matrix mapping the current model-view space to target
// pixels.
func (p *Painter) MVP() mgl64.Mat4 {
	return p.projection.Mul4(p.modelView3D).Mul4(toMat4(p.modelView))
}

// --- Batching ---

// BatchQuad adds a quad or image node to the current batch, drawing the batch
// first if the node's state differs.
func (p *Painter) BatchQuad(q *Node, parentAlpha float64) error {
	b := p.batches[p.current]
	if b.IsStateChange(q.Tinted(), parentAlpha, q.texture, q.Smoothing, p.blend, 1) {
		if err := p.FinishQuadBatch(); err != nil {
			return err
		}
		b = p.batches[p.current]
	}
	return b.AddQuad(q, parentAlpha, q.texture, q.Smoothing, p.modelView, p.blend)
}

// BatchQuadBatch merges the quads of src into the current batch.
func (p *Painter) BatchQuadBatch(src *QuadBatch, alpha float64) error {
	b := p.batches[p.current]
	if b.IsStateChange(src.tinted, alpha, src.texture, src.smoothing, p.blend, src.NumQuads()) {
		if err := p.FinishQuadBatch(); err != nil {
			return err
		}
		b = p.batches[p.current]
	}
	return b.AddQuadBatch(src, alpha, p.modelView, p.blend)
}

// FinishQuadBatch draws the current batch, if it holds anything, and opens a
// fresh one.
func (p *Painter) FinishQuadBatch() error {
	b := p.batches[p.current]
	if b.NumQuads() == 0 {
		return nil
	}
	err := b.Render(p, p.projection.Mul4(p.modelView3D), 1, BlendAuto)
	p.current++
	if p.current == len(p.batches) {
		p.batches = append(p.batches, NewQuadBatch(p.cfg))
	}
	p.batches[p.current].Reset()
	return err
}

// --- Clipping ---

// PushClipRect restricts drawing to r, given in the current model-view
// space, intersected with any enclosing clip.
func (p *Painter) PushClipRect(r Rect) error {
	if err := p.FinishQuadBatch(); err != nil {
		return err
	}
	area := projectRect(p.MVP(), r)
	if n := len(p.clipStack); n > 0 {
		area = area.Intersection(p.clipStack[n-1])
	}
	p.clipStack = append(p.clipStack, area)
	return nil
}

// PopClipRect removes the innermost clip.
func (p *Painter) PopClipRect() error {
	err := p.FinishQuadBatch()
	p.clipStack = p.clipStack[:len(p.clipStack)-1]
	return err
}

// scissor returns the active clip in target pixels, or nil.
func (p *Painter) scissor() *Rect {
	if len(p.clipStack) == 0 {
		return nil
	}
	r := p.clipStack[len(p.clipStack)-1]
	return &r
}

func (p *Painter) clippedAway() bool {
	return len(p.clipStack) > 0 && p.clipStack[len(p.clipStack)-1].IsEmpty()
}

// --- Tree walk ---

// renderChild draws n as a child of the current model-view space.
func (p *Painter) renderChild(n *Node, parentAlpha float64) error {
	if !n.hasVisibleArea() {
		return nil
	}
	p.PushState()
	p.blend = n.BlendMode.resolve(p.blend)

	var err error
	switch {
	case n.is3D && !n.isPlanar():
		err = p.render3D(n, parentAlpha)
	default:
		p.modelView = multiplyAffine(p.modelView, n.LocalMatrix())
		if n.mask != nil || n.filter != nil {
			err = p.renderComposited(n, parentAlpha)
		} else {
			err = p.renderNode(n, parentAlpha)
		}
	}
	p.PopState()
	return err
}

// render3D enters a 3D node: its pose joins the 3D model-view and the 2D
// model-view restarts from identity below it.
func (p *Painter) render3D(n *Node, parentAlpha float64) error {
	if err := p.FinishQuadBatch(); err != nil {
		return err
	}
	p.stack3D = append(p.stack3D, p.modelView3D)
	p.modelView3D = p.modelView3D.Mul4(toMat4(p.modelView)).Mul4(n.LocalMatrix3D())
	p.modelView = IdentityMatrix

	var err error
	if n.mask != nil || n.filter != nil {
		err = p.renderComposited(n, parentAlpha)
	} else {
		err = p.renderNode(n, parentAlpha)
	}
	if ferr := p.FinishQuadBatch(); err == nil {
		err = ferr
	}
	p.modelView3D = p.stack3D[len(p.stack3D)-1]
	p.stack3D = p.stack3D[:len(p.stack3D)-1]
	return err
}

// isPlanar reports whether a 3D node's pose stays in its parent's plane, in
// which case the cheaper 2D path draws it identically.
func (n *Node) isPlanar() bool {
	return n.z == 0 && n.pivotZ == 0 && n.scaleZ == 1 &&
		n.rotationX == 0 && n.rotationY == 0 &&
		n.skewX == 0 && n.skewY == 0
}

// renderNode draws n's content. The model-view already includes n's pose.
func (p *Painter) renderNode(n *Node, parentAlpha float64) error {
	switch n.Type {
	case NodeTypeContainer:
		if n.ClipRect != nil {
			if err := p.PushClipRect(*n.ClipRect); err != nil {
				return err
			}
		}
		var err error
		if !p.clippedAway() {
			if n.isFlat {
				err = p.replayFlattened(n, parentAlpha)
			} else {
				alpha := parentAlpha * n.alpha
				for _, child := range n.children {
					if err = p.renderChild(child, alpha); err != nil {
						break
					}
				}
			}
		}
		if n.ClipRect != nil {
			if perr := p.PopClipRect(); err == nil {
				err = perr
			}
		}
		return err

	case NodeTypeQuad, NodeTypeImage:
		return p.BatchQuad(n, parentAlpha)

	case NodeTypeBatch:
		if n.batch == nil || n.batch.NumQuads() == 0 {
			return nil
		}
		alpha := parentAlpha * n.alpha
		if n.Batchable {
			return p.BatchQuadBatch(n.batch, alpha)
		}
		if err := p.FinishQuadBatch(); err != nil {
			return err
		}
		return n.batch.Render(p, p.MVP(), alpha, p.blend)
	}
	return fmt.Errorf("sapling: render %s %q: %w", n.Type, n.Name, ErrUnsupportedNode)
}

// replayFlattened draws the compiled batches of a flattened container.
func (p *Painter) replayFlattened(n *Node, parentAlpha float64) error {
	if err := p.FinishQuadBatch(); err != nil {
		return err
	}
	mvp := p.MVP()
	alpha := parentAlpha * n.alpha
	for _, b := range n.flattened {
		if err := b.Render(p, mvp, alpha, b.blend.resolve(p.blend)); err != nil {
			return err
		}
	}
	return nil
}

// --- Offscreen passes ---

// renderComposited draws a masked or filtered node into an offscreen target
// covering its on-screen area, applies the mask and filter there and
// composites the result back.
func (p *Painter) renderComposited(n *Node, parentAlpha float64) error {
	local, err := n.Bounds(n)
	if err != nil {
		return err
	}
	if n.filter != nil {
		local = padRect(local, n.filter.Padding())
	}
	if local.IsEmpty() {
		return nil
	}
	area := p.limitArea(roundOut(projectRect(p.MVP(), local)))
	if area.IsEmpty() {
		return nil
	}

	res, err := p.renderIsolated(n, area)
	if err != nil {
		return err
	}
	if n.filter != nil {
		if res, err = p.applyFilter(n.filter, res); err != nil {
			return err
		}
	}
	err = p.drawTexture(res, area, parentAlpha*n.alpha, p.blend)
	p.targets.release(res)
	return err
}

// renderIsolated draws n's content, masked but unfiltered, into a pooled
// target whose origin is at area's top-left in the current projection.
func (p *Painter) renderIsolated(n *Node, area Rect) (TextureResource, error) {
	if err := p.FinishQuadBatch(); err != nil {
		return nil, err
	}
	res, err := p.targets.acquire(int(area.Width), int(area.Height))
	if err != nil {
		return nil, err
	}

	savedProjection, savedClip, savedBlend := p.projection, p.clipStack, p.blend
	p.projection = toMat4(TranslationMatrix(-area.X, -area.Y)).Mul4(p.projection)
	p.clipStack = nil
	p.blend = BlendNormal

	// The node's own alpha applies when the result is composited.
	alpha := n.alpha
	n.alpha = 1
	err = p.pushTarget(res)
	if err == nil {
		err = p.renderNode(n, 1)
		if ferr := p.FinishQuadBatch(); err == nil {
			err = ferr
		}
		if err == nil && n.mask != nil {
			err = p.applyMask(n, res)
		}
		if perr := p.popTarget(); err == nil {
			err = perr
		}
	}

	n.alpha = alpha
	p.projection, p.clipStack, p.blend = savedProjection, savedClip, savedBlend
	if err != nil {
		p.targets.release(res)
		return nil, err
	}
	return res, nil
}

// applyMask renders n's mask into a second target and keeps only the pixels
// of target that the mask covers. target is the bound target on entry and on
// return.
func (p *Painter) applyMask(n *Node, target TextureResource) error {
	w, h := target.Size()
	maskRes, err := p.targets.acquire(w, h)
	if err != nil {
		return err
	}

	p.PushState()
	p.modelView = multiplyAffine(p.modelView, n.maskMatrix())
	p.blend = BlendNormal
	err = p.pushTarget(maskRes)
	if err == nil {
		err = p.renderNode(n.mask, 1)
		if ferr := p.FinishQuadBatch(); err == nil {
			err = ferr
		}
		if perr := p.popTarget(); err == nil {
			err = perr
		}
	}
	p.PopState()

	if err == nil {
		blend := BlendMask
		if n.maskInverted {
			blend = BlendErase
		}
		err = p.drawTexture(maskRes, Rect{Width: float64(w), Height: float64(h)}, 1, blend)
	}
	p.targets.release(maskRes)
	return err
}

// applyFilter runs f from src into a fresh target. src goes back to the pool.
func (p *Painter) applyFilter(f Filter, src TextureResource) (TextureResource, error) {
	w, h := src.Size()
	dst, err := p.targets.acquire(w, h)
	if err != nil {
		p.targets.release(src)
		return nil, err
	}
	if err := p.pushTarget(dst); err != nil {
		p.targets.release(src)
		p.targets.release(dst)
		return nil, err
	}
	err = f.Apply(p.dev, src, dst)
	if perr := p.popTarget(); err == nil {
		err = perr
	}
	p.targets.release(src)
	if err != nil {
		p.targets.release(dst)
		return nil, fmt.Errorf("sapling: apply filter: %w", err)
	}
	p.stats.DrawCalls++
	return dst, nil
}

// drawTexture copies the top-left dst.Width x dst.Height pixels of res into
// dst, given in target pixels.
func (p *Painter) drawTexture(res TextureResource, dst Rect, alpha float64, blend BlendMode) error {
	pw, ph := res.Size()
	u := dst.Width / float64(pw)
	v := dst.Height / float64(ph)

	vd := p.composite.vertexData
	vd.SetPosition(0, dst.X, dst.Y)
	vd.SetPosition(1, dst.X+dst.Width, dst.Y)
	vd.SetPosition(2, dst.X, dst.Y+dst.Height)
	vd.SetPosition(3, dst.X+dst.Width, dst.Y+dst.Height)
	vd.SetTexCoords(0, 0, 0)
	vd.SetTexCoords(1, u, 0)
	vd.SetTexCoords(2, 0, v)
	vd.SetTexCoords(3, u, v)

	b := p.scratch
	b.Reset()
	if err := b.AddQuad(p.composite, 1, WrapTexture(res, 1, true), SmoothingBilinear, IdentityMatrix, blend); err != nil {
		return err
	}
	return b.Render(p, mgl64.Ident4(), alpha, blend)
}

// renderFiltered pre-renders a filtered node, in its own space, into a
// standalone texture. The returned rectangle is the texture's placement in
// the node's space. The texture owns its target; it is never pooled.
func (p *Painter) renderFiltered(n *Node) (*Texture, Rect, error) {
	local, err := n.Bounds(n)
	if err != nil {
		return nil, Rect{}, err
	}
	if n.filter != nil {
		local = padRect(local, n.filter.Padding())
	}
	local = roundOut(local)
	if local.IsEmpty() {
		return nil, Rect{}, nil
	}
	if err := p.FinishQuadBatch(); err != nil {
		return nil, Rect{}, err
	}

	savedProjection, savedMV, savedMV3D := p.projection, p.modelView, p.modelView3D
	p.projection = toMat4(TranslationMatrix(-local.X, -local.Y))
	p.modelView = IdentityMatrix
	p.modelView3D = mgl64.Ident4()

	area := p.limitArea(Rect{Width: local.Width, Height: local.Height})
	res, err := p.renderIsolated(n, area)
	if err == nil && n.filter != nil {
		res, err = p.applyFilter(n.filter, res)
	}
	p.projection, p.modelView, p.modelView3D = savedProjection, savedMV, savedMV3D
	if err != nil {
		return nil, Rect{}, err
	}

	tex := NewSubTexture(WrapTexture(res, 1, true), area, nil, false)
	return tex, Rect{X: local.X, Y: local.Y, Width: area.Width, Height: area.Height}, nil
}

// pushTarget binds res, cleared to transparent, until the matching popTarget.
func (p *Painter) pushTarget(res TextureResource) error {
	if err := p.dev.SetRenderTarget(res); err != nil {
		return fmt.Errorf("sapling: bind target: %w", err)
	}
	p.dev.Clear(Color{})
	p.targetStack = append(p.targetStack, res)
	p.stats.RenderTargets++
	return nil
}

func (p *Painter) popTarget() error {
	p.targetStack = p.targetStack[:len(p.targetStack)-1]
	if err := p.dev.SetRenderTarget(p.currentTarget()); err != nil {
		return fmt.Errorf("sapling: bind target: %w", err)
	}
	return nil
}

func (p *Painter) currentTarget() TextureResource {
	if n := len(p.targetStack); n > 0 {
		return p.targetStack[n-1]
	}
	return p.baseTarget
}

// limitArea clamps an offscreen area to the largest texture the device
// supports.
func (p *Painter) limitArea(r Rect) Rect {
	if maxSize := float64(p.caps.MaxTextureSize); maxSize > 0 {
		if r.Width > maxSize || r.Height > maxSize {
			Logger().Warn("offscreen area clamped", "width", r.Width, "height", r.Height, "max", maxSize)
			r.Width = min(r.Width, maxSize)
			r.Height = min(r.Height, maxSize)
		}
	}
	return r
}

// --- Device bookkeeping ---

func (p *Painter) recordDraw(quads int) {
	p.stats.DrawCalls++
	p.stats.Quads += quads
}

// program returns the cached program for key, creating it on first use.
func (p *Painter) program(key ProgramKey) (Program, error) {
	if prog, ok := p.programs[key]; ok {
		return prog, nil
	}
	prog, err := p.dev.CreateProgram(key)
	if err != nil {
		return nil, fmt.Errorf("sapling: create program %#x: %w", uint32(key), err)
	}
	p.programs[key] = prog
	return prog, nil
}

// onContextLost forgets every GPU object without touching the dead context.
func (p *Painter) onContextLost() {
	clear(p.programs)
	p.targets.forget()
	p.targetStack = p.targetStack[:0]
	for _, b := range p.batches {
		b.OnContextLost()
	}
	p.scratch.OnContextLost()
}

// Dispose releases the programs, pooled targets and batch buffers.
func (p *Painter) Dispose() {
	for _, prog := range p.programs {
		prog.Dispose()
	}
	clear(p.programs)
	p.targets.dispose()
	for _, b := range p.batches {
		b.Dispose()
	}
	p.scratch.Dispose()
}

// --- Geometry helpers ---

// projectRect returns the pixel bounds of r after mvp and the perspective
// divide.
func projectRect(mvp mgl64.Mat4, r Rect) Rect {
	corners := [4][2]float64{
		{r.X, r.Y},
		{r.X + r.Width, r.Y},
		{r.X, r.Y + r.Height},
		{r.X + r.Width, r.Y + r.Height},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		v := mvp.Mul4x1(mgl64.Vec4{c[0], c[1], 0, 1})
		x, y := v.X(), v.Y()
		if w := v.W(); w != 0 && w != 1 {
			x, y = x/w, y/w
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// roundOut grows r to whole pixels.
func roundOut(r Rect) Rect {
	x0, y0 := math.Floor(r.X), math.Floor(r.Y)
	x1, y1 := math.Ceil(r.X+r.Width), math.Ceil(r.Y+r.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func padRect(r Rect, pad float64) Rect {
	if pad <= 0 {
		return r
	}
	return Rect{X: r.X - pad, Y: r.Y - pad, Width: r.Width + 2*pad, Height: r.Height + 2*pad}
}
