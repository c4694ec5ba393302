package sapling

import (
	"fmt"
)

// Compile walks the container subtree under root once and returns a minimal
// ordered list of batches that draws it. The batches hold vertices in root's
// local space, so root's own pose and alpha are left out and applied at
// replay. On success the output is moved into the batches of pool, in order,
// so their GPU buffers are reused; extra pool entries are disposed.
//
// Compile fails with ErrNotContainer for a leaf root, ErrFlatten3D if the
// subtree holds a 3D node and ErrUnsupportedNode for node types it cannot
// batch. Errors raised during the walk, such as a failing filter or
// ErrBatchFull, are reported too. On any error pool is returned unchanged.
func Compile(root *Node, pool []*QuadBatch) ([]*QuadBatch, error) {
	if root == nil {
		return pool, ErrNilNode
	}
	if root.Type != NodeTypeContainer {
		return pool, fmt.Errorf("sapling: compile %s %q: %w", root.Type, root.Name, ErrNotContainer)
	}
	if err := checkCompilable(root); err != nil {
		return pool, err
	}
	c := compiler{cfg: configFor(root)}
	c.batches = append(c.batches, NewQuadBatch(c.cfg))
	if err := c.compileObject(root, IdentityMatrix, 1, root.BlendMode, true); err != nil {
		c.discard()
		return pool, err
	}
	c.commitFilterResults()

	out := c.batches[:c.current+1]
	if out[c.current].NumQuads() == 0 {
		out = out[:c.current]
	}
	for i, b := range out {
		if i < len(pool) {
			pool[i].adopt(b)
			out[i] = pool[i]
		}
	}
	if len(pool) > len(out) {
		for _, b := range pool[len(out):] {
			b.Dispose()
		}
		clear(pool[len(out):])
	}
	return out, nil
}

// checkCompilable validates the whole subtree before anything is mutated.
func checkCompilable(n *Node) error {
	if n.is3D {
		return fmt.Errorf("sapling: compile %q: %w", n.Name, ErrFlatten3D)
	}
	switch n.Type {
	case NodeTypeContainer:
		for _, c := range n.children {
			if err := checkCompilable(c); err != nil {
				return err
			}
		}
	case NodeTypeQuad, NodeTypeImage, NodeTypeBatch:
	default:
		return fmt.Errorf("sapling: compile %s %q: %w", n.Type, n.Name, ErrUnsupportedNode)
	}
	return nil
}

// configFor returns the config of the stage owning n, or the defaults.
func configFor(n *Node) Config {
	if s := n.Stage(); s != nil {
		return s.cfg
	}
	return DefaultConfig()
}

// compiler builds into scratch batches. Filter results are staged and only
// handed to their nodes once the whole walk has succeeded.
type compiler struct {
	cfg     Config
	batches []*QuadBatch
	current int
	results []stagedFilter
}

type stagedFilter struct {
	node *Node
	tex  *Texture
}

// next moves to a fresh output batch.
func (c *compiler) next() *QuadBatch {
	c.current++
	c.batches = append(c.batches, NewQuadBatch(c.cfg))
	return c.batches[c.current]
}

// commitFilterResults swaps the staged filter output into the nodes.
func (c *compiler) commitFilterResults() {
	for _, r := range c.results {
		r.node.releaseOwnFilterResult()
		r.node.filterResult = r.tex
	}
	c.results = nil
}

// discard releases everything a failed walk produced.
func (c *compiler) discard() {
	for _, b := range c.batches {
		b.Dispose()
	}
	for _, r := range c.results {
		if root := r.tex.Root(); root != nil {
			root.Dispose()
		}
	}
	c.batches, c.results = nil, nil
}

func (c *compiler) compileObject(n *Node, m Matrix, alpha float64, blend BlendMode, isRoot bool) error {
	objectAlpha := n.alpha
	if isRoot {
		objectAlpha = 1
	}

	if n.filter != nil && !isRoot {
		return c.compileFiltered(n, m, alpha, blend)
	}

	switch n.Type {
	case NodeTypeContainer:
		for _, child := range n.children {
			if !child.hasVisibleArea() {
				continue
			}
			if child.mask != nil {
				Logger().Warn("mask ignored in flattened subtree", "node", child.Name)
			}
			if child.ClipRect != nil {
				Logger().Warn("clip rect ignored in flattened subtree", "node", child.Name)
			}
			childMatrix := multiplyAffine(m, child.LocalMatrix())
			childBlend := child.BlendMode.resolve(blend)
			if err := c.compileObject(child, childMatrix, alpha*objectAlpha, childBlend, false); err != nil {
				return err
			}
		}
		return nil

	case NodeTypeQuad, NodeTypeImage:
		// addQuad applies the node's own alpha.
		b := c.batches[c.current]
		if b.IsStateChange(n.Tinted(), alpha, n.texture, n.Smoothing, blend, 1) {
			b = c.next()
		}
		return b.AddQuad(n, alpha, n.texture, n.Smoothing, m, blend)

	case NodeTypeBatch:
		src := n.batch
		if src == nil || src.NumQuads() == 0 {
			return nil
		}
		a := alpha * objectAlpha
		b := c.batches[c.current]
		if b.IsStateChange(src.tinted, a, src.texture, src.smoothing, blend, src.NumQuads()) {
			b = c.next()
		}
		return b.AddQuadBatch(src, a, m, blend)
	}
	return fmt.Errorf("sapling: compile %s %q: %w", n.Type, n.Name, ErrUnsupportedNode)
}

// compileFiltered pre-renders a filtered node through its filter and merges
// the result as an image quad covering the filtered bounds.
func (c *compiler) compileFiltered(n *Node, m Matrix, alpha float64, blend BlendMode) error {
	s := n.Stage()
	if s == nil {
		return fmt.Errorf("sapling: compile filter on %q: %w", n.Name, ErrMissingContext)
	}
	tex, area, err := s.painter.renderFiltered(n)
	if err != nil {
		return err
	}
	if tex == nil {
		return nil
	}
	c.results = append(c.results, stagedFilter{node: n, tex: tex})

	img := NewImage(n.Name+"#filter", tex)
	img.alpha = n.alpha
	quadMatrix := multiplyAffine(m, TranslationMatrix(area.X, area.Y))
	b := c.batches[c.current]
	if b.IsStateChange(img.Tinted(), alpha, tex, SmoothingBilinear, blend, 1) {
		b = c.next()
	}
	return b.AddQuad(img, alpha, tex, SmoothingBilinear, quadMatrix, blend)
}

// Optimize merges batches with compatible state into as few batches as
// possible. It scans forward and folds every later compatible batch into the
// earliest one, so paint order across merged batches is NOT preserved; only
// use it when z-order between them does not matter. Emptied batches are
// disposed and dropped.
func Optimize(batches []*QuadBatch) []*QuadBatch {
	out := batches[:0]
	for i, b := range batches {
		if b == nil {
			continue
		}
		for j := i + 1; j < len(batches); j++ {
			o := batches[j]
			if o == nil || o.NumQuads() == 0 {
				continue
			}
			if b.IsStateChange(o.tinted, 1, o.texture, o.smoothing, o.blend, o.NumQuads()) {
				continue
			}
			if err := b.AddQuadBatch(o, 1, IdentityMatrix, o.blend); err != nil {
				continue
			}
			o.Dispose()
			batches[j] = nil
		}
		if b.NumQuads() == 0 {
			b.Dispose()
			continue
		}
		out = append(out, b)
	}
	clear(batches[len(out):])
	return out
}

// --- Flattening ---

// Flatten compiles the container's subtree into a static batch list that is
// replayed on every render until Unflatten or the next Flatten. Changes to
// descendants are not shown until the container is flattened again. Masks
// and clip rects on descendants are ignored with a warning.
func (n *Node) Flatten() error {
	if n.Type != NodeTypeContainer {
		return fmt.Errorf("sapling: flatten %s %q: %w", n.Type, n.Name, ErrNotContainer)
	}
	batches, err := Compile(n, n.flattened)
	if err != nil {
		return err
	}
	n.flattened = batches
	n.isFlat = true
	return nil
}

// Unflatten returns the container to normal rendering and releases its
// compiled batches.
func (n *Node) Unflatten() {
	n.releaseFlattened()
}

// IsFlattened reports whether the container renders from compiled batches.
func (n *Node) IsFlattened() bool { return n.isFlat }

// FlattenedBatches returns the compiled batches of a flattened container.
func (n *Node) FlattenedBatches() []*QuadBatch { return n.flattened }

func (n *Node) releaseFlattened() {
	for _, b := range n.flattened {
		b.Dispose()
	}
	n.flattened = nil
	n.isFlat = false
	for _, c := range n.children {
		c.releaseFilterResult()
	}
}

func (n *Node) releaseFilterResult() {
	n.releaseOwnFilterResult()
	for _, c := range n.children {
		c.releaseFilterResult()
	}
}

// releaseOwnFilterResult drops the pre-rendered filter output. The result is
// a view onto a detached render target, so the whole target goes with it.
func (n *Node) releaseOwnFilterResult() {
	if n.filterResult == nil {
		return
	}
	if root := n.filterResult.Root(); root != nil {
		root.Dispose()
	}
	n.filterResult = nil
}
