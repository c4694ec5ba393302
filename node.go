package sapling

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

// nodeIDCounter is a plain counter (no atomic; sapling is single-threaded).
var nodeIDCounter uint32

func nextNodeID() uint32 {
	nodeIDCounter++
	return nodeIDCounter
}

// Node is the fundamental scene graph element. A single flat struct is used for
// all node types to avoid interface dispatch on the hot path; Type selects
// which of the type-specific fields are meaningful.
type Node struct {
	// Identity
	ID   uint32
	Name string
	Type NodeType

	// Hierarchy. parent is a non-owning back-reference, cleared on detach.
	parent   *Node
	children []*Node
	stage    *Stage // set on a stage's root only

	// Pose (local). Reached through setters so the cached matrix stays valid.
	x, y           float64
	pivotX, pivotY float64
	scaleX, scaleY float64
	skewX, skewY   float64
	rotation       float64
	alpha          float64

	local      Matrix
	localDirty bool

	// 3D pose, used only when is3D is set.
	is3D                 bool
	z, pivotZ, scaleZ    float64
	rotationX, rotationY float64
	local3D              mgl64.Mat4
	local3DDirty         bool

	// Visibility & interaction
	Visible   bool
	Touchable bool
	BlendMode BlendMode

	// Metadata
	UserData any

	// Quad / Image fields (NodeTypeQuad, NodeTypeImage)
	vertexData       *VertexData
	vertexCache      *VertexData // vertexData with the texture mapping applied
	vertexCacheValid bool
	texture          *Texture
	Smoothing        Smoothing
	width            float64
	height           float64

	// Batch leaf fields (NodeTypeBatch). Batchable lets the painter merge the
	// batch into the open one instead of drawing it on its own.
	batch     *QuadBatch
	Batchable bool

	// ClipRect, when set on a container, restricts drawing of its children to
	// this rectangle (in the container's local space).
	ClipRect *Rect

	// Filter
	filter       Filter
	filterResult *Texture // pre-rendered filter output held by a flattened subtree

	// Mask. A node masks at most one target; maskOf is the back-reference.
	mask         *Node
	maskOf       *Node
	maskInverted bool

	// HitArea, when set, replaces the bounds test in HitTest.
	HitArea HitShape

	// Flattening
	flattened []*QuadBatch
	isFlat    bool

	disposed bool
}

// nodeDefaults sets the common default field values shared by all constructors.
func nodeDefaults(n *Node) {
	n.ID = nextNodeID()
	n.scaleX = 1
	n.scaleY = 1
	n.scaleZ = 1
	n.alpha = 1
	n.Visible = true
	n.Touchable = true
	n.localDirty = true
	n.local3DDirty = true
}

// NewContainer creates a container node with no visual representation.
func NewContainer(name string) *Node {
	n := &Node{Name: name, Type: NodeTypeContainer}
	nodeDefaults(n)
	return n
}

// --- Tree manipulation ---

// AddChild appends child to this container's children.
// If child already has a parent, it is removed from that parent first.
func (n *Node) AddChild(child *Node) error {
	if child != nil && child.parent == n {
		return n.AddChildAt(child, len(n.children)-1)
	}
	return n.AddChildAt(child, len(n.children))
}

// AddChildAt inserts child at the given index. Same reparenting behavior as
// AddChild. It fails with ErrCycle if child is this node or one of its
// ancestors; in that case neither tree is modified.
func (n *Node) AddChildAt(child *Node, index int) error {
	if child == nil {
		return ErrNilNode
	}
	if n.disposed || child.disposed {
		return fmt.Errorf("sapling: add %q to %q: %w", child.Name, n.Name, ErrDisposed)
	}
	if n.Type != NodeTypeContainer {
		return fmt.Errorf("sapling: add %q to %s %q: %w", child.Name, n.Type, n.Name, ErrNotContainer)
	}
	if isAncestor(child, n) {
		return fmt.Errorf("sapling: add %q to %q: %w", child.Name, n.Name, ErrCycle)
	}
	limit := len(n.children)
	if child.parent == n {
		limit--
	}
	if index < 0 || index > limit {
		return fmt.Errorf("sapling: add %q at %d (0..%d): %w", child.Name, index, limit, ErrIndexOutOfRange)
	}

	if child.parent != nil {
		child.parent.removeChildByPtr(child)
	}
	child.parent = n
	n.children = slices.Insert(n.children, index, child)
	if globalDebug {
		debugCheckTreeDepth(child)
		debugCheckChildCount(n)
	}
	return nil
}

// RemoveChild detaches child from this node and, if dispose is set, disposes
// it afterwards. It fails with ErrNotChild if child's parent is not n.
func (n *Node) RemoveChild(child *Node, dispose bool) error {
	if child == nil {
		return ErrNilNode
	}
	if child.parent != n {
		return fmt.Errorf("sapling: remove %q from %q: %w", child.Name, n.Name, ErrNotChild)
	}
	n.removeChildByPtr(child)
	child.parent = nil
	if dispose {
		child.Dispose()
	}
	return nil
}

// RemoveChildAt removes and returns the child at the given index.
func (n *Node) RemoveChildAt(index int, dispose bool) (*Node, error) {
	if index < 0 || index >= len(n.children) {
		return nil, fmt.Errorf("sapling: remove index %d from %q: %w", index, n.Name, ErrIndexOutOfRange)
	}
	child := n.children[index]
	n.children = slices.Delete(n.children, index, index+1)
	child.parent = nil
	if dispose {
		child.Dispose()
	}
	return child, nil
}

// RemoveFromParent detaches this node from its parent. A detached node is
// left alone unless dispose is set, in which case it is still disposed.
func (n *Node) RemoveFromParent(dispose bool) {
	if n.parent == nil {
		if dispose {
			n.Dispose()
		}
		return
	}
	_ = n.parent.RemoveChild(n, dispose)
}

// RemoveChildren detaches all children from this node, disposing them if
// dispose is set.
func (n *Node) RemoveChildren(dispose bool) {
	children := n.children
	n.children = nil
	for _, child := range children {
		child.parent = nil
		if dispose {
			child.Dispose()
		}
	}
}

// Children returns the child list. The returned slice MUST NOT be mutated by the caller.
func (n *Node) Children() []*Node {
	return n.children
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// ChildAt returns the child at the given index. Panics if index is out of range.
func (n *Node) ChildAt(index int) *Node {
	return n.children[index]
}

// ChildIndex returns the position of child, or -1 if it is not a child of n.
func (n *Node) ChildIndex(child *Node) int {
	return slices.Index(n.children, child)
}

// ChildByName returns the first child with the given name, or nil.
func (n *Node) ChildByName(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Contains reports whether node is n itself or one of its descendants.
func (n *Node) Contains(node *Node) bool {
	return isAncestor(n, node)
}

// SetChildIndex moves child to a new index among its siblings.
func (n *Node) SetChildIndex(child *Node, index int) error {
	old := n.ChildIndex(child)
	if old < 0 {
		return fmt.Errorf("sapling: reorder %q in %q: %w", nameOf(child), n.Name, ErrNotChild)
	}
	if index < 0 || index >= len(n.children) {
		return fmt.Errorf("sapling: reorder %q to %d: %w", child.Name, index, ErrIndexOutOfRange)
	}
	if old == index {
		return nil
	}
	// Shift elements to fill the gap and open the target slot.
	if old < index {
		copy(n.children[old:], n.children[old+1:index+1])
	} else {
		copy(n.children[index+1:], n.children[index:old])
	}
	n.children[index] = child
	return nil
}

// SwapChildren exchanges the positions of two children.
func (n *Node) SwapChildren(a, b *Node) error {
	i, j := n.ChildIndex(a), n.ChildIndex(b)
	if i < 0 || j < 0 {
		return fmt.Errorf("sapling: swap in %q: %w", n.Name, ErrNotChild)
	}
	n.children[i], n.children[j] = n.children[j], n.children[i]
	return nil
}

// SwapChildrenAt exchanges the children at two indices.
func (n *Node) SwapChildrenAt(i, j int) error {
	if i < 0 || j < 0 || i >= len(n.children) || j >= len(n.children) {
		return fmt.Errorf("sapling: swap %d and %d in %q: %w", i, j, n.Name, ErrIndexOutOfRange)
	}
	n.children[i], n.children[j] = n.children[j], n.children[i]
	return nil
}

// SortChildren reorders the children with a stable sort. cmp follows the
// slices.SortStableFunc convention.
func (n *Node) SortChildren(cmp func(a, b *Node) int) {
	slices.SortStableFunc(n.children, cmp)
}

// Parent returns the node's container, or nil if it is detached.
func (n *Node) Parent() *Node {
	return n.parent
}

// Root returns the topmost ancestor of n (n itself when detached).
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Stage returns the stage whose tree contains n, or nil.
func (n *Node) Stage() *Stage {
	return n.Root().stage
}

// --- Disposal ---

// Dispose releases GPU resources owned by this node and its descendants:
// batch buffers, flattened batches and filter output. It does not detach the
// node from its parent; use RemoveFromParent(true) for that.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.disposed = true
	for _, child := range n.children {
		child.Dispose()
	}
	n.releaseFlattened()
	if n.batch != nil {
		n.batch.Dispose()
	}
	if n.mask != nil {
		n.mask.maskOf = nil
		n.mask = nil
	}
	if n.maskOf != nil {
		n.maskOf.mask = nil
		n.maskOf = nil
	}
	n.filter = nil
	n.UserData = nil
}

// IsDisposed returns true if this node has been disposed.
func (n *Node) IsDisposed() bool {
	return n.disposed
}

// --- Helpers ---

// isAncestor reports whether candidate is node or an ancestor of node.
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from n.children without clearing child.parent.
func (n *Node) removeChildByPtr(child *Node) {
	if i := slices.Index(n.children, child); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}

// hasVisibleArea reports whether the node can contribute pixels.
func (n *Node) hasVisibleArea() bool {
	return n.alpha != 0 && n.Visible && n.maskOf == nil && n.scaleX != 0 && n.scaleY != 0
}

func nameOf(n *Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name
}
