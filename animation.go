package sapling

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TweenGroup animates up to 4 values of a Node simultaneously.
// Create one via the convenience constructors (TweenPosition, TweenScale,
// TweenAlpha, TweenRotation, TweenColor) and call Update(dt) each frame, or
// hand it to Stage.AddTween. Values are written through the node's setters,
// so the cached matrix and alpha clamp stay correct. If the target node is
// disposed, the group stops immediately.
type TweenGroup struct {
	tweens [4]*gween.Tween
	count  int
	values [4]float64
	apply  func(n *Node, v *[4]float64)
	target *Node
	Done   bool
}

func newTweenGroup(node *Node, duration float32, fn ease.TweenFunc, apply func(*Node, *[4]float64), from, to []float64) *TweenGroup {
	g := &TweenGroup{count: len(from), target: node, apply: apply}
	for i := range from {
		g.tweens[i] = gween.New(float32(from[i]), float32(to[i]), duration, fn)
	}
	return g
}

// Update advances all tweens by dt seconds and writes the values to the
// target node. If the target node has been disposed, Done is set to true and
// no writes occur.
func (g *TweenGroup) Update(dt float32) {
	if g.Done {
		return
	}
	if g.target == nil || g.target.IsDisposed() {
		g.Done = true
		return
	}

	allDone := true
	for i := 0; i < g.count; i++ {
		val, finished := g.tweens[i].Update(dt)
		g.values[i] = float64(val)
		if !finished {
			allDone = false
		}
	}
	g.apply(g.target, &g.values)
	g.Done = allDone
}

// Target returns the animated node.
func (g *TweenGroup) Target() *Node { return g.target }

// TweenPosition creates a TweenGroup that moves the node to (toX, toY) over
// the specified duration using the easing function.
func TweenPosition(node *Node, toX, toY float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn,
		func(n *Node, v *[4]float64) { n.SetPosition(v[0], v[1]) },
		[]float64{node.x, node.y}, []float64{toX, toY})
}

// TweenScale creates a TweenGroup that scales the node to (toSX, toSY).
func TweenScale(node *Node, toSX, toSY float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn,
		func(n *Node, v *[4]float64) { n.SetScale(v[0], v[1]) },
		[]float64{node.scaleX, node.scaleY}, []float64{toSX, toSY})
}

// TweenAlpha creates a TweenGroup that fades the node to the target alpha.
func TweenAlpha(node *Node, to float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn,
		func(n *Node, v *[4]float64) { n.SetAlpha(v[0]) },
		[]float64{node.alpha}, []float64{to})
}

// TweenRotation creates a TweenGroup that rotates the node to the target
// angle in radians. The angle is interpolated without wrapping; the stored
// rotation is normalized on every write.
func TweenRotation(node *Node, to float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn,
		func(n *Node, v *[4]float64) { n.SetRotation(v[0]) },
		[]float64{node.rotation}, []float64{to})
}

// TweenColor creates a TweenGroup that animates the uniform color of a quad
// or image, alpha included.
func TweenColor(node *Node, to Color, duration float32, fn ease.TweenFunc) *TweenGroup {
	from := node.Color()
	from.A = 1
	if node.vertexData != nil {
		from.A = node.vertexData.Alpha(0)
	}
	return newTweenGroup(node, duration, fn,
		func(n *Node, v *[4]float64) {
			if n.vertexData != nil {
				n.SetColor(Color{v[0], v[1], v[2], v[3]})
			}
		},
		[]float64{from.R, from.G, from.B, from.A}, []float64{to.R, to.G, to.B, to.A})
}

// tweenList advances a set of tween groups and drops finished ones.
type tweenList struct {
	groups []*TweenGroup
}

func (l *tweenList) add(g *TweenGroup) {
	if g != nil && !g.Done {
		l.groups = append(l.groups, g)
	}
}

func (l *tweenList) update(dt float32) {
	live := l.groups[:0]
	for _, g := range l.groups {
		g.Update(dt)
		if !g.Done {
			live = append(live, g)
		}
	}
	clear(l.groups[len(live):])
	l.groups = live
}
