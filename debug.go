package sapling

import (
	"context"
	"log/slog"
	"time"
)

// globalDebug enables tree sanity warnings. It is set by SetDebug or by a
// Stage created with Config.Debug.
var globalDebug bool

// SetDebug turns tree sanity warnings on or off.
func SetDebug(on bool) { globalDebug = on }

// debugCheckTreeDepth warns if tree depth exceeds the threshold.
const debugMaxTreeDepth = 32

func debugCheckTreeDepth(n *Node) {
	depth := 0
	for p := n; p != nil; p = p.parent {
		depth++
	}
	if depth > debugMaxTreeDepth {
		Logger().Warn("tree depth exceeds threshold",
			"node", n.Name, "depth", depth, "threshold", debugMaxTreeDepth)
	}
}

// debugCheckChildCount warns if a node has more than 1000 children.
const debugMaxChildCount = 1000

func debugCheckChildCount(n *Node) {
	if len(n.children) > debugMaxChildCount {
		Logger().Warn("child count exceeds threshold",
			"node", n.Name, "children", len(n.children), "threshold", debugMaxChildCount)
	}
}

// debugLog reports the stats of a finished frame at debug level.
func debugLog(stats FrameStats, elapsed time.Duration) {
	l := Logger()
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.Debug("frame",
		"draw_calls", stats.DrawCalls,
		"quads", stats.Quads,
		"render_targets", stats.RenderTargets,
		"elapsed", elapsed)
}
