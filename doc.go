// Package sapling is a retained-mode 2D scene graph with quad batching for
// [Ebitengine] and other GPU backends.
//
// A [Stage] owns a tree of [Node] values. Containers group children; quads
// and images are textured or coloured rectangles; batch nodes place a
// pre-built [QuadBatch] in the tree. Each frame the [Painter] walks the tree
// once and merges consecutive quads that share texture, smoothing, tint and
// blend state into a single draw call.
//
// # Quick start
//
//	cfg := sapling.DefaultConfig()
//	game, err := sapling.NewGame(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	stage := game.Stage
//	box := sapling.NewQuad("box", 80, 40, sapling.Color{R: 0.3, G: 0.7, B: 1, A: 1})
//	box.SetPosition(100, 50)
//	stage.Root().AddChild(box)
//	if err := sapling.Run(stage, sapling.RunConfig{Title: "demo"}); err != nil {
//		log.Fatal(err)
//	}
//
// For full control, embed [Game] in your own [ebiten.Game], or call
// [Stage.Render] with any [Device] implementation.
//
// # Transforms
//
// Every node has a 2D pose (position, pivot, scale, skew, rotation, alpha)
// reached through setters, and an optional 3D pose enabled with
// [Node.Set3D]. 3D nodes are projected onto the stage plane through the
// stage [Camera]. [Node.MatrixTo] and [Node.Matrix3DTo] relate any two
// nodes of the same tree.
//
// # Batching and flattening
//
// [Compile] turns a static subtree into a short list of batches, and
// [Node.Flatten] makes a container replay that list until it is unflattened.
// [Optimize] merges compatible batches at the cost of paint order.
//
// # Masks, filters and render textures
//
// A node with a mask or a [Filter] is drawn into a pooled offscreen target
// and composited back. [RenderTexture] is a caller-owned target that keeps
// its contents between frames.
//
// # Context loss
//
// When the device loses its context, [Stage.Render] drops every GPU object
// and returns [ErrMissingContext]. Once the device is back, textures are
// re-uploaded from their [PixelSource] and batches re-sync lazily.
//
// Logging goes through [log/slog]; install a logger with [SetLogger].
// Settings can be loaded from TOML with [LoadConfig].
//
// [Ebitengine]: https://ebitengine.org
package sapling
