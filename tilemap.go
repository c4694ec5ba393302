package sapling

import (
	"fmt"
)

// GID flag bits (same convention as Tiled TMX format).
const (
	tileFlipH    uint32 = 1 << 31 // horizontal flip
	tileFlipV    uint32 = 1 << 30 // vertical flip
	tileFlipD    uint32 = 1 << 29 // diagonal flip (90° rotation)
	tileFlagMask uint32 = tileFlipH | tileFlipV | tileFlipD
)

// AnimFrame describes a single frame in a tile animation sequence.
type AnimFrame struct {
	GID      uint32 // tile GID for this frame (no flag bits)
	Duration int    // milliseconds
}

// uvOrder defines vertex UV assignment for each combination of flip flags.
// Indexed by 3-bit flag value: (flipH << 2) | (flipV << 1) | flipD.
// Each entry contains 4 corner indices: TL=0, TR=1, BL=2, BR=3.
// The diagonal flip applies first, then horizontal, then vertical.
//
//	result[i] is which source corner goes to vertex position i.
var uvOrder = [8][4]int{
	{0, 1, 2, 3}, // no flags
	{0, 2, 1, 3}, // D only (transpose)
	{2, 3, 0, 1}, // V flip
	{1, 3, 0, 2}, // V+D (90° CCW)
	{1, 0, 3, 2}, // H flip
	{2, 0, 3, 1}, // H+D (90° CW)
	{3, 2, 1, 0}, // H+V (180°)
	{3, 1, 2, 0}, // H+V+D (anti-transpose)
}

var cornerUV = [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

// TileLayer is a grid of tiles drawn from one tileset. The grid is compiled
// into static quad batches, rebuilt only when a tile changes or an animated
// tile advances, so a full layer costs one draw call per MaxQuads tiles.
type TileLayer struct {
	node   *Node    // container holding one batch node per chunk
	data   []uint32 // row-major tile GIDs, len = width * height
	width  int      // map width in tiles
	height int      // map height in tiles

	TileWidth, TileHeight float64
	Smoothing             Smoothing

	// tiles[gid] is the texture of a tile; nil and gid 0 are empty.
	tiles []*Texture

	anims       map[uint32][]AnimFrame // base GID -> animation frames (nil if no animations)
	animElapsed int                    // milliseconds
	shown       map[uint32]uint32      // base GID -> frame GID in the built batches

	sprite *Node
	dirty  bool
}

// NewTileLayer creates a width x height tile layer. data holds the GIDs in
// row-major order and may carry the TMX flip flags; tiles maps a GID to its
// texture. Every tile texture must be a view of the same base texture.
func NewTileLayer(name string, width, height int, tileW, tileH float64, data []uint32, tiles []*Texture) (*TileLayer, error) {
	if err := checkTileset(tiles); err != nil {
		return nil, fmt.Errorf("sapling: tile layer %q: %w", name, err)
	}
	l := &TileLayer{
		node:       NewContainer(name),
		TileWidth:  tileW,
		TileHeight: tileH,
		Smoothing:  SmoothingNone,
		tiles:      tiles,
		sprite:     NewImage("tile", nil),
	}
	if err := l.SetData(data, width, height); err != nil {
		return nil, err
	}
	return l, nil
}

func checkTileset(tiles []*Texture) error {
	var base *Texture
	for _, t := range tiles {
		if t == nil {
			continue
		}
		if base == nil {
			base = t.Root()
		} else if t.Root() != base {
			return ErrMixedTextures
		}
	}
	return nil
}

// Node returns the layer's container node. Its children are managed by the
// layer; place other nodes in a sibling container.
func (l *TileLayer) Node() *Node { return l.node }

// Size returns the layer size in tiles.
func (l *TileLayer) Size() (width, height int) { return l.width, l.height }

// Tile returns the GID at (col, row), flags included, or 0 outside the map.
func (l *TileLayer) Tile(col, row int) uint32 {
	if col < 0 || col >= l.width || row < 0 || row >= l.height {
		return 0
	}
	return l.data[row*l.width+col]
}

// SetTile changes one tile. The batches are rebuilt on the next Update or
// Rebuild.
func (l *TileLayer) SetTile(col, row int, gid uint32) {
	if col < 0 || col >= l.width || row < 0 || row >= l.height {
		return
	}
	l.data[row*l.width+col] = gid
	l.dirty = true
}

// SetData replaces the entire tile data array.
func (l *TileLayer) SetData(data []uint32, width, height int) error {
	if width < 0 || height < 0 || len(data) != width*height {
		return fmt.Errorf("sapling: tile data has %d entries, want %dx%d: %w",
			len(data), width, height, ErrIndexOutOfRange)
	}
	l.data = data
	l.width = width
	l.height = height
	l.dirty = true
	return nil
}

// SetTileset replaces the GID to texture table.
func (l *TileLayer) SetTileset(tiles []*Texture) error {
	if err := checkTileset(tiles); err != nil {
		return fmt.Errorf("sapling: tile layer %q: %w", l.node.Name, err)
	}
	l.tiles = tiles
	l.dirty = true
	return nil
}

// SetAnimations sets the animation definitions for this layer.
// The map is keyed by base GID (no flag bits).
func (l *TileLayer) SetAnimations(anims map[uint32][]AnimFrame) {
	l.anims = anims
	l.animElapsed = 0
	l.dirty = true
}

// Update advances tile animations by dt seconds and rebuilds the batches if
// anything visible changed.
func (l *TileLayer) Update(dt float32) error {
	if l.anims != nil {
		l.animElapsed += int(dt * 1000)
		for base := range l.anims {
			if l.frameGID(base) != l.shownGID(base) {
				l.dirty = true
				break
			}
		}
	}
	if !l.dirty {
		return nil
	}
	return l.Rebuild()
}

func (l *TileLayer) shownGID(base uint32) uint32 {
	if g, ok := l.shown[base]; ok {
		return g
	}
	return base
}

// frameGID returns the GID shown for base at the current animation time.
func (l *TileLayer) frameGID(base uint32) uint32 {
	frames, ok := l.anims[base]
	if !ok || len(frames) == 0 {
		return base
	}
	total := 0
	for _, f := range frames {
		total += f.Duration
	}
	if total == 0 {
		return frames[0].GID
	}
	elapsed := l.animElapsed % total
	acc := 0
	for _, f := range frames {
		acc += f.Duration
		if elapsed < acc {
			return f.GID
		}
	}
	return frames[0].GID
}

// Rebuild recompiles the tile batches immediately.
func (l *TileLayer) Rebuild() error {
	if l.node.IsDisposed() {
		return ErrDisposed
	}
	if l.shown == nil {
		l.shown = make(map[uint32]uint32)
	}
	clear(l.shown)

	chunk := 0
	b := l.chunk(chunk)
	s := l.sprite
	for row := 0; row < l.height; row++ {
		for col := 0; col < l.width; col++ {
			gid := l.data[row*l.width+col]
			if gid == 0 {
				continue
			}
			flags := gid & tileFlagMask
			base := gid &^ tileFlagMask
			cur := l.frameGID(base)
			l.shown[base] = cur
			if int(cur) >= len(l.tiles) || l.tiles[cur] == nil {
				continue
			}
			tex := l.tiles[cur]

			if b.NumQuads() == b.MaxQuads() {
				chunk++
				b = l.chunk(chunk)
			}
			s.SetTexture(tex)
			s.SetSize(l.TileWidth, l.TileHeight)
			setTileUVs(s, flags)
			m := TranslationMatrix(float64(col)*l.TileWidth, float64(row)*l.TileHeight)
			if err := b.AddQuad(s, 1, tex, l.Smoothing, m, BlendAuto); err != nil {
				return err
			}
		}
	}
	// Drop chunks that are no longer needed.
	for l.node.NumChildren() > chunk+1 {
		if _, err := l.node.RemoveChildAt(l.node.NumChildren()-1, true); err != nil {
			return err
		}
	}
	l.dirty = false
	return nil
}

// chunk returns the reset batch of chunk i, creating its node on demand.
func (l *TileLayer) chunk(i int) *QuadBatch {
	if i < l.node.NumChildren() {
		b := l.node.ChildAt(i).batch
		b.Reset()
		return b
	}
	bn := NewBatchNode(fmt.Sprintf("%s#%d", l.node.Name, i), NewQuadBatch(configFor(l.node)))
	bn.Batchable = true
	// A fresh container accepts any batch node.
	_ = l.node.AddChild(bn)
	return bn.batch
}

// setTileUVs assigns the full-texture corners to the sprite's vertices,
// applying flip flags via the lookup table.
func setTileUVs(s *Node, flags uint32) {
	flagIdx := 0
	if flags&tileFlipH != 0 {
		flagIdx |= 4
	}
	if flags&tileFlipV != 0 {
		flagIdx |= 2
	}
	if flags&tileFlipD != 0 {
		flagIdx |= 1
	}
	order := uvOrder[flagIdx]
	for i, c := range order {
		s.SetTexCoords(i, cornerUV[c][0], cornerUV[c][1])
	}
}
