package sapling

import (
	"slices"
	"strings"
)

// AtlasRegion describes one named sub-texture of an atlas, as produced by a
// decoded atlas description.
type AtlasRegion struct {
	Name string
	// Region is the rectangle inside the atlas texture, in points. For a
	// rotated region it is the rectangle as stored (rotated 90° clockwise).
	Region Rect
	// Frame places the trimmed region inside the untrimmed sprite; nil when the
	// sprite was not trimmed.
	Frame   *Rect
	Rotated bool
}

// TrimFrame converts a packer-style trim description (offset of the trimmed
// pixels inside the source, plus the untrimmed source size) into a Frame.
func TrimFrame(offsetX, offsetY, sourceW, sourceH float64) *Rect {
	return &Rect{X: -offsetX, Y: -offsetY, Width: sourceW, Height: sourceH}
}

// TextureAtlas holds one atlas texture and its named regions. Sub-textures are
// created on first lookup and cached.
type TextureAtlas struct {
	texture  *Texture
	regions  map[string]AtlasRegion
	textures map[string]*Texture
}

// NewTextureAtlas creates an atlas over tex with the given regions.
func NewTextureAtlas(tex *Texture, regions ...AtlasRegion) *TextureAtlas {
	a := &TextureAtlas{
		texture:  tex,
		regions:  make(map[string]AtlasRegion, len(regions)),
		textures: make(map[string]*Texture, len(regions)),
	}
	for _, r := range regions {
		a.AddRegion(r)
	}
	return a
}

// Texture returns the atlas texture itself.
func (a *TextureAtlas) Texture() *Texture { return a.texture }

// AddRegion registers (or replaces) a named region.
func (a *TextureAtlas) AddRegion(r AtlasRegion) {
	a.regions[r.Name] = r
	delete(a.textures, r.Name)
}

// RemoveRegion forgets a named region.
func (a *TextureAtlas) RemoveRegion(name string) {
	delete(a.regions, name)
	delete(a.textures, name)
}

// Region returns the description registered under name.
func (a *TextureAtlas) Region(name string) (AtlasRegion, bool) {
	r, ok := a.regions[name]
	return r, ok
}

// Lookup returns the sub-texture registered under name.
func (a *TextureAtlas) Lookup(name string) (*Texture, bool) {
	if t, ok := a.textures[name]; ok {
		return t, true
	}
	r, ok := a.regions[name]
	if !ok {
		return nil, false
	}
	t := NewSubTexture(a.texture, r.Region, r.Frame, r.Rotated)
	a.textures[name] = t
	return t, true
}

// SubTexture returns the sub-texture registered under name, or nil. A
// missing name is logged at warn level.
func (a *TextureAtlas) SubTexture(name string) *Texture {
	t, ok := a.Lookup(name)
	if !ok {
		Logger().Warn("atlas region not found", "name", name)
	}
	return t
}

// Names returns the sorted names of all regions starting with prefix.
func (a *TextureAtlas) Names(prefix string) []string {
	var names []string
	for name := range a.regions {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// SubTextures returns the sub-textures whose names start with prefix, in name
// order. Useful for animation frames named "run_00", "run_01", ...
func (a *TextureAtlas) SubTextures(prefix string) []*Texture {
	names := a.Names(prefix)
	out := make([]*Texture, 0, len(names))
	for _, name := range names {
		t, _ := a.Lookup(name)
		out = append(out, t)
	}
	return out
}

// Dispose releases the atlas texture.
func (a *TextureAtlas) Dispose() {
	a.texture.Dispose()
	clear(a.textures)
}
