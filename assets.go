package sapling

import (
	"fmt"
)

// AssetProvider resolves names to decoded assets. Loading and decoding happen
// outside the render core; the provider only hands over finished results.
type AssetProvider interface {
	// Texture returns the texture registered under name.
	Texture(name string) (*Texture, bool)
	// Data returns raw decoded data registered under name.
	Data(name string) (any, bool)
}

// Assets is an explicit texture and data registry. A Stage owns one and
// forwards context loss and restore to every registered texture.
type Assets struct {
	textures map[string]*Texture
	atlases  map[string]*TextureAtlas
	data     map[string]any
}

var _ AssetProvider = (*Assets)(nil)

// NewAssets returns an empty registry.
func NewAssets() *Assets {
	return &Assets{
		textures: make(map[string]*Texture),
		atlases:  make(map[string]*TextureAtlas),
		data:     make(map[string]any),
	}
}

// AddTexture registers tex under name, replacing any previous entry.
func (a *Assets) AddTexture(name string, tex *Texture) {
	a.textures[name] = tex
}

// AddAtlas registers an atlas. Its regions become reachable through Texture.
func (a *Assets) AddAtlas(name string, atlas *TextureAtlas) {
	a.atlases[name] = atlas
}

// AddData registers decoded data under name.
func (a *Assets) AddData(name string, v any) {
	a.data[name] = v
}

// Texture looks name up among textures first and atlas regions second.
func (a *Assets) Texture(name string) (*Texture, bool) {
	if t, ok := a.textures[name]; ok {
		return t, true
	}
	for _, atlas := range a.atlases {
		if t, ok := atlas.Lookup(name); ok {
			return t, true
		}
	}
	return nil, false
}

// MustTexture is like Texture but returns an error naming the missing asset.
func (a *Assets) MustTexture(name string) (*Texture, error) {
	t, ok := a.Texture(name)
	if !ok {
		return nil, fmt.Errorf("sapling: texture %q not registered", name)
	}
	return t, nil
}

// Atlas returns the atlas registered under name.
func (a *Assets) Atlas(name string) (*TextureAtlas, bool) {
	at, ok := a.atlases[name]
	return at, ok
}

// Data returns data registered under name.
func (a *Assets) Data(name string) (any, bool) {
	v, ok := a.data[name]
	return v, ok
}

// RemoveTexture unregisters and disposes a texture.
func (a *Assets) RemoveTexture(name string) {
	if t, ok := a.textures[name]; ok {
		t.Dispose()
		delete(a.textures, name)
	}
}

// RemoveAtlas unregisters and disposes an atlas.
func (a *Assets) RemoveAtlas(name string) {
	if at, ok := a.atlases[name]; ok {
		at.Dispose()
		delete(a.atlases, name)
	}
}

// onContextLost invalidates every owned GPU resource.
func (a *Assets) onContextLost() {
	for _, t := range a.textures {
		t.OnContextLost()
	}
	for _, at := range a.atlases {
		at.texture.OnContextLost()
	}
}

// onContextRestored recreates every texture on dev. Failures are logged and
// do not stop the remaining restores.
func (a *Assets) onContextRestored(dev Device) {
	restore := func(name string, t *Texture) {
		if err := t.OnContextRestored(dev); err != nil {
			Logger().Warn("texture restore failed", "name", name, "err", err)
		}
	}
	for name, t := range a.textures {
		restore(name, t)
	}
	for name, at := range a.atlases {
		restore(name, at.texture)
	}
}

// Dispose releases every registered texture and atlas.
func (a *Assets) Dispose() {
	for _, t := range a.textures {
		t.Dispose()
	}
	for _, at := range a.atlases {
		at.Dispose()
	}
	clear(a.textures)
	clear(a.atlases)
	clear(a.data)
}
