package sapling

import (
	"fmt"
	"math/bits"
)

// --- Render target pool ---

// targetPool manages reusable offscreen targets keyed by power-of-two
// dimensions. After warmup, acquire/release allocate nothing.
type targetPool struct {
	dev     Device
	buckets map[uint64][]TextureResource
}

// poolKey packs power-of-two width and height into a single uint64.
func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

// acquire returns an offscreen target with at least (w, h) pixels.
// Dimensions are rounded up to the next power of two. The target is cleared
// when it is bound, not here.
func (p *targetPool) acquire(w, h int) (TextureResource, error) {
	pw := nextPowerOfTwo(w)
	ph := nextPowerOfTwo(h)
	key := poolKey(pw, ph)

	if stack := p.buckets[key]; len(stack) > 0 {
		res := stack[len(stack)-1]
		stack[len(stack)-1] = nil
		p.buckets[key] = stack[:len(stack)-1]
		return res, nil
	}
	if p.dev == nil || p.dev.IsLost() {
		return nil, ErrMissingContext
	}
	res, err := p.dev.CreateTexture(pw, ph, TextureOptions{RenderTarget: true})
	if err != nil {
		return nil, fmt.Errorf("sapling: create %dx%d render target: %w", pw, ph, err)
	}
	return res, nil
}

// release returns a target to the pool for reuse.
func (p *targetPool) release(res TextureResource) {
	if res == nil {
		return
	}
	w, h := res.Size()
	if p.buckets == nil {
		p.buckets = make(map[uint64][]TextureResource)
	}
	key := poolKey(w, h)
	p.buckets[key] = append(p.buckets[key], res)
}

// size returns the number of idle targets held by the pool.
func (p *targetPool) size() int {
	n := 0
	for _, stack := range p.buckets {
		n += len(stack)
	}
	return n
}

// dispose releases every pooled target.
func (p *targetPool) dispose() {
	for _, stack := range p.buckets {
		for _, res := range stack {
			res.Dispose()
		}
	}
	clear(p.buckets)
}

// forget drops pooled targets without disposing them; used after the
// context that owned them is gone.
func (p *targetPool) forget() {
	clear(p.buckets)
}

// nextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
