package sapling

import (
	"math"
	"math/rand/v2"
)

// particle holds per-particle simulation state. Unexported; managed by ParticleEmitter.
type particle struct {
	x, y       float64
	vx, vy     float64
	life       float64 // remaining lifetime in seconds
	maxLife    float64 // initial lifetime (for computing t)
	startScale float64
	endScale   float64
	startAlpha float64
	endAlpha   float64
	rotation   float64
	spin       float64
}

// Range is a min/max range sampled uniformly.
type Range struct {
	Min, Max float64
}

// Random returns a random float64 in [Min, Max].
func (r Range) Random() float64 {
	if r.Min == r.Max {
		return r.Min
	}
	return r.Min + rand.Float64()*(r.Max-r.Min)
}

// EmitterConfig controls how particles are spawned and behave.
type EmitterConfig struct {
	// MaxParticles is the pool size. New particles are silently dropped when
	// full. Clamped to MaxQuads.
	MaxParticles int
	// EmitRate is the number of particles spawned per second.
	EmitRate float64
	// Lifetime is the range of particle lifetimes in seconds.
	Lifetime Range
	// Speed is the range of initial particle speeds in points per second.
	Speed Range
	// Angle is the range of emission angles in radians.
	Angle Range
	// Spin is the range of angular velocities in radians per second.
	Spin Range
	// StartScale is the range of scale factors at birth, interpolated to EndScale over lifetime.
	StartScale Range
	// EndScale is the range of scale factors at death.
	EndScale Range
	// StartAlpha is the range of alpha values at birth, interpolated to EndAlpha over lifetime.
	StartAlpha Range
	// EndAlpha is the range of alpha values at death.
	EndAlpha Range
	// Gravity is the constant acceleration applied to all particles.
	Gravity Vec2
	// StartColor is the tint at birth, interpolated to EndColor over lifetime.
	StartColor Color
	// EndColor is the tint at death.
	EndColor Color
	// Texture is drawn for each particle, centered on it. nil draws a
	// Size x Size colored square.
	Texture *Texture
	// Size is the edge length of untextured particles. Zero means 4.
	Size float64
	// Smoothing filters the particle texture.
	Smoothing Smoothing
	// BlendMode is the compositing operation for particle rendering.
	BlendMode BlendMode
	// WorldSpace, when true, causes particles to keep their stage position
	// once emitted rather than following the emitter node.
	WorldSpace bool
}

// ParticleEmitter is a CPU-simulated particle pool drawn as a single batch
// node. Each Update rewrites the node's QuadBatch from the live particles, so
// the whole system costs one draw call and merges with neighbouring quads
// that share its texture and blend mode.
type ParticleEmitter struct {
	config    EmitterConfig
	particles []particle
	alive     int
	emitAccum float64
	active    bool

	node   *Node
	sprite *Node // template quad written once per particle
}

// NewParticleEmitter creates an emitter with a preallocated pool. Add Node()
// to the tree and drive it with Update or Stage.AddUpdater.
func NewParticleEmitter(name string, cfg EmitterConfig) *ParticleEmitter {
	n := cfg.MaxParticles
	if n <= 0 {
		n = 128
	}
	n = min(n, MaxQuads)
	cfg.MaxParticles = n

	bc := DefaultConfig()
	bc.BatchMinCapacity = min(bc.BatchMinCapacity, n)
	bc.BatchMaxQuads = n
	e := &ParticleEmitter{
		config:    cfg,
		particles: make([]particle, n),
		node:      NewBatchNode(name, NewQuadBatch(bc)),
	}
	e.node.Batchable = true
	e.node.BlendMode = cfg.BlendMode
	e.sprite = e.newSprite()
	return e
}

func (e *ParticleEmitter) newSprite() *Node {
	var s *Node
	if e.config.Texture != nil {
		s = NewImage("particle", e.config.Texture)
	} else {
		size := e.config.Size
		if size <= 0 {
			size = 4
		}
		s = NewQuad("particle", size, size, ColorWhite)
	}
	s.AlignPivot(AlignCenter, AlignMiddle)
	return s
}

// Node returns the batch node that displays the particles.
func (e *ParticleEmitter) Node() *Node { return e.node }

// Start begins emitting particles.
func (e *ParticleEmitter) Start() {
	e.active = true
}

// Stop stops emitting new particles. Existing particles continue to live out.
func (e *ParticleEmitter) Stop() {
	e.active = false
}

// Reset stops emitting and kills all alive particles.
func (e *ParticleEmitter) Reset() {
	e.active = false
	e.alive = 0
	e.emitAccum = 0
	e.node.batch.Reset()
}

// IsActive reports whether the emitter is currently emitting new particles.
func (e *ParticleEmitter) IsActive() bool {
	return e.active
}

// AliveCount returns the number of alive particles.
func (e *ParticleEmitter) AliveCount() int {
	return e.alive
}

// Config returns a pointer to the emitter's config for live tuning.
// Changing Texture or Size takes effect after SetConfig.
func (e *ParticleEmitter) Config() *EmitterConfig {
	return &e.config
}

// SetConfig replaces the config. The pool keeps its size.
func (e *ParticleEmitter) SetConfig(cfg EmitterConfig) {
	cfg.MaxParticles = len(e.particles)
	e.config = cfg
	e.node.BlendMode = cfg.BlendMode
	e.sprite = e.newSprite()
}

// Update advances the simulation by dt seconds and rebuilds the batch.
func (e *ParticleEmitter) Update(dt float32) error {
	if e.node.IsDisposed() {
		return ErrDisposed
	}
	e.simulate(float64(dt))
	return e.rebuild()
}

// simulate advances particle simulation by dt seconds.
func (e *ParticleEmitter) simulate(dt float64) {
	gx := e.config.Gravity.X * dt
	gy := e.config.Gravity.Y * dt

	// Update existing particles, swap-remove dead ones.
	i := 0
	for i < e.alive {
		p := &e.particles[i]
		p.life -= dt
		if p.life <= 0 {
			e.alive--
			e.particles[i] = e.particles[e.alive]
			continue
		}
		p.vx += gx
		p.vy += gy
		p.x += p.vx * dt
		p.y += p.vy * dt
		p.rotation += p.spin * dt
		i++
	}

	if e.active && e.config.EmitRate > 0 {
		e.emitAccum += e.config.EmitRate * dt
		for e.emitAccum >= 1.0 {
			e.emitAccum -= 1.0
			if e.alive < len(e.particles) {
				e.spawnParticle()
			}
		}
	}
}

// spawnParticle initializes the particle at slot e.alive and increments alive.
func (e *ParticleEmitter) spawnParticle() {
	p := &e.particles[e.alive]

	angle := e.config.Angle.Random()
	speed := e.config.Speed.Random()
	p.vx = math.Cos(angle) * speed
	p.vy = math.Sin(angle) * speed

	p.x, p.y = 0, 0
	if e.config.WorldSpace {
		g := e.node.LocalToGlobal(Vec2{})
		p.x, p.y = g.X, g.Y
	}

	p.life = e.config.Lifetime.Random()
	if p.life <= 0 {
		p.life = 1.0
	}
	p.maxLife = p.life

	p.startScale = e.config.StartScale.Random()
	p.endScale = e.config.EndScale.Random()
	p.startAlpha = e.config.StartAlpha.Random()
	p.endAlpha = e.config.EndAlpha.Random()
	p.rotation = 0
	p.spin = e.config.Spin.Random()

	e.alive++
}

// rebuild writes every live particle into the node's batch, in the node's
// local space.
func (e *ParticleEmitter) rebuild() error {
	b := e.node.batch
	b.Reset()
	if e.alive == 0 {
		return nil
	}

	toLocal := IdentityMatrix
	if e.config.WorldSpace {
		m, err := e.node.MatrixTo(nil)
		if err != nil {
			return err
		}
		toLocal = m.Invert()
	}

	s := e.sprite
	c0, c1 := e.config.StartColor, e.config.EndColor
	for i := 0; i < e.alive; i++ {
		p := &e.particles[i]
		t := 1.0 - p.life/p.maxLife
		scale := lerp(p.startScale, p.endScale, t)
		s.SetPosition(p.x, p.y)
		s.SetScale(scale, scale)
		s.SetRotation(p.rotation)
		s.SetAlpha(lerp(p.startAlpha, p.endAlpha, t))
		s.SetColor(Color{
			R: lerp(c0.R, c1.R, t),
			G: lerp(c0.G, c1.G, t),
			B: lerp(c0.B, c1.B, t),
			A: 1,
		})
		m := multiplyAffine(toLocal, s.LocalMatrix())
		if err := b.AddQuad(s, 1, e.config.Texture, e.config.Smoothing, m, BlendAuto); err != nil {
			return err
		}
	}
	// Particles fade individually, so the batch always needs the tint path.
	b.tinted = true
	return nil
}

// lerp linearly interpolates between a and b by t.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
