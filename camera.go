package sapling

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// farFocalLength stands in for an infinitely distant eye when no stage is
// attached: projection through it is orthographic to within float precision.
const farFocalLength = 1e7

// scrollAnim holds active scroll-to tweens for camera X and Y.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// Camera controls the view into the stage and the eye used for 3D nodes.
//
// The 2D part (X, Y, Zoom, Rotation) produces the view matrix passed to the
// painter each frame. The 3D part places an eye in front of the stage plane:
// centered on the stage, shifted by ProjectionOffset, at the focal distance
// implied by FieldOfView.
type Camera struct {
	// X and Y are the stage-space position the camera centers on.
	X, Y float64
	// Zoom is the scale factor (1.0 = no zoom, >1 = zoom in, <1 = zoom out).
	Zoom float64
	// Rotation is the camera rotation in radians (clockwise).
	Rotation float64
	// Viewport is the screen-space rectangle this camera renders into.
	Viewport Rect

	// FieldOfView is the angle (radians) the stage width spans as seen by
	// the 3D eye.
	FieldOfView float64
	// ProjectionOffset shifts the 3D eye away from the stage center.
	ProjectionOffset Vec2
	// StageWidth and StageHeight are the logical stage size the eye is
	// centered on. A zero width yields a nearly orthographic projection.
	StageWidth, StageHeight float64

	followTarget  *Node
	followOffsetX float64
	followOffsetY float64
	followLerp    float64

	// BoundsEnabled clamps the camera position so the visible area stays
	// within Bounds.
	BoundsEnabled bool
	// Bounds is the stage-space rectangle the camera is clamped to when
	// BoundsEnabled is true.
	Bounds Rect

	viewMatrix    Matrix
	invViewMatrix Matrix
	dirty         bool

	scrollTween *scrollAnim
}

// defaultCamera serves trees that are not attached to a stage.
var defaultCamera = &Camera{Zoom: 1, FieldOfView: 1, dirty: true}

// newCamera creates a camera looking at the center of a w x h stage, which
// makes its view matrix the identity.
func newCamera(w, h, fov float64) *Camera {
	return &Camera{
		X:           w / 2,
		Y:           h / 2,
		Zoom:        1.0,
		Viewport:    Rect{Width: w, Height: h},
		FieldOfView: fov,
		StageWidth:  w,
		StageHeight: h,
		dirty:       true,
	}
}

// FocalLength returns the distance from the eye to the stage plane.
func (c *Camera) FocalLength() float64 {
	if c.StageWidth <= 0 || c.FieldOfView <= 0 {
		return farFocalLength
	}
	return c.StageWidth / (2 * math.Tan(c.FieldOfView/2))
}

// Position returns the 3D eye position in stage space. The stage plane is
// z = 0 and the eye sits on the negative z side.
func (c *Camera) Position() Vec3 {
	return Vec3{
		c.StageWidth/2 + c.ProjectionOffset.X,
		c.StageHeight/2 + c.ProjectionOffset.Y,
		-c.FocalLength(),
	}
}

// Projection3D returns the matrix that projects 3D stage-space points onto
// the z = 0 plane along rays from the eye. Points already on the plane are
// unchanged.
func (c *Camera) Projection3D() mgl64.Mat4 {
	eye := c.Position()
	f := -eye.Z()
	return mgl64.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		eye.X() / f, eye.Y() / f, 0, 1 / f,
		0, 0, 0, 1,
	}
}

// Follow makes the camera track a target node with the given offset and lerp factor.
// A lerp of 1.0 snaps immediately; lower values give smoother following.
func (c *Camera) Follow(node *Node, offsetX, offsetY, lerp float64) {
	c.followTarget = node
	c.followOffsetX = offsetX
	c.followOffsetY = offsetY
	c.followLerp = lerp
}

// Unfollow stops tracking the current target node.
func (c *Camera) Unfollow() {
	c.followTarget = nil
}

// ScrollTo animates the camera to the given stage position over duration seconds.
func (c *Camera) ScrollTo(x, y float64, duration float32, easeFn ease.TweenFunc) {
	c.scrollTween = &scrollAnim{
		tweenX: gween.New(float32(c.X), float32(x), duration, easeFn),
		tweenY: gween.New(float32(c.Y), float32(y), duration, easeFn),
	}
}

// SetBounds enables camera bounds clamping.
func (c *Camera) SetBounds(bounds Rect) {
	c.BoundsEnabled = true
	c.Bounds = bounds
}

// ClearBounds disables camera bounds clamping.
func (c *Camera) ClearBounds() {
	c.BoundsEnabled = false
}

// update advances follow, scroll, and bounds clamping. Called from Stage.Update.
func (c *Camera) update(dt float32) {
	prevX, prevY := c.X, c.Y
	prevZoom, prevRot := c.Zoom, c.Rotation

	if c.followTarget != nil && !c.followTarget.IsDisposed() {
		p := c.followTarget.LocalToGlobal(Vec2{})
		c.X += (p.X + c.followOffsetX - c.X) * c.followLerp
		c.Y += (p.Y + c.followOffsetY - c.Y) * c.followLerp
	}

	if c.scrollTween != nil {
		if !c.scrollTween.doneX {
			val, done := c.scrollTween.tweenX.Update(dt)
			c.X = float64(val)
			c.scrollTween.doneX = done
		}
		if !c.scrollTween.doneY {
			val, done := c.scrollTween.tweenY.Update(dt)
			c.Y = float64(val)
			c.scrollTween.doneY = done
		}
		if c.scrollTween.doneX && c.scrollTween.doneY {
			c.scrollTween = nil
		}
	}

	if c.BoundsEnabled {
		c.clampToBounds()
	}

	if c.X != prevX || c.Y != prevY || c.Zoom != prevZoom || c.Rotation != prevRot {
		c.dirty = true
	}
}

// clampToBounds restricts camera position so the visible area stays within Bounds.
func (c *Camera) clampToBounds() {
	halfW := c.Viewport.Width / (2 * c.Zoom)
	halfH := c.Viewport.Height / (2 * c.Zoom)

	minX := c.Bounds.X + halfW
	maxX := c.Bounds.X + c.Bounds.Width - halfW
	minY := c.Bounds.Y + halfH
	maxY := c.Bounds.Y + c.Bounds.Height - halfH

	// If bounds are smaller than visible area, center the camera.
	if minX > maxX {
		c.X = c.Bounds.X + c.Bounds.Width/2
	} else {
		c.X = math.Max(minX, math.Min(c.X, maxX))
	}
	if minY > maxY {
		c.Y = c.Bounds.Y + c.Bounds.Height/2
	} else {
		c.Y = math.Max(minY, math.Min(c.Y, maxY))
	}
}

// ViewMatrix returns the stage-to-screen matrix, recomputing it if dirty.
//
//	view = Translate(cx, cy) * Scale(zoom) * Rotate(-rotation) * Translate(-X, -Y)
//
// where cx, cy = viewport center.
func (c *Camera) ViewMatrix() Matrix {
	if !c.dirty {
		return c.viewMatrix
	}
	c.dirty = false

	cx := c.Viewport.X + c.Viewport.Width/2
	cy := c.Viewport.Y + c.Viewport.Height/2

	sin, cos := math.Sincos(-c.Rotation)
	z := c.Zoom

	a := z * cos
	b := z * sin
	cc := -z * sin
	d := z * cos
	tx := cx + z*(-cos*c.X+sin*c.Y)
	ty := cy + z*(-sin*c.X-cos*c.Y)

	c.viewMatrix = Matrix{a, b, cc, d, tx, ty}
	c.invViewMatrix = c.viewMatrix.Invert()
	return c.viewMatrix
}

// WorldToScreen converts stage coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float64) (sx, sy float64) {
	return c.ViewMatrix().TransformPoint(wx, wy)
}

// ScreenToWorld converts screen coordinates to stage coordinates.
func (c *Camera) ScreenToWorld(sx, sy float64) (wx, wy float64) {
	c.ViewMatrix()
	return c.invViewMatrix.TransformPoint(sx, sy)
}

// VisibleBounds returns the axis-aligned bounding rect of the camera's visible
// area in stage space.
func (c *Camera) VisibleBounds() Rect {
	c.ViewMatrix()
	return transformRect(c.invViewMatrix, c.Viewport)
}

// MarkDirty forces a recomputation of the view matrix.
func (c *Camera) MarkDirty() {
	c.dirty = true
}

// transformRect returns the axis-aligned bounds of r transformed by m.
func transformRect(m Matrix, r Rect) Rect {
	x0, y0 := m.TransformPoint(r.X, r.Y)
	x1, y1 := m.TransformPoint(r.X+r.Width, r.Y)
	x2, y2 := m.TransformPoint(r.X+r.Width, r.Y+r.Height)
	x3, y3 := m.TransformPoint(r.X, r.Y+r.Height)

	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
