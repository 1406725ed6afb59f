package editor

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/core"
	"github.com/gekko3d/gsplat/splatrt/rt/splat"
)

type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

type Mode int

const (
	ModeNone Mode = iota
	ModeRectSelect
	ModeMove
	ModeRotate
	ModeScale
)

func (m Mode) String() string {
	switch m {
	case ModeRectSelect:
		return "rect-select"
	case ModeMove:
		return "move"
	case ModeRotate:
		return "rotate"
	case ModeScale:
		return "scale"
	}
	return "none"
}

// Editor turns mouse gestures into edit operations on one splat renderer.
// Each gesture captures its snapshots on Begin, applies snapshot relative
// updates on Drag and refreshes counts on End.
type Editor struct {
	Target *splat.Renderer
	Camera *core.Camera

	mode      Mode
	subtract  bool
	dragStart mgl32.Vec2
	// pivot is the selection center in object space, grabPoint the world
	// point under the mouse at gesture start.
	pivot     mgl32.Vec3
	grabPoint mgl32.Vec3

	// Debounced wheel scaling
	PendingScaleFactor  float32
	LastScaleInputTime  float64
	LastScaleUpdateTime float64

	log gsplat.Logger
}

func NewEditor(target *splat.Renderer, cam *core.Camera, log gsplat.Logger) *Editor {
	return &Editor{
		Target:             target,
		Camera:             cam,
		PendingScaleFactor: 1.0,
		log:                gsplat.OrNop(log),
	}
}

func (e *Editor) Mode() Mode { return e.mode }

func (e *Editor) ready() bool {
	return e.Target != nil && e.Camera != nil && e.Target.HasValidRenderSetup()
}

// BeginRectSelect starts a drag rectangle at a pixel position. With
// subtract the rectangle removes splats from the selection.
func (e *Editor) BeginRectSelect(mouse mgl32.Vec2, subtract bool) error {
	if !e.ready() {
		return nil
	}
	e.mode = ModeRectSelect
	e.subtract = subtract
	e.dragStart = mouse
	return e.Target.StoreSelectionSnapshot()
}

// DragRectSelect updates the rectangle to end at mouse.
func (e *Editor) DragRectSelect(mouse mgl32.Vec2) error {
	if e.mode != ModeRectSelect {
		return nil
	}
	return e.Target.RectSelect(e.dragStart, mouse, e.Camera, e.subtract)
}

// beginTransform captures the gesture snapshots and pivot.
func (e *Editor) beginTransform(mode Mode, mouse mgl32.Vec2) error {
	if !e.ready() {
		return nil
	}
	if err := e.Target.UpdateCounts(); err != nil {
		return err
	}
	counts := e.Target.EditCounts()
	if counts.Selected == 0 {
		e.log.Debugf("editor: %s without selection", mode)
		return nil
	}
	if err := e.Target.StorePositionSnapshot(); err != nil {
		return err
	}
	if mode == ModeRotate {
		if err := e.Target.StoreOtherSnapshot(); err != nil {
			return err
		}
	}
	e.mode = mode
	e.dragStart = mouse
	e.pivot = counts.Bounds.Center()
	e.grabPoint, _ = e.planePoint(mouse)
	return nil
}

func (e *Editor) BeginMove(mouse mgl32.Vec2) error   { return e.beginTransform(ModeMove, mouse) }
func (e *Editor) BeginRotate(mouse mgl32.Vec2) error { return e.beginTransform(ModeRotate, mouse) }
func (e *Editor) BeginScale(mouse mgl32.Vec2) error  { return e.beginTransform(ModeScale, mouse) }

// DragMove moves the selection so the grabbed point follows the mouse on the
// camera facing plane through it.
func (e *Editor) DragMove(mouse mgl32.Vec2) error {
	if e.mode != ModeMove {
		return nil
	}
	p, ok := e.planePoint(mouse)
	if !ok {
		return nil
	}
	delta := p.Sub(e.grabPoint)
	local := e.Target.Transform.WorldToObject().Mat3().Mul3x1(delta)
	return e.Target.TranslateSelection(local)
}

// DragRotate turns the selection around the camera forward axis by the
// horizontal mouse travel, one full turn per screen width.
func (e *Editor) DragRotate(mouse mgl32.Vec2) error {
	if e.mode != ModeRotate {
		return nil
	}
	dx := mouse[0] - e.dragStart[0]
	angle := dx / float32(max(e.Camera.ScreenWidth, 1)) * 2 * math.Pi
	return e.Target.RotateSelection(e.pivot, mgl32.QuatRotate(angle, e.forward()))
}

// DragScale scales the selection uniformly, doubling per 100 pixels of
// upward travel.
func (e *Editor) DragScale(mouse mgl32.Vec2) error {
	if e.mode != ModeScale {
		return nil
	}
	dy := e.dragStart[1] - mouse[1]
	f := float32(math.Pow(2, float64(dy)/100))
	return e.Target.ScaleSelection(e.pivot, mgl32.Vec3{f, f, f})
}

// End finishes the current gesture and refreshes counts and bounds.
func (e *Editor) End() error {
	if e.mode == ModeNone {
		return nil
	}
	e.mode = ModeNone
	return e.Target.UpdateCounts()
}

// ScaleSelected accumulates a wheel scale factor. It is applied by Update.
func (e *Editor) ScaleSelected(factor float32, now float64) error {
	if e.mode != ModeScale {
		if err := e.beginTransform(ModeScale, e.dragStart); err != nil {
			return err
		}
		if e.mode != ModeScale {
			return nil
		}
	}
	e.PendingScaleFactor *= factor
	e.LastScaleInputTime = now
	return nil
}

// Update applies pending wheel scaling after 200ms without input or every
// 100ms while input continues, and ends the gesture once idle.
func (e *Editor) Update(now float64) error {
	if e.mode != ModeScale || e.PendingScaleFactor == 1.0 {
		return nil
	}
	idle := (now - e.LastScaleInputTime) > 0.2
	periodic := (now - e.LastScaleUpdateTime) > 0.1
	if !idle && !periodic {
		return nil
	}
	f := e.PendingScaleFactor
	if err := e.Target.ScaleSelection(e.pivot, mgl32.Vec3{f, f, f}); err != nil {
		return err
	}
	e.LastScaleUpdateTime = now
	if idle {
		e.PendingScaleFactor = 1.0
		return e.End()
	}
	return nil
}

// DeleteSelected deletes the selection.
func (e *Editor) DeleteSelected() error {
	if !e.ready() {
		return nil
	}
	return e.Target.DeleteSelected()
}

func (e *Editor) forward() mgl32.Vec3 {
	v := e.Camera.Eyes[0].View
	return mgl32.Vec3{-v.At(2, 0), -v.At(2, 1), -v.At(2, 2)}
}

// planePoint intersects the pick ray with the camera facing plane through
// the pivot.
func (e *Editor) planePoint(mouse mgl32.Vec2) (mgl32.Vec3, bool) {
	ray := e.GetPickRay(float64(mouse[0]), float64(mouse[1]), e.Camera)
	center := e.Target.Transform.ObjectToWorld().Mul4x1(e.pivot.Vec4(1)).Vec3()
	n := e.forward()
	denom := ray.Direction.Dot(n)
	if float32(math.Abs(float64(denom))) < 1e-6 {
		return mgl32.Vec3{}, false
	}
	t := center.Sub(ray.Origin).Dot(n) / denom
	if t < 0 {
		return mgl32.Vec3{}, false
	}
	return ray.Origin.Add(ray.Direction.Mul(t)), true
}

func (e *Editor) GetPickRay(mouseX, mouseY float64, camera *core.Camera) Ray {
	// Normalized Device Coordinates
	nx := (2.0*float32(mouseX))/float32(camera.ScreenWidth) - 1.0
	ny := 1.0 - (2.0*float32(mouseY))/float32(camera.ScreenHeight) // Flip Y for NDC

	inv := camera.ViewProj(0).Inv()
	far := inv.Mul4x1(mgl32.Vec4{nx, ny, 1, 1})
	far = far.Mul(1 / far[3])
	origin := camera.Eyes[0].Position
	return Ray{origin, far.Vec3().Sub(origin).Normalize()}
}

// HitsSelection reports whether ray passes through the world bounds of the
// target's selection, so a click there starts a move instead of a new rect.
func (e *Editor) HitsSelection(ray Ray) bool {
	if e.Target == nil {
		return false
	}
	b, ok := e.Target.SelectionBounds()
	if !ok {
		return false
	}
	tMin, tMax := intersectAABB(ray, b.Min, b.Max)
	return tMin <= tMax && tMax >= 0
}

func intersectAABB(ray Ray, minB, maxB mgl32.Vec3) (float32, float32) {
	invDir := mgl32.Vec3{1.0 / (ray.Direction.X() + 1e-8), 1.0 / (ray.Direction.Y() + 1e-8), 1.0 / (ray.Direction.Z() + 1e-8)}
	t1 := minB.Sub(ray.Origin)
	t1 = mgl32.Vec3{t1.X() * invDir.X(), t1.Y() * invDir.Y(), t1.Z() * invDir.Z()}
	t2 := maxB.Sub(ray.Origin)
	t2 = mgl32.Vec3{t2.X() * invDir.X(), t2.Y() * invDir.Y(), t2.Z() * invDir.Z()}

	tMinV := mgl32.Vec3{min(t1.X(), t2.X()), min(t1.Y(), t2.Y()), min(t1.Z(), t2.Z())}
	tMaxV := mgl32.Vec3{max(t1.X(), t2.X()), max(t1.Y(), t2.Y()), max(t1.Z(), t2.Z())}

	realMin := max(0, tMinV.X(), tMinV.Y(), tMinV.Z())
	realMax := min(math.MaxFloat32, tMaxV.X(), tMaxV.Y(), tMaxV.Z())
	return realMin, realMax
}
