package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxEyes is the number of stereo views a frame can carry.
const MaxEyes = 2

type CameraCategory uint8

const (
	CameraGame CameraCategory = iota
	CameraSceneView
	// CameraPreview cameras only render thumbnails and get no splat work.
	CameraPreview
)

// Eye is one stereo view. View looks down -Z.
type Eye struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	Position mgl32.Vec3
}

type Camera struct {
	Category     CameraCategory
	Eyes         [MaxEyes]Eye
	EyeCount     int
	ScreenWidth  int
	ScreenHeight int
}

// NewPerspectiveCamera builds a mono camera looking from eye at target.
func NewPerspectiveCamera(eye, target, up mgl32.Vec3, fovYDeg float32, width, height int, near, far float32) *Camera {
	aspect := float32(width) / float32(max(height, 1))
	c := &Camera{EyeCount: 1, ScreenWidth: width, ScreenHeight: height}
	c.Eyes[0] = Eye{
		View:     mgl32.LookAtV(eye, target, up),
		Proj:     mgl32.Perspective(mgl32.DegToRad(fovYDeg), aspect, near, far),
		Position: eye,
	}
	c.Eyes[1] = c.Eyes[0]
	return c
}

// NewStereoCamera offsets two eyes by half the interpupillary distance along
// the camera right vector.
func NewStereoCamera(eye, target, up mgl32.Vec3, ipd, fovYDeg float32, width, height int, near, far float32) *Camera {
	c := NewPerspectiveCamera(eye, target, up, fovYDeg, width, height, near, far)
	fwd := target.Sub(eye).Normalize()
	right := fwd.Cross(up).Normalize()
	for i, s := range [MaxEyes]float32{-0.5, 0.5} {
		p := eye.Add(right.Mul(ipd * s))
		c.Eyes[i].Position = p
		c.Eyes[i].View = mgl32.LookAtV(p, p.Add(fwd), up)
	}
	c.EyeCount = 2
	return c
}

func (c *Camera) ViewProj(eye int) mgl32.Mat4 {
	return c.Eyes[eye].Proj.Mul4(c.Eyes[eye].View)
}

// ScreenParams packs the viewport the way the kernels read it.
func (c *Camera) ScreenParams() mgl32.Vec4 {
	return mgl32.Vec4{float32(c.ScreenWidth), float32(c.ScreenHeight), 0, 0}
}

// WorldToPixel projects p with eye 0. Pixels have their origin at the top
// left corner. ok is false for points behind the camera.
func (c *Camera) WorldToPixel(p mgl32.Vec3) (mgl32.Vec2, bool) {
	clip := c.ViewProj(0).Mul4x1(p.Vec4(1))
	if clip[3] <= 0 {
		return mgl32.Vec2{}, false
	}
	return ClipToPixel(clip, float32(c.ScreenWidth), float32(c.ScreenHeight)), true
}

func ClipToPixel(clip mgl32.Vec4, w, h float32) mgl32.Vec2 {
	return mgl32.Vec2{
		(clip[0]/clip[3]*0.5 + 0.5) * w,
		(clip[1]/clip[3]*-0.5 + 0.5) * h,
	}
}

// FlyCamera is a yaw/pitch camera with Y up, used to drive synthetic frames.
type FlyCamera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	FovY     float32
}

func NewFlyCamera() *FlyCamera {
	return &FlyCamera{
		Position: mgl32.Vec3{0, 2, 20},
		FovY:     60,
	}
}

func (c *FlyCamera) GetForward() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

// Camera returns a mono or stereo frame camera for the current pose.
func (c *FlyCamera) Camera(width, height int, stereo bool) *Camera {
	target := c.Position.Add(c.GetForward())
	up := mgl32.Vec3{0, 1, 0}
	if stereo {
		return NewStereoCamera(c.Position, target, up, 0.064, c.FovY, width, height, 0.1, 1000)
	}
	return NewPerspectiveCamera(c.Position, target, up, c.FovY, width, height, 0.1, 1000)
}
