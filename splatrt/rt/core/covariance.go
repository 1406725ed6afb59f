package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxAxisSize clamps the projected ellipse axes in pixels.
const MaxAxisSize = 4096

// RotationScaleMatrix returns R*S for an xyzw quaternion and a per axis scale.
func RotationScaleMatrix(rot mgl32.Vec4, scale mgl32.Vec3) mgl32.Mat3 {
	x, y, z, w := rot[0], rot[1], rot[2], rot[3]
	// column major
	mr := mgl32.Mat3{
		1 - 2*(y*y+z*z), 2 * (x*y + w*z), 2 * (x*z - w*y),
		2 * (x*y - w*z), 1 - 2*(x*x+z*z), 2 * (y*z + w*x),
		2 * (x*z + w*y), 2 * (y*z - w*x), 1 - 2*(x*x+y*y),
	}
	return mr.Mul3(mgl32.Diag3(scale))
}

// Covariance3D returns the upper triangle of M*M^T as (m00 m01 m02) and
// (m11 m12 m22).
func Covariance3D(m mgl32.Mat3) (mgl32.Vec3, mgl32.Vec3) {
	sig := m.Mul3(m.Transpose())
	return mgl32.Vec3{sig.At(0, 0), sig.At(0, 1), sig.At(0, 2)},
		mgl32.Vec3{sig.At(1, 1), sig.At(1, 2), sig.At(2, 2)}
}

// Covariance2D projects a 3D covariance to screen space. mv maps the splat
// position to view space, proj is the eye projection and screenW the viewport
// width in pixels. The result is (c00, c01, c11) with a low pass term added so
// every splat covers at least a pixel.
func Covariance2D(pos mgl32.Vec3, cov0, cov1 mgl32.Vec3, mv, proj mgl32.Mat4, screenW float32) mgl32.Vec3 {
	vp := mv.Mul4x1(pos.Vec4(1)).Vec3()

	p00, p11 := proj.At(0, 0), proj.At(1, 1)
	aspect := p00 / p11
	tanFovX := 1 / p00
	tanFovY := 1 / (p11 * aspect)
	limX := 1.3 * tanFovX
	limY := 1.3 * tanFovY
	vp[0] = mgl32.Clamp(vp[0]/vp[2], -limX, limX) * vp[2]
	vp[1] = mgl32.Clamp(vp[1]/vp[2], -limY, limY) * vp[2]

	focal := screenW * p00 / 2
	z2 := vp[2] * vp[2]
	j := mgl32.Mat3{
		focal / vp[2], 0, 0,
		0, focal / vp[2], 0,
		-(focal * vp[0]) / z2, -(focal * vp[1]) / z2, 0,
	}
	t := j.Mul3(mv.Mat3())
	v := mgl32.Mat3{
		cov0[0], cov0[1], cov0[2],
		cov0[1], cov1[0], cov1[1],
		cov0[2], cov1[1], cov1[2],
	}
	cov := t.Mul3(v.Mul3(t.Transpose()))
	return mgl32.Vec3{cov.At(0, 0) + 0.3, cov.At(0, 1), cov.At(1, 1) + 0.3}
}

// DecomposeCovariance returns the two axes of the screen space ellipse.
func DecomposeCovariance(cov mgl32.Vec3) (mgl32.Vec2, mgl32.Vec2) {
	d1, off, d2 := cov[0], cov[1], cov[2]
	mid := 0.5 * (d1 + d2)
	radius := mgl32.Vec2{(d1 - d2) / 2, off}.Len()
	lambda1 := mid + radius
	lambda2 := mid - radius
	if lambda2 < 0.1 {
		lambda2 = 0.1
	}
	var diag mgl32.Vec2
	switch {
	case off != 0:
		diag = mgl32.Vec2{off, lambda1 - d1}.Normalize()
	case d1 >= d2:
		diag = mgl32.Vec2{1, 0}
	default:
		diag = mgl32.Vec2{0, 1}
	}
	diag[1] = -diag[1]
	s1 := float32(math.Min(math.Sqrt(float64(2*lambda1)), MaxAxisSize))
	s2 := float32(math.Min(math.Sqrt(float64(2*lambda2)), MaxAxisSize))
	return diag.Mul(s1), mgl32.Vec2{diag[1], -diag[0]}.Mul(s2)
}
